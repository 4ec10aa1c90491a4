package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"followsweep/pkg/collector"
)

const (
	ProgressBar   = "█"
	ProgressEmpty = "░"
)

// ProgressLine keeps one console line current with the collection progress
type ProgressLine struct {
	mu          sync.Mutex
	out         io.Writer
	maxStalls   int
	maxAttempts int
	start       time.Time
	last        collector.Progress
}

// NewProgressLine writes to out, or Out when nil
func NewProgressLine(out io.Writer, maxStalls, maxAttempts int) *ProgressLine {
	if out == nil {
		out = Out
	}
	return &ProgressLine{out: out, maxStalls: maxStalls, maxAttempts: maxAttempts, start: time.Now()}
}

// Update redraws the line for p
func (pl *ProgressLine) Update(p collector.Progress) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.last = p
	fmt.Fprint(pl.out, "\r"+pl.render(p))
}

// Done ends the line
func (pl *ProgressLine) Done() {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	fmt.Fprintln(pl.out)
}

// Rate returns records written per minute so far
func (pl *ProgressLine) Rate() float64 {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	elapsed := time.Since(pl.start).Minutes()
	if elapsed <= 0 {
		return 0
	}
	return float64(pl.last.Written) / elapsed
}

func (pl *ProgressLine) render(p collector.Progress) string {
	status := Green("[COLLECTING]")
	if p.RateLimits > 0 {
		status = Yellow(fmt.Sprintf("[RATE LIMITED %d/%d]", p.RateLimits, pl.maxAttempts))
	}
	return fmt.Sprintf("%s @%s | pass %d | +%d | total %d | stalls %s",
		status, p.Subject, p.Iteration, p.Batch, p.Written, Meter(p.Stalls, pl.maxStalls, 6))
}

// Meter renders n of max as a fixed-width bar
func Meter(n, max, width int) string {
	if max <= 0 {
		return strings.Repeat(ProgressEmpty, width)
	}
	if n > max {
		n = max
	}
	if n < 0 {
		n = 0
	}
	filled := n * width / max
	return strings.Repeat(ProgressBar, filled) + strings.Repeat(ProgressEmpty, width-filled)
}
