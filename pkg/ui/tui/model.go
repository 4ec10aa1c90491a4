package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"followsweep/pkg/collector"
	"followsweep/pkg/session"
)

// LogMessage represents a log entry
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
	Color   lipgloss.Color
}

// Model is the collection dashboard
type Model struct {
	spinner  spinner.Model
	stallBar progress.Model
	limitBar progress.Model

	subject     string
	maxStalls   int
	maxAttempts int
	started     time.Time
	current     collector.Progress

	// set once the session reports its end
	finished bool
	final    session.Snapshot

	stopping bool
	onStop   func()

	width          int
	height         int
	showHelp       bool
	logMessages    []LogMessage
	maxLogMessages int
}

// NewModel creates the dashboard for one session. onStop is called the first
// time the operator asks to stop.
func NewModel(subject string, maxStalls, maxAttempts int, onStop func()) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(neonCyan)

	return &Model{
		spinner:        s,
		stallBar:       progress.New(progress.WithGradient(string(neonGreen), string(neonOrange)), progress.WithoutPercentage()),
		limitBar:       progress.New(progress.WithGradient(string(neonYellow), string(alertRed)), progress.WithoutPercentage()),
		subject:        subject,
		maxStalls:      maxStalls,
		maxAttempts:    maxAttempts,
		started:        time.Now(),
		onStop:         onStop,
		maxLogMessages: 50,
	}
}

// Init starts the spinner and the refresh tick
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func (m *Model) applyProgress(p collector.Progress) {
	if p.Subject != "" {
		m.subject = p.Subject
	}
	if p.RateLimits > 0 && m.current.RateLimits == 0 {
		m.AddLogMessage("WARN", "rate limited, backing off")
	}
	m.current = p
}

func (m *Model) finish(snap session.Snapshot) {
	m.finished = true
	m.final = snap
	m.current.Written = snap.Written
	switch snap.Outcome {
	case "success":
		m.AddLogMessage("SUCCESS", "end of list reached")
	case "cancelled":
		m.AddLogMessage("WARN", "collection stopped")
	default:
		m.AddLogMessage("ERROR", "collection failed: "+snap.Error)
	}
}

func (m *Model) requestStop() {
	if m.stopping || m.finished {
		return
	}
	m.stopping = true
	m.AddLogMessage("WARN", "stop requested, finishing current batch")
	if m.onStop != nil {
		m.onStop()
	}
}

// AddLogMessage adds a log message
func (m *Model) AddLogMessage(level, message string) {
	color := dimWhite
	switch level {
	case "ERROR":
		color = alertRed
	case "WARN":
		color = neonOrange
	case "SUCCESS":
		color = neonGreen
	case "INFO":
		color = neonCyan
	}

	m.logMessages = append(m.logMessages, LogMessage{
		Time:    time.Now(),
		Level:   level,
		Message: message,
		Color:   color,
	})
	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}

// Rate returns records written per minute
func (m *Model) Rate() float64 {
	end := time.Now()
	if m.finished && !m.final.FinishedAt.IsZero() {
		end = m.final.FinishedAt
	}
	minutes := end.Sub(m.started).Minutes()
	if minutes <= 0 {
		return 0
	}
	return float64(m.current.Written) / minutes
}

func ratio(n, max int) float64 {
	if max <= 0 || n <= 0 {
		return 0
	}
	if n >= max {
		return 1
	}
	return float64(n) / float64(max)
}
