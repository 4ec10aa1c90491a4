package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"followsweep/pkg/collector"
	"followsweep/pkg/session"
)

func key(s string) tea.KeyMsg {
	if s == "ctrl+c" {
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestModelProgress(t *testing.T) {
	model := NewModel("alice", 3, 10, nil)

	model.Update(ProgressMsg(collector.Progress{Subject: "alice", Iteration: 2, Batch: 15, Written: 30}))
	if model.current.Written != 30 || model.current.Iteration != 2 {
		t.Errorf("progress not applied: %+v", model.current)
	}
	if model.status() != "COLLECTING" {
		t.Errorf("Expected COLLECTING, got %s", model.status())
	}

	model.Update(ProgressMsg(collector.Progress{Subject: "alice", Iteration: 3, Written: 30, RateLimits: 1}))
	if model.status() != "RATE LIMITED" {
		t.Errorf("Expected RATE LIMITED, got %s", model.status())
	}
	if len(model.logMessages) != 1 || model.logMessages[0].Level != "WARN" {
		t.Errorf("Expected one rate limit warning, got %+v", model.logMessages)
	}

	// staying limited does not repeat the warning
	model.Update(ProgressMsg(collector.Progress{Subject: "alice", Iteration: 4, Written: 30, RateLimits: 2}))
	if len(model.logMessages) != 1 {
		t.Errorf("Expected 1 log message, got %d", len(model.logMessages))
	}
}

func TestStopThenQuit(t *testing.T) {
	stops := 0
	model := NewModel("bob", 3, 10, func() { stops++ })

	_, cmd := model.Update(key("q"))
	if isQuit(cmd) {
		t.Fatal("first q should request a stop, not quit")
	}
	model.Update(key("q"))
	if stops != 1 {
		t.Errorf("Expected onStop once, got %d", stops)
	}
	if model.status() != "STOPPING" {
		t.Errorf("Expected STOPPING, got %s", model.status())
	}

	now := time.Now()
	model.Update(FinishedMsg{Snapshot: session.Snapshot{Outcome: "cancelled", Written: 12, StartedAt: now, FinishedAt: now}})
	if model.status() != "CANCELLED" {
		t.Errorf("Expected CANCELLED, got %s", model.status())
	}

	_, cmd = model.Update(key("q"))
	if !isQuit(cmd) {
		t.Error("q after the session ended should quit")
	}
}

func TestDoubleCtrlCQuits(t *testing.T) {
	model := NewModel("carol", 3, 10, nil)
	_, cmd := model.Update(key("ctrl+c"))
	if isQuit(cmd) {
		t.Fatal("first ctrl+c should only request a stop")
	}
	_, cmd = model.Update(key("ctrl+c"))
	if !isQuit(cmd) {
		t.Error("second ctrl+c should quit")
	}
}

func TestFinishedFailure(t *testing.T) {
	model := NewModel("dave", 3, 10, nil)
	model.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	model.Update(FinishedMsg{Snapshot: session.Snapshot{Outcome: "failed", Written: 7, Error: "rate limit exhausted"}})

	last := model.logMessages[len(model.logMessages)-1]
	if last.Level != "ERROR" || !strings.Contains(last.Message, "rate limit exhausted") {
		t.Errorf("unexpected log %+v", last)
	}

	view := model.View()
	for _, want := range []string{"FAILED", "@dave", "rate limit exhausted"} {
		if !strings.Contains(view, want) {
			t.Errorf("view does not contain %q", want)
		}
	}
	if _, cmd := model.Update(TickMsg(time.Now())); cmd != nil {
		t.Error("ticks should stop after the session ends")
	}
}

func TestHelpAndClear(t *testing.T) {
	model := NewModel("erin", 3, 10, nil)
	model.AddLogMessage("INFO", "hello")
	model.Update(key("?"))
	if !model.showHelp {
		t.Error("? should toggle help")
	}
	model.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	if len(model.logMessages) != 0 {
		t.Errorf("Expected logs cleared, got %d", len(model.logMessages))
	}
}

func TestViewBeforeResize(t *testing.T) {
	if got := NewModel("x", 3, 10, nil).View(); got != "Initializing..." {
		t.Errorf("unexpected view %q", got)
	}
}

func TestLogTrimming(t *testing.T) {
	model := NewModel("x", 3, 10, nil)
	for i := 0; i < 60; i++ {
		model.AddLogMessage("INFO", "line")
	}
	if len(model.logMessages) != 50 {
		t.Errorf("Expected 50 retained messages, got %d", len(model.logMessages))
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{-time.Second, "00:00"},
		{75 * time.Second, "01:15"},
		{2*time.Hour + 3*time.Minute + 4*time.Second, "02:03:04"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %s, want %s", tt.d, got, tt.want)
		}
	}
}
