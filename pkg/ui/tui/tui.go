package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"followsweep/pkg/collector"
	"followsweep/pkg/session"
)

// TUI runs the collection dashboard
type TUI struct {
	program *tea.Program
	model   *Model
}

// New creates the dashboard for subject. onStop is invoked when the
// operator presses q.
func New(subject string, maxStalls, maxAttempts int, onStop func()) *TUI {
	model := NewModel(subject, maxStalls, maxAttempts, onStop)
	return &TUI{
		program: tea.NewProgram(model, tea.WithAltScreen()),
		model:   model,
	}
}

// Start runs the program until the operator quits
func (t *TUI) Start() error {
	_, err := t.program.Run()
	return err
}

// Stop stops the TUI gracefully
func (t *TUI) Stop() {
	t.program.Quit()
}

// Send sends a message to the TUI
func (t *TUI) Send(msg tea.Msg) {
	if t.program != nil {
		t.program.Send(msg)
	}
}

// Progress forwards a collector progress report
func (t *TUI) Progress(p collector.Progress) {
	t.Send(ProgressMsg(p))
}

// Finished reports the end of the session
func (t *TUI) Finished(snap session.Snapshot) {
	t.Send(FinishedMsg{Snapshot: snap})
}

// Log sends a log message to the TUI
func (t *TUI) Log(level, format string, args ...interface{}) {
	t.Send(LogMsg{Level: level, Message: fmt.Sprintf(format, args...)})
}

// LogInfo logs an info message
func (t *TUI) LogInfo(format string, args ...interface{}) {
	t.Log("INFO", format, args...)
}

// LogWarning logs a warning message
func (t *TUI) LogWarning(format string, args ...interface{}) {
	t.Log("WARN", format, args...)
}

// LogError logs an error message
func (t *TUI) LogError(format string, args ...interface{}) {
	t.Log("ERROR", format, args...)
}
