package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"followsweep/pkg/collector"
	"followsweep/pkg/session"
)

// ProgressMsg carries one collector progress report
type ProgressMsg collector.Progress

// FinishedMsg is sent when the session ends
type FinishedMsg struct {
	Snapshot session.Snapshot
}

// LogMsg is sent to add a log message
type LogMsg struct {
	Level   string
	Message string
}

// TickMsg is sent periodically to update the UI
type TickMsg time.Time

// Update handles all messages and updates the model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		if m.finished {
			return m, nil
		}
		return m, tickCmd()

	case ProgressMsg:
		m.applyProgress(collector.Progress(msg))
		return m, nil

	case FinishedMsg:
		m.finish(msg.Snapshot)
		return m, nil

	case LogMsg:
		m.AddLogMessage(msg.Level, msg.Message)
		return m, nil
	}

	return m, nil
}

func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		if m.finished {
			return m, tea.Quit
		}
		// a second ctrl+c leaves without waiting for the session
		if m.stopping && msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		m.requestStop()
		return m, nil

	case "?":
		m.showHelp = !m.showHelp
		return m, nil

	case "ctrl+l":
		m.logMessages = nil
		return m, nil
	}

	return m, nil
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
