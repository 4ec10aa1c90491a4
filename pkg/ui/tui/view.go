package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// View renders the dashboard
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	sections := []string{m.renderHeader()}

	half := (m.width - 4) / 2
	sections = append(sections, lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderStatsPanel(half),
		"  ",
		lipgloss.JoinVertical(lipgloss.Left, m.renderGuardPanel(half), m.renderLogsPanel(half)),
	))

	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, helpStyle.Render("q stop • ? help"))
	}

	return baseStyle.Width(m.width).Height(m.height).Render(
		lipgloss.JoinVertical(lipgloss.Left, sections...),
	)
}

func (m *Model) renderHeader() string {
	return headerStyle.Width(m.width).Render(fmt.Sprintf("%s followsweep  @%s", m.spinner.View(), m.subject))
}

func (m *Model) status() string {
	switch {
	case m.finished:
		return strings.ToUpper(m.final.Outcome)
	case m.stopping:
		return "STOPPING"
	case m.current.RateLimits > 0:
		return "RATE LIMITED"
	default:
		return "COLLECTING"
	}
}

func (m *Model) renderStatsPanel(width int) string {
	title := titleStyle.Render(" SESSION ")
	badge := statusStyle(m.finished, m.final.Outcome, m.current.RateLimits > 0).Render(m.status())

	elapsed := time.Since(m.started)
	if m.finished && !m.final.FinishedAt.IsZero() {
		elapsed = m.final.FinishedAt.Sub(m.started)
	}

	rows := []string{
		stat("Status:", badge),
		stat("Elapsed:", statsValueStyle.Render(formatDuration(elapsed))),
		stat("Iteration:", statsValueStyle.Render(fmt.Sprintf("%d", m.current.Iteration))),
		stat("Last batch:", statsValueStyle.Render(fmt.Sprintf("%d", m.current.Batch))),
		stat("Written:", successStyle.Render(fmt.Sprintf("%d", m.current.Written))),
		stat("Rate:", statsValueStyle.Render(fmt.Sprintf("%.1f/min", m.Rate()))),
	}
	if m.finished && m.final.Error != "" {
		rows = append(rows, errorStyle.Render(m.final.Error))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(rows, "\n")),
	)
}

func (m *Model) renderGuardPanel(width int) string {
	title := titleStyle.Render(" END DETECTION ")

	m.stallBar.Width = width - 8
	m.limitBar.Width = width - 8

	rows := []string{
		stat("Stalls:", statsValueStyle.Render(fmt.Sprintf("%d/%d", m.current.Stalls, m.maxStalls))),
		m.stallBar.ViewAs(ratio(m.current.Stalls, m.maxStalls)),
		stat("Rate-limit attempts:", statsValueStyle.Render(fmt.Sprintf("%d/%d", m.current.RateLimits, m.maxAttempts))),
		m.limitBar.ViewAs(ratio(m.current.RateLimits, m.maxAttempts)),
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(rows, "\n")),
	)
}

func (m *Model) renderLogsPanel(width int) string {
	title := titleStyle.Render(" LOG ")

	start := len(m.logMessages) - 10
	if start < 0 {
		start = 0
	}

	var logs []string
	maxMsgLen := width - 25
	for _, log := range m.logMessages[start:] {
		message := log.Message
		if maxMsgLen > 3 && len(message) > maxMsgLen {
			message = message[:maxMsgLen-3] + "..."
		}
		logs = append(logs, fmt.Sprintf("%s %s %s",
			logTimestampStyle.Render(log.Time.Format("15:04:05")),
			lipgloss.NewStyle().Foreground(log.Color).Bold(true).Render(fmt.Sprintf("[%-7s]", log.Level)),
			logMessageStyle.Render(message),
		))
	}

	content := strings.Join(logs, "\n")
	if content == "" {
		content = lipgloss.NewStyle().Foreground(dimWhite).Render("No logs yet...")
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, content),
	)
}

func (m *Model) renderHelp() string {
	help := `
  Keys:
    q        - Stop collecting (quit once finished)
    ctrl+c   - Press twice to leave without waiting
    ctrl+l   - Clear the log
    ?        - Toggle this help

  The session ends on its own once the list stops growing for
  the configured number of checks.
`
	return panelStyle.Width(m.width).Render(help)
}

func stat(label, value string) string {
	return fmt.Sprintf("%s %s", statsLabelStyle.Render(label), value)
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		return "00:00"
	}

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
