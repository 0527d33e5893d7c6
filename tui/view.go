package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/hochfrequenz/deep-research-orchestrator/internal/domain"
)

var (
	headerStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255")).
		Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205"))

	completedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	runningStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("214"))

	failedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("196"))

	dimmedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("244"))

	statusBarStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255"))
)

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	header := fmt.Sprintf(" Deep Research Orchestrator │ Runs: %d ", len(m.runs))
	b.WriteString(headerStyle.Width(m.width).Render(header))
	b.WriteString("\n")

	if m.loadErr != nil {
		b.WriteString(failedStyle.Render("Error: " + m.loadErr.Error()))
		b.WriteString("\n")
	}

	var content string
	if m.showing && m.detail != nil {
		content = m.renderDetail()
	} else {
		content = m.renderRunList()
	}
	b.WriteString(sectionStyle.Width(m.width - 2).Render(content))
	b.WriteString("\n")

	b.WriteString(m.renderStatusBar())

	return b.String()
}

func (m Model) renderRunList() string {
	if len(m.runs) == 0 {
		return dimmedStyle.Render("No research runs yet. Start one with: research-orch new <topic>")
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-10s %-40s %-12s %4s %10s  %s\n",
		"RUN", "TOPIC", "STATUS", "VER", "COST", "CREATED"))

	for i, run := range m.runs {
		topic := run.Topic
		if len(topic) > 40 {
			topic = topic[:37] + "..."
		}
		line := fmt.Sprintf("%-10s %-40s %-12s %4d %10s  %s",
			run.RunID, topic, run.Status, run.Version,
			fmt.Sprintf("$%.2f", run.CostUSD),
			humanize.Time(run.CreatedAt))

		if i == m.selected {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString("  " + statusStyle(run.Status).Render(line))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderDetail() string {
	run := m.detail

	var b strings.Builder
	b.WriteString(selectedStyle.Render(fmt.Sprintf("%s v%d", run.RunID, run.Version)))
	b.WriteString("  ")
	b.WriteString(statusStyle(run.Status).Render(string(run.Status)))
	b.WriteString("\n")
	b.WriteString(dimmedStyle.Render("Topic: " + run.Topic()))
	b.WriteString("\n")
	if run.Usage != nil {
		b.WriteString(dimmedStyle.Render(fmt.Sprintf("Usage: %s ($%.2f)", run.Usage, run.Usage.Cost())))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if !run.HasReport {
		b.WriteString(dimmedStyle.Render("No report yet."))
		return b.String()
	}

	lines := strings.Split(run.ReportText, "\n")
	visible := m.height - 10
	if visible < 5 {
		visible = 5
	}
	start := m.scroll
	if start > len(lines)-1 {
		start = len(lines) - 1
	}
	end := start + visible
	if end > len(lines) {
		end = len(lines)
	}
	b.WriteString(strings.Join(lines[start:end], "\n"))
	return b.String()
}

func (m Model) renderStatusBar() string {
	var help string
	if m.showing {
		help = " j/k scroll │ esc back │ q quit "
	} else {
		help = " j/k move │ enter open │ r refresh │ q quit "
	}
	return statusBarStyle.Width(m.width).Render(help)
}

func statusStyle(status domain.Status) lipgloss.Style {
	switch status {
	case domain.StatusCompleted:
		return completedStyle
	case domain.StatusRunning, domain.StatusPending:
		return runningStyle
	case domain.StatusFailed, domain.StatusCancelled:
		return failedStyle
	default:
		return dimmedStyle
	}
}
