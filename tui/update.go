package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.refreshCmd()
		case "j", "down":
			if m.showing {
				m.scroll++
			} else if m.selected < len(m.runs)-1 {
				m.selected++
			}
		case "k", "up":
			if m.showing {
				if m.scroll > 0 {
					m.scroll--
				}
			} else if m.selected > 0 {
				m.selected--
			}
		case "enter":
			if !m.showing && m.selected < len(m.runs) {
				row := m.runs[m.selected]
				return m, m.loadDetailCmd(row.RunID, row.Version)
			}
		case "esc":
			m.showing = false
			m.detail = nil
			m.scroll = 0
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		if m.showing {
			// Don't reshuffle the list under an open report
			return m, tickCmd()
		}
		return m, tea.Batch(m.refreshCmd(), tickCmd())

	case runsLoadedMsg:
		m.loadErr = msg.err
		if msg.err == nil {
			m.runs = msg.runs
			if m.selected >= len(m.runs) && len(m.runs) > 0 {
				m.selected = len(m.runs) - 1
			}
		}
		m.lastRefresh = time.Now()

	case detailLoadedMsg:
		if msg.err != nil {
			m.loadErr = msg.err
			return m, nil
		}
		m.detail = msg.run
		m.showing = true
		m.scroll = 0
	}

	return m, nil
}
