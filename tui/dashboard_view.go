package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

func (m Model) renderDashboardView() string {
	var s strings.Builder

	if m.snapshot == nil {
		s.WriteString("Loading dashboard...\n")
	} else {
		s.WriteString(m.dashboard.View())
		s.WriteString("\n")
	}

	// Help
	help := []string{
		"↑/↓: Scroll",
		"r: Reload",
		"Esc: Back",
		"q: Quit",
	}
	s.WriteString(helpStyle.Render(strings.Join(help, " • ")))

	return s.String()
}

func (m Model) handleDashboardKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.viewMode = ViewPipeline
		return m, nil
	case "r":
		return m, m.loadSnapshot()
	}

	var cmd tea.Cmd
	m.dashboard, cmd = m.dashboard.Update(msg)
	return m, cmd
}
