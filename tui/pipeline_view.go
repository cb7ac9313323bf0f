package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jpchacon09/APOLLO/models"
	"github.com/jpchacon09/APOLLO/viz"
)

func (m Model) renderPipelineView() string {
	var s strings.Builder

	// Title
	s.WriteString(titleStyle.Render("PLATAM PIPELINE"))
	s.WriteString("\n\n")

	if m.err != nil {
		s.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		s.WriteString("\n\n")
	}

	// Tabs
	s.WriteString(m.renderTabs())
	s.WriteString("\n\n")

	// Table
	s.WriteString(m.renderContactsTable())
	s.WriteString("\n\n")

	// Help
	s.WriteString(m.renderPipelineHelp())

	return s.String()
}

func (m Model) renderTabs() string {
	var rendered []string

	for i, category := range models.PipelineCategories {
		label := fmt.Sprintf("%s (%d)", category, m.countFor(category))
		if i == m.category {
			rendered = append(rendered, tabActiveStyle.Render(label))
		} else {
			rendered = append(rendered, tabInactiveStyle.Render(label))
		}
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

func (m Model) countFor(category models.PipelineCategory) int {
	if m.snapshot == nil {
		return 0
	}
	return m.snapshot.Counts[category]
}

// currentContacts returns the sampled contacts of the selected category.
func (m Model) currentContacts() []viz.PipelineContact {
	if m.snapshot == nil {
		return nil
	}
	bucket := m.snapshot.Pipeline[models.PipelineCategories[m.category]]
	if bucket == nil {
		return nil
	}
	return bucket.Contacts
}

func (m Model) renderContactsTable() string {
	if m.snapshot == nil {
		return "Loading pipeline..."
	}

	columns := []table.Column{
		{Title: "Name", Width: 24},
		{Title: "Company", Width: 20},
		{Title: "Email", Width: 28},
		{Title: "Status", Width: 14},
		{Title: "Campaign", Width: 18},
		{Title: "Step", Width: 12},
	}

	var rows []table.Row
	for _, c := range m.currentContacts() {
		rows = append(rows, table.Row{c.Name, c.Company, c.Email, c.Status, c.Campaign, c.Step})
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(max(m.height-10, 3)),
	)

	// Set selected row
	if m.selectedRow < len(rows) {
		t.SetCursor(m.selectedRow)
	}

	return t.View()
}

func (m Model) renderPipelineHelp() string {
	help := []string{
		"↑/↓: Navigate",
		"←/→: Category",
		"Enter: View details",
		"d: Dashboard",
		"s: Sync",
		"r: Reload",
		"q: Quit",
	}
	return helpStyle.Render(strings.Join(help, " • "))
}

func (m Model) handlePipelineKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.selectedRow > 0 {
			m.selectedRow--
		}
	case "down", "j":
		if m.selectedRow < len(m.currentContacts())-1 {
			m.selectedRow++
		}
	case "right", "l", "tab":
		m.category = (m.category + 1) % len(models.PipelineCategories)
		m.selectedRow = 0
	case "left", "h", "shift+tab":
		m.category = (m.category + len(models.PipelineCategories) - 1) % len(models.PipelineCategories)
		m.selectedRow = 0
	case "enter":
		if m.selectedRow < len(m.currentContacts()) {
			m.viewMode = ViewDetail
		}
	case "d":
		m.viewMode = ViewDashboard
	case "s":
		m.viewMode = ViewSync
		m.loadSyncStates()
	case "r":
		return m, m.loadSnapshot()
	}

	return m, nil
}
