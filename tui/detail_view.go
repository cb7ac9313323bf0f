package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jpchacon09/APOLLO/models"
)

var (
	fieldLabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			Width(20)

	fieldValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))
)

func (m Model) renderDetailView() string {
	var s strings.Builder

	// Title
	s.WriteString(titleStyle.Render("CONTACT"))
	s.WriteString("\n\n")

	contacts := m.currentContacts()
	if m.selectedRow >= len(contacts) {
		s.WriteString("No contact selected")
	} else {
		c := contacts[m.selectedRow]
		s.WriteString(renderField("Name", c.Name))
		s.WriteString(renderField("Company", c.Company))
		s.WriteString(renderField("Email", c.Email))
		s.WriteString(renderField("Category", string(models.PipelineCategories[m.category])))
		s.WriteString(renderField("Status", c.Status))
		s.WriteString(renderField("Campaign", c.Campaign))
		s.WriteString(renderField("Step", c.Step))
	}

	s.WriteString("\n")

	// Help
	s.WriteString(helpStyle.Render(strings.Join([]string{"Esc: Back", "q: Quit"}, " • ")))

	return s.String()
}

func renderField(label, value string) string {
	if value == "" {
		value = "-"
	}
	return fieldLabelStyle.Render(label+":") + " " + fieldValueStyle.Render(value) + "\n"
}

func (m Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "backspace":
		m.viewMode = ViewPipeline
	}

	return m, nil
}
