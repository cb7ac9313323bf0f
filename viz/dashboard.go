// ABOUTME: Terminal dashboard rendering of a reporting snapshot
// ABOUTME: Pipeline bars, channel KPIs, coverage, and the activity feed styled with lipgloss
package viz

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jpchacon09/APOLLO/models"
)

var (
	dashboardTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("205"))

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	barStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86"))
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

// dashboardActivity is how many feed items the terminal dashboard shows.
const dashboardActivity = 10

// RenderDashboard renders a snapshot for the terminal.
func RenderDashboard(s *Snapshot) string {
	var out strings.Builder

	// Header
	out.WriteString(rule + "\n")
	out.WriteString("  " + dashboardTitleStyle.Render("PLATAM CRM DASHBOARD") + "\n")
	out.WriteString("  " + mutedStyle.Render("generated "+s.GeneratedAt.Local().Format("2006-01-02 15:04")) + "\n")
	out.WriteString(rule + "\n\n")

	out.WriteString(sectionStyle.Render("PIPELINE OVERVIEW") + "\n")
	renderPipeline(&out, s.Counts)
	out.WriteString("\n")

	k := s.KPIs
	out.WriteString(sectionStyle.Render("CHANNELS") + "\n")
	out.WriteString(fmt.Sprintf("  ✉️  email     %d total  %d sent  %d replied\n", k.Email.Total, k.Email.Sent, k.Email.Replied))
	out.WriteString(fmt.Sprintf("  🔗 linkedin  %d sent  %d replied\n", k.LinkedIn.Sent, k.LinkedIn.Replied))
	out.WriteString(fmt.Sprintf("  📞 calls     %d realized  %d answered  %d meetings\n\n", k.Calls.Realized, k.Calls.Answered, k.Calls.Meetings))

	c := s.Coverage
	out.WriteString(sectionStyle.Render("COVERAGE") + "\n")
	out.WriteString(fmt.Sprintf("  📇 %d contacts  %d with email  %d with phone\n", c.Total, c.WithEmail, c.WithPhone))
	out.WriteString(fmt.Sprintf("  🔄 %d synced  %d pending  (%.1f%%)\n\n", c.Synced, c.Pending, c.SyncPercent))

	if len(s.StepMetrics) > 0 {
		out.WriteString(sectionStyle.Render("STEPS") + "\n")
		renderSteps(&out, s.StepMetrics)
		out.WriteString("\n")
	}

	if len(s.RecentActivity) > 0 {
		out.WriteString(sectionStyle.Render("RECENT ACTIVITY") + "\n")
		for i, a := range s.RecentActivity {
			if i == dashboardActivity {
				break
			}
			who := a.Contact
			if who == "" {
				who = a.Email
			}
			out.WriteString(fmt.Sprintf("  %s  %-8s %-10s %s %s\n",
				mutedStyle.Render(a.Date.Local().Format("Jan 02")), a.Channel, a.Status, who,
				mutedStyle.Render("("+a.Sequence+" · step "+a.Step+")")))
		}
	}

	return out.String()
}

func renderPipeline(out *strings.Builder, counts map[models.PipelineCategory]int) {
	// Find max count for scaling
	maxCount := 0
	for _, n := range counts {
		if n > maxCount {
			maxCount = n
		}
	}
	if maxCount == 0 {
		maxCount = 1
	}

	for _, category := range models.PipelineCategories {
		n := counts[category]

		// Calculate bar length (0-10 blocks)
		barLength := (n * 10) / maxCount
		bar := barStyle.Render(strings.Repeat("█", barLength)) + strings.Repeat("░", 10-barLength)

		out.WriteString(fmt.Sprintf("  %-13s %s  %3d\n", category, bar, n))
	}
}

func renderSteps(out *strings.Builder, metrics map[string]StepMetrics) {
	steps := make([]string, 0, len(metrics))
	for step := range metrics {
		steps = append(steps, step)
	}
	sort.Strings(steps)

	for _, step := range steps {
		m := metrics[step]
		out.WriteString(fmt.Sprintf("  %-16s %3d  ✓%d interested  📅%d scheduled  ✗%d rejected  …%d no answer  %d no response\n",
			step, m.Total, m.Interested, m.Scheduled, m.Rejected, m.NoAnswer, m.NoResponse))
	}
}
