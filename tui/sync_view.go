// ABOUTME: TUI view for sync status and controls
// ABOUTME: Displays the sync lock state and recent runs, and runs a batch with live progress
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jpchacon09/APOLLO/db"
	"github.com/jpchacon09/APOLLO/models"
	"github.com/jpchacon09/APOLLO/sync"
)

var (
	syncTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			MarginBottom(1)

	syncHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Underline(true)

	syncIdleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	syncSyncingStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("11")).
				Bold(true)

	syncErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	syncMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Italic(true)
)

// recentRunsShown caps the run history listed in the sync view.
const recentRunsShown = 5

// SyncStateDisplay is the stored sync state formatted for display.
type SyncStateDisplay struct {
	Status       string
	LastSyncTime string
	LastRunID    string
	ErrorMessage string
}

// SyncProgressMsg is sent after each checkpoint of a running sync.
type SyncProgressMsg struct {
	Result models.RunResult
}

// SyncCompleteMsg is sent when a sync operation completes.
type SyncCompleteMsg struct {
	Result *models.RunResult
	Error  error
}

func (m Model) renderSyncView() string {
	var s strings.Builder

	// Title
	s.WriteString(syncTitleStyle.Render("Sync Management"))
	s.WriteString("\n\n")

	s.WriteString(syncHeaderStyle.Render("Status"))
	s.WriteString("\n\n")

	switch {
	case m.syncInProgress || (m.syncState != nil && m.syncState.Status == "syncing"):
		s.WriteString(syncSyncingStyle.Render("  ⟳ Syncing..."))
	case m.syncState == nil:
		s.WriteString(syncMessageStyle.Render("  Not synced yet"))
	case m.syncState.Status == "error":
		s.WriteString(syncErrorStyle.Render("  ✗ Error"))
		if m.syncState.ErrorMessage != "" {
			s.WriteString(syncErrorStyle.Render(": " + m.syncState.ErrorMessage))
		}
	default:
		s.WriteString(syncIdleStyle.Render("  ✓ Idle"))
		if m.syncState.LastSyncTime != "" {
			s.WriteString(syncMessageStyle.Render(" • Last synced " + m.syncState.LastSyncTime))
		}
		if m.syncState.LastRunID != "" {
			s.WriteString(syncMessageStyle.Render(" (" + m.syncState.LastRunID + ")"))
		}
	}
	s.WriteString("\n")

	if m.syncProgress != nil {
		p := m.syncProgress
		percent := 1.0
		if p.Selected > 0 {
			percent = float64(p.Processed()) / float64(p.Selected)
		}
		s.WriteString("\n  ")
		s.WriteString(m.progressBar.ViewAs(percent))
		s.WriteString(fmt.Sprintf("  %d/%d", p.Processed(), p.Selected))
		s.WriteString("\n")
		s.WriteString(syncMessageStyle.Render(fmt.Sprintf("  %d updated • %d without history • %d failed",
			p.Succeeded, p.Empty, p.Failed)))
		s.WriteString("\n")
	}
	s.WriteString("\n")

	if len(m.recentRuns) > 0 {
		s.WriteString(syncHeaderStyle.Render("Recent Runs"))
		s.WriteString("\n\n")
		for _, r := range m.recentRuns {
			line := fmt.Sprintf("  %s  %d selected  %d updated  %d empty  %d failed",
				formatTimeSince(r.StartedAt), r.Selected, r.Succeeded, r.Empty, r.Failed)
			if r.Aborted {
				line += "  aborted: " + r.AbortReason
			}
			s.WriteString(line)
			s.WriteString("\n")
		}
		s.WriteString("\n")
	}

	// Recent messages
	if len(m.syncMessages) > 0 {
		s.WriteString(syncHeaderStyle.Render("Recent Activity"))
		s.WriteString("\n\n")
		// Show last 5 messages
		start := 0
		if len(m.syncMessages) > 5 {
			start = len(m.syncMessages) - 5
		}
		for i := start; i < len(m.syncMessages); i++ {
			s.WriteString(syncMessageStyle.Render("  " + m.syncMessages[i]))
			s.WriteString("\n")
		}
		s.WriteString("\n")
	}

	// Help
	s.WriteString(m.renderSyncHelp())

	return s.String()
}

func (m Model) renderSyncHelp() string {
	help := []string{
		"Enter/s: Sync batch",
		"x: Cancel",
		"r: Refresh status",
		"Esc: Back",
		"q: Quit",
	}
	return helpStyle.Render(strings.Join(help, " • "))
}

func (m *Model) loadSyncStates() {
	m.syncState = nil
	m.recentRuns = nil
	if m.db == nil {
		return
	}

	state, err := db.GetSyncState(m.db, db.ServiceApollo)
	if err == nil && state != nil {
		display := &SyncStateDisplay{Status: state.Status}
		if state.LastSyncTime != nil {
			display.LastSyncTime = formatTimeSince(*state.LastSyncTime)
		}
		if state.LastRunID != nil {
			display.LastRunID = *state.LastRunID
		}
		if state.ErrorMessage != nil {
			display.ErrorMessage = *state.ErrorMessage
		}
		m.syncState = display
	}

	runs, err := db.GetRecentSyncRuns(m.db, recentRunsShown)
	if err != nil {
		return
	}
	for _, r := range runs {
		m.recentRuns = append(m.recentRuns, r.RunResult)
	}
}

func (m Model) handleSyncKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "s":
		if m.syncInProgress || m.runSync == nil {
			return m, nil
		}
		ctx, cancel := context.WithCancel(context.Background())
		ch := make(chan models.RunResult, 16)
		m.syncInProgress = true
		m.syncProgress = nil
		m.progressCh = ch
		m.cancelSync = cancel
		m.addSyncMessage("Starting sync...")
		return m, tea.Batch(m.startSync(ctx, ch), waitForProgress(ch))
	case "x":
		if m.cancelSync != nil {
			m.cancelSync()
			m.addSyncMessage("Cancelling...")
		}
	case "r":
		// Refresh sync status
		m.loadSyncStates()
	case "esc":
		// Go back to main view
		m.viewMode = ViewPipeline
	}

	return m, nil
}

// startSync runs a batch; progress is forwarded to ch, which is closed when
// the run returns.
func (m Model) startSync(ctx context.Context, ch chan models.RunResult) tea.Cmd {
	run := m.runSync
	return func() tea.Msg {
		result, err := run(ctx, func(r models.RunResult) {
			select {
			case ch <- r:
			default:
			}
		})
		close(ch)
		return SyncCompleteMsg{Result: result, Error: err}
	}
}

func waitForProgress(ch chan models.RunResult) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		r, ok := <-ch
		if !ok {
			return nil
		}
		return SyncProgressMsg{Result: r}
	}
}

// addSyncMessage adds a message to the sync message log.
func (m *Model) addSyncMessage(msg string) {
	timestamp := time.Now().Format("15:04:05")
	m.syncMessages = append(m.syncMessages, fmt.Sprintf("[%s] %s", timestamp, msg))
}

// handleSyncComplete handles sync completion messages.
func (m *Model) handleSyncComplete(msg SyncCompleteMsg) tea.Cmd {
	// Mark as no longer in progress
	m.syncInProgress = false
	if m.cancelSync != nil {
		m.cancelSync()
		m.cancelSync = nil
	}
	if msg.Result != nil {
		r := *msg.Result
		m.syncProgress = &r
	}

	switch {
	case errors.Is(msg.Error, sync.ErrSyncInProgress):
		m.addSyncMessage("✗ Another sync is already running")
	case msg.Error != nil:
		m.addSyncMessage(fmt.Sprintf("✗ Sync failed: %v", msg.Error))
	case msg.Result != nil && msg.Result.Aborted:
		m.addSyncMessage(fmt.Sprintf("⚠ Sync aborted (%s): %d processed, %d left pending",
			msg.Result.AbortReason, msg.Result.Processed(), msg.Result.Remaining()))
	case msg.Result != nil:
		m.addSyncMessage(fmt.Sprintf("✓ Sync completed: %d processed", msg.Result.Processed()))
	default:
		m.addSyncMessage("✓ Sync completed")
	}

	// Reload sync states
	m.loadSyncStates()

	return m.loadSnapshot()
}

// formatTimeSince formats a time duration in a human-readable way.
func formatTimeSince(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return "just now"
	} else if duration < time.Hour {
		minutes := int(duration.Minutes())
		if minutes == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	} else if duration < 24*time.Hour {
		hours := int(duration.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	} else {
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}
