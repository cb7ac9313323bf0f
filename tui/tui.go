// ABOUTME: Terminal User Interface using bubbletea framework
// ABOUTME: Browses the contact pipeline and monitors or triggers sync runs
package tui

import (
	"context"
	"database/sql"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jpchacon09/APOLLO/models"
	"github.com/jpchacon09/APOLLO/viz"
)

// ViewMode represents the current TUI view
type ViewMode int

const (
	ViewPipeline ViewMode = iota
	ViewDetail
	ViewDashboard
	ViewSync
)

// SnapshotLoader rebuilds the reporting snapshot shown by the pipeline views.
type SnapshotLoader func() (*viz.Snapshot, error)

// SyncRunner runs one batch, reporting progress after each checkpoint.
type SyncRunner func(ctx context.Context, progress func(models.RunResult)) (*models.RunResult, error)

// SnapshotLoadedMsg carries a freshly built snapshot.
type SnapshotLoadedMsg struct {
	Snapshot *viz.Snapshot
	Err      error
}

// Model is the main bubbletea model
type Model struct {
	db       *sql.DB
	load     SnapshotLoader
	runSync  SyncRunner
	viewMode ViewMode

	// Pipeline state
	snapshot    *viz.Snapshot
	category    int
	selectedRow int

	// Dashboard state
	dashboard viewport.Model

	// Sync state
	syncState      *SyncStateDisplay
	recentRuns     []models.RunResult
	syncInProgress bool
	syncProgress   *models.RunResult
	syncMessages   []string
	progressCh     chan models.RunResult
	cancelSync     context.CancelFunc
	progressBar    progress.Model

	// UI state
	width  int
	height int
	err    error
}

// NewModel creates a new TUI model
func NewModel(database *sql.DB, load SnapshotLoader, run SyncRunner) Model {
	return Model{
		db:          database,
		load:        load,
		runSync:     run,
		viewMode:    ViewPipeline,
		dashboard:   viewport.New(80, 18),
		progressBar: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		width:       80,
		height:      24,
	}
}

func (m Model) Init() tea.Cmd {
	return m.loadSnapshot()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.dashboard.Width = msg.Width
		m.dashboard.Height = max(msg.Height-6, 1)
		return m, nil
	case SnapshotLoadedMsg:
		m.err = msg.Err
		if msg.Snapshot != nil {
			m.snapshot = msg.Snapshot
			m.dashboard.SetContent(viz.RenderDashboard(msg.Snapshot))
		}
		return m, nil
	case SyncProgressMsg:
		if !m.syncInProgress {
			return m, nil
		}
		r := msg.Result
		m.syncProgress = &r
		return m, waitForProgress(m.progressCh)
	case SyncCompleteMsg:
		cmd := m.handleSyncComplete(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	switch m.viewMode {
	case ViewPipeline:
		return m.renderPipelineView()
	case ViewDetail:
		return m.renderDetailView()
	case ViewDashboard:
		return m.renderDashboardView()
	case ViewSync:
		return m.renderSyncView()
	}
	return ""
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.cancelSync != nil {
			m.cancelSync()
		}
		return m, tea.Quit
	}

	// Delegate to view-specific handlers
	switch m.viewMode {
	case ViewPipeline:
		return m.handlePipelineKeys(msg)
	case ViewDetail:
		return m.handleDetailKeys(msg)
	case ViewDashboard:
		return m.handleDashboardKeys(msg)
	case ViewSync:
		return m.handleSyncKeys(msg)
	}

	return m, nil
}

func (m Model) loadSnapshot() tea.Cmd {
	load := m.load
	return func() tea.Msg {
		if load == nil {
			return SnapshotLoadedMsg{}
		}
		snap, err := load()
		return SnapshotLoadedMsg{Snapshot: snap, Err: err}
	}
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			MarginBottom(1)

	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			Background(lipgloss.Color("235")).
			Padding(0, 2)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Padding(0, 2)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			MarginTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))
)
