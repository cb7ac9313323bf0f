// ABOUTME: Interactive terminal UI command
// ABOUTME: Wires the pipeline browser and sync monitor to the ledger, history, and provider
package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jpchacon09/APOLLO/config"
	"github.com/jpchacon09/APOLLO/logger"
	"github.com/jpchacon09/APOLLO/models"
	"github.com/jpchacon09/APOLLO/tui"
	"github.com/jpchacon09/APOLLO/viz"
)

// TUICommand launches the interactive interface
func TUICommand(cfg *config.Config, database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("tui", flag.ExitOnError)
	logPath := fs.String("log", filepath.Join(filepath.Dir(cfg.DBPath), "platam.log"), "Log file for sync runs started from the UI")
	_ = fs.Parse(args)

	// The alternate screen owns stdout and stderr while the UI runs.
	logFile, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = logFile.Close() }()
	log := logger.NewWithWriter(cfg.Env, logFile)

	load := func() (*viz.Snapshot, error) {
		return loadOrBuildSnapshot(cfg, database, false)
	}
	run := func(ctx context.Context, progress func(models.RunResult)) (*models.RunResult, error) {
		return runSync(ctx, cfg, database, syncOptions{
			limit:    cfg.BatchLimit,
			workers:  cfg.Workers,
			enrich:   cfg.Enrich,
			snapshot: true,
			progress: progress,
			log:      log,
		})
	}

	p := tea.NewProgram(tui.NewModel(database, load, run), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}
