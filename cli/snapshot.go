// ABOUTME: Reporting CLI commands
// ABOUTME: Writes the JSON snapshot and renders the terminal dashboard
package cli

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/jpchacon09/APOLLO/config"
	"github.com/jpchacon09/APOLLO/viz"
)

// SnapshotCommand aggregates the ledger and history into the reporting snapshot
func SnapshotCommand(cfg *config.Config, database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	output := fs.String("output", cfg.SnapshotPath, "Snapshot file")
	stdout := fs.Bool("stdout", false, "Print the snapshot instead of writing it")
	_ = fs.Parse(args)

	l, err := openLedger(cfg)
	if err != nil {
		return err
	}
	snap, err := buildSnapshot(cfg, database, l.Records())
	if err != nil {
		return err
	}

	if *stdout {
		return snap.Encode(os.Stdout)
	}

	if err := viz.WriteSnapshot(*output, snap); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	fmt.Printf("✓ Snapshot written to %s\n", *output)
	fmt.Printf("  %d contacts, %.1f%% synced\n", snap.Coverage.Total, snap.Coverage.SyncPercent)
	return nil
}

// DashboardCommand renders the pipeline dashboard in the terminal
func DashboardCommand(cfg *config.Config, database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("dashboard", flag.ExitOnError)
	fromFile := fs.Bool("cached", false, "Render the last written snapshot instead of rebuilding")
	_ = fs.Parse(args)

	snap, err := loadOrBuildSnapshot(cfg, database, *fromFile)
	if err != nil {
		return err
	}

	fmt.Print(viz.RenderDashboard(snap))
	return nil
}

func loadOrBuildSnapshot(cfg *config.Config, database *sql.DB, cached bool) (*viz.Snapshot, error) {
	if cached {
		snap, err := viz.ReadSnapshot(cfg.SnapshotPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read snapshot: %w", err)
		}
		return snap, nil
	}

	l, err := openLedger(cfg)
	if err != nil {
		return nil, err
	}
	return buildSnapshot(cfg, database, l.Records())
}
