// ABOUTME: Engagement history CLI commands
// ABOUTME: Imports task exports, reconciles the ledger against history, and caches campaign names
package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jpchacon09/APOLLO/apollo"
	"github.com/jpchacon09/APOLLO/config"
	"github.com/jpchacon09/APOLLO/db"
	"github.com/jpchacon09/APOLLO/sync"
)

// ImportEventsCommand loads a task export CSV into the history store
func ImportEventsCommand(cfg *config.Config, database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("import-events", flag.ExitOnError)
	reconcile := fs.Bool("reconcile", false, "Reconcile the ledger after importing")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("export file required")
	}
	path := fs.Arg(0)

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open export: %w", err)
	}
	defer func() { _ = f.Close() }()

	fmt.Printf("Importing %s...\n", path)
	result, err := sync.ImportHistory(database, f)
	if err != nil {
		return err
	}
	fmt.Printf("  ✓ Parsed %d event%s\n", result.Parsed, pluralize(result.Parsed))
	fmt.Printf("  ✓ Stored %d new event%s\n", result.Stored, pluralize(result.Stored))

	if *reconcile {
		return reconcileLedger(context.Background(), cfg, database)
	}
	return nil
}

// ReconcileCommand applies stored history to the ledger without calling the provider
func ReconcileCommand(cfg *config.Config, database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("reconcile", flag.ExitOnError)
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return reconcileLedger(ctx, cfg, database)
}

func reconcileLedger(ctx context.Context, cfg *config.Config, database *sql.DB) error {
	l, err := openLedger(cfg)
	if err != nil {
		return err
	}

	fmt.Printf("Reconciling %s...\n", cfg.LedgerPath)
	syncer := sync.NewSyncer(l, nil, database, sync.WithLogger(newLogger(cfg)))
	result, err := syncer.ReconcileHistory(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("  ✓ %d events, %d matched, %d unmatched\n", result.Events, result.Matched, result.Unmatched)
	fmt.Printf("  ✓ Updated %d contact%s\n", result.Updated, pluralize(result.Updated))
	return nil
}

// CampaignsCommand refreshes and lists cached campaign names
func CampaignsCommand(cfg *config.Config, database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("campaigns", flag.ExitOnError)
	refresh := fs.Bool("refresh", false, "Fetch campaign names from the provider first")
	_ = fs.Parse(args)

	if *refresh {
		if err := cfg.RequireAPIKey(); err != nil {
			return err
		}
		fmt.Println("Refreshing campaign names...")
		client := apollo.NewFromConfig(cfg, newLogger(cfg))
		stored, err := sync.RefreshCampaigns(context.Background(), client, database)
		if err != nil {
			return err
		}
		fmt.Printf("  ✓ Cached %d campaign%s\n", stored, pluralize(stored))
	}

	campaigns, err := db.GetAllCampaigns(database)
	if err != nil {
		return err
	}
	if len(campaigns) == 0 {
		fmt.Println("No cached campaigns (run 'platam campaigns --refresh')")
		return nil
	}

	fmt.Printf("Campaigns (%d):\n", len(campaigns))
	for _, c := range campaigns {
		fmt.Printf("  %-26s %s\n", c.ID, c.Name)
	}
	return nil
}
