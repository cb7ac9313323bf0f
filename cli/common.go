// ABOUTME: Shared helpers for CLI commands
// ABOUTME: Loads the ledger and history and builds reporting snapshots from config
package cli

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jpchacon09/APOLLO/config"
	"github.com/jpchacon09/APOLLO/db"
	"github.com/jpchacon09/APOLLO/ledger"
	"github.com/jpchacon09/APOLLO/logger"
	"github.com/jpchacon09/APOLLO/models"
	"github.com/jpchacon09/APOLLO/sync"
	"github.com/jpchacon09/APOLLO/viz"
)

func newLogger(cfg *config.Config) *logger.Logger {
	return logger.New(cfg.Env)
}

func openLedger(cfg *config.Config) (*ledger.Ledger, error) {
	l, err := ledger.Load(cfg.LedgerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	return l, nil
}

func aggregateOptions(cfg *config.Config) viz.AggregateOptions {
	opts := viz.DefaultAggregateOptions()
	opts.SampleSize = cfg.SampleSize
	opts.RecentActivity = cfg.RecentActivity
	return opts
}

// buildSnapshot aggregates the ledger with the stored history.
func buildSnapshot(cfg *config.Config, database *sql.DB, records []*models.ContactRecord) (*viz.Snapshot, error) {
	events, err := db.GetAllEvents(database)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return viz.BuildSnapshot(records, sync.Dedupe(events), aggregateOptions(cfg), time.Now()), nil
}

func pluralize(count int) string {
	if count == 1 {
		return ""
	}
	return "s"
}
