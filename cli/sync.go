// ABOUTME: Sync CLI commands
// ABOUTME: Runs a batch against the provider and reports run state and coverage
package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/jpchacon09/APOLLO/apollo"
	"github.com/jpchacon09/APOLLO/config"
	"github.com/jpchacon09/APOLLO/db"
	"github.com/jpchacon09/APOLLO/ledger"
	"github.com/jpchacon09/APOLLO/logger"
	"github.com/jpchacon09/APOLLO/models"
	"github.com/jpchacon09/APOLLO/sync"
	"github.com/jpchacon09/APOLLO/viz"
)

type syncOptions struct {
	limit    int
	workers  int
	enrich   bool
	snapshot bool
	progress func(models.RunResult)

	// out receives human-readable notices; nil discards them.
	out io.Writer
	// log defaults to a stderr logger for cfg.Env.
	log *logger.Logger
}

// SyncCommand syncs a batch of pending contacts
func SyncCommand(cfg *config.Config, database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	limit := fs.Int("limit", cfg.BatchLimit, "Maximum contacts to sync")
	workers := fs.Int("workers", cfg.Workers, "Concurrent contact workers")
	enrich := fs.Bool("enrich", cfg.Enrich, "Fill empty profile fields from people match")
	noSnapshot := fs.Bool("no-snapshot", false, "Skip writing the reporting snapshot")
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Syncing up to %d contacts from %s...\n", *limit, cfg.LedgerPath)
	start := time.Now()

	result, err := runSync(ctx, cfg, database, syncOptions{
		limit:    *limit,
		workers:  *workers,
		enrich:   *enrich,
		snapshot: !*noSnapshot,
		progress: func(r models.RunResult) {
			fmt.Printf("  → %d/%d processed (checkpoint %d)\n", r.Processed(), r.Selected, r.Checkpoints)
		},
		out: os.Stdout,
	})
	if result != nil {
		printRunReport(result)
	}
	if err != nil {
		return err
	}

	fmt.Printf("\n✓ Sync completed in %.2fs\n", time.Since(start).Seconds())
	return nil
}

// runSync performs one batch and refreshes the snapshot. The result is
// returned even when the run fails part-way.
func runSync(ctx context.Context, cfg *config.Config, database *sql.DB, opts syncOptions) (*models.RunResult, error) {
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, err
	}
	out := opts.out
	if out == nil {
		out = io.Discard
	}
	log := opts.log
	if log == nil {
		log = newLogger(cfg)
	}

	l, err := openLedger(cfg)
	if err != nil {
		return nil, err
	}
	if dups := l.Duplicates(); len(dups) > 0 {
		_, _ = fmt.Fprintf(out, "  ⚠ %d duplicate email%s in ledger; only the first row of each is synced\n", len(dups), pluralize(len(dups)))
	}

	client := apollo.NewFromConfig(cfg, log)

	syncerOpts := []sync.SyncerOption{
		sync.WithWorkers(opts.workers),
		sync.WithCheckpointEvery(cfg.CheckpointEvery),
		sync.WithLockTTL(cfg.LockTTL.Duration),
		sync.WithLogger(log),
	}
	if opts.enrich {
		syncerOpts = append(syncerOpts, sync.WithEnricher(client))
	}
	if opts.progress != nil {
		syncerOpts = append(syncerOpts, sync.WithProgress(opts.progress))
	}

	syncer := sync.NewSyncer(l, client, database, syncerOpts...)
	result, err := syncer.Run(ctx, opts.limit)
	if err != nil {
		return result, fmt.Errorf("sync failed: %w", err)
	}

	if opts.snapshot {
		if err := writeSnapshotFor(cfg, database, l); err != nil {
			return result, err
		}
		_, _ = fmt.Fprintf(out, "  ✓ Snapshot written to %s\n", cfg.SnapshotPath)
	}
	return result, nil
}

func writeSnapshotFor(cfg *config.Config, database *sql.DB, l *ledger.Ledger) error {
	snap, err := buildSnapshot(cfg, database, l.Records())
	if err != nil {
		return err
	}
	if err := viz.WriteSnapshot(cfg.SnapshotPath, snap); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

func printRunReport(r *models.RunResult) {
	fmt.Printf("\nRun %s:\n", r.RunID)
	fmt.Printf("  Selected:     %d\n", r.Selected)
	fmt.Printf("  Updated:      %d\n", r.Succeeded)
	fmt.Printf("  No history:   %d\n", r.Empty)
	fmt.Printf("  Failed:       %d\n", r.Failed)
	if r.Enriched > 0 {
		fmt.Printf("  Enriched:     %d\n", r.Enriched)
	}
	fmt.Printf("  Checkpoints:  %d\n", r.Checkpoints)

	byReason := r.FailuresByReason()
	reasons := make([]string, 0, len(byReason))
	for reason := range byReason {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		fmt.Printf("    %-14s %d\n", reason, byReason[reason])
	}

	if r.Aborted {
		fmt.Printf("  ⚠ Aborted (%s): %d contacts left pending for the next run\n", r.AbortReason, r.Remaining())
	}
}

// StatusCommand shows sync state, recent runs, and ledger coverage
func StatusCommand(cfg *config.Config, database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	runs := fs.Int("runs", 5, "Number of recent runs to show")
	asJSON := fs.Bool("json", false, "Print status as JSON")
	runID := fs.String("run", "", "Show the per-contact attempts of one run")
	_ = fs.Parse(args)

	if *runID != "" {
		return printRunLog(database, *runID)
	}

	status, err := collectStatus(cfg, database, *runs)
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	printStatus(status)
	return nil
}

func printRunLog(database *sql.DB, runID string) error {
	entries, err := db.GetSyncLog(database, runID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Printf("No attempts recorded for run %s\n", runID)
		return nil
	}

	fmt.Printf("Run %s (%d attempt%s):\n", runID, len(entries), pluralize(len(entries)))
	for _, e := range entries {
		line := fmt.Sprintf("  %s  %-8s %-30s %d event%s",
			e.AttemptedAt.Local().Format("15:04:05"), e.Outcome, e.Email, e.EventCount, pluralize(e.EventCount))
		if e.Reason != "" {
			line += "  ✗ " + e.Reason
		}
		fmt.Println(line)
	}
	return nil
}

// Status is the answer to a status query.
type Status struct {
	Syncing      bool               `json:"syncing"`
	LastSyncTime *time.Time         `json:"last_sync_time,omitempty"`
	LastRunID    string             `json:"last_run_id,omitempty"`
	LastError    string             `json:"last_error,omitempty"`
	RecentRuns   []models.RunResult `json:"recent_runs"`
	RunErrors    map[string]string  `json:"run_errors,omitempty"`
	StoredEvents int                `json:"stored_events"`
	LedgerPath   string             `json:"ledger_path"`
	LedgerError  string             `json:"ledger_error,omitempty"`
	Coverage     *viz.Coverage      `json:"coverage,omitempty"`
	Duplicates   int                `json:"duplicates"`
}

func collectStatus(cfg *config.Config, database *sql.DB, runLimit int) (*Status, error) {
	status := &Status{LedgerPath: cfg.LedgerPath, RecentRuns: []models.RunResult{}}

	state, err := db.GetSyncState(database, db.ServiceApollo)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}
	if state != nil {
		status.Syncing = state.Syncing()
		status.LastSyncTime = state.LastSyncTime
		if state.LastRunID != nil {
			status.LastRunID = *state.LastRunID
		}
		if state.ErrorMessage != nil {
			status.LastError = *state.ErrorMessage
		}
	}

	recent, err := db.GetRecentSyncRuns(database, runLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent runs: %w", err)
	}
	for _, run := range recent {
		status.RecentRuns = append(status.RecentRuns, run.RunResult)
		if run.ErrorMessage != nil {
			if status.RunErrors == nil {
				status.RunErrors = make(map[string]string)
			}
			status.RunErrors[run.RunID] = *run.ErrorMessage
		}
	}

	if status.StoredEvents, err = db.CountEvents(database); err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}

	l, err := ledger.Load(cfg.LedgerPath)
	if err != nil {
		status.LedgerError = err.Error()
		return status, nil
	}
	snap := viz.Aggregate(l.Records(), nil, aggregateOptions(cfg))
	status.Coverage = &snap.Coverage
	status.Duplicates = len(l.Duplicates())
	return status, nil
}

func printStatus(s *Status) {
	fmt.Println("Sync Status:")
	if s.Syncing {
		fmt.Printf("  State:        ⟳ Syncing\n")
	} else {
		fmt.Printf("  State:        Idle\n")
	}
	if s.LastSyncTime != nil {
		fmt.Printf("  Last sync:    %s (%s)\n", s.LastSyncTime.Local().Format("2006-01-02 15:04"), s.LastRunID)
	} else {
		fmt.Printf("  Last sync:    never\n")
	}
	if s.LastError != "" {
		fmt.Printf("  Last error:   ✗ %s\n", s.LastError)
	}
	fmt.Printf("  History:      %d stored events\n", s.StoredEvents)

	fmt.Printf("\nLedger (%s):\n", s.LedgerPath)
	if s.Coverage == nil {
		fmt.Printf("  ✗ %s\n", s.LedgerError)
	} else {
		c := s.Coverage
		fmt.Printf("  Contacts:     %d (%d with email)\n", c.Total, c.WithEmail)
		fmt.Printf("  Synced:       %d (%.1f%%)\n", c.Synced, c.SyncPercent)
		fmt.Printf("  Pending:      %d\n", c.Pending)
		if s.Duplicates > 0 {
			fmt.Printf("  Duplicates:   %d\n", s.Duplicates)
		}
	}

	if len(s.RecentRuns) == 0 {
		return
	}
	fmt.Println("\nRecent runs:")
	for _, r := range s.RecentRuns {
		line := fmt.Sprintf("  %s  %s  %d selected  %d updated  %d empty  %d failed",
			r.StartedAt.Local().Format("2006-01-02 15:04"), r.RunID, r.Selected, r.Succeeded, r.Empty, r.Failed)
		if r.Aborted {
			line += fmt.Sprintf("  ⚠ aborted (%s)", r.AbortReason)
		}
		if msg, ok := s.RunErrors[r.RunID]; ok {
			line += "  ✗ " + msg
		}
		fmt.Println(line)
	}
}
