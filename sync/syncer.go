// ABOUTME: Sync orchestrator driving a batch of pending ledger contacts
// ABOUTME: Fetches, dedupes, merges, enriches, records history, and checkpoints the ledger
package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/jpchacon09/APOLLO/apollo"
	"github.com/jpchacon09/APOLLO/db"
	"github.com/jpchacon09/APOLLO/ledger"
	"github.com/jpchacon09/APOLLO/logger"
	"github.com/jpchacon09/APOLLO/models"
)

// ErrSyncInProgress is returned when another run holds the sync lock.
var ErrSyncInProgress = errors.New("sync already in progress")

// ErrLockLost is returned when another process took over the sync lock while
// this run was still working. The run stops without saving again.
var ErrLockLost = errors.New("sync lock taken over by another run")

const (
	// AbortCancelled is the abort reason of a run stopped by its caller.
	AbortCancelled = "cancelled"
	// AbortLockLost is the abort reason of a run whose lock was taken over.
	AbortLockLost = "lock_lost"
)

// EventFetcher retrieves the engagement history of one contact.
type EventFetcher interface {
	FetchEvents(ctx context.Context, email string) ([]models.EngagementEvent, error)
}

// PersonMatcher retrieves the enrichment profile of one contact.
type PersonMatcher interface {
	MatchPerson(ctx context.Context, email string) (*models.Person, error)
}

// Syncer runs sync batches over a ledger. One run at a time per process, and
// one per database through the sync lock.
type Syncer struct {
	ledger  *ledger.Ledger
	fetcher EventFetcher
	db      *sql.DB

	enricher        PersonMatcher
	policy          *MergePolicy
	workers         int
	checkpointEvery int
	lockTTL         time.Duration
	log             *logger.Logger
	now             func() time.Time
	progress        func(models.RunResult)

	running atomic.Bool

	// mu serializes ledger mutations, history writes, and checkpoints.
	mu stdsync.Mutex
}

// SyncerOption configures a Syncer.
type SyncerOption func(*Syncer)

// WithWorkers sets how many contacts are processed concurrently.
func WithWorkers(n int) SyncerOption {
	return func(s *Syncer) { s.workers = n }
}

// WithCheckpointEvery sets how many processed contacts trigger a ledger save.
func WithCheckpointEvery(n int) SyncerOption {
	return func(s *Syncer) { s.checkpointEvery = n }
}

// WithEnricher enables profile enrichment for every synced contact.
func WithEnricher(m PersonMatcher) SyncerOption {
	return func(s *Syncer) { s.enricher = m }
}

// WithLogger sets the structured logger.
func WithLogger(l *logger.Logger) SyncerOption {
	return func(s *Syncer) { s.log = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) SyncerOption {
	return func(s *Syncer) { s.now = now }
}

// WithLockTTL sets when a held sync lock is considered stale.
func WithLockTTL(d time.Duration) SyncerOption {
	return func(s *Syncer) { s.lockTTL = d }
}

// WithMergePolicy replaces the default merge policy.
func WithMergePolicy(p *MergePolicy) SyncerOption {
	return func(s *Syncer) { s.policy = p }
}

// WithProgress registers a callback invoked after every processed contact.
func WithProgress(fn func(models.RunResult)) SyncerOption {
	return func(s *Syncer) { s.progress = fn }
}

// NewSyncer creates a Syncer for the ledger, fetching through fetcher and
// recording run state in database.
func NewSyncer(l *ledger.Ledger, fetcher EventFetcher, database *sql.DB, opts ...SyncerOption) *Syncer {
	s := &Syncer{
		ledger:          l,
		fetcher:         fetcher,
		db:              database,
		policy:          DefaultMergePolicy(),
		workers:         1,
		checkpointEvery: 20,
		lockTTL:         30 * time.Minute,
		log:             logger.Discard(),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.workers < 1 {
		s.workers = 1
	}
	if s.checkpointEvery < 1 {
		s.checkpointEvery = 1
	}
	return s
}

// Running reports whether this Syncer is in the middle of a run.
func (s *Syncer) Running() bool {
	return s.running.Load()
}

// run holds the state of one batch.
type run struct {
	result    *models.RunResult
	names     map[string]string
	processed int
	cancel    context.CancelFunc
	log       *logger.Logger
}

// Run syncs up to limit pending contacts (all of them when limit <= 0). A rate
// limit aborts the remainder and is reported in the result, not as an error.
// Persistence failures are returned as errors along with the partial result.
func (s *Syncer) Run(ctx context.Context, limit int) (*models.RunResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer s.running.Store(false)

	runID := ulid.Make().String()
	startedAt := s.now().UTC()

	acquired, err := db.AcquireSyncLock(s.db, db.ServiceApollo, runID, startedAt, s.lockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrSyncInProgress
	}

	log := s.log.WithRun(runID)

	// The file may have been rewritten by another process since it was loaded.
	if err := s.ledger.Reload(); err != nil {
		msg := err.Error()
		if unlockErr := db.UnlockSync(s.db, db.ServiceApollo, runID, &msg); unlockErr != nil {
			err = errors.Join(err, unlockErr)
		}
		return nil, fmt.Errorf("failed to reload ledger: %w", err)
	}

	result := &models.RunResult{RunID: runID, StartedAt: startedAt}
	pending := s.ledger.Pending(limit)
	result.Selected = len(pending)
	log.Info("sync_started", "selected", result.Selected, "workers", s.workers)

	runErr := db.CreateSyncRun(s.db, result)
	if runErr == nil {
		runErr = s.process(ctx, pending, result, log)

		// Final save runs after an abort too, unless the file now belongs to
		// another run.
		if result.AbortReason != AbortLockLost {
			if err := s.ledger.Save(); err != nil {
				log.PersistenceError("final_save", err)
				runErr = errors.Join(runErr, err)
			}
		}
	}

	if ctx.Err() != nil && !result.Aborted {
		result.Aborted = true
		result.AbortReason = AbortCancelled
		runErr = errors.Join(runErr, ctx.Err())
	}
	result.FinishedAt = s.now().UTC()

	var errMsg *string
	if runErr != nil {
		msg := runErr.Error()
		errMsg = &msg
	}
	if err := db.FinishSyncRun(s.db, result, errMsg); err != nil {
		runErr = errors.Join(runErr, err)
	}
	if err := db.ReleaseSyncLock(s.db, db.ServiceApollo, runID, result.FinishedAt, errMsg); err != nil {
		runErr = errors.Join(runErr, err)
	}

	log.Info("sync_finished",
		"succeeded", result.Succeeded,
		"empty", result.Empty,
		"failed", result.Failed,
		"enriched", result.Enriched,
		"aborted", result.Aborted,
	)
	return result, runErr
}

func (s *Syncer) process(ctx context.Context, pending []*models.ContactRecord, result *models.RunResult, log *logger.Logger) error {
	names, err := db.GetCampaignNames(s.db)
	if err != nil {
		log.Warn("campaign_names_unavailable", "error", err.Error())
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := &run{result: result, names: names, cancel: cancel, log: log}

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(s.workers)
	for _, rec := range pending {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return s.syncContact(gctx, r, rec)
		})
	}
	return g.Wait()
}

func (s *Syncer) syncContact(ctx context.Context, r *run, rec *models.ContactRecord) error {
	if ctx.Err() != nil {
		return nil
	}

	email := rec.Email
	log := r.log.WithContact(email)

	events, err := s.fetcher.FetchEvents(ctx, email)
	if err != nil {
		switch {
		case apollo.IsKind(err, apollo.KindRateLimited):
			s.abort(r, email)
			return nil
		case ctx.Err() != nil:
			// Stopped by an abort or cancellation; the contact stays pending.
			return nil
		}
		log.ProviderError("fetch_events", err)
		return s.recordFailure(r, rec, failureReason(err), err)
	}

	events = Dedupe(events)
	resolveSequenceNames(events, r.names)

	var person *models.Person
	var enrichErr error
	if s.enricher != nil {
		person, enrichErr = s.enricher.MatchPerson(ctx, email)
		if enrichErr != nil && !apollo.IsKind(enrichErr, apollo.KindRateLimited) && ctx.Err() == nil {
			log.ProviderError("match_person", enrichErr)
		}
	}

	if err := s.commit(r, rec, events, person); err != nil {
		return err
	}

	if apollo.IsKind(enrichErr, apollo.KindRateLimited) {
		s.abort(r, email)
	}
	return nil
}

// commit applies a contact's data to the ledger and history.
func (s *Syncer) commit(r *run, rec *models.ContactRecord, events []models.EngagementEvent, person *models.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.policy.Apply(rec, events, s.now().UTC())
	if person != nil && s.policy.ApplyProfile(rec, person) {
		r.result.Enriched++
	}

	if _, err := db.UpsertEvents(s.db, events, db.SourceAPI); err != nil {
		r.log.PersistenceError("history", err)
		return fmt.Errorf("failed to store history for %s: %w", rec.Email, err)
	}

	outcome := models.OutcomeEmpty
	if len(events) > 0 {
		outcome = models.OutcomeUpdated
		r.result.Succeeded++
	} else {
		r.result.Empty++
	}
	s.logAttempt(r, rec.Email, outcome, len(events), "", "")

	return s.advance(r)
}

// recordFailure marks a contact attempted after a provider failure.
func (s *Syncer) recordFailure(r *run, rec *models.ContactRecord, reason string, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	markSynced(rec, s.now().UTC())
	r.result.Failed++
	r.result.Failures = append(r.result.Failures, models.ContactFailure{
		Email:   rec.Email,
		Reason:  reason,
		Message: cause.Error(),
	})
	s.logAttempt(r, rec.Email, models.OutcomeFailed, 0, reason, cause.Error())

	return s.advance(r)
}

func (s *Syncer) logAttempt(r *run, email, outcome string, eventCount int, reason, metadata string) {
	if err := db.CreateSyncLog(s.db, r.result.RunID, email, outcome, eventCount, reason, metadata); err != nil {
		r.log.Warn("sync_log_failed", "email", email, "error", err.Error())
	}
}

// advance counts a processed contact, renews the sync lock, and checkpoints
// the ledger every N. Must be called with mu held.
func (s *Syncer) advance(r *run) error {
	r.processed++

	held, err := db.RefreshSyncLock(s.db, db.ServiceApollo, r.result.RunID, s.now())
	if err != nil {
		r.log.PersistenceError("lock_refresh", err)
		return err
	}
	if !held {
		if r.result.AbortReason != AbortLockLost {
			r.log.Warn("sync_lock_lost", "processed", r.processed)
		}
		r.result.Aborted = true
		r.result.AbortReason = AbortLockLost
		r.cancel()
		return ErrLockLost
	}

	if r.processed%s.checkpointEvery == 0 {
		if err := s.ledger.Save(); err != nil {
			r.log.PersistenceError("checkpoint", err)
			return fmt.Errorf("checkpoint failed: %w", err)
		}
		r.result.Checkpoints++
		r.log.Checkpoint(r.processed)
	}

	if s.progress != nil {
		snapshot := *r.result
		snapshot.Failures = append([]models.ContactFailure(nil), r.result.Failures...)
		s.progress(snapshot)
	}
	return nil
}

func (s *Syncer) abort(r *run, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !r.result.Aborted {
		r.result.Aborted = true
		r.result.AbortReason = models.ReasonRateLimited
		r.log.RateLimited(email, r.result.Remaining())
	}
	r.cancel()
}

func failureReason(err error) string {
	if apollo.IsKind(err, apollo.KindTransient) {
		return models.ReasonTransient
	}
	return models.ReasonPermanent
}

// resolveSequenceNames fills missing sequence names from the campaign cache.
func resolveSequenceNames(events []models.EngagementEvent, names map[string]string) {
	if len(names) == 0 {
		return
	}
	for i := range events {
		if events[i].SequenceName == "" && events[i].SequenceID != "" {
			events[i].SequenceName = names[events[i].SequenceID]
		}
	}
}
