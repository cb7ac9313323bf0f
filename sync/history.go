// ABOUTME: Engagement history import and reconciliation against the ledger
// ABOUTME: Parses provider task exports and replays stored events onto contact records
package sync

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/jpchacon09/APOLLO/db"
	"github.com/jpchacon09/APOLLO/models"
)

// Columns of the provider's task export.
const (
	colToEmail       = "To Email"
	colType          = "Type"
	colStep          = "Step"
	colSubject       = "Subject"
	colTaskStatus    = "Task Status"
	colSequence      = "Sequence"
	colContactName   = "Contact Name"
	colAccount       = "Account"
	colCompletedDate = "Completed Date (PST)"
	colDueDate       = "Due Date (PST)"
)

// exportTimeLayout is the export's date format, in Pacific time.
const exportTimeLayout = "January 02, 2006 15:04"

var pacific = loadPacific()

func loadPacific() *time.Location {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		return time.FixedZone("PST", -8*60*60)
	}
	return loc
}

// ParseHistoryExport reads a task export into engagement events. Rows without a
// recipient are skipped. Dates fall back from completed to due date.
func ParseHistoryExport(r io.Reader) ([]models.EngagementEvent, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read export header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}
	if _, ok := cols[colToEmail]; !ok {
		return nil, fmt.Errorf("export has no %q column", colToEmail)
	}

	get := func(record []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var events []models.EngagementEvent
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read export line %d: %w", line, err)
		}

		email := strings.ToLower(get(record, colToEmail))
		if email == "" {
			continue
		}

		e := models.EngagementEvent{
			ID:             uuid.NewString(),
			RecipientEmail: email,
			RecipientName:  get(record, colContactName),
			Account:        get(record, colAccount),
			Channel:        models.ParseChannel(get(record, colType)),
			SequenceName:   get(record, colSequence),
			StepNumber:     parseExportStep(get(record, colStep)),
			Status:         models.ParseEventStatus(get(record, colTaskStatus)),
			Subject:        get(record, colSubject),
		}

		completed := parseExportTime(get(record, colCompletedDate))
		due := parseExportTime(get(record, colDueDate))
		switch {
		case completed != nil:
			e.CreatedAt = *completed
			e.SentAt = completed
		case due != nil:
			e.CreatedAt = *due
		}

		events = append(events, e)
	}
	return events, nil
}

func parseExportStep(s string) int {
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return 0
}

func parseExportTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.ParseInLocation(exportTimeLayout, s, pacific)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

// ImportResult summarizes a history import.
type ImportResult struct {
	Parsed int
	Stored int
}

// ImportHistory parses an export and stores its deduplicated events.
func ImportHistory(database *sql.DB, r io.Reader) (*ImportResult, error) {
	events, err := ParseHistoryExport(r)
	if err != nil {
		return nil, err
	}

	deduped := Dedupe(events)
	stored, err := db.UpsertEvents(database, deduped, db.SourceImport)
	if err != nil {
		return nil, fmt.Errorf("failed to store imported history: %w", err)
	}

	return &ImportResult{Parsed: len(events), Stored: stored}, nil
}

// ReconcileResult summarizes a history reconciliation.
type ReconcileResult struct {
	Events    int
	Matched   int
	Unmatched int
	Updated   int
}

// ReconcileHistory applies every stored history event to the matching ledger
// records and saves the ledger when anything changed. The sync marker is left
// alone so reconciled contacts still get fetched.
func (s *Syncer) ReconcileHistory(ctx context.Context) (*ReconcileResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer s.running.Store(false)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Reconciliation rewrites the ledger, so it takes the same lock as a sync
	// run and reads the file only once the lock is held.
	owner := ulid.Make().String()
	acquired, err := db.AcquireSyncLock(s.db, db.ServiceApollo, owner, s.now().UTC(), s.lockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrSyncInProgress
	}

	result, err := s.reconcileLocked()

	var errMsg *string
	if err != nil {
		msg := err.Error()
		errMsg = &msg
	}
	if unlockErr := db.UnlockSync(s.db, db.ServiceApollo, owner, errMsg); unlockErr != nil {
		err = errors.Join(err, unlockErr)
	}
	return result, err
}

func (s *Syncer) reconcileLocked() (*ReconcileResult, error) {
	if err := s.ledger.Reload(); err != nil {
		return nil, fmt.Errorf("failed to reload ledger: %w", err)
	}

	events, err := db.GetAllEvents(s.db)
	if err != nil {
		return nil, err
	}
	names, err := db.GetCampaignNames(s.db)
	if err != nil {
		s.log.Warn("campaign_names_unavailable", "error", err.Error())
	}
	resolveSequenceNames(events, names)

	s.mu.Lock()
	defer s.mu.Unlock()

	matcher := NewContactMatcher(s.ledger.Records())
	grouped, unmatched := matcher.GroupEvents(events)

	result := &ReconcileResult{Events: len(events), Unmatched: len(unmatched)}
	for rec, recEvents := range grouped {
		result.Matched += len(recEvents)
		if s.policy.ApplyExternal(rec, recEvents) {
			result.Updated++
		}
	}

	if result.Updated > 0 {
		if err := s.ledger.Save(); err != nil {
			s.log.PersistenceError("reconcile_save", err)
			return result, fmt.Errorf("failed to save reconciled ledger: %w", err)
		}
	}

	s.log.Info("history_reconciled",
		"events", result.Events,
		"matched", result.Matched,
		"unmatched", result.Unmatched,
		"updated", result.Updated,
	)
	return result, nil
}
