// ABOUTME: Database operations for the engagement_events history table
// ABOUTME: Upserts events by dedup signature keeping the latest created_at
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jpchacon09/APOLLO/models"
)

// Event sources.
const (
	SourceAPI    = "api"
	SourceImport = "import"
)

// Fixed-width UTC layout so stored timestamps compare correctly as text.
const eventTimeLayout = "2006-01-02T15:04:05.000000000Z"

func formatEventTime(t time.Time) string {
	return t.UTC().Format(eventTimeLayout)
}

func parseEventTime(s string) time.Time {
	t, err := time.Parse(eventTimeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// UpsertEvents stores events in the history. An event whose signature is already
// stored replaces it only when its created_at is strictly later, so ties keep the
// first seen. Returns how many rows were inserted or replaced.
func UpsertEvents(db *sql.DB, events []models.EngagementEvent, source string) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var next int64
	if err := tx.QueryRow(`SELECT COALESCE(MAX(seq), 0) + 1 FROM engagement_events`).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to read event sequence: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO engagement_events (
			signature, id, recipient_email, recipient_name, account, channel, sequence_id,
			sequence_name, step_number, status, subject, created_at, sent_at, source, seq
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(signature) DO UPDATE SET
			id = excluded.id,
			recipient_name = excluded.recipient_name,
			account = excluded.account,
			sequence_id = excluded.sequence_id,
			sequence_name = excluded.sequence_name,
			status = excluded.status,
			created_at = excluded.created_at,
			sent_at = excluded.sent_at,
			source = excluded.source
		WHERE excluded.created_at > engagement_events.created_at
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare event upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	changed := 0
	for i := range events {
		e := &events[i]
		var sentAt sql.NullString
		if e.SentAt != nil {
			sentAt = sql.NullString{String: formatEventTime(*e.SentAt), Valid: true}
		}

		res, err := stmt.Exec(
			e.Signature().String(), e.ID, e.Signature().RecipientEmail, e.RecipientName, e.Account,
			string(e.Channel), e.SequenceID, e.SequenceName, e.StepNumber, string(e.Status),
			e.Subject, formatEventTime(e.CreatedAt), sentAt, source, next,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert event: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to upsert event: %w", err)
		}
		changed += int(n)
		next++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit events: %w", err)
	}
	return changed, nil
}

const eventColumns = `id, recipient_email, recipient_name, account, channel, sequence_id, sequence_name,
	step_number, status, subject, created_at, sent_at`

func scanEvents(rows *sql.Rows) ([]models.EngagementEvent, error) {
	defer func() { _ = rows.Close() }()

	var events []models.EngagementEvent
	for rows.Next() {
		var e models.EngagementEvent
		var name, account, seqID, seqName, subject, sentAt sql.NullString
		var channel, status, createdAt string

		err := rows.Scan(&e.ID, &e.RecipientEmail, &name, &account, &channel, &seqID, &seqName,
			&e.StepNumber, &status, &subject, &createdAt, &sentAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		e.RecipientName = name.String
		e.Account = account.String
		e.Channel = models.Channel(channel)
		e.SequenceID = seqID.String
		e.SequenceName = seqName.String
		e.Status = models.EventStatus(status)
		e.Subject = subject.String
		e.CreatedAt = parseEventTime(createdAt)
		if sentAt.Valid {
			t := parseEventTime(sentAt.String)
			e.SentAt = &t
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

// GetAllEvents returns the whole history in first-seen order.
func GetAllEvents(db *sql.DB) ([]models.EngagementEvent, error) {
	rows, err := db.Query(`SELECT ` + eventColumns + ` FROM engagement_events ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	return scanEvents(rows)
}

// GetEventsForEmail returns the history of one recipient in first-seen order.
func GetEventsForEmail(db *sql.DB, email string) ([]models.EngagementEvent, error) {
	rows, err := db.Query(`SELECT `+eventColumns+` FROM engagement_events WHERE recipient_email = ? ORDER BY seq`, email)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	return scanEvents(rows)
}

// CountEvents returns the number of stored events.
func CountEvents(db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM engagement_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}
