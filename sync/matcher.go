// ABOUTME: Contact matching between provider events and ledger records
// ABOUTME: Finds ledger records by normalized email so history lands on the right row
package sync

import (
	"strings"

	"github.com/jpchacon09/APOLLO/models"
)

type ContactMatcher struct {
	byEmail map[string]*models.ContactRecord
}

// NewContactMatcher creates a matcher from ledger records. The first record wins
// when an email repeats.
func NewContactMatcher(records []*models.ContactRecord) *ContactMatcher {
	m := &ContactMatcher{
		byEmail: make(map[string]*models.ContactRecord),
	}

	for _, rec := range records {
		email := normalizeEmail(rec.Email)
		if email == "" {
			continue
		}
		if _, exists := m.byEmail[email]; !exists {
			m.byEmail[email] = rec
		}
	}

	return m
}

// FindMatch looks for a ledger record by email.
func (m *ContactMatcher) FindMatch(email string) (*models.ContactRecord, bool) {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return nil, false
	}

	rec, found := m.byEmail[normalized]
	return rec, found
}

// GroupEvents buckets events by the ledger record they belong to. Events for
// unknown recipients are returned separately.
func (m *ContactMatcher) GroupEvents(events []models.EngagementEvent) (map[*models.ContactRecord][]models.EngagementEvent, []models.EngagementEvent) {
	grouped := make(map[*models.ContactRecord][]models.EngagementEvent)
	var unmatched []models.EngagementEvent

	for _, e := range events {
		rec, found := m.FindMatch(e.RecipientEmail)
		if !found {
			unmatched = append(unmatched, e)
			continue
		}
		grouped[rec] = append(grouped[rec], e)
	}
	return grouped, unmatched
}

// normalizeEmail converts email to lowercase for comparison.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
