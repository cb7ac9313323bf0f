// ABOUTME: Field merge policy applying provider state onto ledger records
// ABOUTME: External fields follow the winning event, profile fields only fill blanks or placeholders
package sync

import (
	"strings"
	"time"

	"github.com/jpchacon09/APOLLO/models"
)

// DefaultPlaceholders are profile values treated as empty. Matching is
// case-insensitive on the trimmed value.
var DefaultPlaceholders = []string{
	"dueña", "dueño", "owner", "n/a", "na", "-",
	"sin nombre", "sin cargo", "none", "null", "nan",
}

// MergePolicy decides how provider data lands on a ledger record.
type MergePolicy struct {
	placeholders map[string]bool
}

// NewMergePolicy builds a policy with the given placeholder denylist.
func NewMergePolicy(placeholders []string) *MergePolicy {
	p := &MergePolicy{placeholders: make(map[string]bool, len(placeholders))}
	for _, v := range placeholders {
		p.placeholders[strings.ToLower(strings.TrimSpace(v))] = true
	}
	return p
}

// DefaultMergePolicy returns the policy used by sync runs.
func DefaultMergePolicy() *MergePolicy {
	return NewMergePolicy(DefaultPlaceholders)
}

// IsPlaceholder reports whether a profile value may be overwritten.
func (p *MergePolicy) IsPlaceholder(value string) bool {
	v := strings.ToLower(strings.TrimSpace(value))
	return v == "" || p.placeholders[v]
}

// Apply merges a contact's deduplicated events and marks it attempted at now.
// Reports whether the record changed.
func (p *MergePolicy) Apply(rec *models.ContactRecord, events []models.EngagementEvent, now time.Time) bool {
	changed := p.ApplyExternal(rec, events)
	if markSynced(rec, now) {
		changed = true
	}
	return changed
}

// ApplyExternal merges events without touching the sync marker.
func (p *MergePolicy) ApplyExternal(rec *models.ContactRecord, events []models.EngagementEvent) bool {
	winner := selectWinner(events)
	if winner == nil {
		return false
	}

	changed := false
	if supersedes(rec, winner) {
		sameSequence := winner.SequenceID == "" || winner.SequenceID == rec.SequenceID
		if winner.SequenceName != "" || !sameSequence {
			changed = setString(&rec.SequenceName, winner.SequenceName) || changed
		}
		if winner.SequenceID != "" {
			changed = setString(&rec.SequenceID, winner.SequenceID) || changed
		}
		if rec.StepNumber != winner.StepNumber {
			rec.StepNumber = winner.StepNumber
			changed = true
		}
		changed = setString(&rec.ExternalStatus, string(winner.Status)) || changed
		if !winner.CreatedAt.IsZero() && (rec.LastEventAt == nil || !rec.LastEventAt.Equal(winner.CreatedAt)) {
			t := winner.CreatedAt
			rec.LastEventAt = &t
			changed = true
		}
	}

	// Profile hints carried by the events themselves.
	for i := range events {
		if events[i].RecipientName != "" && p.fill(&rec.Name, events[i].RecipientName) {
			changed = true
		}
		if events[i].Account != "" && p.fill(&rec.Company, events[i].Account) {
			changed = true
		}
	}
	return changed
}

// ApplyProfile fills blank or placeholder profile fields from an enrichment
// match. Sequence fields are only filled when the record has none.
func (p *MergePolicy) ApplyProfile(rec *models.ContactRecord, person *models.Person) bool {
	if person == nil {
		return false
	}

	changed := false
	changed = p.fill(&rec.Name, person.Name) || changed
	changed = p.fill(&rec.Role, person.Title) || changed
	changed = p.fill(&rec.Phone, person.Phone) || changed
	changed = p.fill(&rec.LinkedIn, person.LinkedIn) || changed
	changed = p.fill(&rec.Company, person.OrganizationName) || changed

	if rec.SequenceID == "" && person.SequenceID != "" {
		rec.SequenceID = person.SequenceID
		changed = true
		changed = setString(&rec.SequenceName, person.SequenceName) || changed
		if person.StepNumber > rec.StepNumber {
			rec.StepNumber = person.StepNumber
		}
	}
	return changed
}

func (p *MergePolicy) fill(field *string, value string) bool {
	value = strings.TrimSpace(value)
	if value == "" || p.IsPlaceholder(value) || !p.IsPlaceholder(*field) {
		return false
	}
	return setString(field, value)
}

// selectWinner picks the highest step, then the latest CreatedAt, then the
// first seen.
func selectWinner(events []models.EngagementEvent) *models.EngagementEvent {
	var winner *models.EngagementEvent
	for i := range events {
		e := &events[i]
		if winner == nil ||
			e.StepNumber > winner.StepNumber ||
			(e.StepNumber == winner.StepNumber && e.CreatedAt.After(winner.CreatedAt)) {
			winner = e
		}
	}
	return winner
}

// supersedes holds the step-monotonic rule: a lower step only wins with a
// later timestamp than the state already on the record.
func supersedes(rec *models.ContactRecord, winner *models.EngagementEvent) bool {
	if rec.StepNumber == 0 || winner.StepNumber >= rec.StepNumber {
		return true
	}
	return rec.LastEventAt != nil && winner.CreatedAt.After(*rec.LastEventAt)
}

func markSynced(rec *models.ContactRecord, now time.Time) bool {
	if rec.LastSyncedAt != nil && !rec.LastSyncedAt.IsZero() && !now.After(*rec.LastSyncedAt) {
		return false
	}
	t := now
	rec.LastSyncedAt = &t
	return true
}

func setString(field *string, value string) bool {
	if *field == value {
		return false
	}
	*field = value
	return true
}
