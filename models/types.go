// ABOUTME: Data models for the contact ledger and provider engagement events
// ABOUTME: Defines ContactRecord, EngagementEvent, Person, Campaign, and the closed status/category sets
package models

import (
	"strconv"
	"strings"
	"time"
)

// ContactRecord is one row of the contact ledger. Empty strings mean "absent".
type ContactRecord struct {
	Email string `json:"email"`

	// Profile fields, only overwritten under merge precedence.
	Name     string `json:"name,omitempty"`
	Company  string `json:"company,omitempty"`
	Role     string `json:"role,omitempty"`
	Phone    string `json:"phone,omitempty"`
	LinkedIn string `json:"linkedin_url,omitempty"`

	// Manual pipeline fields, set by a human operator.
	Status string `json:"status,omitempty"`
	Step   string `json:"step,omitempty"`

	// External sync fields.
	SequenceID     string     `json:"sequence_id,omitempty"`
	SequenceName   string     `json:"sequence_name,omitempty"`
	StepNumber     int        `json:"step_number,omitempty"`
	ExternalStatus string     `json:"external_status,omitempty"`
	LastEventAt    *time.Time `json:"last_event_at,omitempty"`
	LastSyncedAt   *time.Time `json:"last_synced_at,omitempty"`

	// Extra holds columns the engine does not recognise, keyed by header.
	Extra map[string]string `json:"extra,omitempty"`
}

// Synced reports whether the record was already attempted by a sync run.
func (c *ContactRecord) Synced() bool {
	return c.LastSyncedAt != nil
}

// DisplayName returns the best available label for a contact.
func (c *ContactRecord) DisplayName() string {
	if strings.TrimSpace(c.Name) != "" {
		return c.Name
	}
	if c.Email != "" {
		return c.Email
	}
	return "Sin Nombre"
}

// Channel is the medium of an engagement touch.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelLinkedIn Channel = "linkedin"
	ChannelCall     Channel = "call"
)

// ParseChannel maps provider type labels ("Email", "linkedin_step_message",
// "Phone Call", ...) onto the closed channel set. Anything unknown is email.
func ParseChannel(raw string) Channel {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(s, "linkedin"):
		return ChannelLinkedIn
	case strings.Contains(s, "call"), strings.Contains(s, "llamada"):
		return ChannelCall
	default:
		return ChannelEmail
	}
}

// EventStatus is the provider's vocabulary for the state of a touch.
type EventStatus string

const (
	EventScheduled EventStatus = "scheduled"
	EventSent      EventStatus = "sent"
	EventOpened    EventStatus = "opened"
	EventClicked   EventStatus = "clicked"
	EventReplied   EventStatus = "replied"
	EventBounced   EventStatus = "bounced"
	EventCompleted EventStatus = "completed"
)

var knownEventStatuses = map[EventStatus]bool{
	EventScheduled: true,
	EventSent:      true,
	EventOpened:    true,
	EventClicked:   true,
	EventReplied:   true,
	EventBounced:   true,
	EventCompleted: true,
}

// ParseEventStatus normalises a provider status. Unknown values are kept
// lower-cased so they survive into the history log; Known reports them.
func ParseEventStatus(raw string) EventStatus {
	return EventStatus(strings.ToLower(strings.TrimSpace(raw)))
}

// Known reports whether the status belongs to the recognised vocabulary.
func (s EventStatus) Known() bool {
	return knownEventStatuses[s]
}

// CountsAsSent reports whether a touch in this status is counted as sent.
// Scheduled is counted even without confirmed delivery.
func (s EventStatus) CountsAsSent() bool {
	switch s {
	case EventScheduled, EventSent, EventOpened, EventClicked, EventReplied, EventCompleted:
		return true
	}
	return false
}

// EngagementEvent is one external touch tied to a campaign step.
type EngagementEvent struct {
	ID             string      `json:"id,omitempty"`
	RecipientEmail string      `json:"recipient_email"`
	RecipientName  string      `json:"recipient_name,omitempty"`
	Account        string      `json:"account,omitempty"`
	Channel        Channel     `json:"channel"`
	SequenceID     string      `json:"sequence_id,omitempty"`
	SequenceName   string      `json:"sequence_name,omitempty"`
	StepNumber     int         `json:"step_number"`
	Status         EventStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
	SentAt         *time.Time  `json:"sent_at,omitempty"`
	Subject        string      `json:"subject,omitempty"`
}

// Signature identifies the logical touch an event describes.
type Signature struct {
	RecipientEmail string
	Channel        Channel
	StepNumber     int
	Subject        string
}

// Signature returns the dedup key of the event.
func (e *EngagementEvent) Signature() Signature {
	return Signature{
		RecipientEmail: strings.ToLower(strings.TrimSpace(e.RecipientEmail)),
		Channel:        e.Channel,
		StepNumber:     e.StepNumber,
		Subject:        e.Subject,
	}
}

// String renders the signature as a stable storage key.
func (s Signature) String() string {
	return strings.Join([]string{s.RecipientEmail, string(s.Channel), strconv.Itoa(s.StepNumber), s.Subject}, "\x1f")
}

// OccurredAt is the timestamp used for activity feeds: delivery time when known.
func (e *EngagementEvent) OccurredAt() time.Time {
	if e.SentAt != nil && !e.SentAt.IsZero() {
		return *e.SentAt
	}
	return e.CreatedAt
}

// Person is the provider's enrichment profile for an email address.
type Person struct {
	ID               string `json:"id"`
	Name             string `json:"name,omitempty"`
	Title            string `json:"title,omitempty"`
	Phone            string `json:"phone,omitempty"`
	LinkedIn         string `json:"linkedin_url,omitempty"`
	OrganizationName string `json:"organization_name,omitempty"`

	// Active sequence the person is enrolled in, if any.
	SequenceID   string `json:"sequence_id,omitempty"`
	SequenceName string `json:"sequence_name,omitempty"`
	StepNumber   int    `json:"step_number,omitempty"`
}

// Campaign maps a provider sequence id onto its display name.
type Campaign struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PipelineCategory is the derived bucket for a contact. Exactly one per contact.
type PipelineCategory string

const (
	CategoryNew        PipelineCategory = "NEW"
	CategoryInSequence PipelineCategory = "IN_SEQUENCE"
	CategoryInterested PipelineCategory = "INTERESTED"
	CategoryScheduled  PipelineCategory = "SCHEDULED"
	CategoryRejected   PipelineCategory = "REJECTED"
)

// PipelineCategories lists every category in funnel order.
var PipelineCategories = []PipelineCategory{
	CategoryNew,
	CategoryInSequence,
	CategoryInterested,
	CategoryScheduled,
	CategoryRejected,
}

// Sync status constants.
const (
	SyncStatusIdle    = "idle"
	SyncStatusSyncing = "syncing"
	SyncStatusError   = "error"
)

// Failure reasons reported per contact by a sync run.
const (
	ReasonRateLimited = "rate_limited"
	ReasonTransient   = "transient_exhausted"
	ReasonPermanent   = "permanent"
)

// Sync outcomes recorded per contact.
const (
	OutcomeUpdated = "updated"
	OutcomeEmpty   = "empty"
	OutcomeFailed  = "failed"
)

// ContactFailure describes why a contact ended a run without data.
type ContactFailure struct {
	Email   string `json:"email"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// RunResult is the state returned by every sync invocation.
type RunResult struct {
	RunID       string           `json:"run_id"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at"`
	Selected    int              `json:"selected"`
	Succeeded   int              `json:"succeeded"`
	Empty       int              `json:"empty"`
	Failed      int              `json:"failed"`
	Enriched    int              `json:"enriched"`
	Checkpoints int              `json:"checkpoints"`
	Failures    []ContactFailure `json:"failures,omitempty"`
	Aborted     bool             `json:"aborted"`
	AbortReason string           `json:"abort_reason,omitempty"`
}

// Processed counts contacts that ended the run updated or marked attempted.
func (r *RunResult) Processed() int {
	return r.Succeeded + r.Empty + r.Failed
}

// Remaining counts selected contacts left untouched, e.g. after an abort.
func (r *RunResult) Remaining() int {
	return r.Selected - r.Processed()
}

// FailuresByReason groups failure counts by reason class.
func (r *RunResult) FailuresByReason() map[string]int {
	out := make(map[string]int)
	for _, f := range r.Failures {
		out[f.Reason]++
	}
	return out
}
