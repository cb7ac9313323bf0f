// ABOUTME: KPI aggregation over the contact ledger and engagement history
// ABOUTME: Channel counters, coverage, step metrics, pipeline buckets, and activity feeds
package viz

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jpchacon09/APOLLO/models"
)

// Default bounds for sampled lists.
const (
	DefaultSampleSize     = 100
	DefaultRecentActivity = 30
	DefaultNotes          = 30
)

// Ledger columns carrying operator notes, kept in ContactRecord.Extra.
const (
	DefaultNoteColumn     = "observaciones"
	DefaultNoteDateColumn = "fecha gestion envio secuencia 2025- 2026"
)

const noStep = "SIN GESTION"

// unreachableStatuses are manual call outcomes that mean nobody answered.
var unreachableStatuses = map[string]bool{
	"no-answer":      true,
	"no answer":      true,
	"no contesta":    true,
	"powered-off":    true,
	"apagado":        true,
	"voicemail":      true,
	"buzon":          true,
	"buzón":          true,
	"ring-no-answer": true,
	"repicador":      true,
	"sin gestion":    true,
}

var callKeywords = []string{"call", "llamada"}
var meetingKeywords = []string{"scheduled", "meeting", "agendado", "reunion", "reunión"}

// AggregateOptions bounds the sampled lists of a snapshot.
type AggregateOptions struct {
	SampleSize     int
	RecentActivity int
	Notes          int
	NoteColumn     string
	NoteDateColumn string
}

// DefaultAggregateOptions returns the bounds used by the CLI.
func DefaultAggregateOptions() AggregateOptions {
	return AggregateOptions{
		SampleSize:     DefaultSampleSize,
		RecentActivity: DefaultRecentActivity,
		Notes:          DefaultNotes,
		NoteColumn:     DefaultNoteColumn,
		NoteDateColumn: DefaultNoteDateColumn,
	}
}

type EmailKPI struct {
	Total   int `json:"total"`
	Sent    int `json:"sent"`
	Replied int `json:"replied"`
}

type LinkedInKPI struct {
	Sent    int `json:"sent"`
	Replied int `json:"replied"`
}

type CallKPI struct {
	Realized int `json:"realized"`
	Answered int `json:"answered"`
	Meetings int `json:"meetings"`
}

type KPIs struct {
	Email    EmailKPI    `json:"email"`
	LinkedIn LinkedInKPI `json:"linkedin"`
	Calls    CallKPI     `json:"calls"`
}

// Coverage describes how much of the ledger the sync has reached.
type Coverage struct {
	Total       int     `json:"total"`
	WithEmail   int     `json:"with_email"`
	WithPhone   int     `json:"with_phone"`
	Synced      int     `json:"synced"`
	Pending     int     `json:"pending"`
	SyncPercent float64 `json:"sync_percent"`
}

// StepMetrics counts outcomes of one manual step.
type StepMetrics struct {
	Total      int `json:"total"`
	Interested int `json:"interested"`
	Scheduled  int `json:"scheduled"`
	Rejected   int `json:"rejected"`
	NoAnswer   int `json:"no_answer"`
	NoResponse int `json:"no_response"`
}

type PipelineContact struct {
	Name     string `json:"name"`
	Company  string `json:"company"`
	Email    string `json:"email"`
	Status   string `json:"status"`
	Campaign string `json:"campaign"`
	Step     string `json:"step"`
}

type PipelineBucket struct {
	Count    int               `json:"count"`
	Contacts []PipelineContact `json:"contacts"`
}

type Activity struct {
	Contact  string    `json:"contact"`
	Account  string    `json:"account"`
	Email    string    `json:"email"`
	Channel  string    `json:"channel"`
	Status   string    `json:"status"`
	Sequence string    `json:"sequence"`
	Step     string    `json:"step"`
	Date     time.Time `json:"date"`
}

// Note is an operator observation on a contact.
type Note struct {
	Contact string `json:"contact"`
	Company string `json:"company"`
	Note    string `json:"note"`
	Status  string `json:"status"`
	Step    string `json:"step"`
	Date    string `json:"date"`
}

// KPISnapshot is the derived reporting state of a ledger plus its history.
type KPISnapshot struct {
	KPIs           KPIs                                        `json:"kpis"`
	Coverage       Coverage                                    `json:"coverage"`
	StepMetrics    map[string]StepMetrics                      `json:"step_metrics"`
	Pipeline       map[models.PipelineCategory]*PipelineBucket `json:"pipeline"`
	Counts         map[models.PipelineCategory]int             `json:"counts"`
	RecentActivity []Activity                                  `json:"recent_activity"`
	Notes          []Note                                      `json:"notes"`
}

// Aggregate derives KPIs from the ledger records and the engagement history.
// Events are deduplicated by the caller. Nothing is mutated.
func Aggregate(records []*models.ContactRecord, events []models.EngagementEvent, opts AggregateOptions) *KPISnapshot {
	snap := &KPISnapshot{
		StepMetrics: make(map[string]StepMetrics),
		Pipeline:    make(map[models.PipelineCategory]*PipelineBucket, len(models.PipelineCategories)),
		Counts:      make(map[models.PipelineCategory]int, len(models.PipelineCategories)),
	}
	for _, c := range models.PipelineCategories {
		snap.Pipeline[c] = &PipelineBucket{Contacts: []PipelineContact{}}
		snap.Counts[c] = 0
	}

	inHistory := aggregateHistory(snap, events)

	for _, rec := range records {
		aggregateLedgerKPIs(snap, rec, inHistory)
		aggregateCoverage(&snap.Coverage, rec)
		aggregateStep(snap.StepMetrics, rec)

		category := Classify(rec)
		bucket := snap.Pipeline[category]
		bucket.Count++
		snap.Counts[category]++
		if opts.SampleSize <= 0 || len(bucket.Contacts) < opts.SampleSize {
			bucket.Contacts = append(bucket.Contacts, pipelineContact(rec))
		}
	}

	if snap.Coverage.Total > 0 {
		pct := float64(snap.Coverage.Synced) / float64(snap.Coverage.Total) * 100
		snap.Coverage.SyncPercent = float64(int(pct*10+0.5)) / 10
	}

	snap.RecentActivity = recentActivity(events, opts.RecentActivity)
	snap.Notes = notesFeed(records, opts)
	return snap
}

// aggregateHistory counts email and LinkedIn touches and returns the set of
// recipients present in the history.
func aggregateHistory(snap *KPISnapshot, events []models.EngagementEvent) map[string]bool {
	inHistory := make(map[string]bool)
	for i := range events {
		e := &events[i]
		inHistory[strings.ToLower(strings.TrimSpace(e.RecipientEmail))] = true

		switch e.Channel {
		case models.ChannelEmail:
			snap.KPIs.Email.Total++
			if e.Status.CountsAsSent() {
				snap.KPIs.Email.Sent++
			}
			if e.Status == models.EventReplied {
				snap.KPIs.Email.Replied++
			}
		case models.ChannelLinkedIn:
			if e.Status.CountsAsSent() {
				snap.KPIs.LinkedIn.Sent++
			}
			if e.Status == models.EventReplied {
				snap.KPIs.LinkedIn.Replied++
			}
		}
	}
	return inHistory
}

func aggregateLedgerKPIs(snap *KPISnapshot, rec *models.ContactRecord, inHistory map[string]bool) {
	// Scheduled in the provider but absent from the history export.
	if strings.EqualFold(strings.TrimSpace(rec.ExternalStatus), string(models.EventScheduled)) &&
		rec.Email != "" && !inHistory[rec.Email] {
		snap.KPIs.Email.Total++
		snap.KPIs.Email.Sent++
	}

	step := strings.ToLower(rec.Step)
	status := strings.ToLower(strings.TrimSpace(rec.Status))

	if containsAny(step, callKeywords) {
		snap.KPIs.Calls.Realized++
		if status != "" && !unreachableStatuses[status] {
			snap.KPIs.Calls.Answered++
		}
	}
	if containsAny(status, meetingKeywords) {
		snap.KPIs.Calls.Meetings++
	}
}

func aggregateCoverage(cov *Coverage, rec *models.ContactRecord) {
	cov.Total++
	if rec.Email != "" {
		cov.WithEmail++
	}
	if strings.TrimSpace(rec.Phone) != "" {
		cov.WithPhone++
	}
	if rec.Synced() {
		cov.Synced++
	} else if rec.Email != "" {
		cov.Pending++
	}
}

func aggregateStep(metrics map[string]StepMetrics, rec *models.ContactRecord) {
	step := strings.TrimSpace(rec.Step)
	if step == "" || strings.EqualFold(step, noStep) {
		return
	}

	status := strings.ToUpper(rec.Status)
	m := metrics[step]
	m.Total++
	switch {
	case strings.Contains(status, "INTERESADO"), strings.Contains(status, "INTERESTED"):
		m.Interested++
	case strings.Contains(status, "AGENDADO"), strings.Contains(status, "SCHEDULED"):
		m.Scheduled++
	case strings.Contains(status, "NO PERFIL"), strings.Contains(status, "NOT A FIT"):
		m.Rejected++
	case strings.Contains(status, "NO CONTESTA"), strings.Contains(status, "APAGADO"), strings.Contains(status, "NO ANSWER"):
		m.NoAnswer++
	default:
		m.NoResponse++
	}
	metrics[step] = m
}

func pipelineContact(rec *models.ContactRecord) PipelineContact {
	name := strings.TrimSpace(rec.Name)
	if name == "" {
		name = "Sin Nombre"
	}
	company := strings.TrimSpace(rec.Company)
	if company == "" {
		company = "-"
	}
	status := rec.ExternalStatus
	if status == "" {
		status = rec.Status
	}
	step := rec.Step
	if rec.StepNumber > 0 {
		step = strconv.Itoa(rec.StepNumber)
	}
	return PipelineContact{
		Name:     name,
		Company:  company,
		Email:    rec.Email,
		Status:   status,
		Campaign: rec.SequenceName,
		Step:     step,
	}
}

// recentActivity returns the newest events first. Ties keep history order.
func recentActivity(events []models.EngagementEvent, limit int) []Activity {
	sorted := make([]models.EngagementEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OccurredAt().After(sorted[j].OccurredAt())
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}

	out := make([]Activity, 0, len(sorted))
	for i := range sorted {
		e := &sorted[i]
		sequence := e.SequenceName
		if sequence == "" {
			sequence = "Sin secuencia"
		}
		step := "-"
		if e.StepNumber > 0 {
			step = strconv.Itoa(e.StepNumber)
		}
		out = append(out, Activity{
			Contact:  e.RecipientName,
			Account:  e.Account,
			Email:    e.RecipientEmail,
			Channel:  string(e.Channel),
			Status:   string(e.Status),
			Sequence: sequence,
			Step:     step,
			Date:     e.OccurredAt(),
		})
	}
	return out
}

// notesFeed collects substantive operator notes, newest date label first.
func notesFeed(records []*models.ContactRecord, opts AggregateOptions) []Note {
	if opts.NoteColumn == "" {
		return []Note{}
	}

	notes := []Note{}
	for _, rec := range records {
		text := strings.TrimSpace(extraValue(rec, opts.NoteColumn))
		if len([]rune(text)) <= 10 {
			continue
		}
		notes = append(notes, Note{
			Contact: pipelineContact(rec).Name,
			Company: rec.Company,
			Note:    text,
			Status:  rec.Status,
			Step:    rec.Step,
			Date:    extraValue(rec, opts.NoteDateColumn),
		})
	}

	sort.SliceStable(notes, func(i, j int) bool {
		return notes[i].Date > notes[j].Date
	})
	if opts.Notes > 0 && len(notes) > opts.Notes {
		notes = notes[:opts.Notes]
	}
	return notes
}

func extraValue(rec *models.ContactRecord, column string) string {
	if column == "" || rec.Extra == nil {
		return ""
	}
	if v, ok := rec.Extra[column]; ok {
		return v
	}
	for k, v := range rec.Extra {
		if strings.EqualFold(strings.TrimSpace(k), column) {
			return v
		}
	}
	return ""
}
