// ABOUTME: Column bindings between ledger headers and ContactRecord fields
// ABOUTME: Resolves canonical names and legacy aliases, and parses/formats typed values
package ledger

import (
	"strconv"
	"strings"
	"time"

	"github.com/jpchacon09/APOLLO/models"
)

type field int

const (
	fieldEmail field = iota
	fieldName
	fieldCompany
	fieldRole
	fieldPhone
	fieldLinkedIn
	fieldStatus
	fieldStep
	fieldSequenceID
	fieldSequenceName
	fieldStepNumber
	fieldExternalStatus
	fieldLastEventAt
	fieldLastSyncedAt
	numFields
)

// columnNames lists the canonical column first, then recognised aliases.
var columnNames = [numFields][]string{
	fieldEmail:          {"email", "EMAIL_LIMPIO", "Email", "correo"},
	fieldName:           {"name", "Contacto", "Nombre"},
	fieldCompany:        {"company", "Empresa"},
	fieldRole:           {"role", "Cargo", "title"},
	fieldPhone:          {"phone", "CELULAR1", "Telefono"},
	fieldLinkedIn:       {"linkedin_url", "Linkedin"},
	fieldStatus:         {"status", "ESTADO"},
	fieldStep:           {"step", "STEP"},
	fieldSequenceID:     {"sequence_id", "apollo_sequence_id"},
	fieldSequenceName:   {"sequence_name", "campaña", "campana"},
	fieldStepNumber:     {"step_number", "step_numero", "apollo_step"},
	fieldExternalStatus: {"external_status", "apollo_status", "estado_apollo"},
	fieldLastEventAt:    {"last_event_at", "fecha de step"},
	fieldLastSyncedAt:   {"last_synced_at", "apollo_last_sync_at"},
}

func (f field) canonical() string {
	return columnNames[f][0]
}

// resolveColumns binds each field to the first header column matching any of its
// names, preferring earlier names in the alias list. Unbound fields map to -1.
func resolveColumns(header []string) [numFields]int {
	var cols [numFields]int
	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = strings.ToLower(strings.TrimSpace(h))
	}

	for f := field(0); f < numFields; f++ {
		cols[f] = -1
	names:
		for _, name := range columnNames[f] {
			want := strings.ToLower(name)
			for i, h := range normalized {
				if h == want {
					cols[f] = i
					break names
				}
			}
		}
	}
	return cols
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTime reads the timestamp formats found in ledgers. Blank yields nil; a
// non-blank value that cannot be parsed yields a zero time so that "attempted at an
// unknown moment" is not confused with "never attempted".
func parseTime(raw string) *time.Time {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "nat") {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	zero := time.Time{}
	return &zero
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseStep accepts integers and the float form ("3.0") spreadsheets emit.
func parseStep(raw string) int {
	s := strings.TrimSpace(raw)
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

func formatStep(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func setField(rec *models.ContactRecord, f field, raw string) {
	switch f {
	case fieldEmail:
		rec.Email = NormalizeEmail(raw)
	case fieldName:
		rec.Name = raw
	case fieldCompany:
		rec.Company = raw
	case fieldRole:
		rec.Role = raw
	case fieldPhone:
		rec.Phone = raw
	case fieldLinkedIn:
		rec.LinkedIn = raw
	case fieldStatus:
		rec.Status = raw
	case fieldStep:
		rec.Step = raw
	case fieldSequenceID:
		rec.SequenceID = raw
	case fieldSequenceName:
		rec.SequenceName = raw
	case fieldStepNumber:
		rec.StepNumber = parseStep(raw)
	case fieldExternalStatus:
		rec.ExternalStatus = raw
	case fieldLastEventAt:
		rec.LastEventAt = parseTime(raw)
	case fieldLastSyncedAt:
		rec.LastSyncedAt = parseTime(raw)
	}
}

func formatField(rec *models.ContactRecord, f field) string {
	switch f {
	case fieldEmail:
		return rec.Email
	case fieldName:
		return rec.Name
	case fieldCompany:
		return rec.Company
	case fieldRole:
		return rec.Role
	case fieldPhone:
		return rec.Phone
	case fieldLinkedIn:
		return rec.LinkedIn
	case fieldStatus:
		return rec.Status
	case fieldStep:
		return rec.Step
	case fieldSequenceID:
		return rec.SequenceID
	case fieldSequenceName:
		return rec.SequenceName
	case fieldStepNumber:
		return formatStep(rec.StepNumber)
	case fieldExternalStatus:
		return rec.ExternalStatus
	case fieldLastEventAt:
		return formatTime(rec.LastEventAt)
	case fieldLastSyncedAt:
		return formatTime(rec.LastSyncedAt)
	}
	return ""
}
