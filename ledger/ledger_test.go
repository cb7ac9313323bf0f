// ABOUTME: Tests for the CSV contact ledger
// ABOUTME: Covers round-trip fidelity, aliases, pending selection, duplicates, and atomic saves
package ledger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const legacyLedger = "EMAIL_LIMPIO,Contacto,Empresa,Cargo,CELULAR1,ESTADO,STEP,campaña,step_numero,apollo_status,apollo_last_sync_at,Responsable,observaciones\n" +
	"Ana@Example.com ,Ana Pérez,Acme,Dueña,+57 300,INTERESADO,LLAMADA 1,Q1 Outreach,2.0,sent,2024-03-01T10:00:00.123456,Laura,\"nota, con coma\"\n" +
	"bob@example.com,Bob,Beta,CEO,,,,,,,,Laura,\n" +
	",Sin correo,Gamma,,,,,,,,,Juan,\n" +
	"BOB@example.com,Bob Duplicado,Beta,,,,,,,,,Juan,\n" +
	"carla@example.com,Carla,Delta,,,NO CONTESTA,LLAMADA 2,,,,,,\n"

func writeLedger(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contacts.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadResolvesAliases(t *testing.T) {
	l, err := Load(writeLedger(t, legacyLedger))
	require.NoError(t, err)

	require.Equal(t, 5, l.Len())

	ana := l.Get("ana@example.com")
	require.NotNil(t, ana)
	assert.Equal(t, "ana@example.com", ana.Email)
	assert.Equal(t, "Ana Pérez", ana.Name)
	assert.Equal(t, "Dueña", ana.Role)
	assert.Equal(t, "INTERESADO", ana.Status)
	assert.Equal(t, "Q1 Outreach", ana.SequenceName)
	assert.Equal(t, 2, ana.StepNumber)
	assert.Equal(t, "sent", ana.ExternalStatus)
	require.NotNil(t, ana.LastSyncedAt)
	assert.Equal(t, 2024, ana.LastSyncedAt.Year())
	assert.Equal(t, "Laura", ana.Extra["Responsable"])
	assert.Equal(t, "nota, con coma", ana.Extra["observaciones"])

	assert.Nil(t, l.Get("nobody@example.com"))
}

func TestRoundTripPreservesValues(t *testing.T) {
	path := writeLedger(t, legacyLedger)

	l, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, l.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, legacyLedger, string(data), "untouched ledger must round-trip byte for byte")
}

func TestRoundTripKeepsBOM(t *testing.T) {
	content := "\ufeffemail,name\nana@example.com,Ana\n"
	path := writeLedger(t, content)

	l, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"email", "name"}, l.Header())
	require.NoError(t, l.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestSaveWritesChangedFieldsOnly(t *testing.T) {
	path := writeLedger(t, legacyLedger)
	l, err := Load(path)
	require.NoError(t, err)

	now := time.Date(2024, 5, 2, 15, 4, 5, 0, time.UTC)
	bob := l.Get("bob@example.com")
	bob.StepNumber = 3
	bob.SequenceID = "seq-1"
	bob.LastSyncedAt = &now

	require.NoError(t, l.Save())

	reloaded, err := Load(path)
	require.NoError(t, err)

	got := reloaded.Get("bob@example.com")
	assert.Equal(t, 3, got.StepNumber)
	assert.Equal(t, "seq-1", got.SequenceID)
	require.NotNil(t, got.LastSyncedAt)
	assert.True(t, got.LastSyncedAt.Equal(now))

	header := reloaded.Header()
	assert.Equal(t, "sequence_id", header[len(header)-1], "new canonical column appended")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(string(data), "\n")
	assert.Contains(t, lines[1], "2.0", "untouched float step kept verbatim")
	assert.Contains(t, lines[1], "Ana@Example.com ", "untouched email kept verbatim")
	assert.Contains(t, lines[2], "2024-05-02T15:04:05Z")
}

func TestSaveKeepsSubSecondTimestamps(t *testing.T) {
	path := writeLedger(t, legacyLedger)
	l, err := Load(path)
	require.NoError(t, err)

	event := time.Date(2024, 3, 1, 10, 0, 0, 700_000_000, time.UTC)
	synced := time.Date(2024, 3, 2, 8, 30, 15, 123_000_000, time.UTC)
	bob := l.Get("bob@example.com")
	bob.LastEventAt = &event
	bob.LastSyncedAt = &synced
	require.NoError(t, l.Save())

	got, err := Load(path)
	require.NoError(t, err)
	reloaded := got.Get("bob@example.com")
	require.NotNil(t, reloaded.LastEventAt)
	require.NotNil(t, reloaded.LastSyncedAt)
	assert.True(t, reloaded.LastEventAt.Equal(event), "got %v", reloaded.LastEventAt)
	assert.True(t, reloaded.LastSyncedAt.Equal(synced), "got %v", reloaded.LastSyncedAt)
}

func TestReloadDiscardsInMemoryChanges(t *testing.T) {
	path := writeLedger(t, legacyLedger)
	l, err := Load(path)
	require.NoError(t, err)

	l.Get("bob@example.com").StepNumber = 7
	require.NoError(t, os.WriteFile(path, []byte("email,name\nzoe@example.com,Zoe\n"), 0644))

	require.NoError(t, l.Reload())
	assert.Nil(t, l.Get("bob@example.com"))
	require.NotNil(t, l.Get("zoe@example.com"))
	assert.Equal(t, path, l.Path())

	require.NoError(t, os.Remove(path))
	assert.Error(t, l.Reload())
	assert.NotNil(t, l.Get("zoe@example.com"), "failed reload keeps the previous contents")
}

func TestExtraColumnsAddedBySetter(t *testing.T) {
	path := writeLedger(t, "email\nana@example.com\n")
	l, err := Load(path)
	require.NoError(t, err)

	rec := l.Get("ana@example.com")
	rec.Extra = map[string]string{"zeta": "z", "alpha": "a"}
	require.NoError(t, l.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "email,alpha,zeta\nana@example.com,a,z\n", string(data))
}

func TestPendingSelection(t *testing.T) {
	l, err := Load(writeLedger(t, legacyLedger))
	require.NoError(t, err)

	pending := l.Pending(0)
	var emails []string
	for _, rec := range pending {
		emails = append(emails, rec.Email)
	}
	// ana is already synced, the blank row and the duplicate bob are skipped.
	assert.Equal(t, []string{"bob@example.com", "carla@example.com"}, emails)

	limited := l.Pending(1)
	require.Len(t, limited, 1)
	assert.Equal(t, "bob@example.com", limited[0].Email)
}

func TestDuplicates(t *testing.T) {
	l, err := Load(writeLedger(t, legacyLedger))
	require.NoError(t, err)

	assert.Equal(t, []string{"bob@example.com"}, l.Duplicates())
	assert.Equal(t, "Bob", l.Get("BOB@example.com").Name, "first occurrence is keyed")
}

func TestUnparseableSyncMarkerCountsAsAttempted(t *testing.T) {
	path := writeLedger(t, "email,apollo_last_sync_at\nana@example.com,yesterday\n")
	l, err := Load(path)
	require.NoError(t, err)

	assert.Empty(t, l.Pending(0))
	require.NoError(t, l.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "yesterday")
}

func TestLoadEmptyFile(t *testing.T) {
	l, err := Load(writeLedger(t, ""))
	require.NoError(t, err)
	assert.Equal(t, 0, l.Len())
	assert.Contains(t, l.Header(), "email")
}

func TestLoadNoEmailColumn(t *testing.T) {
	_, err := Load(writeLedger(t, "name,company\nAna,Acme\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoEmailColumn))
}

func TestLoadTooManyFields(t *testing.T) {
	_, err := Load(writeLedger(t, "email,name\nana@example.com,Ana,extra\n"))
	assert.Error(t, err)
}

func TestShortRowsArePadded(t *testing.T) {
	l, err := Load(writeLedger(t, "email,name,company\nana@example.com\n"))
	require.NoError(t, err)
	assert.Equal(t, "", l.Get("ana@example.com").Company)
}

func TestSaveFailureLeavesPreviousFile(t *testing.T) {
	path := writeLedger(t, legacyLedger)
	l, err := Load(path)
	require.NoError(t, err)

	l.Get("bob@example.com").StepNumber = 9

	// A directory in place of the target makes the final rename fail.
	blocked := filepath.Join(t.TempDir(), "blocked.csv")
	require.NoError(t, os.MkdirAll(filepath.Join(blocked, "child"), 0755))

	err = l.SaveAs(blocked)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPersistence))

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(blocked))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// Missing directory fails before anything is written.
	err = l.SaveAs(filepath.Join(t.TempDir(), "missing", "contacts.csv"))
	assert.True(t, errors.Is(err, ErrPersistence))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, legacyLedger, string(data))
}

func TestParseTimeFormats(t *testing.T) {
	cases := []string{
		"2024-03-01T10:00:00Z",
		"2024-03-01T10:00:00.123456789Z",
		"2024-03-01T10:00:00",
		"2024-03-01T10:00:00.5",
		"2024-03-01 10:00:00",
		"2024-03-01",
	}
	for _, raw := range cases {
		got := parseTime(raw)
		require.NotNil(t, got, raw)
		assert.Equal(t, 2024, got.Year(), raw)
		assert.False(t, got.IsZero(), raw)
	}
	assert.Nil(t, parseTime(""))
	assert.Nil(t, parseTime("NaN"))
	assert.True(t, parseTime("garbage").IsZero())
}

func TestParseStep(t *testing.T) {
	assert.Equal(t, 0, parseStep(""))
	assert.Equal(t, 4, parseStep("4"))
	assert.Equal(t, 3, parseStep("3.0"))
	assert.Equal(t, 0, parseStep("paso"))
}

func TestResolveColumnsPrefersCanonical(t *testing.T) {
	cols := resolveColumns([]string{"EMAIL_LIMPIO", "email", "Cargo"})
	assert.Equal(t, 1, cols[fieldEmail])
	assert.Equal(t, 2, cols[fieldRole])
	assert.Equal(t, -1, cols[fieldPhone])
}
