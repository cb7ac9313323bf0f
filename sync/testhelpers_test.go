package sync

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	stdsync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jpchacon09/APOLLO/db"
	"github.com/jpchacon09/APOLLO/ledger"
	"github.com/jpchacon09/APOLLO/models"
)

var fixedNow = time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("Failed to open in-memory db: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func writeLedger(t *testing.T, content string) (*ledger.Ledger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contacts.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	l, err := ledger.Load(path)
	require.NoError(t, err)
	return l, path
}

func reload(t *testing.T, path string) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Load(path)
	require.NoError(t, err)
	return l
}

type fakeFetcher struct {
	mu     stdsync.Mutex
	events map[string][]models.EngagementEvent
	errs   map[string]error
	calls  []string
	delay  time.Duration

	// onFetch runs before each fetch returns, outside the fetcher's lock.
	onFetch func(email string)

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		events: make(map[string][]models.EngagementEvent),
		errs:   make(map[string]error),
	}
}

func (f *fakeFetcher) FetchEvents(ctx context.Context, email string) ([]models.EngagementEvent, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		prev := f.maxInFlight.Load()
		if n <= prev || f.maxInFlight.CompareAndSwap(prev, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, email)
	events := append([]models.EngagementEvent(nil), f.events[email]...)
	err := f.errs[email]
	f.mu.Unlock()

	if f.onFetch != nil {
		f.onFetch(email)
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return events, err
}

func (f *fakeFetcher) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeMatcher struct {
	people map[string]*models.Person
	err    error
}

func (m *fakeMatcher) MatchPerson(ctx context.Context, email string) (*models.Person, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.people[email], nil
}

type fakeLister struct {
	campaigns []models.Campaign
	err       error
}

func (l *fakeLister) ListCampaigns(ctx context.Context) ([]models.Campaign, error) {
	return l.campaigns, l.err
}

func event(email string, step int, day int) models.EngagementEvent {
	return models.EngagementEvent{
		ID:             fmt.Sprintf("%s-%d", email, step),
		RecipientEmail: email,
		Channel:        models.ChannelEmail,
		SequenceID:     "c1",
		SequenceName:   "Q1 Outreach",
		StepNumber:     step,
		Status:         models.EventSent,
		Subject:        "Paso",
		CreatedAt:      time.Date(2024, 3, day, 10, 0, 0, 0, time.UTC),
	}
}

func removeAndMkdir(path string) error {
	if err := os.Remove(path); err != nil {
		return err
	}
	return os.Mkdir(path, 0755)
}
