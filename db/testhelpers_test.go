package db

import (
	"database/sql"
	"testing"
	"time"

	"github.com/jpchacon09/APOLLO/models"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("Failed to open in-memory db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sampleEvents() []models.EngagementEvent {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return []models.EngagementEvent{
		{
			ID: "m1", RecipientEmail: "ana@example.com", Channel: models.ChannelEmail,
			SequenceID: "c1", SequenceName: "Q1", StepNumber: 1, Status: models.EventSent,
			Subject: "Hola", CreatedAt: base,
		},
		{
			ID: "m2", RecipientEmail: "ana@example.com", Channel: models.ChannelEmail,
			SequenceID: "c1", SequenceName: "Q1", StepNumber: 2, Status: models.EventOpened,
			Subject: "Seguimiento", CreatedAt: base.Add(24 * time.Hour),
		},
	}
}
