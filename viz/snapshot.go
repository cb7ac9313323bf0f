// ABOUTME: Reporting snapshot document built from the KPI aggregation
// ABOUTME: Serialized as JSON and written with an atomic temp-file swap
package viz

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jpchacon09/APOLLO/models"
)

// Snapshot is the document consumed by reporting surfaces.
type Snapshot struct {
	GeneratedAt time.Time `json:"generated_at"`
	*KPISnapshot
}

// BuildSnapshot aggregates records and events into a snapshot stamped at now.
func BuildSnapshot(records []*models.ContactRecord, events []models.EngagementEvent, opts AggregateOptions, now time.Time) *Snapshot {
	return &Snapshot{
		GeneratedAt: now.UTC(),
		KPISnapshot: Aggregate(records, events, opts),
	}
}

// Encode writes the snapshot as indented JSON.
func (s *Snapshot) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return nil
}

// WriteSnapshot replaces the file at path with the snapshot. Readers see the
// old document or the new one, never a partial write.
func WriteSnapshot(path string, s *Snapshot) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := s.Encode(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("failed to set snapshot permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot loads a snapshot written by WriteSnapshot.
func ReadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	s := &Snapshot{KPISnapshot: &KPISnapshot{}}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return s, nil
}
