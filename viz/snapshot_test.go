package viz

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpchacon09/APOLLO/models"
)

func TestSnapshotDocumentShape(t *testing.T) {
	snap := BuildSnapshot(sampleLedger(), sampleHistory(), DefaultAggregateOptions(), day(21))

	var buf bytes.Buffer
	require.NoError(t, snap.Encode(&buf))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	for _, key := range []string{"generated_at", "kpis", "coverage", "step_metrics", "pipeline", "counts", "recent_activity", "notes"} {
		assert.Contains(t, doc, key)
	}
	assert.Equal(t, "2024-03-21T10:00:00Z", doc["generated_at"])

	kpis := doc["kpis"].(map[string]any)
	assert.Contains(t, kpis, "email")
	assert.Contains(t, kpis, "linkedin")
	assert.Contains(t, kpis, "calls")

	pipeline := doc["pipeline"].(map[string]any)
	for _, c := range models.PipelineCategories {
		assert.Contains(t, pipeline, string(c))
	}
	assert.True(t, strings.Contains(buf.String(), "Pidió"), "non-ASCII text is kept as is")
}

func TestWriteSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "snapshot.json")
	snap := BuildSnapshot(sampleLedger(), sampleHistory(), DefaultAggregateOptions(), day(21))

	require.NoError(t, WriteSnapshot(path, snap))

	loaded, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, snap.GeneratedAt, loaded.GeneratedAt)
	assert.Equal(t, snap.KPIs, loaded.KPIs)
	assert.Equal(t, snap.Counts, loaded.Counts)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestWriteSnapshotFailureKeepsPreviousFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"generated_at":"old"}`), 0644))

	// A directory at the target path makes the final rename fail.
	target := filepath.Join(dir, "taken")
	require.NoError(t, os.MkdirAll(filepath.Join(target, "child"), 0755))

	err := WriteSnapshot(target, BuildSnapshot(nil, nil, DefaultAggregateOptions(), day(1)))
	assert.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"generated_at":"old"}`, string(data))
}
