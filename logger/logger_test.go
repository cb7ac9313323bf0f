// ABOUTME: Tests for the slog wrapper
// ABOUTME: Verifies handler selection per environment and context tagging helpers
package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductionLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("production", &buf)

	log.WithRun("01HRUN").WithContact("ana@example.com").Info("fetched", "events", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "fetched", entry["msg"])
	assert.Equal(t, "01HRUN", entry["run_id"])
	assert.Equal(t, "ana@example.com", entry["email"])
	assert.EqualValues(t, 3, entry["events"])
}

func TestProductionLoggerSkipsDebug(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("production", &buf)

	log.Debug("noise")
	assert.Empty(t, buf.String())
}

func TestDevelopmentLoggerWritesTextAtDebug(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("Development", &buf)

	log.Debug("pacing", "wait_ms", 500)
	out := buf.String()
	assert.Contains(t, out, "level=DEBUG")
	assert.Contains(t, out, "msg=pacing")
	assert.Contains(t, out, "wait_ms=500")
}

func TestCheckpointHelper(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("production", &buf)

	log.Checkpoint(20)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "checkpoint", entry["msg"])
	assert.EqualValues(t, 20, entry["processed"])
}

func TestDiscard(t *testing.T) {
	log := Discard()
	log.Error("dropped")
	assert.NotNil(t, log.Logger)
}
