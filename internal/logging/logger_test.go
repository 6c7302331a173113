package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInfoWritesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelInfo)
	l.Info("flush started", F("table_id", 7))

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "info", rec["level"])
	require.Equal(t, "flush started", rec["msg"])
	require.Equal(t, float64(7), rec["fields"].(map[string]interface{})["table_id"])
}

func TestDebugSuppressedBelowMinLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelInfo)
	l.Debug("noisy")
	require.Empty(t, buf.Bytes())
}

func TestWithAttachesPersistentFields(t *testing.T) {
	var buf bytes.Buffer
	base := New(&buf, LevelInfo)
	child := base.With(F("component", "compaction"))
	child.Info("started")

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "compaction", rec["fields"].(map[string]interface{})["component"])
}

func TestMultipleLinesAreNewlineSeparated(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelDebug)
	l.Info("one")
	l.Warn("two")
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
}
