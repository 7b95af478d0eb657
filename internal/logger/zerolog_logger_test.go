package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologLoggerMethods(t *testing.T) {
	assert.NoError(t, os.Setenv("APP_ENV", "dev"))
	defer func() { assert.NoError(t, os.Unsetenv("APP_ENV")) }()
	l := NewZerologLogger("test")
	if l == nil {
		t.Fatalf("nil logger")
	}
	l.Debugf("debug %d", 1)
	l.Debugw("debug", map[string]any{"k": 1})
	l.Infof("info %s", "test")
	l.Infow("info", map[string]any{"k": 2})
	l.Warnf("warn")
	l.Warnw("warn", nil)
	l.Errorf("error")
}

func TestZerologLoggerStructuredOutput(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerologLoggerWithOptions("dispatch", Options{Level: "warn", Out: &buf})

	l.Infof("dropped")
	l.Warnw("arrived dispatch cancelled", map[string]any{"dispatch_id": "d1"})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "dispatch", entry["component"])
	assert.Equal(t, "d1", entry["dispatch_id"])
	assert.Equal(t, "arrived dispatch cancelled", entry["message"])
}
