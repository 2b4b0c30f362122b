package log

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(LevelInfo)
	})
	return &buf
}

func TestInfoWritesKeyValues(t *testing.T) {
	buf := captureOutput(t)

	Info("feed built", "user_id", 1, "title", "Doctor visit", "dangling")

	out := buf.String()
	assert.Contains(t, out, "[INFO] feed built")
	assert.Contains(t, out, "user_id=1")
	assert.Contains(t, out, `title="Doctor visit"`)
	assert.NotContains(t, out, "dangling")
}

func TestErrorPrependsErr(t *testing.T) {
	buf := captureOutput(t)

	Error("push failed", errors.New("boom"), "status", 500)

	assert.Contains(t, buf.String(), "[ERROR] push failed err=boom status=500")
}

func TestLevelFiltering(t *testing.T) {
	buf := captureOutput(t)

	Debug("hidden")
	assert.Empty(t, buf.String())

	SetLevel(LevelDebug)
	Debug("shown")
	assert.Contains(t, buf.String(), "[DEBUG] shown")

	buf.Reset()
	SetLevel(LevelError)
	Info("hidden")
	assert.Empty(t, buf.String())
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{"": LevelInfo, "debug": LevelDebug, "ERROR": LevelError, " info ": LevelInfo} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}
