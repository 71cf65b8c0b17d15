package logging_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/aretw0/promptflow/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithFormat_JSONRenamesError(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithFormat(&buf, slog.LevelInfo, logging.FormatJSON)
	logger.Debug("hidden")
	logger.Error("boom", "error", errors.New("bad"))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "boom", rec["msg"])
	assert.Equal(t, "bad", rec["err"])
	assert.NotContains(t, rec, "error")
}

func TestNewWithFormat_Text(t *testing.T) {
	var buf bytes.Buffer
	logging.NewWithFormat(&buf, slog.LevelDebug, logging.FormatText).Debug("hello", "job_id", "j1")
	assert.Contains(t, buf.String(), "msg=hello job_id=j1")
}

func TestParseLevel(t *testing.T) {
	level, err := logging.ParseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	level, err = logging.ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	_, err = logging.ParseLevel("loud")
	assert.Error(t, err)
}
