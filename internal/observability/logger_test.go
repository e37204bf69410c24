package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf})

	ctx := ContextWithRunID(context.Background(), "run-1")
	logger.WithContext(ctx).WithComponent("store").Info().Str("company_id", "123456789").Msg("persisted")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "filings-extractor", entry["service"])
	assert.Equal(t, "run-1", entry["run_id"])
	assert.Equal(t, "store", entry["component"])
	assert.Equal(t, "123456789", entry["company_id"])
	assert.Equal(t, "persisted", entry["message"])
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Output: &buf})

	logger.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	logger.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Output: &buf})

	derived := logger.With().Str("company_id", "123456789").Int("year", 2021).Logger()
	derived.Info().Msg("dispatching extraction")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "123456789", entry["company_id"])
	assert.Equal(t, float64(2021), entry["year"])
}
