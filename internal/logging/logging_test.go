package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLoggerCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(Config{Level: "debug", Format: "json"}, &buf)
	require.NoError(t, err)

	componentLog := Component(log, "controller")
	componentLog.Info().Str("mode", "idle").Msg("mode changed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "controller", entry["component"])
	assert.Equal(t, "havoice", entry["app"])
	assert.Equal(t, "mode changed", entry["message"])
	assert.Equal(t, "info", entry["level"])
}

func TestLevelFiltersOutput(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(Config{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	log.Info().Msg("quiet")
	assert.Zero(t, buf.Len())

	log.Warn().Msg("loud")
	assert.Contains(t, buf.String(), "loud")
}

func TestConsoleIsDefault(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(Config{}, &buf)
	require.NoError(t, err)

	log.Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.NotContains(t, buf.String(), `"message"`)
}

func TestInvalidSettings(t *testing.T) {
	_, err := NewWithWriter(Config{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)

	_, err = NewWithWriter(Config{Format: "xml"}, &bytes.Buffer{})
	assert.Error(t, err)

	level, err := ParseLevel(" DEBUG ")
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, level)
}
