package logger

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var events []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var event map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &event), line)
		events = append(events, event)
	}
	return events
}

func TestNew_WritesToStderrByDefault(t *testing.T) {
	stdout, stderr := os.Stdout, os.Stderr
	outR, outW, err := os.Pipe()
	require.NoError(t, err)
	errR, errW, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout, os.Stderr = outW, errW

	l := New(Config{Level: "info"})
	l.Info().Msg("report follows")

	os.Stdout, os.Stderr = stdout, stderr
	require.NoError(t, outW.Close())
	require.NoError(t, errW.Close())
	onStdout, _ := io.ReadAll(outR)
	onStderr, _ := io.ReadAll(errR)

	assert.Empty(t, onStdout)
	assert.Contains(t, string(onStderr), "report follows")
}

func TestNew_OutputInjection(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "debug", Output: &buf})
	l.Debug().Int("rows", 3).Msg("loaded")

	events := decodeLines(t, &buf)
	require.Len(t, events, 1)
	assert.Equal(t, "debug", events[0]["level"])
	assert.Equal(t, "loaded", events[0]["message"])
	assert.Equal(t, float64(3), events[0]["rows"])
	assert.Contains(t, events[0], "time")
	assert.Contains(t, events[0], "caller")
}

func TestNew_PrettyGoesToInjectedOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Pretty: true, Output: &buf})
	l.Info().Str("ticker", "SPY").Msg("downloading")

	out := buf.String()
	assert.Contains(t, out, "downloading")
	assert.Contains(t, out, "ticker=")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())), "console writer is not JSON")
}

func TestNew_LevelFiltersEvents(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Output: &buf})
	l.Info().Msg("hidden")
	l.Warn().Msg("shown")

	events := decodeLines(t, &buf)
	require.Len(t, events, 1)
	assert.Equal(t, "shown", events[0]["message"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" Warning "))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("ERROR"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("verbose"), "unknown names fall back to info")
}

func TestComponentAndTickerFields(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	builder := Component(base, "price_builder")
	spy := Ticker(builder, "SPY")
	spy.Warn().Str("stage", "fetch").Str("outcome", "fetch_failed").Msg("No data for ticker, skipping")
	builder.Info().Msg("Built price table")

	events := decodeLines(t, &buf)
	require.Len(t, events, 2)

	assert.Equal(t, "price_builder", events[0]["component"])
	assert.Equal(t, "SPY", events[0]["ticker"])
	assert.Equal(t, "fetch", events[0]["stage"])
	assert.Equal(t, "fetch_failed", events[0]["outcome"])

	assert.Equal(t, "price_builder", events[1]["component"])
	assert.NotContains(t, events[1], "ticker", "child loggers do not leak into the parent")
}

func TestSetGlobalLogger(t *testing.T) {
	prev := log.Logger
	defer func() { log.Logger = prev }()

	var buf bytes.Buffer
	SetGlobalLogger(zerolog.New(&buf).With().Str("component", "cli").Logger())
	log.Info().Msg("hello")

	events := decodeLines(t, &buf)
	require.Len(t, events, 1)
	assert.Equal(t, "cli", events[0]["component"])
}
