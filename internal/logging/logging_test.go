package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWriter(&buf, "warn", false)
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	logger.Info().Msg("hidden")
	logger.Warn().Str("flow", "analyzeProduct").Msg("shown")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "shown", entry["message"])
	assert.Equal(t, "analyzeProduct", entry["flow"])
	assert.Equal(t, "healthwise", entry["service"])
}

func TestContextFallsBackToGlobal(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter(&buf, "bogus", false)
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	zerolog.Ctx(context.Background()).Info().Msg("from context")
	assert.Contains(t, buf.String(), "from context")
}
