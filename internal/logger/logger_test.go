package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name  string
		debug bool
		level zerolog.Level
	}{
		{name: "default", debug: false, level: zerolog.InfoLevel},
		{name: "debug", debug: true, level: zerolog.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := New(&buf, tt.debug)
			require.Equal(t, tt.level, logger.GetLevel())
		})
	}
}

func TestNew_jsonOutsideDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, false)

	logger.Debug().Msg("hidden")
	logger.Info().Str("build_id", "abc").Msg("Compiled successfully")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "Compiled successfully", entry["message"])
	require.Equal(t, "abc", entry["build_id"])
	require.Contains(t, entry, "time")
}
