package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/deppfellow/dbkit/internal/config"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWithWriter_ProductionJSON(t *testing.T) {
	cfg := config.DefaultObservabilityConfig()
	cfg.Environment = "production"
	cfg.Logging.Level = "warn"

	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, cfg, NewLoggerService(cfg))

	logger.Info().Msg("dropped")
	logger.Warn().Msg("kept")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, config.ServiceName, entry["service"])
	assert.Equal(t, "production", entry["environment"])
}

func TestNewLoggerWithWriter_Console(t *testing.T) {
	cfg := config.DefaultObservabilityConfig()
	cfg.Environment = "local"
	cfg.Logging.Level = "debug"

	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, cfg, nil)
	logger.Debug().Msg("hello")

	assert.Contains(t, buf.String(), "hello")
	assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())
}

func TestLoggerService_WithoutLicense(t *testing.T) {
	service := NewLoggerService(config.DefaultObservabilityConfig())
	assert.Nil(t, service.GetApplication())
	service.Shutdown()

	var nilService *LoggerService
	assert.Nil(t, nilService.GetApplication())
	nilService.Shutdown()
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("verbose"))
}

func TestGetPgxTraceLogLevel(t *testing.T) {
	assert.Equal(t, tracelog.LogLevelDebug, GetPgxTraceLogLevel(zerolog.DebugLevel))
	assert.Equal(t, tracelog.LogLevelInfo, GetPgxTraceLogLevel(zerolog.InfoLevel))
	assert.Equal(t, tracelog.LogLevelWarn, GetPgxTraceLogLevel(zerolog.WarnLevel))
	assert.Equal(t, tracelog.LogLevelError, GetPgxTraceLogLevel(zerolog.ErrorLevel))
	assert.Equal(t, tracelog.LogLevelNone, GetPgxTraceLogLevel(zerolog.Disabled))
}

func TestNewPgxLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewPgxLogger(&buf, zerolog.InfoLevel)

	logger.Info().Str("sql", "SELECT 1").Msg("Query")
	assert.Contains(t, buf.String(), "SELECT 1")
	assert.Contains(t, buf.String(), "database")
}
