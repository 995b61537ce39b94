package server

import (
	"bytes"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/deppfellow/dbkit/internal/config"
	loggerPkg "github.com/deppfellow/dbkit/internal/logger"
	"github.com/deppfellow/dbkit/pkg/database"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/glebarez/go-sqlite"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	path := filepath.Join(t.TempDir(), "server.db")
	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = raw.Exec("CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT)")
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	obs := config.DefaultObservabilityConfig()
	obs.Instrumentation.Enabled = true
	obs.Instrumentation.BufferSize = 10

	return &config.Config{
		Primary: config.Primary{Env: "development"},
		Database: database.Config{
			Client:     "sqlite",
			Connection: database.ConnectionConfig{Filename: path},
		},
		Observability: obs,
	}
}

func TestServer_Lifecycle(t *testing.T) {
	cfg := testConfig(t)

	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	loggerService := loggerPkg.NewLoggerService(cfg.Observability)

	s := New(cfg, &logger, loggerService)
	require.True(t, s.Recorder.Enabled())

	require.NoError(t, s.Start(t.Context()))
	assert.Equal(t, []string{"notes"}, s.DB.Tables())

	notes, err := s.DB.Table("notes")
	require.NoError(t, err)
	_, err = notes.Insert(t.Context(), database.Record{"body": "hello"})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Recorder.Buffer().Len())

	require.NoError(t, s.Shutdown())
	assert.False(t, s.DB.IsConnected())
	assert.Zero(t, s.Recorder.Buffer().Len())
	assert.Contains(t, buf.String(), "connected to the database")
	assert.Contains(t, buf.String(), "INSERT INTO")
}

func TestServer_QueryTracers(t *testing.T) {
	cfg := testConfig(t)
	logger := zerolog.Nop()

	assert.Empty(t, queryTracers(cfg, &logger, nil))

	cfg.Primary.Env = "local"
	assert.Len(t, queryTracers(cfg, &logger, nil), 1)
}

func TestServer_StartFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Client = "oracle"
	logger := zerolog.Nop()

	s := New(cfg, &logger, nil)
	err := s.Start(t.Context())
	assert.ErrorContains(t, err, "Invalid database type: oracle")
	require.NoError(t, s.Shutdown())
}
