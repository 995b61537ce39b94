// Package server composes the CLI's dependencies.
//
// It owns the lifecycle of:
//   - configuration
//   - logger + optional New Relic service wrapper
//   - the database connection and its statement recorder
package server

import (
	"context"
	"fmt"
	"os"

	"github.com/deppfellow/dbkit/internal/config"
	loggerPkg "github.com/deppfellow/dbkit/internal/logger"
	"github.com/deppfellow/dbkit/pkg/database"
	"github.com/deppfellow/dbkit/pkg/instrumentation"
	pgxzero "github.com/jackc/pgx-zerolog"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/newrelic/go-agent/v3/integrations/nrpgx5"
	"github.com/rs/zerolog"
)

// Server is the application container that holds shared resources.
type Server struct {
	// Config holds all environment values for the app.
	Config *config.Config

	// Logger is the application's main structured logger.
	Logger *zerolog.Logger

	// LoggerService optionally holds the New Relic application instance.
	LoggerService *loggerPkg.LoggerService

	// DB is the connection manager. It is disconnected until Start.
	DB *database.Database

	// Recorder times statements when instrumentation is enabled.
	Recorder *instrumentation.Recorder

	stopSignals func()
}

// New constructs a Server and wires the database instrumentation.
//
// Postgres statements are traced by New Relic when it is configured and
// logged through pgx tracelog in the local environment. Both tracers are
// chained when both apply.
func New(cfg *config.Config, logger *zerolog.Logger, loggerService *loggerPkg.LoggerService) *Server {
	var recorder *instrumentation.Recorder
	if obs := cfg.Observability; obs != nil && obs.Instrumentation.Enabled {
		recorder = instrumentation.NewRecorder(
			instrumentation.NewBuffer(obs.Instrumentation.BufferSize),
			logger,
			obs.Logging.SlowQueryThreshold,
		)
	}

	opts := []database.Option{
		database.WithLogger(logger),
		database.WithRecorder(recorder),
	}
	for _, tracer := range queryTracers(cfg, logger, loggerService) {
		opts = append(opts, database.WithQueryTracer(tracer))
	}

	return &Server{
		Config:        cfg,
		Logger:        logger,
		LoggerService: loggerService,
		DB:            database.New(opts...),
		Recorder:      recorder,
	}
}

func queryTracers(cfg *config.Config, logger *zerolog.Logger, loggerService *loggerPkg.LoggerService) []pgx.QueryTracer {
	var tracers []pgx.QueryTracer

	if loggerService.GetApplication() != nil {
		tracers = append(tracers, nrpgx5.NewTracer())
	}

	// Very noisy, which is why it's only in local.
	if cfg.Primary.Env == "local" {
		globalLevel := logger.GetLevel()
		pgxLogger := loggerPkg.NewPgxLogger(os.Stderr, globalLevel)

		tracers = append(tracers, &tracelog.TraceLog{
			Logger:   pgxzero.NewLogger(pgxLogger),
			LogLevel: loggerPkg.GetPgxTraceLogLevel(globalLevel),
		})
	}

	return tracers
}

// Start connects to the database and disconnects it again on SIGINT or
// SIGTERM.
func (s *Server) Start(ctx context.Context) error {
	s.Logger.Debug().
		Str("client", s.Config.Database.Client).
		Str("env", s.Config.Primary.Env).
		Msg("connecting to the database")

	if err := s.DB.Connect(ctx, s.Config.Database); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	s.stopSignals = s.DB.CloseOnSignal(ctx)
	return nil
}

// Shutdown disconnects the database and flushes New Relic.
func (s *Server) Shutdown() error {
	if s.stopSignals != nil {
		s.stopSignals()
	}

	if s.Recorder.Enabled() {
		for _, span := range s.Recorder.Buffer().Drain() {
			s.Logger.Debug().
				Str("sql", span.Label).
				Dur("duration", span.Duration()).
				Msg("statement")
		}
	}

	err := s.DB.Disconnect()
	s.LoggerService.Shutdown()
	if err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	return nil
}
