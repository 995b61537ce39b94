package database

import (
	"context"
	"database/sql"

	"github.com/deppfellow/dbkit/pkg/instrumentation"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// Opener opens the database/sql handle for a config. It replaces the
// dialect's own Open, which is mostly useful in tests.
type Opener func(ctx context.Context, cfg Config) (*sql.DB, error)

// Option configures a Database.
type Option func(*options)

type options struct {
	logger   *zerolog.Logger
	tracers  []pgx.QueryTracer
	recorder *instrumentation.Recorder
	opener   Opener
}

func newOptions(opts ...Option) *options {
	nop := zerolog.Nop()
	o := &options{logger: &nop}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the logger used for lifecycle and health logs.
func WithLogger(logger *zerolog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithQueryTracer adds a pgx query tracer to postgres connections. Several
// tracers are chained in the order they were added.
func WithQueryTracer(tracer pgx.QueryTracer) Option {
	return func(o *options) {
		if tracer != nil {
			o.tracers = append(o.tracers, tracer)
		}
	}
}

// WithRecorder times every statement run by tables handed out by the
// Database.
func WithRecorder(recorder *instrumentation.Recorder) Option {
	return func(o *options) {
		o.recorder = recorder
	}
}

// WithOpener replaces the dialect's Open.
func WithOpener(opener Opener) Option {
	return func(o *options) {
		o.opener = opener
	}
}
