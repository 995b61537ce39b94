// Package instrumentation times the statements dbkit sends to the database.
//
// A Recorder wraps an sqlx executor. Every query and exec that goes through
// the wrapper is timed and pushed to a Buffer as a Span; statements slower
// than the configured threshold are also logged as warnings.
package instrumentation

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

// Span is one timed statement.
type Span struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	// Label is the SQL text of the statement.
	Label string `json:"label"`
}

// Duration returns End - Start.
func (s Span) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Buffer is a goroutine-safe span store.
//
// A Buffer with a positive capacity drops the oldest spans once full.
type Buffer struct {
	mu       sync.Mutex
	spans    []Span
	capacity int
}

// NewBuffer creates a Buffer. capacity <= 0 means unbounded.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{capacity: capacity}
}

// Push appends a span.
func (b *Buffer) Push(s Span) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.spans = append(b.spans, s)
	if b.capacity > 0 && len(b.spans) > b.capacity {
		b.spans = b.spans[len(b.spans)-b.capacity:]
	}
}

// Spans returns a copy of the buffered spans, oldest first.
func (b *Buffer) Spans() []Span {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Span, len(b.spans))
	copy(out, b.spans)
	return out
}

// Drain returns the buffered spans and empties the buffer.
func (b *Buffer) Drain() []Span {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.spans
	b.spans = nil
	return out
}

// Len returns the number of buffered spans.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.spans)
}

// Recorder times statements into a Buffer.
type Recorder struct {
	buffer *Buffer
	logger *zerolog.Logger
	slow   time.Duration
}

// NewRecorder creates a Recorder.
//
// buffer may be nil, in which case the Recorder is disabled and Wrap
// returns executors unchanged. logger may be nil. slowThreshold <= 0
// disables slow statement warnings.
func NewRecorder(buffer *Buffer, logger *zerolog.Logger, slowThreshold time.Duration) *Recorder {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Recorder{
		buffer: buffer,
		logger: logger,
		slow:   slowThreshold,
	}
}

// Enabled reports whether the Recorder records anything.
func (r *Recorder) Enabled() bool {
	return r != nil && r.buffer != nil
}

// Buffer returns the Recorder's buffer.
func (r *Recorder) Buffer() *Buffer {
	if r == nil {
		return nil
	}
	return r.buffer
}

// Wrap returns an executor that records every statement run through ext.
func (r *Recorder) Wrap(ext sqlx.ExtContext) sqlx.ExtContext {
	if !r.Enabled() {
		return ext
	}
	r.logger.Debug().Str("driver", ext.DriverName()).Msg("instrumenting executor")
	return &timedExecutor{ExtContext: ext, recorder: r}
}

func (r *Recorder) record(start time.Time, query string, err error) {
	span := Span{Start: start, End: time.Now(), Label: query}
	r.buffer.Push(span)

	if r.slow > 0 && span.Duration() >= r.slow {
		r.logger.Warn().
			Str("sql", query).
			Dur("duration", span.Duration()).
			Dur("threshold", r.slow).
			Msg("slow query")
	}
	if err != nil {
		r.logger.Debug().Err(err).Str("sql", query).Msg("query failed")
	}
}

// timedExecutor embeds the wrapped executor for DriverName, Rebind and
// BindNamed and overrides the statement methods.
type timedExecutor struct {
	sqlx.ExtContext
	recorder *Recorder
}

func (t *timedExecutor) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	start := time.Now()
	rows, err := t.ExtContext.QueryContext(ctx, query, args...)
	t.recorder.record(start, query, err)
	return rows, err
}

func (t *timedExecutor) QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error) {
	start := time.Now()
	rows, err := t.ExtContext.QueryxContext(ctx, query, args...)
	t.recorder.record(start, query, err)
	return rows, err
}

func (t *timedExecutor) QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row {
	start := time.Now()
	row := t.ExtContext.QueryRowxContext(ctx, query, args...)
	t.recorder.record(start, query, row.Err())
	return row
}

func (t *timedExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	start := time.Now()
	res, err := t.ExtContext.ExecContext(ctx, query, args...)
	t.recorder.record(start, query, err)
	return res, err
}
