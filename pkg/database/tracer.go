package database

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// multiTracer allows chaining multiple tracers.
//
// pgx supports a single Tracer in ConnConfig. This type fans every call out
// to each configured tracer, e.g. a New Relic tracer and a tracelog.TraceLog
// writing SQL to the local log.
type multiTracer struct {
	tracers []pgx.QueryTracer
}

// TraceQueryStart implements pgx.QueryTracer.
//
// The context returned by each tracer is threaded into the next one so
// every tracer finds its own values again in TraceQueryEnd.
func (mt *multiTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	for _, tracer := range mt.tracers {
		ctx = tracer.TraceQueryStart(ctx, conn, data)
	}
	return ctx
}

// TraceQueryEnd implements pgx.QueryTracer.
func (mt *multiTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	for _, tracer := range mt.tracers {
		tracer.TraceQueryEnd(ctx, conn, data)
	}
}

// TraceConnectStart implements pgx.ConnectTracer for the tracers that
// support it.
func (mt *multiTracer) TraceConnectStart(ctx context.Context, data pgx.TraceConnectStartData) context.Context {
	for _, tracer := range mt.tracers {
		if t, ok := tracer.(pgx.ConnectTracer); ok {
			ctx = t.TraceConnectStart(ctx, data)
		}
	}
	return ctx
}

// TraceConnectEnd implements pgx.ConnectTracer for the tracers that
// support it.
func (mt *multiTracer) TraceConnectEnd(ctx context.Context, data pgx.TraceConnectEndData) {
	for _, tracer := range mt.tracers {
		if t, ok := tracer.(pgx.ConnectTracer); ok {
			t.TraceConnectEnd(ctx, data)
		}
	}
}
