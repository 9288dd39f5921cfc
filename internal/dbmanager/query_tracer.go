package dbmanager

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/talx-hub/gopher-loyalty/internal/model"
)

const slowQueryThreshold = 200 * time.Millisecond

type traceKey struct{}

type queryTrace struct {
	start time.Time
	sql   string
}

// queryTracer logs every statement at debug level and reports failed or slow
// statements together with their duration.
type queryTracer struct {
	log  *slog.Logger
	now  func() time.Time
	slow time.Duration
}

func newQueryTracer(log *slog.Logger) *queryTracer {
	return &queryTracer{log: log, now: time.Now, slow: slowQueryThreshold}
}

func (t *queryTracer) TraceQueryStart(
	ctx context.Context,
	_ *pgx.Conn,
	data pgx.TraceQueryStartData,
) context.Context {
	t.log.LogAttrs(ctx,
		slog.LevelDebug,
		"running query",
		slog.String("query", data.SQL),
		slog.Any("args", data.Args),
	)
	return context.WithValue(ctx, traceKey{}, queryTrace{start: t.now(), sql: data.SQL})
}

func (t *queryTracer) TraceQueryEnd(
	ctx context.Context,
	_ *pgx.Conn,
	data pgx.TraceQueryEndData,
) {
	trace, ok := ctx.Value(traceKey{}).(queryTrace)
	if !ok {
		return
	}
	elapsed := t.now().Sub(trace.start)

	switch {
	case data.Err != nil && !errors.Is(data.Err, pgx.ErrNoRows):
		t.log.LogAttrs(ctx,
			slog.LevelWarn,
			"query failed",
			slog.String("query", trace.sql),
			slog.Duration("duration", elapsed),
			slog.Any(model.KeyLoggerError, data.Err),
		)
	case elapsed >= t.slow:
		t.log.LogAttrs(ctx,
			slog.LevelInfo,
			"slow query",
			slog.String("query", trace.sql),
			slog.Duration("duration", elapsed),
			slog.String("command", data.CommandTag.String()),
		)
	default:
		t.log.LogAttrs(ctx,
			slog.LevelDebug,
			"query done",
			slog.Duration("duration", elapsed),
			slog.Int64("rows", data.CommandTag.RowsAffected()),
		)
	}
}
