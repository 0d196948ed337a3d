package pgpool

import (
	"context"
	"strings"

	"github.com/JailtonJunior94/pgkit-go/pkg/logger"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// otelTracer opens a client span per query.
type otelTracer struct {
	tracer trace.Tracer
}

func (t *otelTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	ctx, _ = t.tracer.Start(ctx, "pgx.query",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.DBSystemPostgreSQL,
			attribute.String("db.statement", data.SQL),
			attribute.String("db.operation", extractOperation(data.SQL)),
		),
	)
	return ctx
}

func (t *otelTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	if data.Err != nil {
		span.RecordError(data.Err)
		span.SetStatus(codes.Error, data.Err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
		if n := data.CommandTag.RowsAffected(); n > 0 {
			span.SetAttributes(attribute.Int64("db.rows_affected", n))
		}
	}

	span.End()
}

// queryLogger writes statements and their outcome to the pool logger, then
// delegates to next.
type queryLogger struct {
	next pgx.QueryTracer
	log  logger.Logger
}

func (q *queryLogger) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	q.log.Debug(ctx, "query started",
		logger.String("sql", data.SQL),
		logger.String("operation", extractOperation(data.SQL)),
	)

	if q.next != nil {
		return q.next.TraceQueryStart(ctx, conn, data)
	}
	return ctx
}

func (q *queryLogger) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	if data.Err != nil {
		q.log.Debug(ctx, "query failed", logger.Err(data.Err))
	} else {
		q.log.Debug(ctx, "query finished", logger.Any("rows", data.CommandTag.RowsAffected()))
	}

	if q.next != nil {
		q.next.TraceQueryEnd(ctx, conn, data)
	}
}

// extractOperation classifies a statement by its first keyword.
func extractOperation(sql string) string {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return "UNKNOWN"
	}

	first := strings.ToUpper(strings.Fields(trimmed)[0])
	switch first {
	case "SELECT", "INSERT", "UPDATE", "DELETE", "SET":
		return first
	case "CREATE", "DROP", "ALTER", "TRUNCATE":
		return "DDL"
	case "BEGIN", "COMMIT", "ROLLBACK", "SAVEPOINT":
		return "TRANSACTION"
	case "WITH":
		return "SELECT"
	default:
		return "OTHER"
	}
}

var (
	_ pgx.QueryTracer = (*otelTracer)(nil)
	_ pgx.QueryTracer = (*queryLogger)(nil)
)
