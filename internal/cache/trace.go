package cache

import (
	"context"
	stderr "errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tiercache/tiercache/pkg/errors"
)

const spanPrefix = "tiercache."

func (c *Cache) startSpan(ctx context.Context, op string, id int64) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, spanPrefix+op,
		trace.WithAttributes(
			attribute.String("cache.operation", op),
			attribute.Int64("cache.id", id),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// endSpan records the outcome of op on span and the recorder.
func (c *Cache) endSpan(span trace.Span, op string, start time.Time, err error) {
	if c.recorder != nil {
		c.recorder.RecordOperation(op, time.Since(start).Seconds(), err)
	}

	if err != nil {
		var engineErr *errors.EngineError
		if stderr.As(err, &engineErr) {
			span.SetAttributes(
				attribute.Int("cache.tier", engineErr.Tier),
				attribute.String("cache.error_code", string(engineErr.Code)),
				attribute.String("cache.error_category", string(errors.GetCategory(engineErr.Code))),
			)
		}
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
