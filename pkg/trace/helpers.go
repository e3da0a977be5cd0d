package trace

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartSegment starts the root span covering one segment from dequeue to
// delivery.
func StartSegment(ctx context.Context, segmentID string, duration, queueWait time.Duration, flushed bool) (context.Context, trace.Span) {
	return StartSpan(ctx, "segment.process",
		trace.WithAttributes(
			attribute.String(AttrSegmentID, segmentID),
			attribute.Int64(AttrSegmentDuration, duration.Milliseconds()),
			attribute.Int64(AttrQueueWaitMs, queueWait.Milliseconds()),
			attribute.Bool(AttrSegmentFlushed, flushed),
		),
	)
}

// StartTranscribe starts a client span around one engine call.
func StartTranscribe(ctx context.Context, engine string, sampleRate int) (context.Context, trace.Span) {
	return StartSpan(ctx, "asr.transcribe",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(AttrEngine, engine),
			attribute.Int(AttrSampleRate, sampleRate),
		),
	)
}

// StartDeliver starts a span around one output delivery. The sink is
// recorded once the delivery reports it.
func StartDeliver(ctx context.Context) (context.Context, trace.Span) {
	return StartSpan(ctx, "output.deliver")
}

// RecordError marks span as failed with err. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// TraceID returns the trace ID of the span in ctx, or "" when there is
// none.
func TraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}
