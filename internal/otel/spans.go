package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Standard attribute keys for autarch spans.
var (
	AttrCommandID = attribute.Key("autarch.command.id")
	AttrTaskID    = attribute.Key("autarch.task.id")
	AttrGoalID    = attribute.Key("autarch.goal.id")
	AttrIntent    = attribute.Key("autarch.intent.kind")
	AttrDecision  = attribute.Key("autarch.guardian.decision")
	AttrSessionID = attribute.Key("autarch.session.id")
)

// StartSpan starts an internal span with common attributes.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}
