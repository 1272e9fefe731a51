package kmc

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// defaultTracer returns the tracer of the global provider.
func defaultTracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

func startResolveSpan(ctx context.Context, tracer trace.Tracer, family Family, key, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, SpanNameResolve, trace.WithAttributes(
		attribute.String(AttrKeyFamily, string(family)),
		attribute.String(AttrKeyKey, key),
		attribute.String(AttrKeyName, name),
	))
}

// endSpan records err on span, if any, and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func renderIDAttr(id string) attribute.KeyValue {
	return attribute.String(AttrKeyRenderID, id)
}
