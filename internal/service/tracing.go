package service

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("crew-staffing/internal/service")

// endSpan records err on the span, except for expected retryable outcomes
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		if Classify(err) == "internal" {
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}
