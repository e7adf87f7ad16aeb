package otelhelper

import (
	"errors"

	"github.com/dukex/escalate/pkg/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const ErrorKindKey = "escalate.error.kind"

// SetError records err on span. A cancellation is an event, not an error status.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if models.IsCancelled(err) {
		span.AddEvent("execution_cancelled", trace.WithAttributes(
			append(attrs, attribute.String("reason", err.Error()))...,
		))

		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String(ErrorKindKey, errorKind(err)))
	span.AddEvent("error_occurred", trace.WithAttributes(attrs...))
}

func errorKind(err error) string {
	switch {
	case models.IsValidationError(err):
		return "validation"
	case models.IsNotFound(err):
		return "not_found"
	case errors.Is(err, models.ErrWorkflowIntegrity):
		return "workflow_integrity"
	case errors.Is(err, models.ErrStepHandler):
		return "step_handler"
	default:
		return "internal"
	}
}
