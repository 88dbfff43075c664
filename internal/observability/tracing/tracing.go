package tracing

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

const maxAttributeLength = 256

// ExtractContext resumes a propagated trace context from carrier headers.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// SafeAttributes truncates oversized string values before they reach a span.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if attr.Value.Type() == attribute.STRING {
			value := attr.Value.AsString()
			if len(value) > maxAttributeLength {
				attr = attribute.String(string(attr.Key), value[:maxAttributeLength])
			}
		}
		out = append(out, attr)
	}
	return out
}

// SafeError strips request payload fragments from errors before span recording.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return nil
	}
	if len(msg) > maxAttributeLength {
		msg = msg[:maxAttributeLength]
	}
	return errors.New(msg)
}
