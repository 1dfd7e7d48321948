package tracing

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

var allowedAttributeKeys = map[attribute.Key]struct{}{
	"http.method":             {},
	"http.route":              {},
	"http.status_code":        {},
	"http.server_duration_ms": {},
	"request_id":              {},
	"invitation.kind":         {},
	"invitation.status":       {},
}

// SafeAttributes drops attributes that could carry tokens or personal data,
// along with empty string values.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedAttributeKeys[attr.Key]; !ok {
			continue
		}
		if attr.Value.Type() == attribute.STRING && attr.Value.AsString() == "" {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}

// SafeError reduces err to its sentinel text when the message is a snake_case
// code, and to a generic error otherwise.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.TrimSpace(err.Error())
	if isCode(msg) {
		return errors.New(msg)
	}
	return errors.New("internal_error")
}

// ExtractContext reads propagation headers into ctx.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

func isCode(msg string) bool {
	if msg == "" || len(msg) > 64 {
		return false
	}
	for _, r := range msg {
		if (r < 'a' || r > 'z') && r != '_' {
			return false
		}
	}
	return true
}
