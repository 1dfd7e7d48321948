package tracing

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributes(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/onboarding/:token"),
		attribute.String("http.target", "/onboarding/secret-token"),
		attribute.String("invitation.kind", "CLIENT"),
	)
	assert.Len(t, attrs, 2)
	for _, attr := range attrs {
		assert.NotEqual(t, attribute.Key("http.target"), attr.Key)
	}
}

func TestSafeError(t *testing.T) {
	assert.Nil(t, SafeError(nil))
	assert.EqualError(t, SafeError(errors.New("invitation_expired")), "invitation_expired")
	assert.EqualError(t, SafeError(fmt.Errorf("query failed for token %s", "abc")), "internal_error")
}
