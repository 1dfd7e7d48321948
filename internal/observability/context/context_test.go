package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = WithRequestID(ctx, " req-1 ")
	ctx = WithActor(ctx, "account", "42")
	ctx = WithClient(ctx, "10.0.0.1", "curl/8")

	assert.Equal(t, "req-1", RequestIDFromContext(ctx))

	actorType, actorID := ActorFromContext(ctx)
	assert.Equal(t, "account", actorType)
	assert.Equal(t, "42", actorID)

	ip, ua := ClientFromContext(ctx)
	assert.Equal(t, "10.0.0.1", ip)
	assert.Equal(t, "curl/8", ua)
}

func TestEmptyContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))
	actorType, actorID := ActorFromContext(ctx)
	assert.Empty(t, actorType)
	assert.Empty(t, actorID)
}
