package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// SessionRepository persists sessions keyed by the hash of their token.
type SessionRepository interface {
	Insert(ctx context.Context, session *Session) error
	FindByTokenHash(ctx context.Context, tokenHash string) (*Session, error)
	// Touch records activity. Writes closer together than the repository's
	// touch interval are skipped.
	Touch(ctx context.Context, sessionID snowflake.ID, at time.Time) error
	// Revoke marks an open session revoked and returns ErrSessionNotFound
	// when no open session matched.
	Revoke(ctx context.Context, sessionID snowflake.ID, at time.Time) error
}
