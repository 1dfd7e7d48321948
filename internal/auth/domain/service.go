package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	// IssueSession opens a session for an account that was just resolved
	// through onboarding, without asking for its password again.
	IssueSession(ctx context.Context, req IssueSessionRequest) (*LoginResult, error)
	Logout(ctx context.Context, rawToken string) error
	Authenticate(ctx context.Context, rawToken string) (*Principal, error)
}

type LoginRequest struct {
	Email     string
	Password  string
	UserAgent string
	IPAddress string
}

type IssueSessionRequest struct {
	AccountID snowflake.ID
	UserAgent string
	IPAddress string
}

type LoginResult struct {
	Principal *Principal
	RawToken  string
	IssuedAt  time.Time
	ExpiresAt time.Time
	SessionID snowflake.ID
}
