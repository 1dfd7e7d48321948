package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// StatusUpdate describes a status transition.
// An empty From makes the update unconditional; otherwise the row must be in one of From.
type StatusUpdate struct {
	ID    snowflake.ID
	Token string

	From []Status
	To   Status

	// CompanyID, when set, additionally requires the invitation to target that company.
	CompanyID *snowflake.ID
	// ValidAt, when set, additionally requires expires_at >= ValidAt.
	ValidAt *time.Time
	// ExpiredAt, when set, additionally requires expires_at < ExpiredAt.
	ExpiredAt *time.Time

	UsedAt    *time.Time
	UsedBy    *snowflake.ID
	UpdatedAt time.Time
}

// ListFilter narrows a listing. When Now is set, a PENDING row past its
// expiry matches EXPIRED instead of PENDING.
type ListFilter struct {
	CompanyID *snowflake.ID
	Kind      Kind
	Status    Status
	Limit     int
	Now       time.Time
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// Create persists a new invitation. It returns ErrTokenConflict when the token is taken.
	Create(ctx context.Context, inv *Invitation) error
	FindByToken(ctx context.Context, token string) (*Invitation, error)
	FindByID(ctx context.Context, id snowflake.ID) (*Invitation, error)
	// FindActive returns the pending, unexpired invitation for target at now.
	FindActive(ctx context.Context, target Target, now time.Time) (*Invitation, error)
	List(ctx context.Context, filter ListFilter) ([]Invitation, error)
	// UpdateStatus applies the transition atomically and reports whether a row changed.
	UpdateStatus(ctx context.Context, update StatusUpdate) (bool, error)
}
