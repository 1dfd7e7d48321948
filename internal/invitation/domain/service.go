package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// ViewState is the route-facing classification of a token.
type ViewState string

const (
	ViewValid    ViewState = "valid"
	ViewExpired  ViewState = "expired"
	ViewUsed     ViewState = "used"
	ViewNotFound ViewState = "not_found"
)

type Service interface {
	Issue(ctx context.Context, req IssueRequest) (*Invitation, error)
	// Resolve looks up a token, persisting the EXPIRED transition if the pending window has passed.
	Resolve(ctx context.Context, token string) (*Invitation, error)
	Lookup(ctx context.Context, token string) (*View, error)
	Revoke(ctx context.Context, req RevokeRequest) error
	// Consume moves a pending invitation to ACCEPTED; it never resurrects a terminal one.
	Consume(ctx context.Context, req ConsumeRequest) (*Invitation, error)
	List(ctx context.Context, req ListRequest) ([]Invitation, error)
}

type IssueRequest struct {
	Kind      Kind
	CompanyID snowflake.ID
	ContactID snowflake.ID
	Email     string
	InvitedBy snowflake.ID
}

type RevokeRequest struct {
	InvitationID snowflake.ID
	RevokedBy    snowflake.ID
}

type ConsumeRequest struct {
	Token     string
	CompanyID *snowflake.ID
	UsedBy    *snowflake.ID
}

type ListRequest struct {
	CompanyID *snowflake.ID
	Kind      Kind
	Status    Status
	Limit     int
}

// View is what the public token routes render.
type View struct {
	State      ViewState   `json:"state"`
	Invitation *Invitation `json:"-"`
	Status     Status      `json:"status,omitempty"`
	Kind       Kind        `json:"kind,omitempty"`
	ExpiresAt  *time.Time  `json:"expires_at,omitempty"`
}
