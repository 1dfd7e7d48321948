package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	invitationdomain "github.com/smallbiznis/portal/internal/invitation/domain"
)

var (
	ErrNotFound        = errors.New("account_not_found")
	ErrAccountExists   = errors.New("account_exists")
	ErrInvalidState    = errors.New("invitation_invalid_state")
	ErrInvalidPassword = errors.New("invalid_password")
	ErrInvalidEmail    = errors.New("invalid_email")
	// ErrInvalidCredentials rejects linking an existing account without its password.
	ErrInvalidCredentials = errors.New("invalid_credentials")
)

// Linker finds or creates the account an invitation addresses. It never
// changes the invitation's status.
type Linker interface {
	ResolveAccount(ctx context.Context, req LinkRequest) (*LinkResult, error)
}

type LinkRequest struct {
	Invitation *invitationdomain.Invitation
	// Password becomes the credential of a new account. For an existing
	// account it must match the stored hash before anything is linked.
	Password    string
	DisplayName string
}

type LinkResult struct {
	AccountID snowflake.ID `json:"account_id"`
	IsNew     bool         `json:"is_new"`
	Account   *Account     `json:"-"`
}
