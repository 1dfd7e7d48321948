// Package domain describes the two-phase onboarding gate over a company:
// required data first, then a one-time terms acceptance.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	companydomain "github.com/smallbiznis/portal/internal/company/domain"
	invitationdomain "github.com/smallbiznis/portal/internal/invitation/domain"
)

type State string

const (
	StateDataIncomplete State = "DATA_INCOMPLETE"
	StateDataComplete   State = "DATA_COMPLETE"
	StateAccepted       State = "ACCEPTED"
)

// StateOf classifies a company. Acceptance wins over field contents.
func StateOf(company companydomain.Company) State {
	switch {
	case company.TermsAccepted:
		return StateAccepted
	case len(company.MissingFields()) > 0:
		return StateDataIncomplete
	default:
		return StateDataComplete
	}
}

type Gate interface {
	// Target resolves a client invitation token to the company it onboards.
	// Only pending invitations resolve; terminal ones return their state error.
	Target(ctx context.Context, token string) (*Target, error)
	Status(ctx context.Context, companyID snowflake.ID) (*Status, error)
	UpdateTargetData(ctx context.Context, req UpdateRequest) (*companydomain.Company, error)
	// Accept records the terms acceptance exactly once. When a token is given,
	// the matching pending invitation is consumed after the acceptance is stored.
	Accept(ctx context.Context, req AcceptRequest) (*AcceptResult, error)
}

type Target struct {
	Invitation *invitationdomain.Invitation
	Company    *companydomain.Company
	Contact    *companydomain.Contact
}

type Status struct {
	State   State                  `json:"state"`
	Missing []string               `json:"missing_fields"`
	Company *companydomain.Company `json:"company"`
}

// UpdateRequest carries the fields to save. Nil fields are left untouched.
type UpdateRequest struct {
	CompanyID     snowflake.ID
	LegalName     *string
	TaxID         *string
	FiscalAddress *string
	ActorID       *snowflake.ID
}

type AcceptRequest struct {
	CompanyID   snowflake.ID
	ContactID   snowflake.ID
	ContactName string
	Token       string
	// AccountID is recorded as the invitation's user when the token is consumed.
	AccountID *snowflake.ID
}

type AcceptResult struct {
	Company            *companydomain.Company       `json:"company"`
	AcceptedAt         time.Time                    `json:"accepted_at"`
	TermsVersion       string                       `json:"terms_version"`
	Invitation         *invitationdomain.Invitation `json:"-"`
	InvitationConsumed bool                         `json:"invitation_consumed"`
}
