// Package domain contains the invitation model and its contracts.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusAccepted Status = "ACCEPTED"
	StatusExpired  Status = "EXPIRED"
	StatusRevoked  Status = "REVOKED"
)

// Terminal reports whether no further transitions are permitted.
func (s Status) Terminal() bool {
	switch s {
	case StatusAccepted, StatusExpired, StatusRevoked:
		return true
	default:
		return false
	}
}

type Kind string

const (
	// KindClient addresses a contact of a company through the client portal.
	KindClient Kind = "CLIENT"
	// KindTeam addresses an email address for the internal team.
	KindTeam Kind = "TEAM"
)

func ParseKind(raw string) (Kind, bool) {
	switch Kind(strings.ToUpper(strings.TrimSpace(raw))) {
	case KindClient:
		return KindClient, true
	case KindTeam:
		return KindTeam, true
	default:
		return "", false
	}
}

// Invitation is a token-addressed, time-limited offer to create or link an account.
// It references but does not own its target company, contact or email.
type Invitation struct {
	ID              snowflake.ID  `gorm:"primaryKey" json:"id"`
	Token           string        `gorm:"type:text;not null;uniqueIndex:ux_invitations_token" json:"-"`
	Kind            Kind          `gorm:"type:text;not null" json:"kind"`
	Status          Status        `gorm:"type:text;not null;index" json:"status"`
	TargetCompanyID *snowflake.ID `gorm:"column:target_company_id;index:ix_invitations_target,priority:1" json:"target_company_id,omitempty"`
	TargetContactID *snowflake.ID `gorm:"column:target_contact_id;index:ix_invitations_target,priority:2" json:"target_contact_id,omitempty"`
	TargetEmail     *string       `gorm:"column:target_email;type:text;index" json:"target_email,omitempty"`
	InvitedBy       snowflake.ID  `gorm:"column:invited_by;not null" json:"invited_by"`
	UsedBy          *snowflake.ID `gorm:"column:used_by" json:"used_by,omitempty"`
	CreatedAt       time.Time     `gorm:"not null" json:"created_at"`
	ExpiresAt       time.Time     `gorm:"not null" json:"expires_at"`
	UsedAt          *time.Time    `json:"used_at,omitempty"`
	UpdatedAt       time.Time     `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Invitation) TableName() string { return "invitations" }

// ExpiredAt reports whether a pending invitation has outlived its validity window at now.
func (i Invitation) ExpiredAt(now time.Time) bool {
	return i.Status == StatusPending && now.After(i.ExpiresAt)
}

// Target identifies who an invitation is addressed to.
type Target struct {
	Kind      Kind
	CompanyID snowflake.ID
	ContactID snowflake.ID
	Email     string
}

// Key returns a stable identifier for the target, used for issuance locking.
func (t Target) Key() string {
	if t.Kind == KindTeam {
		return "team:" + strings.ToLower(strings.TrimSpace(t.Email))
	}
	return "client:" + t.CompanyID.String() + ":" + t.ContactID.String()
}

// TargetOf returns the addressing of an existing invitation.
func TargetOf(inv Invitation) Target {
	t := Target{Kind: inv.Kind}
	if inv.TargetCompanyID != nil {
		t.CompanyID = *inv.TargetCompanyID
	}
	if inv.TargetContactID != nil {
		t.ContactID = *inv.TargetContactID
	}
	if inv.TargetEmail != nil {
		t.Email = *inv.TargetEmail
	}
	return t
}
