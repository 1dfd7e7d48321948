// Package domain contains portal accounts and the contract for linking them to invitations.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Role string

const (
	RoleClient Role = "client"
	RoleStaff  Role = "staff"
	RoleAdmin  Role = "admin"
)

func (r Role) rank() int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleStaff:
		return 2
	case RoleClient:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether r grants at least the rights of other.
func (r Role) AtLeast(other Role) bool {
	return r.rank() >= other.rank()
}

// Max returns the more privileged of r and other.
func (r Role) Max(other Role) Role {
	if other.rank() > r.rank() {
		return other
	}
	return r
}

func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	if role.rank() == 0 {
		return "", false
	}
	return role, true
}

// Account is a login identity. ContactID, once set by onboarding, is never cleared by it.
type Account struct {
	ID                  snowflake.ID  `gorm:"primaryKey" json:"id"`
	Email               string        `gorm:"type:text;not null;uniqueIndex:ux_accounts_email" json:"email"`
	DisplayName         string        `gorm:"column:display_name;type:text;not null" json:"display_name"`
	PasswordHash        *string       `gorm:"column:password_hash;type:text" json:"-"`
	Role                Role          `gorm:"type:text;not null" json:"role"`
	ContactID           *snowflake.ID `gorm:"column:contact_id;index" json:"contact_id,omitempty"`
	LastPasswordChanged *time.Time    `gorm:"column:last_password_changed" json:"-"`
	CreatedAt           time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt           time.Time     `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Account) TableName() string { return "accounts" }
