// Package domain contains core types for portal sessions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Session represents a persisted login session. Only the hash of the
// session token is stored.
type Session struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	AccountID        snowflake.ID `gorm:"column:account_id;not null;index"`
	SessionTokenHash string       `gorm:"column:session_token_hash;type:text;not null;uniqueIndex"`
	UserAgent        string       `gorm:"column:user_agent;type:text"`
	IPAddress        string       `gorm:"column:ip_address;type:text"`
	ExpiresAt        time.Time    `gorm:"column:expires_at;not null;index"`
	RevokedAt        *time.Time   `gorm:"column:revoked_at"`
	CreatedAt        time.Time    `gorm:"column:created_at;not null"`
	LastSeenAt       time.Time    `gorm:"column:last_seen_at;not null"`
}

// TableName sets the database table name.
func (Session) TableName() string { return "sessions" }

// Principal is the authenticated caller behind a session.
type Principal struct {
	SessionID   snowflake.ID  `json:"-"`
	AccountID   snowflake.ID  `json:"account_id"`
	Email       string        `json:"email"`
	DisplayName string        `json:"display_name"`
	Role        string        `json:"role"`
	ContactID   *snowflake.ID `json:"contact_id,omitempty"`
}
