// Package domain contains the onboarding target records: companies and their contacts.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	FieldLegalName     = "legal_name"
	FieldTaxID         = "tax_id"
	FieldFiscalAddress = "fiscal_address"
)

// Company is the onboarding target of a client invitation.
// Acceptance fields are written once, together with the TermsAccepted flip.
type Company struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	Name          string       `gorm:"type:text;not null" json:"name"`
	Slug          string       `gorm:"type:text;not null;index" json:"slug"`
	LegalName     string       `gorm:"column:legal_name;type:text;not null;default:''" json:"legal_name"`
	TaxID         string       `gorm:"column:tax_id;type:text;not null;default:''" json:"tax_id"`
	FiscalAddress string       `gorm:"column:fiscal_address;type:text;not null;default:''" json:"fiscal_address"`

	TermsAccepted       bool          `gorm:"column:terms_accepted;not null;default:false" json:"terms_accepted"`
	TermsAcceptedAt     *time.Time    `gorm:"column:terms_accepted_at" json:"terms_accepted_at,omitempty"`
	TermsAcceptedByID   *snowflake.ID `gorm:"column:terms_accepted_by_id" json:"terms_accepted_by_id,omitempty"`
	TermsAcceptedByName *string       `gorm:"column:terms_accepted_by_name;type:text" json:"terms_accepted_by_name,omitempty"`
	TermsVersion        *string       `gorm:"column:terms_version;type:text" json:"terms_version,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Company) TableName() string { return "companies" }

// MissingFields lists required onboarding fields that are still blank.
func (c Company) MissingFields() []string {
	missing := make([]string, 0, 3)
	if strings.TrimSpace(c.LegalName) == "" {
		missing = append(missing, FieldLegalName)
	}
	if strings.TrimSpace(c.TaxID) == "" {
		missing = append(missing, FieldTaxID)
	}
	if strings.TrimSpace(c.FiscalAddress) == "" {
		missing = append(missing, FieldFiscalAddress)
	}
	return missing
}

// Contact is a person at a company who can be invited to the client portal.
type Contact struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	CompanyID snowflake.ID `gorm:"column:company_id;not null;index" json:"company_id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Email     string       `gorm:"type:text;not null" json:"email"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Contact) TableName() string { return "contacts" }

// Acceptance is the one-time record of a terms acceptance.
type Acceptance struct {
	CompanyID      snowflake.ID
	AcceptedAt     time.Time
	AcceptedByID   snowflake.ID
	AcceptedByName string
	TermsVersion   string
}
