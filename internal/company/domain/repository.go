package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateCompany(ctx context.Context, company *Company) error
	CreateContact(ctx context.Context, contact *Contact) error
	GetCompany(ctx context.Context, id snowflake.ID) (*Company, error)
	GetContact(ctx context.Context, id snowflake.ID) (*Contact, error)
	ListContacts(ctx context.Context, companyID snowflake.ID) ([]Contact, error)
	// UpdateFields writes onboarding fields only while terms are not accepted.
	UpdateFields(ctx context.Context, id snowflake.ID, fields map[string]string, now time.Time) (bool, error)
	// UpdateAcceptance flips terms_accepted and stamps the acceptance atomically,
	// only if the company is unaccepted and every required field is filled.
	UpdateAcceptance(ctx context.Context, acceptance Acceptance) (bool, error)
}
