package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// LinkUpdate attaches an account to a contact and raises its role. It only
// applies while the account has no contact.
type LinkUpdate struct {
	ID        snowflake.ID
	ContactID *snowflake.ID
	Role      Role
	UpdatedAt time.Time
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Count(ctx context.Context) (int64, error)
	// Create returns ErrAccountExists when the email is already registered.
	Create(ctx context.Context, account *Account) error
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id snowflake.ID) (*Account, error)
	Link(ctx context.Context, update LinkUpdate) (bool, error)
	// Promote changes the role only while it still equals from.
	Promote(ctx context.Context, id snowflake.ID, from, to Role, now time.Time) (bool, error)
}
