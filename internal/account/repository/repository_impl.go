package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/portal/internal/account/domain"
	"github.com/smallbiznis/portal/pkg/db"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func NewRepository(conn *gorm.DB) domain.Repository {
	return &repo{db: conn}
}

func (r *repo) WithTx(tx *gorm.DB) domain.Repository {
	return &repo{db: tx}
}

func (r *repo) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Account{}).Count(&count).Error
	return count, err
}

func (r *repo) Create(ctx context.Context, account *domain.Account) error {
	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.ErrAccountExists
		}
		return err
	}
	return nil
}

func (r *repo) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	var account domain.Account
	err := r.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*domain.Account, error) {
	var account domain.Account
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// Link never touches credentials and never replaces an existing contact.
func (r *repo) Link(ctx context.Context, update domain.LinkUpdate) (bool, error) {
	fields := map[string]any{
		"updated_at": update.UpdatedAt,
	}
	if update.ContactID != nil {
		fields["contact_id"] = *update.ContactID
	}
	if update.Role != "" {
		fields["role"] = update.Role
	}

	tx := r.db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("id = ? AND contact_id IS NULL", update.ID).
		Updates(fields)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *repo) Promote(ctx context.Context, id snowflake.ID, from, to domain.Role, now time.Time) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("id = ? AND role = ?", id, from).
		Updates(map[string]any{
			"role":       to,
			"updated_at": now,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}
