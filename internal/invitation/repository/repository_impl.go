package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/portal/internal/invitation/domain"
	"github.com/smallbiznis/portal/pkg/db"
	"gorm.io/gorm"
)

const defaultListLimit = 100

type repository struct {
	db *gorm.DB
}

func NewRepository(conn *gorm.DB) domain.Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, inv *domain.Invitation) error {
	if err := r.db.WithContext(ctx).Create(inv).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.ErrTokenConflict
		}
		return err
	}
	return nil
}

func (r *repository) FindByToken(ctx context.Context, token string) (*domain.Invitation, error) {
	var inv domain.Invitation
	err := r.db.WithContext(ctx).Where("token = ?", token).First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repository) FindByID(ctx context.Context, id snowflake.ID) (*domain.Invitation, error) {
	var inv domain.Invitation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repository) FindActive(ctx context.Context, target domain.Target, now time.Time) (*domain.Invitation, error) {
	stmt := r.db.WithContext(ctx).
		Where("kind = ? AND status = ? AND expires_at >= ?", target.Kind, domain.StatusPending, now)

	switch target.Kind {
	case domain.KindTeam:
		stmt = stmt.Where("target_email = ?", strings.ToLower(strings.TrimSpace(target.Email)))
	default:
		stmt = stmt.Where("target_company_id = ? AND target_contact_id = ?", target.CompanyID, target.ContactID)
	}

	var inv domain.Invitation
	err := stmt.Order("created_at desc").First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repository) List(ctx context.Context, filter domain.ListFilter) ([]domain.Invitation, error) {
	stmt := r.db.WithContext(ctx).Model(&domain.Invitation{})
	if filter.CompanyID != nil {
		stmt = stmt.Where("target_company_id = ?", *filter.CompanyID)
	}
	if filter.Kind != "" {
		stmt = stmt.Where("kind = ?", filter.Kind)
	}
	switch {
	case filter.Status == "":
	case filter.Now.IsZero():
		stmt = stmt.Where("status = ?", filter.Status)
	case filter.Status == domain.StatusPending:
		stmt = stmt.Where("status = ? AND expires_at >= ?", domain.StatusPending, filter.Now)
	case filter.Status == domain.StatusExpired:
		stmt = stmt.Where("(status = ? OR (status = ? AND expires_at < ?))", domain.StatusExpired, domain.StatusPending, filter.Now)
	default:
		stmt = stmt.Where("status = ?", filter.Status)
	}

	limit := filter.Limit
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}

	var items []domain.Invitation
	if err := stmt.Order("created_at desc, id desc").Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateStatus issues a single conditional UPDATE so concurrent transitions cannot
// overwrite each other.
func (r *repository) UpdateStatus(ctx context.Context, update domain.StatusUpdate) (bool, error) {
	stmt := r.db.WithContext(ctx).Model(&domain.Invitation{})
	switch {
	case update.ID != 0:
		stmt = stmt.Where("id = ?", update.ID)
	case update.Token != "":
		stmt = stmt.Where("token = ?", update.Token)
	default:
		return false, domain.ErrNotFound
	}

	if len(update.From) > 0 {
		stmt = stmt.Where("status IN ?", update.From)
	}
	if update.CompanyID != nil {
		stmt = stmt.Where("target_company_id = ?", *update.CompanyID)
	}
	if update.ValidAt != nil {
		stmt = stmt.Where("expires_at >= ?", *update.ValidAt)
	}
	if update.ExpiredAt != nil {
		stmt = stmt.Where("expires_at < ?", *update.ExpiredAt)
	}

	fields := map[string]any{
		"status":     update.To,
		"updated_at": update.UpdatedAt,
	}
	if update.UsedAt != nil {
		fields["used_at"] = *update.UsedAt
	}
	if update.UsedBy != nil {
		fields["used_by"] = *update.UsedBy
	}

	tx := stmt.Updates(fields)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}
