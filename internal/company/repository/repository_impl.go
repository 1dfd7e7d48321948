package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/portal/internal/company/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) CreateCompany(ctx context.Context, company *domain.Company) error {
	return r.db.WithContext(ctx).Create(company).Error
}

func (r *repository) CreateContact(ctx context.Context, contact *domain.Contact) error {
	return r.db.WithContext(ctx).Create(contact).Error
}

func (r *repository) GetCompany(ctx context.Context, id snowflake.ID) (*domain.Company, error) {
	var company domain.Company
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&company).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &company, nil
}

func (r *repository) GetContact(ctx context.Context, id snowflake.ID) (*domain.Contact, error) {
	var contact domain.Contact
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&contact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrContactNotFound
	}
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

func (r *repository) ListContacts(ctx context.Context, companyID snowflake.ID) ([]domain.Contact, error) {
	var contacts []domain.Contact
	err := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("created_at asc, id asc").
		Find(&contacts).Error
	if err != nil {
		return nil, err
	}
	return contacts, nil
}

func (r *repository) UpdateFields(ctx context.Context, id snowflake.ID, fields map[string]string, now time.Time) (bool, error) {
	updates := make(map[string]any, len(fields)+1)
	for column, value := range fields {
		switch column {
		case domain.FieldLegalName, domain.FieldTaxID, domain.FieldFiscalAddress:
			updates[column] = value
		}
	}
	if len(updates) == 0 {
		return false, nil
	}
	updates["updated_at"] = now

	tx := r.db.WithContext(ctx).
		Model(&domain.Company{}).
		Where("id = ? AND terms_accepted = ?", id, false).
		Updates(updates)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *repository) UpdateAcceptance(ctx context.Context, acceptance domain.Acceptance) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&domain.Company{}).
		Where("id = ? AND terms_accepted = ?", acceptance.CompanyID, false).
		Where("legal_name <> '' AND tax_id <> '' AND fiscal_address <> ''").
		Updates(map[string]any{
			"terms_accepted":         true,
			"terms_accepted_at":      acceptance.AcceptedAt,
			"terms_accepted_by_id":   acceptance.AcceptedByID,
			"terms_accepted_by_name": acceptance.AcceptedByName,
			"terms_version":          acceptance.TermsVersion,
			"updated_at":             acceptance.AcceptedAt,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}
