package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	CreateCompany(ctx context.Context, req CreateCompanyRequest) (*Company, error)
	CreateContact(ctx context.Context, req CreateContactRequest) (*Contact, error)
	GetCompany(ctx context.Context, id snowflake.ID) (*Company, error)
	GetContact(ctx context.Context, id snowflake.ID) (*Contact, error)
	ListContacts(ctx context.Context, companyID snowflake.ID) ([]Contact, error)
}

type CreateCompanyRequest struct {
	Name          string
	LegalName     string
	TaxID         string
	FiscalAddress string
}

type CreateContactRequest struct {
	CompanyID snowflake.ID
	Name      string
	Email     string
}

var (
	ErrNotFound        = errors.New("company_not_found")
	ErrContactNotFound = errors.New("contact_not_found")
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidEmail    = errors.New("invalid_email")
	ErrInvalidCompany  = errors.New("invalid_company")
)
