package service

import (
	"context"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/portal/internal/clock"
	"github.com/smallbiznis/portal/internal/company/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	Repo  domain.Repository
	Clock clock.Clock
	GenID *snowflake.Node
}

type service struct {
	log   *zap.Logger
	repo  domain.Repository
	clock clock.Clock
	genID *snowflake.Node
}

func NewService(p Params) domain.Service {
	return &service{
		log:   p.Log.Named("company.service"),
		repo:  p.Repo,
		clock: p.Clock,
		genID: p.GenID,
	}
}

func (s *service) CreateCompany(ctx context.Context, req domain.CreateCompanyRequest) (*domain.Company, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	now := s.clock.Now()
	company := &domain.Company{
		ID:            s.genID.Generate(),
		Name:          name,
		Slug:          slug.Make(name),
		LegalName:     strings.TrimSpace(req.LegalName),
		TaxID:         strings.TrimSpace(req.TaxID),
		FiscalAddress: strings.TrimSpace(req.FiscalAddress),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.CreateCompany(ctx, company); err != nil {
		return nil, err
	}

	s.log.Info("company created", zap.String("company_id", company.ID.String()))
	return company, nil
}

func (s *service) CreateContact(ctx context.Context, req domain.CreateContactRequest) (*domain.Contact, error) {
	if req.CompanyID == 0 {
		return nil, domain.ErrInvalidCompany
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(req.Email))
	if err != nil {
		return nil, domain.ErrInvalidEmail
	}

	if _, err := s.repo.GetCompany(ctx, req.CompanyID); err != nil {
		return nil, err
	}

	contact := &domain.Contact{
		ID:        s.genID.Generate(),
		CompanyID: req.CompanyID,
		Name:      name,
		Email:     strings.ToLower(addr.Address),
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.CreateContact(ctx, contact); err != nil {
		return nil, err
	}
	return contact, nil
}

func (s *service) GetCompany(ctx context.Context, id snowflake.ID) (*domain.Company, error) {
	if id == 0 {
		return nil, domain.ErrInvalidCompany
	}
	return s.repo.GetCompany(ctx, id)
}

func (s *service) GetContact(ctx context.Context, id snowflake.ID) (*domain.Contact, error) {
	if id == 0 {
		return nil, domain.ErrContactNotFound
	}
	return s.repo.GetContact(ctx, id)
}

func (s *service) ListContacts(ctx context.Context, companyID snowflake.ID) ([]domain.Contact, error) {
	if companyID == 0 {
		return nil, domain.ErrInvalidCompany
	}
	return s.repo.ListContacts(ctx, companyID)
}
