package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/portal/internal/audit/domain"
	"github.com/smallbiznis/portal/internal/clock"
	companydomain "github.com/smallbiznis/portal/internal/company/domain"
	"github.com/smallbiznis/portal/internal/config"
	invitationdomain "github.com/smallbiznis/portal/internal/invitation/domain"
	obsmetrics "github.com/smallbiznis/portal/internal/observability/metrics"
	"github.com/smallbiznis/portal/internal/onboarding/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log         *zap.Logger
	Companies   companydomain.Repository
	Invitations invitationdomain.Service
	Clock       clock.Clock
	Policy      *config.PolicyHolder

	Audit   auditdomain.Service `optional:"true"`
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Gate struct {
	log         *zap.Logger
	companies   companydomain.Repository
	invitations invitationdomain.Service
	clock       clock.Clock
	policy      *config.PolicyHolder
	audit       auditdomain.Service
	metrics     *obsmetrics.Metrics
}

func NewGate(p Params) domain.Gate {
	return &Gate{
		log:         p.Log.Named("onboarding.gate"),
		companies:   p.Companies,
		invitations: p.Invitations,
		clock:       p.Clock,
		policy:      p.Policy,
		audit:       p.Audit,
		metrics:     p.Metrics,
	}
}

func (g *Gate) Target(ctx context.Context, token string) (*domain.Target, error) {
	inv, err := g.invitations.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv.Kind != invitationdomain.KindClient || inv.TargetCompanyID == nil || inv.TargetContactID == nil {
		return nil, invitationdomain.ErrNotFound
	}
	if stateErr := invitationdomain.StateError(inv.Status); stateErr != nil {
		return nil, stateErr
	}

	company, err := g.loadCompany(ctx, *inv.TargetCompanyID)
	if err != nil {
		return nil, err
	}
	contact, err := g.companies.GetContact(ctx, *inv.TargetContactID)
	if err != nil {
		if errors.Is(err, companydomain.ErrContactNotFound) {
			return nil, domain.ErrInvalidContact
		}
		return nil, err
	}
	return &domain.Target{Invitation: inv, Company: company, Contact: contact}, nil
}

func (g *Gate) Status(ctx context.Context, companyID snowflake.ID) (*domain.Status, error) {
	company, err := g.loadCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	missing := company.MissingFields()
	if company.TermsAccepted {
		missing = []string{}
	}
	return &domain.Status{
		State:   domain.StateOf(*company),
		Missing: missing,
		Company: company,
	}, nil
}

func (g *Gate) UpdateTargetData(ctx context.Context, req domain.UpdateRequest) (*companydomain.Company, error) {
	company, err := g.loadCompany(ctx, req.CompanyID)
	if err != nil {
		return nil, err
	}
	if company.TermsAccepted {
		return nil, domain.ErrAlreadyAccepted
	}

	fields := make(map[string]string, 3)
	setField(fields, companydomain.FieldLegalName, req.LegalName)
	setField(fields, companydomain.FieldTaxID, req.TaxID)
	setField(fields, companydomain.FieldFiscalAddress, req.FiscalAddress)
	if len(fields) == 0 {
		return company, nil
	}

	changed, err := g.companies.UpdateFields(ctx, company.ID, fields, g.clock.Now())
	if err != nil {
		return nil, err
	}

	updated, err := g.loadCompany(ctx, company.ID)
	if err != nil {
		return nil, err
	}
	if !changed {
		// Acceptance landed between the read and the conditional write.
		if updated.TermsAccepted {
			return nil, domain.ErrAlreadyAccepted
		}
		return updated, nil
	}

	names := make([]string, 0, len(fields))
	for _, name := range []string{companydomain.FieldLegalName, companydomain.FieldTaxID, companydomain.FieldFiscalAddress} {
		if _, ok := fields[name]; ok {
			names = append(names, name)
		}
	}
	g.writeAudit(ctx, "onboarding.data_updated", accountActor(req.ActorID), updated, map[string]any{
		"fields": names,
	})
	return updated, nil
}

func (g *Gate) Accept(ctx context.Context, req domain.AcceptRequest) (*domain.AcceptResult, error) {
	if req.ContactID == 0 {
		return nil, domain.ErrInvalidContact
	}

	company, err := g.loadCompany(ctx, req.CompanyID)
	if err != nil {
		return nil, err
	}
	if company.TermsAccepted {
		return nil, domain.ErrAlreadyAccepted
	}
	if missing := company.MissingFields(); len(missing) > 0 {
		return nil, &domain.IncompleteDataError{Missing: missing}
	}

	contact, err := g.companies.GetContact(ctx, req.ContactID)
	if err != nil {
		if errors.Is(err, companydomain.ErrContactNotFound) {
			return nil, domain.ErrInvalidContact
		}
		return nil, err
	}
	if contact.CompanyID != company.ID {
		return nil, domain.ErrInvalidContact
	}
	acceptedBy := strings.TrimSpace(req.ContactName)
	if acceptedBy == "" {
		acceptedBy = contact.Name
	}

	now := g.clock.Now()
	termsVersion := g.policy.Get().TermsVersion
	changed, err := g.companies.UpdateAcceptance(ctx, companydomain.Acceptance{
		CompanyID:      company.ID,
		AcceptedAt:     now,
		AcceptedByID:   contact.ID,
		AcceptedByName: acceptedBy,
		TermsVersion:   termsVersion,
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, g.acceptanceConflict(ctx, company.ID)
	}

	accepted, err := g.loadCompany(ctx, company.ID)
	if err != nil {
		return nil, err
	}

	g.log.Info("terms accepted",
		zap.String("company_id", company.ID.String()),
		zap.String("contact_id", contact.ID.String()),
		zap.String("terms_version", termsVersion),
	)
	g.metrics.RecordTermsAccepted(ctx, termsVersion)
	actor := accountActor(req.AccountID)
	if actor.id == "" {
		actor = auditActor{kind: auditdomain.ActorTypeContact, id: contact.ID.String()}
	}
	g.writeAudit(ctx, "onboarding.terms_accepted", actor, accepted, map[string]any{
		"contact_id":    contact.ID.String(),
		"terms_version": termsVersion,
	})

	result := &domain.AcceptResult{
		Company:      accepted,
		AcceptedAt:   now,
		TermsVersion: termsVersion,
	}
	if strings.TrimSpace(req.Token) == "" {
		return result, nil
	}

	// The acceptance is already durable; a token that can no longer be
	// consumed leaves the invitation in whatever state it reached.
	companyID := company.ID
	inv, err := g.invitations.Consume(ctx, invitationdomain.ConsumeRequest{
		Token:     req.Token,
		CompanyID: &companyID,
		UsedBy:    req.AccountID,
	})
	switch {
	case err == nil:
		result.Invitation = inv
		result.InvitationConsumed = true
	case isInvitationState(err):
		result.Invitation = inv
		g.log.Info("invitation not consumed on acceptance",
			zap.String("company_id", company.ID.String()),
			zap.Error(err),
		)
	default:
		g.log.Error("invitation consume failed after acceptance",
			zap.String("company_id", company.ID.String()),
			zap.Error(err),
		)
	}
	return result, nil
}

// acceptanceConflict explains why the conditional acceptance write matched nothing.
func (g *Gate) acceptanceConflict(ctx context.Context, companyID snowflake.ID) error {
	current, err := g.loadCompany(ctx, companyID)
	if err != nil {
		return err
	}
	if current.TermsAccepted {
		return domain.ErrAlreadyAccepted
	}
	if missing := current.MissingFields(); len(missing) > 0 {
		return &domain.IncompleteDataError{Missing: missing}
	}
	return domain.ErrAlreadyAccepted
}

func (g *Gate) loadCompany(ctx context.Context, id snowflake.ID) (*companydomain.Company, error) {
	if id == 0 {
		return nil, domain.ErrNotFound
	}
	company, err := g.companies.GetCompany(ctx, id)
	if err != nil {
		if errors.Is(err, companydomain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return company, nil
}

type auditActor struct {
	kind auditdomain.ActorType
	id   string
}

func accountActor(id *snowflake.ID) auditActor {
	if id == nil {
		return auditActor{}
	}
	return auditActor{kind: auditdomain.ActorTypeAccount, id: id.String()}
}

func (g *Gate) writeAudit(ctx context.Context, action string, actor auditActor, company *companydomain.Company, metadata map[string]any) {
	if g.audit == nil {
		return
	}
	entry := auditdomain.Entry{
		ActorType:  actor.kind,
		ActorID:    actor.id,
		Action:     action,
		TargetType: "company",
		TargetID:   company.ID.String(),
		Metadata:   metadata,
	}
	if err := g.audit.AuditLog(ctx, entry); err != nil {
		g.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}

func setField(fields map[string]string, name string, value *string) {
	if value == nil {
		return
	}
	fields[name] = strings.TrimSpace(*value)
}

func isInvitationState(err error) bool {
	return errors.Is(err, invitationdomain.ErrNotFound) ||
		errors.Is(err, invitationdomain.ErrExpired) ||
		errors.Is(err, invitationdomain.ErrRevoked) ||
		errors.Is(err, invitationdomain.ErrAlreadyUsed)
}
