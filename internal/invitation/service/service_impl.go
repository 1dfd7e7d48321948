package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/portal/internal/audit/domain"
	"github.com/smallbiznis/portal/internal/clock"
	companydomain "github.com/smallbiznis/portal/internal/company/domain"
	"github.com/smallbiznis/portal/internal/config"
	"github.com/smallbiznis/portal/internal/invitation/domain"
	"github.com/smallbiznis/portal/internal/invitation/token"
	obsmetrics "github.com/smallbiznis/portal/internal/observability/metrics"
	"github.com/smallbiznis/portal/internal/providers/email"
	"github.com/smallbiznis/portal/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Repo      domain.Repository
	Companies companydomain.Repository
	Clock     clock.Clock
	GenID     *snowflake.Node
	Tokens    token.Generator
	Policy    *config.PolicyHolder
	Cfg       config.Config

	Email   email.Provider           `optional:"true"`
	Limiter *ratelimit.Limiter       `optional:"true"`
	Audit   auditdomain.Service      `optional:"true"`
	Metrics *obsmetrics.Metrics      `optional:"true"`
	Store   *obsmetrics.StoreMetrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	repo      domain.Repository
	companies companydomain.Repository
	clock     clock.Clock
	genID     *snowflake.Node
	tokens    token.Generator
	policy    *config.PolicyHolder
	baseURL   string

	email   email.Provider
	limiter *ratelimit.Limiter
	audit   auditdomain.Service
	metrics *obsmetrics.Metrics
	store   *obsmetrics.StoreMetrics

	// dispatch runs notification work after the invitation is committed.
	dispatch func(func())
}

func NewService(p Params) domain.Service {
	return newService(p)
}

func newService(p Params) *Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("invitation.service"),
		repo:      p.Repo,
		companies: p.Companies,
		clock:     p.Clock,
		genID:     p.GenID,
		tokens:    p.Tokens,
		policy:    p.Policy,
		baseURL:   strings.TrimRight(p.Cfg.PublicBaseURL, "/"),
		email:     p.Email,
		limiter:   p.Limiter,
		audit:     p.Audit,
		metrics:   p.Metrics,
		store:     p.Store,
		dispatch:  func(fn func()) { go fn() },
	}
}

// recipient is who the notification for a new invitation is addressed to.
type recipient struct {
	Email       string
	Name        string
	CompanyName string
}

func (s *Service) Issue(ctx context.Context, req domain.IssueRequest) (*domain.Invitation, error) {
	if req.InvitedBy == 0 {
		return nil, domain.ErrInvalidInviter
	}

	target, to, err := s.validateTarget(ctx, req)
	if err != nil {
		return nil, err
	}

	key := target.Key()
	lockToken, locked, err := s.limiter.TryLockIssue(ctx, key)
	switch {
	case err != nil:
		s.log.Warn("issue lock unavailable, relying on duplicate check",
			zap.String("kind", string(target.Kind)),
			zap.Error(err),
		)
	case !locked:
		return nil, domain.ErrDuplicate
	case lockToken != "":
		defer func() {
			if err := s.limiter.ReleaseIssue(context.WithoutCancel(ctx), key, lockToken); err != nil {
				s.log.Warn("issue lock release failed", zap.Error(err))
			}
		}()
	}

	policy := s.policy.Get()
	attempts := policy.TokenIssueAttempts
	if attempts <= 0 {
		attempts = config.DefaultTokenIssueAttempts
	}

	var inv *domain.Invitation
	for attempt := 1; ; attempt++ {
		inv, err = s.create(ctx, target, req.InvitedBy, policy.InvitationTTL)
		if !errors.Is(err, domain.ErrTokenConflict) || attempt >= attempts {
			break
		}
		s.log.Warn("invitation token collision, regenerating", zap.Int("attempt", attempt))
	}
	if err != nil {
		if !errors.Is(err, domain.ErrDuplicate) {
			s.store.RecordError("invitation.create", err)
		}
		return nil, err
	}

	s.log.Info("invitation issued",
		zap.String("invitation_id", inv.ID.String()),
		zap.String("kind", string(inv.Kind)),
		zap.Time("expires_at", inv.ExpiresAt),
	)
	s.metrics.RecordInvitationIssued(ctx, string(inv.Kind))
	s.writeAudit(ctx, auditdomain.ActorTypeAccount, req.InvitedBy.String(), "invitation.issued", inv, map[string]any{
		"expires_at": inv.ExpiresAt,
	})
	s.notify(ctx, *inv, to)

	return inv, nil
}

// create runs the duplicate check and the insert in one transaction.
func (s *Service) create(ctx context.Context, target domain.Target, invitedBy snowflake.ID, ttl time.Duration) (*domain.Invitation, error) {
	if ttl <= 0 {
		ttl = config.DefaultInvitationTTL
	}

	var created *domain.Invitation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := s.clock.Now()

		if _, err := repo.FindActive(ctx, target, now); err == nil {
			return domain.ErrDuplicate
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		raw, err := s.tokens.Generate()
		if err != nil {
			return err
		}

		inv := &domain.Invitation{
			ID:        s.genID.Generate(),
			Token:     raw,
			Kind:      target.Kind,
			Status:    domain.StatusPending,
			InvitedBy: invitedBy,
			CreatedAt: now,
			ExpiresAt: now.Add(ttl),
			UpdatedAt: now,
		}
		switch target.Kind {
		case domain.KindTeam:
			addr := target.Email
			inv.TargetEmail = &addr
		default:
			companyID, contactID := target.CompanyID, target.ContactID
			inv.TargetCompanyID = &companyID
			inv.TargetContactID = &contactID
		}

		if err := repo.Create(ctx, inv); err != nil {
			return err
		}
		created = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Service) validateTarget(ctx context.Context, req domain.IssueRequest) (domain.Target, recipient, error) {
	switch req.Kind {
	case domain.KindClient:
		if req.CompanyID == 0 {
			return domain.Target{}, recipient{}, domain.ErrInvalidCompany
		}
		if req.ContactID == 0 {
			return domain.Target{}, recipient{}, domain.ErrInvalidContact
		}

		company, err := s.companies.GetCompany(ctx, req.CompanyID)
		if errors.Is(err, companydomain.ErrNotFound) {
			return domain.Target{}, recipient{}, domain.ErrInvalidCompany
		}
		if err != nil {
			return domain.Target{}, recipient{}, err
		}

		contact, err := s.companies.GetContact(ctx, req.ContactID)
		if errors.Is(err, companydomain.ErrContactNotFound) {
			return domain.Target{}, recipient{}, domain.ErrInvalidContact
		}
		if err != nil {
			return domain.Target{}, recipient{}, err
		}
		if contact.CompanyID != company.ID {
			return domain.Target{}, recipient{}, domain.ErrInvalidContact
		}

		target := domain.Target{Kind: domain.KindClient, CompanyID: company.ID, ContactID: contact.ID}
		return target, recipient{Email: contact.Email, Name: contact.Name, CompanyName: company.Name}, nil

	case domain.KindTeam:
		addr, err := mail.ParseAddress(strings.TrimSpace(req.Email))
		if err != nil {
			return domain.Target{}, recipient{}, domain.ErrInvalidEmail
		}
		normalized := strings.ToLower(addr.Address)
		return domain.Target{Kind: domain.KindTeam, Email: normalized}, recipient{Email: normalized, Name: addr.Name}, nil

	default:
		return domain.Target{}, recipient{}, domain.ErrInvalidKind
	}
}

func (s *Service) Resolve(ctx context.Context, raw string) (*domain.Invitation, error) {
	raw = strings.TrimSpace(raw)
	if !token.WellFormed(raw) {
		return nil, domain.ErrNotFound
	}

	inv, err := s.repo.FindByToken(ctx, raw)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if !inv.ExpiredAt(now) {
		return inv, nil
	}
	return s.expire(ctx, inv, now)
}

// expire persists the lazy PENDING to EXPIRED transition and returns the stored row.
// Losing the race to another transition is fine; the re-read reflects the winner.
func (s *Service) expire(ctx context.Context, inv *domain.Invitation, now time.Time) (*domain.Invitation, error) {
	changed, err := s.repo.UpdateStatus(ctx, domain.StatusUpdate{
		ID:        inv.ID,
		From:      []domain.Status{domain.StatusPending},
		To:        domain.StatusExpired,
		ExpiredAt: &now,
		UpdatedAt: now,
	})
	if err != nil {
		s.store.RecordError("invitation.expire", err)
		return nil, err
	}
	if changed {
		s.log.Info("invitation expired",
			zap.String("invitation_id", inv.ID.String()),
			zap.Time("expires_at", inv.ExpiresAt),
		)
		s.metrics.RecordInvitationTransition(ctx, string(inv.Kind), string(domain.StatusPending), string(domain.StatusExpired))
		s.writeAudit(ctx, auditdomain.ActorTypeSystem, "", "invitation.expired", inv, nil)
	}
	return s.repo.FindByID(ctx, inv.ID)
}

func (s *Service) Lookup(ctx context.Context, raw string) (*domain.View, error) {
	inv, err := s.Resolve(ctx, raw)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.View{State: domain.ViewNotFound}, nil
	}
	if err != nil {
		return nil, err
	}

	view := &domain.View{
		Invitation: inv,
		Status:     inv.Status,
		Kind:       inv.Kind,
	}
	switch inv.Status {
	case domain.StatusPending:
		view.State = domain.ViewValid
		expiresAt := inv.ExpiresAt
		view.ExpiresAt = &expiresAt
		accepted, err := s.targetAccepted(ctx, inv)
		if err != nil {
			return nil, err
		}
		if accepted {
			view.State = domain.ViewUsed
		}
	case domain.StatusAccepted:
		view.State = domain.ViewUsed
	default:
		view.State = domain.ViewExpired
	}
	return view, nil
}

// targetAccepted reports whether a client invitation's company has already
// accepted terms, which happens when acceptance committed but consumption did not.
func (s *Service) targetAccepted(ctx context.Context, inv *domain.Invitation) (bool, error) {
	if inv.Kind != domain.KindClient || inv.TargetCompanyID == nil {
		return false, nil
	}
	company, err := s.companies.GetCompany(ctx, *inv.TargetCompanyID)
	if errors.Is(err, companydomain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return company.TermsAccepted, nil
}

// Revoke moves a pending invitation to REVOKED. Revoking a terminal invitation is a no-op.
func (s *Service) Revoke(ctx context.Context, req domain.RevokeRequest) error {
	if req.InvitationID == 0 {
		return domain.ErrInvalidID
	}

	now := s.clock.Now()
	changed, err := s.repo.UpdateStatus(ctx, domain.StatusUpdate{
		ID:        req.InvitationID,
		From:      []domain.Status{domain.StatusPending},
		To:        domain.StatusRevoked,
		UpdatedAt: now,
	})
	if err != nil {
		s.store.RecordError("invitation.revoke", err)
		return err
	}

	inv, err := s.repo.FindByID(ctx, req.InvitationID)
	if err != nil {
		return err
	}
	if !changed {
		s.log.Debug("revoke skipped, invitation already terminal",
			zap.String("invitation_id", inv.ID.String()),
			zap.String("status", string(inv.Status)),
		)
		return nil
	}

	s.log.Info("invitation revoked", zap.String("invitation_id", inv.ID.String()))
	s.metrics.RecordInvitationTransition(ctx, string(inv.Kind), string(domain.StatusPending), string(domain.StatusRevoked))
	actorID := ""
	if req.RevokedBy != 0 {
		actorID = req.RevokedBy.String()
	}
	s.writeAudit(ctx, auditdomain.ActorTypeAccount, actorID, "invitation.revoked", inv, nil)
	return nil
}

// Consume performs the conditional PENDING to ACCEPTED transition. When it does not
// apply, the stored invitation is returned together with the reason.
func (s *Service) Consume(ctx context.Context, req domain.ConsumeRequest) (*domain.Invitation, error) {
	raw := strings.TrimSpace(req.Token)
	if !token.WellFormed(raw) {
		return nil, domain.ErrNotFound
	}

	now := s.clock.Now()
	update := domain.StatusUpdate{
		Token:     raw,
		From:      []domain.Status{domain.StatusPending},
		To:        domain.StatusAccepted,
		CompanyID: req.CompanyID,
		ValidAt:   &now,
		UsedAt:    &now,
		UsedBy:    req.UsedBy,
		UpdatedAt: now,
	}
	changed, err := s.repo.UpdateStatus(ctx, update)
	if err != nil {
		s.store.RecordError("invitation.consume", err)
		return nil, err
	}

	inv, err := s.repo.FindByToken(ctx, raw)
	if err != nil {
		return nil, err
	}

	if changed {
		s.log.Info("invitation accepted", zap.String("invitation_id", inv.ID.String()))
		s.metrics.RecordInvitationTransition(ctx, string(inv.Kind), string(domain.StatusPending), string(domain.StatusAccepted))
		actorID := ""
		if req.UsedBy != nil {
			actorID = req.UsedBy.String()
		}
		s.writeAudit(ctx, "", actorID, "invitation.accepted", inv, nil)
		return inv, nil
	}

	if req.CompanyID != nil && (inv.TargetCompanyID == nil || *inv.TargetCompanyID != *req.CompanyID) {
		return nil, domain.ErrNotFound
	}
	if inv.ExpiredAt(now) {
		expired, err := s.expire(ctx, inv, now)
		if err != nil {
			return nil, err
		}
		return expired, domain.StateError(expired.Status)
	}
	if stateErr := domain.StateError(inv.Status); stateErr != nil {
		return inv, stateErr
	}
	return inv, domain.ErrAlreadyUsed
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.Invitation, error) {
	if req.Kind != "" {
		if _, ok := domain.ParseKind(string(req.Kind)); !ok {
			return nil, domain.ErrInvalidKind
		}
	}
	now := s.clock.Now()
	items, err := s.repo.List(ctx, domain.ListFilter{
		CompanyID: req.CompanyID,
		Kind:      req.Kind,
		Status:    req.Status,
		Limit:     req.Limit,
		Now:       now,
	})
	if err != nil {
		return nil, err
	}

	// Reported only; the row is expired on its next token lookup.
	for i := range items {
		if items[i].ExpiredAt(now) {
			items[i].Status = domain.StatusExpired
		}
	}
	return items, nil
}

func (s *Service) writeAudit(ctx context.Context, actorType auditdomain.ActorType, actorID, action string, inv *domain.Invitation, metadata map[string]any) {
	if s.audit == nil || inv == nil {
		return
	}
	payload := map[string]any{
		"kind":   string(inv.Kind),
		"status": string(inv.Status),
	}
	if inv.TargetCompanyID != nil {
		payload["company_id"] = inv.TargetCompanyID.String()
	}
	if inv.TargetContactID != nil {
		payload["contact_id"] = inv.TargetContactID.String()
	}
	for k, v := range metadata {
		payload[k] = v
	}
	if err := s.audit.AuditLog(ctx, auditdomain.Entry{
		ActorType:  actorType,
		ActorID:    actorID,
		Action:     action,
		TargetType: "invitation",
		TargetID:   inv.ID.String(),
		Metadata:   payload,
	}); err != nil {
		s.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}
