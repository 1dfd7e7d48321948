package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/portal/internal/account/domain"
	auditdomain "github.com/smallbiznis/portal/internal/audit/domain"
	"github.com/smallbiznis/portal/internal/auth/password"
	"github.com/smallbiznis/portal/internal/clock"
	companydomain "github.com/smallbiznis/portal/internal/company/domain"
	invitationdomain "github.com/smallbiznis/portal/internal/invitation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Repo      domain.Repository
	Companies companydomain.Repository
	Clock     clock.Clock
	GenID     *snowflake.Node

	Audit auditdomain.Service `optional:"true"`
}

type Linker struct {
	log       *zap.Logger
	repo      domain.Repository
	companies companydomain.Repository
	clock     clock.Clock
	genID     *snowflake.Node
	audit     auditdomain.Service
}

func NewLinker(p Params) domain.Linker {
	return &Linker{
		log:       p.Log.Named("account.linker"),
		repo:      p.Repo,
		companies: p.Companies,
		clock:     p.Clock,
		genID:     p.GenID,
		audit:     p.Audit,
	}
}

// target is who the invitation resolves to on the account side.
type target struct {
	email       string
	displayName string
	contactID   *snowflake.ID
	role        domain.Role
}

// ResolveAccount returns the account addressed by a pending invitation,
// creating it when no account holds the target email. An existing account is
// linked only after its password is verified, and its credentials are never replaced.
func (l *Linker) ResolveAccount(ctx context.Context, req domain.LinkRequest) (*domain.LinkResult, error) {
	inv := req.Invitation
	if inv == nil || inv.Status != invitationdomain.StatusPending || inv.ExpiredAt(l.clock.Now()) {
		return nil, domain.ErrInvalidState
	}

	tgt, err := l.resolveTarget(ctx, inv)
	if err != nil {
		return nil, err
	}

	account, err := l.repo.FindByEmail(ctx, tgt.email)
	switch {
	case err == nil:
		return l.verifyAndLink(ctx, account, tgt, inv, req.Password)
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	account, err = l.create(ctx, tgt, req)
	if err == nil {
		l.writeAudit(ctx, "account.created", account, inv)
		return &domain.LinkResult{AccountID: account.ID, IsNew: true, Account: account}, nil
	}
	if !errors.Is(err, domain.ErrAccountExists) {
		return nil, err
	}

	// Lost a race with a concurrent creation for the same email.
	account, err = l.repo.FindByEmail(ctx, tgt.email)
	if err != nil {
		return nil, err
	}
	return l.verifyAndLink(ctx, account, tgt, inv, req.Password)
}

func (l *Linker) verifyAndLink(ctx context.Context, account *domain.Account, tgt target, inv *invitationdomain.Invitation, secret string) (*domain.LinkResult, error) {
	if account.PasswordHash == nil || !password.Verify(secret, *account.PasswordHash) {
		l.log.Info("existing account link rejected",
			zap.String("account_id", account.ID.String()),
			zap.String("invitation_id", inv.ID.String()),
		)
		return nil, domain.ErrInvalidCredentials
	}
	return l.link(ctx, account, tgt, inv)
}

func (l *Linker) resolveTarget(ctx context.Context, inv *invitationdomain.Invitation) (target, error) {
	switch inv.Kind {
	case invitationdomain.KindClient:
		if inv.TargetContactID == nil {
			return target{}, domain.ErrInvalidState
		}
		contact, err := l.companies.GetContact(ctx, *inv.TargetContactID)
		if err != nil {
			if errors.Is(err, companydomain.ErrContactNotFound) {
				return target{}, domain.ErrInvalidState
			}
			return target{}, err
		}
		email, err := normalizeEmail(contact.Email)
		if err != nil {
			return target{}, domain.ErrInvalidEmail
		}
		contactID := contact.ID
		return target{
			email:       email,
			displayName: strings.TrimSpace(contact.Name),
			contactID:   &contactID,
			role:        domain.RoleClient,
		}, nil
	case invitationdomain.KindTeam:
		if inv.TargetEmail == nil {
			return target{}, domain.ErrInvalidState
		}
		email, err := normalizeEmail(*inv.TargetEmail)
		if err != nil {
			return target{}, domain.ErrInvalidEmail
		}
		return target{email: email, role: domain.RoleStaff}, nil
	default:
		return target{}, domain.ErrInvalidState
	}
}

func (l *Linker) create(ctx context.Context, tgt target, req domain.LinkRequest) (*domain.Account, error) {
	if err := password.Validate(req.Password); err != nil {
		return nil, domain.ErrInvalidPassword
	}
	hashed, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = tgt.displayName
	}
	if displayName == "" {
		displayName = defaultDisplayName(tgt.email)
	}

	now := l.clock.Now()
	account := &domain.Account{
		ID:                  l.genID.Generate(),
		Email:               tgt.email,
		DisplayName:         displayName,
		PasswordHash:        &hashed,
		Role:                tgt.role,
		ContactID:           tgt.contactID,
		LastPasswordChanged: &now,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := l.repo.Create(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// link attaches an existing account to the invitation target. A client
// account counts as linked once it has a contact, a team account once its
// role reaches staff.
func (l *Linker) link(ctx context.Context, account *domain.Account, tgt target, inv *invitationdomain.Invitation) (*domain.LinkResult, error) {
	now := l.clock.Now()

	var (
		changed bool
		err     error
	)
	switch {
	case tgt.contactID != nil:
		if account.ContactID != nil {
			if *account.ContactID != *tgt.contactID {
				l.log.Warn("account already linked to another contact",
					zap.String("account_id", account.ID.String()),
					zap.String("invitation_id", inv.ID.String()),
				)
			}
			return &domain.LinkResult{AccountID: account.ID, Account: account}, nil
		}
		changed, err = l.repo.Link(ctx, domain.LinkUpdate{
			ID:        account.ID,
			ContactID: tgt.contactID,
			Role:      account.Role.Max(tgt.role),
			UpdatedAt: now,
		})
	default:
		if account.Role.AtLeast(tgt.role) {
			return &domain.LinkResult{AccountID: account.ID, Account: account}, nil
		}
		changed, err = l.repo.Promote(ctx, account.ID, account.Role, tgt.role, now)
	}
	if err != nil {
		return nil, err
	}

	// Re-read either way: a concurrent link may have won the conditional update.
	fresh, err := l.repo.FindByID(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	if changed {
		l.writeAudit(ctx, "account.linked", fresh, inv)
	}
	return &domain.LinkResult{AccountID: fresh.ID, Account: fresh}, nil
}

func (l *Linker) writeAudit(ctx context.Context, action string, account *domain.Account, inv *invitationdomain.Invitation) {
	if l.audit == nil || account == nil {
		return
	}
	metadata := map[string]any{
		"role":            string(account.Role),
		"invitation_id":   inv.ID.String(),
		"invitation_kind": string(inv.Kind),
	}
	if account.ContactID != nil {
		metadata["contact_id"] = account.ContactID.String()
	}
	if err := l.audit.AuditLog(ctx, auditdomain.Entry{
		Action:     action,
		TargetType: "account",
		TargetID:   account.ID.String(),
		Metadata:   metadata,
	}); err != nil {
		l.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(addr.Address)), nil
}

func defaultDisplayName(email string) string {
	local, _, _ := strings.Cut(email, "@")
	if strings.TrimSpace(local) != "" {
		return strings.TrimSpace(local)
	}
	return email
}
