package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/portal/internal/account/domain"
	"github.com/smallbiznis/portal/internal/auth/domain"
	"github.com/smallbiznis/portal/internal/auth/password"
	"github.com/smallbiznis/portal/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	sessionTokenBytes = 32
	sessionTTL        = 7 * 24 * time.Hour
)

type Params struct {
	fx.In

	Log         *zap.Logger
	Accounts    accountdomain.Repository
	SessionRepo domain.SessionRepository
	Clock       clock.Clock
	GenID       *snowflake.Node
}

type Service struct {
	log         *zap.Logger
	accounts    accountdomain.Repository
	sessionRepo domain.SessionRepository
	clock       clock.Clock
	genID       *snowflake.Node
}

func New(p Params) domain.Service {
	return &Service{
		log:         p.Log.Named("auth.service"),
		accounts:    p.Accounts,
		sessionRepo: p.SessionRepo,
		clock:       p.Clock,
		genID:       p.GenID,
	}
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResult, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if strings.TrimSpace(req.Password) == "" {
		return nil, domain.ErrInvalidCredentials
	}

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, accountdomain.ErrNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if account.PasswordHash == nil || !password.Verify(req.Password, *account.PasswordHash) {
		s.log.Debug("login rejected", zap.String("account_id", account.ID.String()))
		return nil, domain.ErrInvalidCredentials
	}

	return s.open(ctx, account, req.UserAgent, req.IPAddress)
}

func (s *Service) IssueSession(ctx context.Context, req domain.IssueSessionRequest) (*domain.LoginResult, error) {
	account, err := s.accounts.FindByID(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	return s.open(ctx, account, req.UserAgent, req.IPAddress)
}

func (s *Service) open(ctx context.Context, account *accountdomain.Account, userAgent, ipAddress string) (*domain.LoginResult, error) {
	rawToken, err := newSessionToken()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	session := &domain.Session{
		ID:               s.genID.Generate(),
		AccountID:        account.ID,
		SessionTokenHash: hashToken(rawToken),
		UserAgent:        strings.TrimSpace(userAgent),
		IPAddress:        strings.TrimSpace(ipAddress),
		ExpiresAt:        now.Add(sessionTTL),
		CreatedAt:        now,
		LastSeenAt:       now,
	}
	if err := s.sessionRepo.Insert(ctx, session); err != nil {
		return nil, err
	}

	principal := principalOf(account)
	principal.SessionID = session.ID
	return &domain.LoginResult{
		Principal: principal,
		RawToken:  rawToken,
		IssuedAt:  now,
		ExpiresAt: session.ExpiresAt,
		SessionID: session.ID,
	}, nil
}

func (s *Service) Logout(ctx context.Context, rawToken string) error {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return domain.ErrInvalidSession
	}

	session, err := s.sessionRepo.FindByTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return domain.ErrInvalidSession
		}
		return err
	}

	if err := s.sessionRepo.Revoke(ctx, session.ID, s.clock.Now()); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return domain.ErrInvalidSession
		}
		return err
	}
	return nil
}

func (s *Service) Authenticate(ctx context.Context, rawToken string) (*domain.Principal, error) {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return nil, domain.ErrInvalidSession
	}

	session, err := s.sessionRepo.FindByTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.ErrInvalidSession
		}
		return nil, err
	}

	now := s.clock.Now()
	if session.RevokedAt != nil {
		return nil, domain.ErrSessionRevoked
	}
	if now.After(session.ExpiresAt) {
		return nil, domain.ErrSessionExpired
	}

	account, err := s.accounts.FindByID(ctx, session.AccountID)
	if err != nil {
		if errors.Is(err, accountdomain.ErrNotFound) {
			return nil, domain.ErrInvalidSession
		}
		return nil, err
	}

	if err := s.sessionRepo.Touch(ctx, session.ID, now); err != nil {
		return nil, err
	}

	principal := principalOf(account)
	principal.SessionID = session.ID
	return principal, nil
}

func principalOf(account *accountdomain.Account) *domain.Principal {
	return &domain.Principal{
		AccountID:   account.ID,
		Email:       account.Email,
		DisplayName: account.DisplayName,
		Role:        string(account.Role),
		ContactID:   account.ContactID,
	}
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(addr.Address)), nil
}

func newSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
