package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/portal/internal/account/domain"
	accountrepository "github.com/smallbiznis/portal/internal/account/repository"
	authdomain "github.com/smallbiznis/portal/internal/auth/domain"
	"github.com/smallbiznis/portal/internal/auth/password"
	"github.com/smallbiznis/portal/internal/auth/repository"
	"github.com/smallbiznis/portal/internal/clock"
	"github.com/smallbiznis/portal/pkg/db"
	"go.uber.org/zap"
)

type testEnv struct {
	svc      authdomain.Service
	accounts accountdomain.Repository
	sessions authdomain.SessionRepository
	clock    *clock.FakeClock
	node     *snowflake.Node
}

func newTestService(t *testing.T) *testEnv {
	t.Helper()

	dbConn, err := db.NewTest()
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := dbConn.AutoMigrate(&accountdomain.Account{}, &authdomain.Session{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}

	accounts := accountrepository.NewRepository(dbConn)
	sessions := repository.New(dbConn)
	fake := clock.NewFakeClock(time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC))
	return &testEnv{
		svc: New(Params{
			Log:         zap.NewNop(),
			Accounts:    accounts,
			SessionRepo: sessions,
			Clock:       fake,
			GenID:       node,
		}),
		accounts: accounts,
		sessions: sessions,
		clock:    fake,
		node:     node,
	}
}

func (e *testEnv) createAccount(t *testing.T, email, secret string) *accountdomain.Account {
	t.Helper()
	hashed, err := password.Hash(secret)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	now := e.clock.Now()
	account := &accountdomain.Account{
		ID:           e.node.Generate(),
		Email:        email,
		DisplayName:  "Alice",
		PasswordHash: &hashed,
		Role:         accountdomain.RoleStaff,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.accounts.Create(context.Background(), account); err != nil {
		t.Fatalf("failed to create account: %v", err)
	}
	return account
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestService(t)
	env.createAccount(t, "alice@example.com", "correct-password")

	_, err := env.svc.Login(context.Background(), authdomain.LoginRequest{
		Email:    "alice@example.com",
		Password: "wrong-password",
	})
	if err != authdomain.ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	_, err = env.svc.Login(context.Background(), authdomain.LoginRequest{
		Email:    "nobody@example.com",
		Password: "correct-password",
	})
	if err != authdomain.ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestLoginAuthenticateLogout(t *testing.T) {
	env := newTestService(t)
	account := env.createAccount(t, "alice@example.com", "correct-password")

	res, err := env.svc.Login(context.Background(), authdomain.LoginRequest{
		Email:     " Alice@Example.com ",
		Password:  "correct-password",
		UserAgent: "test",
		IPAddress: "10.0.0.1",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if res.RawToken == "" {
		t.Fatal("expected raw token")
	}

	principal, err := env.svc.Authenticate(context.Background(), res.RawToken)
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if principal.AccountID != account.ID {
		t.Fatalf("expected account %s, got %s", account.ID, principal.AccountID)
	}
	if principal.Role != string(accountdomain.RoleStaff) {
		t.Fatalf("expected staff role, got %s", principal.Role)
	}

	if err := env.svc.Logout(context.Background(), res.RawToken); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if _, err := env.svc.Authenticate(context.Background(), res.RawToken); err != authdomain.ErrSessionRevoked {
		t.Fatalf("expected ErrSessionRevoked, got %v", err)
	}
	if err := env.svc.Logout(context.Background(), res.RawToken); err != authdomain.ErrInvalidSession {
		t.Fatalf("expected ErrInvalidSession on second logout, got %v", err)
	}
}

func TestAuthenticateExpiredSession(t *testing.T) {
	env := newTestService(t)
	account := env.createAccount(t, "alice@example.com", "correct-password")

	res, err := env.svc.IssueSession(context.Background(), authdomain.IssueSessionRequest{AccountID: account.ID})
	if err != nil {
		t.Fatalf("issue session failed: %v", err)
	}

	env.clock.Advance(sessionTTL + time.Minute)
	if _, err := env.svc.Authenticate(context.Background(), res.RawToken); err != authdomain.ErrSessionExpired {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestAuthenticateUnknownToken(t *testing.T) {
	env := newTestService(t)

	if _, err := env.svc.Authenticate(context.Background(), ""); err != authdomain.ErrInvalidSession {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
	if _, err := env.svc.Authenticate(context.Background(), "not-a-session"); err != authdomain.ErrInvalidSession {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
}

func TestSessionTokenIsHashedAtRest(t *testing.T) {
	raw, err := newSessionToken()
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if hashToken(raw) == raw {
		t.Fatal("expected token hash to differ from raw token")
	}
	if len(hashToken(raw)) != 64 {
		t.Fatalf("expected sha256 hex, got %d chars", len(hashToken(raw)))
	}
}

func TestAuthenticateTouchesLastSeenAtMostOncePerMinute(t *testing.T) {
	env := newTestService(t)
	account := env.createAccount(t, "alice@example.com", "correct-password")

	res, err := env.svc.IssueSession(context.Background(), authdomain.IssueSessionRequest{AccountID: account.ID})
	if err != nil {
		t.Fatalf("issue session failed: %v", err)
	}
	issuedAt := env.clock.Now()

	env.clock.Advance(30 * time.Second)
	if _, err := env.svc.Authenticate(context.Background(), res.RawToken); err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	stored, err := env.sessions.FindByTokenHash(context.Background(), hashToken(res.RawToken))
	if err != nil {
		t.Fatalf("find session: %v", err)
	}
	if !stored.LastSeenAt.Equal(issuedAt) {
		t.Fatalf("expected last_seen_at unchanged, got %s", stored.LastSeenAt)
	}

	env.clock.Advance(time.Minute)
	if _, err := env.svc.Authenticate(context.Background(), res.RawToken); err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	stored, err = env.sessions.FindByTokenHash(context.Background(), hashToken(res.RawToken))
	if err != nil {
		t.Fatalf("find session: %v", err)
	}
	if !stored.LastSeenAt.Equal(env.clock.Now()) {
		t.Fatalf("expected last_seen_at %s, got %s", env.clock.Now(), stored.LastSeenAt)
	}
}
