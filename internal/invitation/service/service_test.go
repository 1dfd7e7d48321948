package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	auditdomain "github.com/smallbiznis/portal/internal/audit/domain"
	auditrepository "github.com/smallbiznis/portal/internal/audit/repository"
	auditservice "github.com/smallbiznis/portal/internal/audit/service"
	"github.com/smallbiznis/portal/internal/clock"
	companydomain "github.com/smallbiznis/portal/internal/company/domain"
	companyrepository "github.com/smallbiznis/portal/internal/company/repository"
	"github.com/smallbiznis/portal/internal/config"
	"github.com/smallbiznis/portal/internal/invitation/domain"
	"github.com/smallbiznis/portal/internal/invitation/repository"
	"github.com/smallbiznis/portal/internal/invitation/token"
	"github.com/smallbiznis/portal/internal/providers/email"
	"github.com/smallbiznis/portal/internal/providers/email/mocks"
	"github.com/smallbiznis/portal/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	testStart = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	inviterID = snowflake.ID(1001)
)

type fixture struct {
	svc       *Service
	conn      *gorm.DB
	clock     *clock.FakeClock
	node      *snowflake.Node
	companies companydomain.Repository
	company   *companydomain.Company
	contact   *companydomain.Contact
}

type option func(*Params)

func withEmail(p email.Provider) option {
	return func(params *Params) { params.Email = p }
}

func withTokens(g token.Generator) option {
	return func(params *Params) { params.Tokens = g }
}

func withPolicy(p config.Policy) option {
	return func(params *Params) { params.Policy = config.NewStaticPolicy(p) }
}

func newFixture(t *testing.T, opts ...option) *fixture {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&domain.Invitation{},
		&companydomain.Company{},
		&companydomain.Contact{},
		&auditdomain.AuditLog{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(testStart)
	log := zap.NewNop()
	companies := companyrepository.NewRepository(conn)

	params := Params{
		DB:        conn,
		Log:       log,
		Repo:      repository.NewRepository(conn),
		Companies: companies,
		Clock:     fake,
		GenID:     node,
		Tokens:    token.New(),
		Policy:    config.NewStaticPolicy(config.DefaultPolicy()),
		Cfg:       config.Config{PublicBaseURL: "https://portal.test/"},
		Audit: auditservice.NewService(auditservice.Params{
			DB:    conn,
			Log:   log,
			Clock: fake,
			GenID: node,
			Repo:  auditrepository.Provide(),
		}),
	}
	for _, opt := range opts {
		opt(&params)
	}

	svc := newService(params)
	svc.dispatch = func(fn func()) { fn() }

	f := &fixture{
		svc:       svc,
		conn:      conn,
		clock:     fake,
		node:      node,
		companies: companies,
	}
	f.company = f.newCompany(t, "Acme Ltd")
	f.contact = f.newContact(t, f.company.ID, "Jane Doe", "jane@acme.test")
	return f
}

func (f *fixture) newCompany(t *testing.T, name string) *companydomain.Company {
	t.Helper()
	now := f.clock.Now()
	company := &companydomain.Company{
		ID:        f.node.Generate(),
		Name:      name,
		Slug:      strings.ToLower(strings.ReplaceAll(name, " ", "-")),
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, f.companies.CreateCompany(context.Background(), company))
	return company
}

func (f *fixture) newContact(t *testing.T, companyID snowflake.ID, name, addr string) *companydomain.Contact {
	t.Helper()
	contact := &companydomain.Contact{
		ID:        f.node.Generate(),
		CompanyID: companyID,
		Name:      name,
		Email:     addr,
		CreatedAt: f.clock.Now(),
	}
	require.NoError(t, f.companies.CreateContact(context.Background(), contact))
	return contact
}

func (f *fixture) issueClient(t *testing.T) *domain.Invitation {
	t.Helper()
	inv, err := f.svc.Issue(context.Background(), domain.IssueRequest{
		Kind:      domain.KindClient,
		CompanyID: f.company.ID,
		ContactID: f.contact.ID,
		InvitedBy: inviterID,
	})
	require.NoError(t, err)
	return inv
}

func (f *fixture) auditCount(t *testing.T, action string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(&auditdomain.AuditLog{}).Where("action = ?", action).Count(&n).Error)
	return n
}

func (f *fixture) stored(t *testing.T, id snowflake.ID) domain.Invitation {
	t.Helper()
	var inv domain.Invitation
	require.NoError(t, f.conn.Where("id = ?", id).First(&inv).Error)
	return inv
}

type seqTokens struct {
	mu     sync.Mutex
	tokens []string
}

func (g *seqTokens) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.tokens) == 0 {
		return "", errors.New("no tokens left")
	}
	next := g.tokens[0]
	g.tokens = g.tokens[1:]
	return next, nil
}

func TestResolveUnknownTokenIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	unseen, err := token.New().Generate()
	require.NoError(t, err)

	for _, raw := range []string{unseen, "", "short", strings.Repeat("!", token.Length)} {
		_, err := f.svc.Resolve(ctx, raw)
		assert.ErrorIs(t, err, domain.ErrNotFound, "token %q", raw)
	}
}

func TestIssueClientInvitation(t *testing.T) {
	f := newFixture(t)

	inv := f.issueClient(t)

	assert.True(t, token.WellFormed(inv.Token))
	assert.Equal(t, domain.StatusPending, inv.Status)
	assert.Equal(t, domain.KindClient, inv.Kind)
	assert.Equal(t, testStart.Add(7*24*time.Hour), inv.ExpiresAt)
	require.NotNil(t, inv.TargetCompanyID)
	require.NotNil(t, inv.TargetContactID)
	assert.Equal(t, f.company.ID, *inv.TargetCompanyID)
	assert.Equal(t, f.contact.ID, *inv.TargetContactID)
	assert.Nil(t, inv.TargetEmail)
	assert.Nil(t, inv.UsedAt)

	resolved, err := f.svc.Resolve(context.Background(), inv.Token)
	require.NoError(t, err)
	assert.Equal(t, inv.ID, resolved.ID)
	assert.Equal(t, domain.StatusPending, resolved.Status)

	assert.Equal(t, int64(1), f.auditCount(t, "invitation.issued"))
}

func TestIssueTeamInvitationNormalizesEmail(t *testing.T) {
	f := newFixture(t)

	inv, err := f.svc.Issue(context.Background(), domain.IssueRequest{
		Kind:      domain.KindTeam,
		Email:     "  Sam Staff <Sam.Staff@Example.COM> ",
		InvitedBy: inviterID,
	})
	require.NoError(t, err)
	require.NotNil(t, inv.TargetEmail)
	assert.Equal(t, "sam.staff@example.com", *inv.TargetEmail)
	assert.Nil(t, inv.TargetCompanyID)

	_, err = f.svc.Issue(context.Background(), domain.IssueRequest{
		Kind:      domain.KindTeam,
		Email:     "sam.staff@example.com",
		InvitedBy: inviterID,
	})
	assert.ErrorIs(t, err, domain.ErrDuplicate)
}

func TestIssueValidation(t *testing.T) {
	f := newFixture(t)
	other := f.newCompany(t, "Other Co")
	stranger := f.newContact(t, other.ID, "Stranger", "stranger@other.test")

	cases := []struct {
		name string
		req  domain.IssueRequest
		want error
	}{
		{
			name: "missing inviter",
			req:  domain.IssueRequest{Kind: domain.KindClient, CompanyID: f.company.ID, ContactID: f.contact.ID},
			want: domain.ErrInvalidInviter,
		},
		{
			name: "unknown kind",
			req:  domain.IssueRequest{Kind: "PARTNER", InvitedBy: inviterID},
			want: domain.ErrInvalidKind,
		},
		{
			name: "unknown company",
			req:  domain.IssueRequest{Kind: domain.KindClient, CompanyID: 42, ContactID: f.contact.ID, InvitedBy: inviterID},
			want: domain.ErrInvalidCompany,
		},
		{
			name: "unknown contact",
			req:  domain.IssueRequest{Kind: domain.KindClient, CompanyID: f.company.ID, ContactID: 42, InvitedBy: inviterID},
			want: domain.ErrInvalidContact,
		},
		{
			name: "contact of another company",
			req:  domain.IssueRequest{Kind: domain.KindClient, CompanyID: f.company.ID, ContactID: stranger.ID, InvitedBy: inviterID},
			want: domain.ErrInvalidContact,
		},
		{
			name: "bad team email",
			req:  domain.IssueRequest{Kind: domain.KindTeam, Email: "not-an-email", InvitedBy: inviterID},
			want: domain.ErrInvalidEmail,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Issue(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestIssueDuplicateWhilePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.issueClient(t)

	_, err := f.svc.Issue(ctx, domain.IssueRequest{
		Kind:      domain.KindClient,
		CompanyID: f.company.ID,
		ContactID: f.contact.ID,
		InvitedBy: inviterID,
	})
	require.ErrorIs(t, err, domain.ErrDuplicate)

	require.NoError(t, f.svc.Revoke(ctx, domain.RevokeRequest{InvitationID: first.ID, RevokedBy: inviterID}))
	second := f.issueClient(t)
	assert.NotEqual(t, first.Token, second.Token)

	f.clock.Advance(8 * 24 * time.Hour)
	third := f.issueClient(t)
	assert.NotEqual(t, second.ID, third.ID)
}

func TestIssueConcurrentForSameTarget(t *testing.T) {
	f := newFixture(t)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.Issue(context.Background(), domain.IssueRequest{
				Kind:      domain.KindClient,
				CompanyID: f.company.ID,
				ContactID: f.contact.ID,
				InvitedBy: inviterID,
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			successes++
		}()
	}
	close(start)
	wg.Wait()

	require.GreaterOrEqual(t, successes, 1)
	for _, err := range failures {
		assert.ErrorIs(t, err, domain.ErrDuplicate)
	}

	var pending int64
	require.NoError(t, f.conn.Model(&domain.Invitation{}).
		Where("target_contact_id = ? AND status = ?", f.contact.ID, domain.StatusPending).
		Count(&pending).Error)
	assert.Equal(t, int64(successes), pending)
	// The test store serialises transactions, so the check-then-insert window is closed here.
	assert.Equal(t, 1, successes)
}

func TestIssueRetriesOnTokenCollision(t *testing.T) {
	a := strings.Repeat("A", token.Length)
	b := strings.Repeat("B", token.Length)
	f := newFixture(t, withTokens(&seqTokens{tokens: []string{a, a, b}}))
	second := f.newContact(t, f.company.ID, "John Roe", "john@acme.test")

	first := f.issueClient(t)
	assert.Equal(t, a, first.Token)

	inv, err := f.svc.Issue(context.Background(), domain.IssueRequest{
		Kind:      domain.KindClient,
		CompanyID: f.company.ID,
		ContactID: second.ID,
		InvitedBy: inviterID,
	})
	require.NoError(t, err)
	assert.Equal(t, b, inv.Token)
}

func TestIssueGivesUpAfterTokenAttempts(t *testing.T) {
	a := strings.Repeat("A", token.Length)
	policy := config.DefaultPolicy()
	policy.TokenIssueAttempts = 2
	f := newFixture(t, withTokens(&seqTokens{tokens: []string{a, a, a}}), withPolicy(policy))
	second := f.newContact(t, f.company.ID, "John Roe", "john@acme.test")

	f.issueClient(t)

	_, err := f.svc.Issue(context.Background(), domain.IssueRequest{
		Kind:      domain.KindClient,
		CompanyID: f.company.ID,
		ContactID: second.ID,
		InvitedBy: inviterID,
	})
	assert.ErrorIs(t, err, domain.ErrTokenConflict)
}

func TestIssueSendsNotification(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockProvider(ctrl)

	var body string
	provider.EXPECT().
		Send(gomock.Any(), []string{"jane@acme.test"}, "Complete the onboarding of Acme Ltd", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ []string, _ string, html string) error {
			body = html
			return nil
		})

	f := newFixture(t, withEmail(provider))
	inv := f.issueClient(t)

	assert.Contains(t, body, "https://portal.test/onboarding/"+inv.Token)
	assert.Contains(t, body, "Jane Doe")
}

func TestIssueSurvivesNotificationFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockProvider(ctrl)
	provider.EXPECT().
		Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(errors.New("smtp: connection refused"))

	f := newFixture(t, withEmail(provider))
	inv := f.issueClient(t)

	stored := f.stored(t, inv.ID)
	assert.Equal(t, domain.StatusPending, stored.Status)
}

func TestResolveExpiresLazilyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.issueClient(t)

	f.clock.Advance(7 * 24 * time.Hour)
	atBoundary, err := f.svc.Resolve(ctx, inv.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, atBoundary.Status)

	f.clock.Advance(24 * time.Hour)
	expired, err := f.svc.Resolve(ctx, inv.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, expired.Status)
	assert.Equal(t, domain.StatusExpired, f.stored(t, inv.ID).Status)
	assert.Nil(t, expired.UsedAt)

	again, err := f.svc.Resolve(ctx, inv.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, again.Status)
	assert.Equal(t, int64(1), f.auditCount(t, "invitation.expired"))
}

func TestRevoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.issueClient(t)

	require.NoError(t, f.svc.Revoke(ctx, domain.RevokeRequest{InvitationID: inv.ID, RevokedBy: inviterID}))
	assert.Equal(t, domain.StatusRevoked, f.stored(t, inv.ID).Status)

	require.NoError(t, f.svc.Revoke(ctx, domain.RevokeRequest{InvitationID: inv.ID, RevokedBy: inviterID}))
	assert.Equal(t, int64(1), f.auditCount(t, "invitation.revoked"))

	assert.ErrorIs(t, f.svc.Revoke(ctx, domain.RevokeRequest{InvitationID: 0}), domain.ErrInvalidID)
	assert.ErrorIs(t, f.svc.Revoke(ctx, domain.RevokeRequest{InvitationID: 777}), domain.ErrNotFound)
}

func TestRevokeTerminalInvitationIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.issueClient(t)

	_, err := f.svc.Consume(ctx, domain.ConsumeRequest{Token: inv.Token})
	require.NoError(t, err)

	require.NoError(t, f.svc.Revoke(ctx, domain.RevokeRequest{InvitationID: inv.ID, RevokedBy: inviterID}))
	assert.Equal(t, domain.StatusAccepted, f.stored(t, inv.ID).Status)
}

func TestConsume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.issueClient(t)
	usedBy := snowflake.ID(55)

	consumed, err := f.svc.Consume(ctx, domain.ConsumeRequest{Token: inv.Token, CompanyID: &f.company.ID, UsedBy: &usedBy})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAccepted, consumed.Status)
	require.NotNil(t, consumed.UsedAt)
	assert.True(t, testStart.Equal(*consumed.UsedAt))
	require.NotNil(t, consumed.UsedBy)
	assert.Equal(t, usedBy, *consumed.UsedBy)

	again, err := f.svc.Consume(ctx, domain.ConsumeRequest{Token: inv.Token})
	assert.ErrorIs(t, err, domain.ErrAlreadyUsed)
	require.NotNil(t, again)
	assert.Equal(t, domain.StatusAccepted, again.Status)
}

func TestConsumeDoesNotResurrectTerminalInvitations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	revoked := f.issueClient(t)
	require.NoError(t, f.svc.Revoke(ctx, domain.RevokeRequest{InvitationID: revoked.ID}))

	_, err := f.svc.Consume(ctx, domain.ConsumeRequest{Token: revoked.Token})
	assert.ErrorIs(t, err, domain.ErrRevoked)
	assert.Equal(t, domain.StatusRevoked, f.stored(t, revoked.ID).Status)

	expiring := f.issueClient(t)
	f.clock.Advance(8 * 24 * time.Hour)

	inv, err := f.svc.Consume(ctx, domain.ConsumeRequest{Token: expiring.Token})
	assert.ErrorIs(t, err, domain.ErrExpired)
	require.NotNil(t, inv)
	assert.Equal(t, domain.StatusExpired, inv.Status)
	assert.Nil(t, f.stored(t, expiring.ID).UsedAt)
}

func TestConsumeScopedToCompany(t *testing.T) {
	f := newFixture(t)
	other := f.newCompany(t, "Other Co")
	inv := f.issueClient(t)

	_, err := f.svc.Consume(context.Background(), domain.ConsumeRequest{Token: inv.Token, CompanyID: &other.ID})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, domain.StatusPending, f.stored(t, inv.ID).Status)
}

func TestLookupStates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	missing, err := f.svc.Lookup(ctx, strings.Repeat("z", token.Length))
	require.NoError(t, err)
	assert.Equal(t, domain.ViewNotFound, missing.State)

	pending := f.issueClient(t)
	view, err := f.svc.Lookup(ctx, pending.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.ViewValid, view.State)
	require.NotNil(t, view.ExpiresAt)

	require.NoError(t, f.svc.Revoke(ctx, domain.RevokeRequest{InvitationID: pending.ID}))
	view, err = f.svc.Lookup(ctx, pending.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.ViewExpired, view.State)
	assert.Equal(t, domain.StatusRevoked, view.Status)

	used := f.issueClient(t)
	_, err = f.svc.Consume(ctx, domain.ConsumeRequest{Token: used.Token})
	require.NoError(t, err)
	view, err = f.svc.Lookup(ctx, used.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.ViewUsed, view.State)

	stale := f.issueClient(t)
	f.clock.Advance(8 * 24 * time.Hour)
	view, err = f.svc.Lookup(ctx, stale.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.ViewExpired, view.State)
	assert.Equal(t, domain.StatusExpired, view.Status)
}

func TestLookupPendingInvitationOfAcceptedCompanyShowsUsed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.issueClient(t)

	now := f.clock.Now()
	changed, err := f.companies.UpdateFields(ctx, f.company.ID, map[string]string{
		companydomain.FieldLegalName:     "Acme Limited",
		companydomain.FieldTaxID:         "TAX-1",
		companydomain.FieldFiscalAddress: "1 Main St",
	}, now)
	require.NoError(t, err)
	require.True(t, changed)
	changed, err = f.companies.UpdateAcceptance(ctx, companydomain.Acceptance{
		CompanyID:      f.company.ID,
		AcceptedAt:     now,
		AcceptedByID:   f.contact.ID,
		AcceptedByName: f.contact.Name,
		TermsVersion:   "v1",
	})
	require.NoError(t, err)
	require.True(t, changed)

	view, err := f.svc.Lookup(ctx, inv.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.ViewUsed, view.State)
	assert.Equal(t, domain.StatusPending, view.Status)
}

func TestList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.issueClient(t)
	_, err := f.svc.Issue(ctx, domain.IssueRequest{Kind: domain.KindTeam, Email: "ops@portal.test", InvitedBy: inviterID})
	require.NoError(t, err)

	all, err := f.svc.List(ctx, domain.ListRequest{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	clients, err := f.svc.List(ctx, domain.ListRequest{CompanyID: &f.company.ID})
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, domain.KindClient, clients[0].Kind)

	_, err = f.svc.List(ctx, domain.ListRequest{Kind: "PARTNER"})
	assert.ErrorIs(t, err, domain.ErrInvalidKind)

	f.clock.Advance(8 * 24 * time.Hour)
	lapsed, err := f.svc.List(ctx, domain.ListRequest{})
	require.NoError(t, err)
	require.Len(t, lapsed, 2)
	for _, inv := range lapsed {
		assert.Equal(t, domain.StatusExpired, inv.Status)

		var stored domain.Invitation
		require.NoError(t, f.conn.Where("id = ?", inv.ID).First(&stored).Error)
		assert.Equal(t, domain.StatusPending, stored.Status)
	}

	pending, err := f.svc.List(ctx, domain.ListRequest{Status: domain.StatusPending})
	require.NoError(t, err)
	assert.Empty(t, pending)

	expired, err := f.svc.List(ctx, domain.ListRequest{Status: domain.StatusExpired})
	require.NoError(t, err)
	assert.Len(t, expired, 2)
}

func TestInvitationLink(t *testing.T) {
	svc := &Service{baseURL: "https://portal.test"}
	assert.Equal(t, "https://portal.test/onboarding/abc", svc.InvitationLink(domain.Invitation{Kind: domain.KindClient, Token: "abc"}))
	assert.Equal(t, "https://portal.test/invitations/abc", svc.InvitationLink(domain.Invitation{Kind: domain.KindTeam, Token: "abc"}))
}
