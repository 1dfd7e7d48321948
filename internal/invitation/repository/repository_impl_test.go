package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/portal/internal/invitation/domain"
	"github.com/smallbiznis/portal/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newRepo(t *testing.T) domain.Repository {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Invitation{}))
	return NewRepository(conn)
}

func clientInvitation(id int64, token string, companyID, contactID snowflake.ID) *domain.Invitation {
	return &domain.Invitation{
		ID:              snowflake.ID(id),
		Token:           token,
		Kind:            domain.KindClient,
		Status:          domain.StatusPending,
		TargetCompanyID: &companyID,
		TargetContactID: &contactID,
		InvitedBy:       1,
		CreatedAt:       now,
		ExpiresAt:       now.Add(7 * 24 * time.Hour),
		UpdatedAt:       now,
	}
}

func TestCreateRejectsDuplicateToken(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	tok := strings.Repeat("a", 43)

	require.NoError(t, repo.Create(ctx, clientInvitation(1, tok, 10, 20)))
	err := repo.Create(ctx, clientInvitation(2, tok, 10, 21))
	assert.ErrorIs(t, err, domain.ErrTokenConflict)
}

func TestFindActive(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, clientInvitation(1, strings.Repeat("a", 43), 10, 20)))

	target := domain.Target{Kind: domain.KindClient, CompanyID: 10, ContactID: 20}
	found, err := repo.FindActive(ctx, target, now)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(1), found.ID)

	_, err = repo.FindActive(ctx, target, now.Add(8*24*time.Hour))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = repo.FindActive(ctx, domain.Target{Kind: domain.KindClient, CompanyID: 10, ContactID: 99}, now)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFindActiveTeamMatchesEmailCaseInsensitively(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	addr := "ops@portal.test"
	require.NoError(t, repo.Create(ctx, &domain.Invitation{
		ID:          1,
		Token:       strings.Repeat("t", 43),
		Kind:        domain.KindTeam,
		Status:      domain.StatusPending,
		TargetEmail: &addr,
		InvitedBy:   1,
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Hour),
		UpdatedAt:   now,
	}))

	found, err := repo.FindActive(ctx, domain.Target{Kind: domain.KindTeam, Email: " OPS@portal.test "}, now)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(1), found.ID)
}

func TestUpdateStatusIsConditional(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	tok := strings.Repeat("a", 43)
	require.NoError(t, repo.Create(ctx, clientInvitation(1, tok, 10, 20)))

	wrongCompany := snowflake.ID(11)
	changed, err := repo.UpdateStatus(ctx, domain.StatusUpdate{
		Token:     tok,
		From:      []domain.Status{domain.StatusPending},
		To:        domain.StatusAccepted,
		CompanyID: &wrongCompany,
		UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.False(t, changed)

	late := now.Add(8 * 24 * time.Hour)
	changed, err = repo.UpdateStatus(ctx, domain.StatusUpdate{
		Token:     tok,
		From:      []domain.Status{domain.StatusPending},
		To:        domain.StatusAccepted,
		ValidAt:   &late,
		UpdatedAt: late,
	})
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = repo.UpdateStatus(ctx, domain.StatusUpdate{
		ID:        1,
		From:      []domain.Status{domain.StatusPending},
		To:        domain.StatusExpired,
		ExpiredAt: &now,
		UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.False(t, changed, "not yet past expires_at")

	usedAt := now.Add(time.Hour)
	usedBy := snowflake.ID(77)
	changed, err = repo.UpdateStatus(ctx, domain.StatusUpdate{
		Token:     tok,
		From:      []domain.Status{domain.StatusPending},
		To:        domain.StatusAccepted,
		ValidAt:   &usedAt,
		UsedAt:    &usedAt,
		UsedBy:    &usedBy,
		UpdatedAt: usedAt,
	})
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.UpdateStatus(ctx, domain.StatusUpdate{
		ID:        1,
		From:      []domain.Status{domain.StatusPending},
		To:        domain.StatusRevoked,
		UpdatedAt: usedAt,
	})
	require.NoError(t, err)
	assert.False(t, changed)

	stored, err := repo.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAccepted, stored.Status)
	require.NotNil(t, stored.UsedBy)
	assert.Equal(t, usedBy, *stored.UsedBy)
	require.NotNil(t, stored.UsedAt)
	assert.True(t, usedAt.Equal(*stored.UsedAt))
}

func TestUpdateStatusWithoutKey(t *testing.T) {
	repo := newRepo(t)
	_, err := repo.UpdateStatus(context.Background(), domain.StatusUpdate{To: domain.StatusRevoked})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListFiltersAndOrders(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	first := clientInvitation(1, strings.Repeat("a", 43), 10, 20)
	second := clientInvitation(2, strings.Repeat("b", 43), 10, 21)
	second.CreatedAt = now.Add(time.Minute)
	other := clientInvitation(3, strings.Repeat("c", 43), 11, 22)
	other.Status = domain.StatusRevoked
	for _, inv := range []*domain.Invitation{first, second, other} {
		require.NoError(t, repo.Create(ctx, inv))
	}

	companyID := snowflake.ID(10)
	items, err := repo.List(ctx, domain.ListFilter{CompanyID: &companyID})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, snowflake.ID(2), items[0].ID)

	revoked, err := repo.List(ctx, domain.ListFilter{Status: domain.StatusRevoked})
	require.NoError(t, err)
	require.Len(t, revoked, 1)
	assert.Equal(t, snowflake.ID(3), revoked[0].ID)

	limited, err := repo.List(ctx, domain.ListFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestListTreatsLapsedPendingAsExpired(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	lapsed := clientInvitation(1, strings.Repeat("a", 43), 10, 20)
	lapsed.ExpiresAt = now.Add(-time.Minute)
	live := clientInvitation(2, strings.Repeat("b", 43), 10, 21)
	for _, inv := range []*domain.Invitation{lapsed, live} {
		require.NoError(t, repo.Create(ctx, inv))
	}

	pending, err := repo.List(ctx, domain.ListFilter{Status: domain.StatusPending, Now: now})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, snowflake.ID(2), pending[0].ID)

	expired, err := repo.List(ctx, domain.ListFilter{Status: domain.StatusExpired, Now: now})
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, snowflake.ID(1), expired[0].ID)

	stored, err := repo.List(ctx, domain.ListFilter{Status: domain.StatusPending})
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}
