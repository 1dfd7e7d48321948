package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/portal/internal/account/domain"
	"github.com/smallbiznis/portal/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

func newRepo(t *testing.T) domain.Repository {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Account{}))
	return NewRepository(conn)
}

func newAccount(id snowflake.ID, addr string) *domain.Account {
	return &domain.Account{
		ID:          id,
		Email:       addr,
		DisplayName: "Someone",
		Role:        domain.RoleClient,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestCreateDuplicateEmail(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newAccount(1, "a@example.com")))
	err := repo.Create(ctx, newAccount(2, "a@example.com"))
	assert.ErrorIs(t, err, domain.ErrAccountExists)
}

func TestFindByEmailNormalizes(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newAccount(1, "a@example.com")))

	found, err := repo.FindByEmail(ctx, "  A@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(1), found.ID)

	_, err = repo.FindByEmail(ctx, "b@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = repo.FindByID(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLinkOnlyOnce(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newAccount(1, "a@example.com")))

	first := snowflake.ID(10)
	changed, err := repo.Link(ctx, domain.LinkUpdate{ID: 1, ContactID: &first, Role: domain.RoleClient, UpdatedAt: now})
	require.NoError(t, err)
	assert.True(t, changed)

	second := snowflake.ID(20)
	changed, err = repo.Link(ctx, domain.LinkUpdate{ID: 1, ContactID: &second, Role: domain.RoleClient, UpdatedAt: now})
	require.NoError(t, err)
	assert.False(t, changed)

	found, err := repo.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, first, *found.ContactID)
}

func TestPromoteIsConditional(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newAccount(1, "a@example.com")))

	changed, err := repo.Promote(ctx, 1, domain.RoleClient, domain.RoleStaff, now)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.Promote(ctx, 1, domain.RoleClient, domain.RoleStaff, now)
	require.NoError(t, err)
	assert.False(t, changed)

	found, err := repo.FindByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleStaff, found.Role)
}
