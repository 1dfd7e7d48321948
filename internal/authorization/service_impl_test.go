package authorization

import (
	"context"
	"testing"

	"github.com/smallbiznis/portal/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	enforcer, err := NewEnforcer(conn)
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func TestAuthorizeByRole(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		role   string
		object string
		action string
		allow  bool
	}{
		{"staff", ObjectInvitation, ActionInvitationIssue, true},
		{"staff", ObjectInvitation, ActionInvitationView, true},
		{"staff", ObjectCompany, ActionCompanyManage, true},
		{"staff", ObjectInvitation, ActionInvitationRevoke, false},
		{"admin", ObjectInvitation, ActionInvitationRevoke, true},
		{"admin", ObjectInvitation, ActionInvitationIssue, true},
		{"admin", ObjectAuditLog, ActionAuditLogView, true},
		{"client", ObjectInvitation, ActionInvitationIssue, false},
		{"client", ObjectCompany, ActionCompanyView, false},
	}
	for i, tc := range cases {
		err := svc.Authorize(ctx, Actor{AccountID: "10" + string(rune('0'+i)), Role: tc.role}, tc.object, tc.action)
		if tc.allow {
			assert.NoError(t, err, "%s %s", tc.role, tc.action)
		} else {
			assert.ErrorIs(t, err, ErrForbidden, "%s %s", tc.role, tc.action)
		}
	}
}

func TestAuthorizeFollowsRoleChange(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Authorize(ctx, Actor{AccountID: "42", Role: "admin"}, ObjectInvitation, ActionInvitationRevoke))
	err := svc.Authorize(ctx, Actor{AccountID: "42", Role: "staff"}, ObjectInvitation, ActionInvitationRevoke)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAuthorizeValidatesInput(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, Actor{Role: "admin"}, ObjectCompany, ActionCompanyView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, Actor{AccountID: "1", Role: "admin"}, "", ActionCompanyView), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, Actor{AccountID: "1", Role: "admin"}, ObjectCompany, " "), ErrInvalidAction)
	assert.ErrorIs(t, svc.Authorize(ctx, Actor{AccountID: "1"}, ObjectCompany, ActionCompanyView), ErrForbidden)
}

func TestSeedPoliciesIsRepeatable(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)
	_, err = NewEnforcer(conn)
	require.NoError(t, err)
	enforcer, err := NewEnforcer(conn)
	require.NoError(t, err)

	policies, err := enforcer.GetPolicy()
	require.NoError(t, err)
	assert.Len(t, policies, 6)
}
