package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleOrdering(t *testing.T) {
	assert.True(t, RoleAdmin.AtLeast(RoleStaff))
	assert.True(t, RoleStaff.AtLeast(RoleStaff))
	assert.False(t, RoleClient.AtLeast(RoleStaff))
	assert.Equal(t, RoleStaff, RoleClient.Max(RoleStaff))
	assert.Equal(t, RoleAdmin, RoleAdmin.Max(RoleStaff))

	role, ok := ParseRole(" Admin ")
	assert.True(t, ok)
	assert.Equal(t, RoleAdmin, role)
	_, ok = ParseRole("owner")
	assert.False(t, ok)
}
