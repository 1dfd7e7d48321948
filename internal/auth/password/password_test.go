package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashVerify(t *testing.T) {
	encoded, err := Hash("correct-horse")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$"))

	assert.True(t, Verify("correct-horse", encoded))
	assert.False(t, Verify("battery-staple", encoded))
}

func TestHashIsSalted(t *testing.T) {
	a, err := Hash("same-password")
	require.NoError(t, err)
	b, err := Hash("same-password")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyRejectsMalformed(t *testing.T) {
	for _, encoded := range []string{
		"",
		"plain",
		"$argon2i$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=x,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=1,t=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=1,t=1,p=0$c2FsdA$aGFzaA",
	} {
		assert.False(t, Verify("anything", encoded), encoded)
	}
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, Validate("short"), ErrTooShort)
	assert.ErrorIs(t, Validate("   padded   "), ErrTooShort)
	assert.NoError(t, Validate("long-enough"))
}
