package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword_CheckPassword(t *testing.T) {
	h, err := HashPassword("admin123")
	require.NoError(t, err)
	require.NotEqual(t, "admin123", h)

	assert.True(t, CheckPassword(h, "admin123"))
	assert.False(t, CheckPassword(h, "admin124"))
	assert.False(t, CheckPassword("not-a-bcrypt-hash", "admin123"))
}
