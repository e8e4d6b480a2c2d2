package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	for _, tt := range []struct {
		name     string
		password string
		wantErr  error
	}{
		{"minimum length", "password", nil},
		{"long with symbols", "this-is-a-very-long-password-123!@#", nil},
		{"unicode", "パスワード12345", nil},
		{"seven characters", "1234567", ErrPasswordTooShort},
		{"empty", "", ErrPasswordTooShort},
	} {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashPassword(tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, hash)
				return
			}
			require.NoError(t, err)
			assert.GreaterOrEqual(t, len(hash), 60)
			assert.True(t, CheckPassword(tt.password, hash))
		})
	}
}

func TestHashPassword_Salted(t *testing.T) {
	h1, err := HashPassword("testpassword123")
	require.NoError(t, err)
	h2, err := HashPassword("testpassword123")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestCheckPassword_Mismatch(t *testing.T) {
	hash, err := HashPassword("Password123")
	require.NoError(t, err)

	assert.False(t, CheckPassword("password123", hash))
	assert.False(t, CheckPassword("", hash))
	assert.False(t, CheckPassword("Password123", "invalid-hash"))
	assert.False(t, CheckPassword("Password123", ""))
}
