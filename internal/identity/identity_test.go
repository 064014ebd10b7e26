// ABOUTME: Tests for the credential holder and token inspection helpers.
// ABOUTME: Uses real HS256 tokens generated with a throwaway secret.

package identity

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeToken(t *testing.T, expiresIn time.Duration) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(expiresIn).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestHolder_SetAndClear(t *testing.T) {
	h := NewHolder()
	assert.Empty(t, h.Token())
	assert.Nil(t, h.Identity())

	h.Set("tok", Identity{UserID: "u1", PhoneNumber: "+919876543210"})
	assert.Equal(t, "tok", h.Token())
	require.NotNil(t, h.Identity())
	assert.Equal(t, "u1", h.Identity().UserID)

	h.Clear()
	assert.Empty(t, h.Token())
	assert.Nil(t, h.Identity())
}

func TestTokenExpiry(t *testing.T) {
	token := makeToken(t, time.Hour)
	exp, err := TokenExpiry(token)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)
}

func TestTokenExpiry_Malformed(t *testing.T) {
	_, err := TokenExpiry("not-a-jwt")
	assert.Error(t, err)
}

func TestTokenUsable(t *testing.T) {
	now := time.Now()
	assert.True(t, TokenUsable(makeToken(t, time.Hour), now))
	assert.False(t, TokenUsable(makeToken(t, -time.Minute), now))
	assert.False(t, TokenUsable("", now))
	assert.False(t, TokenUsable("garbage", now))
}

func TestTokenFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VEAZY_TOKEN_FILE", filepath.Join(dir, "sub", "token"))
	t.Setenv("VEAZY_TOKEN", "")

	assert.Empty(t, LoadToken())
	require.NoError(t, SaveToken("tok-abc"))
	assert.Equal(t, "tok-abc", LoadToken())

	info, err := os.Stat(filepath.Join(dir, "sub", "token"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	require.NoError(t, RemoveToken())
	assert.Empty(t, LoadToken())
	require.NoError(t, RemoveToken())
}

func TestLoadToken_EnvOverrides(t *testing.T) {
	t.Setenv("VEAZY_TOKEN", "env-token")
	assert.Equal(t, "env-token", LoadToken())
}
