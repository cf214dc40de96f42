package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("test-secret", 60)

	token, expiresAt, err := tm.GenerateToken("staff-a", true, "guild-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.True(t, expiresAt.After(time.Now()))

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	require.Equal(t, "staff-a", claims.ActorID)
	require.True(t, claims.Staff)
	require.Equal(t, "guild-1", claims.GuildID)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	tm := NewTokenManager("test-secret", 60)
	token, _, err := tm.GenerateToken("owner-1", false, "")
	require.NoError(t, err)

	other := NewTokenManager("different-secret", 60)
	_, err = other.ParseToken(token)
	require.Error(t, err)
}

func TestParseRejectsGarbage(t *testing.T) {
	tm := NewTokenManager("test-secret", 60)
	_, err := tm.ParseToken("not.a.token")
	require.Error(t, err)
}
