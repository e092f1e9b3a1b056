package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deskflow/itsm-approvals/internal/domain"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 30)
	issued := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tm.now = func() time.Time { return issued }

	user := &domain.User{ID: "user-1", Role: domain.RoleCTO}
	token, expiresAt, err := tm.GenerateToken(user)
	require.NoError(t, err)
	require.Equal(t, issued.Add(30*time.Minute), expiresAt)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, domain.RoleCTO, claims.Role)
}

func TestTokenRejected(t *testing.T) {
	issued := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tm := NewTokenManager("secret", 30)
	tm.now = func() time.Time { return issued }

	token, _, err := tm.GenerateToken(&domain.User{ID: "user-1", Role: domain.RoleManager})
	require.NoError(t, err)

	other := NewTokenManager("other-secret", 30)
	other.now = tm.now
	_, err = other.ParseToken(token)
	require.Error(t, err)

	tm.now = func() time.Time { return issued.Add(time.Hour) }
	_, err = tm.ParseToken(token)
	require.Error(t, err)

	_, err = tm.ParseToken("not-a-jwt")
	require.Error(t, err)

	noSubject, _, err := tm.GenerateToken(&domain.User{Role: domain.RoleManager})
	require.NoError(t, err)
	_, err = tm.ParseToken(noSubject)
	require.Error(t, err)
}
