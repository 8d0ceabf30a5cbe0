package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/opsdeck/internal/models"
	"github.com/opsdeck/opsdeck/internal/rolepolicy"
)

func testUser() *models.User {
	return &models.User{
		ID:      42,
		Email:   "alice@x.com",
		Name:    "Alice",
		Picture: "http://p/alice.png",
		Role:    "moderator",
	}
}

func TestSessionRoundTrip(t *testing.T) {
	svc := NewSessionService("test-secret", 24*time.Hour)

	token, err := svc.Mint(testUser())
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.Verify(token)
	require.NoError(t, err)

	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "alice@x.com", claims.Email)
	assert.Equal(t, "Alice", claims.Name)
	assert.Equal(t, "http://p/alice.png", claims.Picture)
	assert.Equal(t, rolepolicy.RoleModerator, claims.Role)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), claims.ExpiresAt, 5*time.Second)
}

func TestVerifyRejectsExpired(t *testing.T) {
	svc := NewSessionService("test-secret", time.Nanosecond)

	token, err := svc.Mint(testUser())
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	minter := NewSessionService("secret-a", 24*time.Hour)
	verifier := NewSessionService("secret-b", 24*time.Hour)

	token, err := minter.Mint(testUser())
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc := NewSessionService("test-secret", 24*time.Hour)

	for _, junk := range []string{"", "not-a-jwt", "a.b", "a.b.c.d"} {
		_, err := svc.Verify(junk)
		assert.ErrorIs(t, err, ErrTokenMalformed, "input %q", junk)
	}
}

func TestNeedsRefresh(t *testing.T) {
	svc := NewSessionService("test-secret", 24*time.Hour)

	fresh := &SessionClaims{ExpiresAt: time.Now().Add(23 * time.Hour)}
	assert.False(t, svc.NeedsRefresh(fresh))

	closing := &SessionClaims{ExpiresAt: time.Now().Add(3 * time.Hour)}
	assert.True(t, svc.NeedsRefresh(closing))

	gone := &SessionClaims{ExpiresAt: time.Now().Add(-time.Minute)}
	assert.False(t, svc.NeedsRefresh(gone), "expired sessions are rejected, not refreshed")
}

func TestRemintPreservesIdentity(t *testing.T) {
	svc := NewSessionService("test-secret", 24*time.Hour)

	orig, err := svc.Verify(mustMint(t, svc))
	require.NoError(t, err)

	fresh, err := svc.Remint(orig)
	require.NoError(t, err)

	claims, err := svc.Verify(fresh)
	require.NoError(t, err)
	assert.Equal(t, orig.UserID, claims.UserID)
	assert.Equal(t, orig.Email, claims.Email)
	assert.Equal(t, orig.Role, claims.Role)
	assert.False(t, claims.ExpiresAt.Before(orig.ExpiresAt))
}

func mustMint(t *testing.T, svc *SessionService) string {
	t.Helper()
	token, err := svc.Mint(testUser())
	require.NoError(t, err)
	return token
}
