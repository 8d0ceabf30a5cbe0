package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/opsdeck/internal/dto"
	"github.com/opsdeck/opsdeck/internal/middleware"
	"github.com/opsdeck/opsdeck/internal/rolepolicy"
	"github.com/opsdeck/opsdeck/internal/services"
)

func newAuthApp(verifier IdentityVerifier, dir UserDirectory, sessions *services.SessionService) *fiber.App {
	h := NewAuthHandler(verifier, dir, sessions, rolepolicy.New("corp.example"))
	app := fiber.New()
	app.Post("/auth/google", h.GoogleSignIn)
	app.Get("/auth/verify",
		middleware.SessionProtected("handler-test-secret"),
		middleware.AttachClaims(sessions),
		h.Verify)
	app.Post("/auth/logout", h.Logout)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, body interface{}) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func decodeAuth(t *testing.T, resp *http.Response) dto.AuthResponse {
	t.Helper()
	var out dto.AuthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestGoogleSignInFirstLogin(t *testing.T) {
	verifier := &stubVerifier{identity: &services.Identity{
		Subject: "g-123", Email: "alice@corp.example", Name: "Alice", EmailVerified: true,
	}}
	dir := newMemDirectory()
	sessions := services.NewSessionService("handler-test-secret", time.Hour)
	app := newAuthApp(verifier, dir, sessions)

	resp := postJSON(t, app, "/auth/google", dto.GoogleSignInRequest{Token: "credential"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decodeAuth(t, resp)
	assert.True(t, out.Success)
	assert.NotEmpty(t, out.Token)
	require.NotNil(t, out.User)
	assert.Equal(t, "alice@corp.example", out.User.Email)
	// corp.example is the admin domain, so the policy elevates the row.
	assert.Equal(t, "admin", out.User.Role)
	assert.Equal(t, 1, dir.upsertCalls)

	claims, err := sessions.Verify(out.Token)
	require.NoError(t, err)
	assert.Equal(t, out.User.ID, claims.UserID)
}

func TestGoogleSignInMissingCredential(t *testing.T) {
	app := newAuthApp(&stubVerifier{}, newMemDirectory(),
		services.NewSessionService("handler-test-secret", time.Hour))

	resp := postJSON(t, app, "/auth/google", dto.GoogleSignInRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGoogleSignInRejectedCredential(t *testing.T) {
	verifier := &stubVerifier{err: services.ErrInvalidFormat}
	app := newAuthApp(verifier, newMemDirectory(),
		services.NewSessionService("handler-test-secret", time.Hour))

	resp := postJSON(t, app, "/auth/google", dto.GoogleSignInRequest{Token: "bad"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGoogleSignInProviderDown(t *testing.T) {
	verifier := &stubVerifier{err: services.ErrProviderUnavailable}
	app := newAuthApp(verifier, newMemDirectory(),
		services.NewSessionService("handler-test-secret", time.Hour))

	resp := postJSON(t, app, "/auth/google", dto.GoogleSignInRequest{Token: "slow"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestGoogleSignInFallsBackToClientIdentity(t *testing.T) {
	// Verification fails, but the request carries userInfo. It is
	// accepted unverified rather than bouncing the login.
	verifier := &stubVerifier{err: services.ErrInvalidFormat}
	dir := newMemDirectory()
	app := newAuthApp(verifier, dir,
		services.NewSessionService("handler-test-secret", time.Hour))

	resp := postJSON(t, app, "/auth/google", dto.GoogleSignInRequest{
		Token:    "bad",
		UserInfo: &dto.ClientIdentity{Email: "bob@x.com", Name: "Bob", Sub: "sub-9"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decodeAuth(t, resp)
	assert.True(t, out.Success)
	assert.Equal(t, "bob@x.com", out.User.Email)
	assert.Equal(t, 1, verifier.calls)
}

func TestGoogleSignInVerifiedIdentityWins(t *testing.T) {
	// When the provider verifies the token, the caller-supplied
	// identity is ignored.
	verifier := &stubVerifier{identity: &services.Identity{
		Subject: "g-1", Email: "real@x.com", Name: "Real", EmailVerified: true,
	}}
	dir := newMemDirectory()
	app := newAuthApp(verifier, dir,
		services.NewSessionService("handler-test-secret", time.Hour))

	resp := postJSON(t, app, "/auth/google", dto.GoogleSignInRequest{
		Token:    "good",
		UserInfo: &dto.ClientIdentity{Email: "forged@x.com", Name: "Forged"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The verified identity wins over the caller-supplied one.
	out := decodeAuth(t, resp)
	assert.Equal(t, "real@x.com", out.User.Email)
}

func TestGoogleSignInStorageDown(t *testing.T) {
	verifier := &stubVerifier{identity: &services.Identity{Email: "a@x.com", Name: "A"}}
	dir := newMemDirectory()
	dir.failWith = services.ErrStorage
	app := newAuthApp(verifier, dir,
		services.NewSessionService("handler-test-secret", time.Hour))

	resp := postJSON(t, app, "/auth/google", dto.GoogleSignInRequest{Token: "ok"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestVerifyReturnsUser(t *testing.T) {
	sessions := services.NewSessionService("handler-test-secret", time.Hour)
	dir := newMemDirectory()
	verifier := &stubVerifier{identity: &services.Identity{Email: "a@x.com", Name: "A"}}
	app := newAuthApp(verifier, dir, sessions)

	signIn := postJSON(t, app, "/auth/google", dto.GoogleSignInRequest{Token: "ok"})
	require.Equal(t, http.StatusOK, signIn.StatusCode)
	token := decodeAuth(t, signIn).Token

	req := httptest.NewRequest(http.MethodGet, "/auth/verify", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out dto.VerifyResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.Valid)
	assert.Equal(t, "a@x.com", out.User.Email)
}

func TestVerifyDeletedUser(t *testing.T) {
	sessions := services.NewSessionService("handler-test-secret", time.Hour)
	dir := newMemDirectory()
	verifier := &stubVerifier{identity: &services.Identity{Email: "a@x.com", Name: "A"}}
	app := newAuthApp(verifier, dir, sessions)

	signIn := postJSON(t, app, "/auth/google", dto.GoogleSignInRequest{Token: "ok"})
	token := decodeAuth(t, signIn).Token
	require.NoError(t, dir.Delete(context.Background(), 1))

	req := httptest.NewRequest(http.MethodGet, "/auth/verify", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLogoutAlwaysSucceeds(t *testing.T) {
	app := newAuthApp(&stubVerifier{}, newMemDirectory(),
		services.NewSessionService("handler-test-secret", time.Hour))

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
