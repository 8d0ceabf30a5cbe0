package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

// Failure kinds for identity verification. Handlers map these to HTTP
// statuses; the verifier itself never touches the transport layer.
var (
	ErrInvalidFormat       = errors.New("credential format invalid")
	ErrUntrustedIssuer     = errors.New("untrusted credential issuer")
	ErrExpired             = errors.New("credential expired")
	ErrNetwork             = errors.New("identity provider network failure")
	ErrProviderUnavailable = errors.New("identity provider unavailable")
)

// Identity is the canonical view of a principal as attested by the
// provider. EmailVerified is true only when Google asserts it.
type Identity struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	EmailVerified bool   `json:"email_verified"`
}

type GoogleVerifierConfig struct {
	ClientID string

	// Overridable for tests.
	JWKSURL     string
	UserInfoURL string
	Timeout     time.Duration
}

// GoogleVerifier turns an inbound Google bearer credential into an
// Identity using ordered two-path verification: signed ID-token
// assertion first, then an opaque-access-token userinfo lookup.
type GoogleVerifier struct {
	clientID    string
	jwks        *googleJWKSClient
	httpClient  *http.Client
	userInfoURL string
}

func NewGoogleVerifier(cfg GoogleVerifierConfig) *GoogleVerifier {
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = googleUserInfoURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &GoogleVerifier{
		clientID:    cfg.ClientID,
		jwks:        newGoogleJWKSClient(cfg.JWKSURL),
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		userInfoURL: cfg.UserInfoURL,
	}
}

// Verify resolves credential to an Identity. The userinfo fall-through
// is skipped when the primary path fails with an untrusted issuer or
// wrong audience: such a token was minted for someone else and must
// not be retried as an access token.
func (v *GoogleVerifier) Verify(ctx context.Context, credential string) (*Identity, error) {
	claims, err := v.jwks.verifyIDToken(credential, v.clientID)
	if err == nil {
		if claims.Email == "" {
			return nil, fmt.Errorf("%w: assertion carries no email", ErrInvalidFormat)
		}
		return &Identity{
			Subject:       claims.Sub,
			Email:         claims.Email,
			Name:          claims.Name,
			Picture:       claims.Picture,
			EmailVerified: claims.emailVerified(),
		}, nil
	}
	if errors.Is(err, ErrUntrustedIssuer) {
		return nil, err
	}

	slog.Debug("id-token verification failed, trying userinfo", "error", err)
	return v.fetchUserInfo(ctx, credential)
}

// userInfoResponse mirrors Google's v3 userinfo body.
type userInfoResponse struct {
	Sub           string      `json:"sub"`
	Email         string      `json:"email"`
	EmailVerified interface{} `json:"email_verified"`
	Name          string      `json:"name"`
	Picture       string      `json:"picture"`
}

func (v *GoogleVerifier) fetchUserInfo(ctx context.Context, accessToken string) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building userinfo request: %v", ErrNetwork, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		var ne interface{ Timeout() bool }
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, fmt.Errorf("%w: userinfo lookup timed out", ErrProviderUnavailable)
		}
		return nil, fmt.Errorf("%w: userinfo lookup: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: userinfo endpoint returned status %d", ErrInvalidFormat, resp.StatusCode)
	}

	var info userInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: decoding userinfo: %v", ErrProviderUnavailable, err)
	}
	if info.Email == "" {
		return nil, fmt.Errorf("%w: userinfo carries no email", ErrInvalidFormat)
	}

	verified := false
	switch ev := info.EmailVerified.(type) {
	case bool:
		verified = ev
	case string:
		verified = ev == "true"
	}

	return &Identity{
		Subject:       info.Sub,
		Email:         info.Email,
		Name:          info.Name,
		Picture:       info.Picture,
		EmailVerified: verified,
	}, nil
}
