package services

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"
)

const googleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

// Google signs ID tokens with either issuer form depending on the
// client library that requested them.
var googleIssuers = map[string]bool{
	"accounts.google.com":         true,
	"https://accounts.google.com": true,
}

type googleJWKS struct {
	Keys []googleJWK `json:"keys"`
}

type googleJWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwksCache struct {
	keys      map[string]*rsa.PublicKey
	expiresAt time.Time
	mu        sync.RWMutex
}

// googleJWKSClient verifies Google ID tokens against the provider's
// published signing keys. Keys are cached for 24h and refetched on a
// kid miss.
type googleJWKSClient struct {
	cache      *jwksCache
	httpClient *http.Client
	jwksURL    string
}

type idTokenHeader struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	Typ string `json:"typ"`
}

// idTokenClaims is the subset of Google's ID-token payload the
// directory cares about. EmailVerified is loosely typed because Google
// has shipped it as both a bool and a string.
type idTokenClaims struct {
	Iss           string      `json:"iss"`
	Sub           string      `json:"sub"`
	Aud           string      `json:"aud"`
	Iat           int64       `json:"iat"`
	Exp           int64       `json:"exp"`
	Email         string      `json:"email"`
	EmailVerified interface{} `json:"email_verified"`
	Name          string      `json:"name"`
	Picture       string      `json:"picture"`
}

func (c *idTokenClaims) emailVerified() bool {
	switch v := c.EmailVerified.(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}

func newGoogleJWKSClient(jwksURL string) *googleJWKSClient {
	if jwksURL == "" {
		jwksURL = googleJWKSURL
	}
	return &googleJWKSClient{
		cache: &jwksCache{
			keys: make(map[string]*rsa.PublicKey),
		},
		httpClient: &http.Client{Timeout: 10 * time.Second},
		jwksURL:    jwksURL,
	}
}

func (c *googleJWKSClient) fetchKeys() error {
	resp, err := c.httpClient.Get(c.jwksURL)
	if err != nil {
		return fmt.Errorf("%w: fetching JWKS: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: JWKS endpoint returned status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var jwks googleJWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return fmt.Errorf("%w: decoding JWKS: %v", ErrProviderUnavailable, err)
	}

	c.cache.mu.Lock()
	defer c.cache.mu.Unlock()

	c.cache.keys = make(map[string]*rsa.PublicKey)
	for _, jwk := range jwks.Keys {
		pubKey, err := parseRSAPublicKey(jwk.N, jwk.E)
		if err != nil {
			continue
		}
		c.cache.keys[jwk.Kid] = pubKey
	}
	c.cache.expiresAt = time.Now().Add(24 * time.Hour)
	return nil
}

func parseRSAPublicKey(nStr, eStr string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}

	eBytes, err := base64.RawURLEncoding.DecodeString(eStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	var e int
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}

func (c *googleJWKSClient) publicKey(kid string) (*rsa.PublicKey, error) {
	c.cache.mu.RLock()
	if key, ok := c.cache.keys[kid]; ok && time.Now().Before(c.cache.expiresAt) {
		c.cache.mu.RUnlock()
		return key, nil
	}
	c.cache.mu.RUnlock()

	if err := c.fetchKeys(); err != nil {
		return nil, err
	}

	c.cache.mu.RLock()
	defer c.cache.mu.RUnlock()
	if key, ok := c.cache.keys[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: no signing key with kid %s", ErrInvalidFormat, kid)
}

// verifyIDToken checks signature, issuer, audience and expiry of a
// Google ID token and returns its claims.
func (c *googleJWKSClient) verifyIDToken(idToken, clientID string) (*idTokenClaims, error) {
	parts := strings.Split(idToken, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: not a signed assertion", ErrInvalidFormat)
	}

	headerBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: undecodable header", ErrInvalidFormat)
	}

	var header idTokenHeader
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("%w: unparsable header", ErrInvalidFormat)
	}

	if header.Alg != "RS256" {
		return nil, fmt.Errorf("%w: unsupported algorithm %s", ErrInvalidFormat, header.Alg)
	}

	claimsBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: undecodable claims", ErrInvalidFormat)
	}

	var claims idTokenClaims
	if err := json.Unmarshal(claimsBytes, &claims); err != nil {
		return nil, fmt.Errorf("%w: unparsable claims", ErrInvalidFormat)
	}

	if !googleIssuers[claims.Iss] {
		return nil, fmt.Errorf("%w: %s", ErrUntrustedIssuer, claims.Iss)
	}
	if claims.Aud != clientID {
		return nil, fmt.Errorf("%w: audience %s does not match client", ErrUntrustedIssuer, claims.Aud)
	}
	if time.Now().Unix() > claims.Exp {
		return nil, fmt.Errorf("%w: assertion expired", ErrExpired)
	}

	pubKey, err := c.publicKey(header.Kid)
	if err != nil {
		return nil, err
	}

	signingInput := parts[0] + "." + parts[1]
	signatureBytes, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: undecodable signature", ErrInvalidFormat)
	}

	hashed := sha256.Sum256([]byte(signingInput))
	if err := rsa.VerifyPKCS1v15(pubKey, crypto.SHA256, hashed[:], signatureBytes); err != nil {
		return nil, fmt.Errorf("%w: signature verification failed", ErrInvalidFormat)
	}

	return &claims, nil
}
