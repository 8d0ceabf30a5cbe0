package services

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/opsdeck/opsdeck/internal/models"
	"github.com/opsdeck/opsdeck/internal/rolepolicy"
)

var (
	ErrTokenMalformed = errors.New("session token malformed")
	ErrBadSignature   = errors.New("session token signature invalid")
	ErrTokenExpired   = errors.New("session token expired")
)

// SessionClaims is the typed view of a verified session token.
type SessionClaims struct {
	UserID    uint
	Email     string
	Name      string
	Picture   string
	Role      rolepolicy.Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// SessionService mints and verifies first-party session tokens. Tokens
// are self-contained HS256 JWTs; there is no server-side session state
// and no revocation list.
type SessionService struct {
	secret []byte
	ttl    time.Duration
}

func NewSessionService(secret string, ttl time.Duration) *SessionService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionService{secret: []byte(secret), ttl: ttl}
}

// TTL returns the configured token lifetime.
func (s *SessionService) TTL() time.Duration {
	return s.ttl
}

// Mint signs a session token for user. The role baked into the token
// is the user's directory role at mint time.
func (s *SessionService) Mint(user *models.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":     strconv.FormatUint(uint64(user.ID), 10),
		"email":   user.Email,
		"name":    user.Name,
		"picture": user.Picture,
		"role":    user.Role,
		"iat":     now.Unix(),
		"exp":     now.Add(s.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Remint issues a fresh token for an already-verified session,
// preserving identity and role but restarting the lifetime window.
func (s *SessionService) Remint(claims *SessionClaims) (string, error) {
	now := time.Now()
	mapClaims := jwt.MapClaims{
		"sub":     strconv.FormatUint(uint64(claims.UserID), 10),
		"email":   claims.Email,
		"name":    claims.Name,
		"picture": claims.Picture,
		"role":    string(claims.Role),
		"iat":     now.Unix(),
		"exp":     now.Add(s.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, mapClaims)
	return token.SignedString(s.secret)
}

// Verify checks signature and expiry and returns typed claims.
func (s *SessionService) Verify(tokenString string) (*SessionClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrBadSignature
		default:
			return nil, ErrTokenMalformed
		}
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenMalformed
	}
	return ClaimsFromMap(mapClaims)
}

// ClaimsFromMap converts raw JWT claims into the typed form. It is
// shared with the middleware, which receives already-verified map
// claims from the JWT layer.
func ClaimsFromMap(mapClaims jwt.MapClaims) (*SessionClaims, error) {
	sub, _ := mapClaims["sub"].(string)
	userID, err := strconv.ParseUint(sub, 10, 64)
	if err != nil {
		return nil, ErrTokenMalformed
	}

	claims := &SessionClaims{UserID: uint(userID)}
	claims.Email, _ = mapClaims["email"].(string)
	claims.Name, _ = mapClaims["name"].(string)
	claims.Picture, _ = mapClaims["picture"].(string)
	if role, ok := mapClaims["role"].(string); ok {
		claims.Role = rolepolicy.Role(role)
	}
	if iat, ok := mapClaims["iat"].(float64); ok {
		claims.IssuedAt = time.Unix(int64(iat), 0)
	}
	if exp, ok := mapClaims["exp"].(float64); ok {
		claims.ExpiresAt = time.Unix(int64(exp), 0)
	}
	if claims.Email == "" {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// NeedsRefresh reports whether the remaining lifetime has dropped
// below a quarter of the total, the threshold at which the middleware
// attaches an advisory replacement token to the response.
func (s *SessionService) NeedsRefresh(claims *SessionClaims) bool {
	remaining := time.Until(claims.ExpiresAt)
	return remaining > 0 && remaining < s.ttl/4
}
