package dto

import "github.com/opsdeck/opsdeck/internal/models"

// GoogleSignInRequest is the body of POST /auth/google. Token is the
// provider credential (ID token or access token). UserInfo is the
// legacy caller-supplied identity used only when both provider paths
// fail; identities from it are never treated as email-verified.
type GoogleSignInRequest struct {
	Token    string          `json:"token"`
	UserInfo *ClientIdentity `json:"userInfo,omitempty"`
}

// ClientIdentity is an unverified identity supplied by the frontend.
type ClientIdentity struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	Sub     string `json:"sub"`
}

type AuthResponse struct {
	Success bool         `json:"success"`
	Token   string       `json:"token"`
	User    *models.User `json:"user"`
}

type VerifyResponse struct {
	Valid bool         `json:"valid"`
	User  *models.User `json:"user"`
}

type ErrorResponse struct {
	Error   bool   `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}
