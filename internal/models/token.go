package models

import "time"

type TokenKind string

const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
)

// TokenClaims is the payload of both session token kinds. Kind must match
// the cookie slot the raw token was read from.
type TokenClaims struct {
	JTI       string    `json:"jti"`
	Email     string    `json:"user_email,omitempty"`
	Phone     string    `json:"user_phone,omitempty"`
	Role      Role      `json:"user_role"`
	ExpiresAt time.Time `json:"exp"`
	Kind      TokenKind `json:"type"`
}
