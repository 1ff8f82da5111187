package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/alexlazarev/shopcore/internal/models"
	pkgerrors "github.com/alexlazarev/shopcore/pkg/errors"
)

// TokenService issues and verifies the RS256 session tokens. Parsing checks
// the signature only; expiry is evaluated separately so an expired-but-valid
// access token can still route the request to the refresh path.
type TokenService struct {
	keys       *KeyPair
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewTokenService(keys *KeyPair, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		keys:       keys,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

func (s *TokenService) AccessTTL() time.Duration  { return s.accessTTL }
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

func (s *TokenService) lifetime(kind models.TokenKind) time.Duration {
	if kind == models.TokenRefresh {
		return s.refreshTTL
	}
	return s.accessTTL
}

// Issue builds a signed token of the given kind for the user. Tokens are
// immutable once issued; rotation always mints a new one.
func (s *TokenService) Issue(user *models.User, kind models.TokenKind) (string, error) {
	if user == nil {
		return "", pkgerrors.ErrNilUser
	}
	claims := jwt.MapClaims{
		"jti":        uuid.NewString(),
		"user_email": user.Email,
		"user_phone": user.Phone,
		"user_role":  string(user.Role),
		"exp":        float64(time.Now().Add(s.lifetime(kind)).Unix()),
		"type":       string(kind),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(s.keys.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", kind, err)
	}
	return signed, nil
}

// Parse verifies the signature with the public key and checks that the token
// was issued for the expected slot. It deliberately does not enforce exp, so
// the caller can distinguish "well-formed but expired" from garbage.
func (s *TokenService) Parse(raw string, expected models.TokenKind) (*models.TokenClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	token, err := parser.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return s.keys.PublicKey, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrInvalidToken, err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, pkgerrors.ErrInvalidToken
	}
	claims, err := claimsFromMap(mapClaims)
	if err != nil {
		return nil, err
	}
	if claims.Kind != expected {
		return nil, fmt.Errorf("%w: token kind %q presented in %q slot", pkgerrors.ErrInvalidToken, claims.Kind, expected)
	}
	return claims, nil
}

// ValidateClaims checks every claim field for presence and type. At least
// one of email/phone must identify the subject.
func ValidateClaims(claims *models.TokenClaims) error {
	if claims == nil {
		return pkgerrors.ErrMalformedClaims
	}
	if claims.JTI == "" {
		return fmt.Errorf("%w: missing jti", pkgerrors.ErrMalformedClaims)
	}
	if claims.Email == "" && claims.Phone == "" {
		return fmt.Errorf("%w: no subject identifier", pkgerrors.ErrMalformedClaims)
	}
	if !claims.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", pkgerrors.ErrMalformedClaims, claims.Role)
	}
	if claims.ExpiresAt.IsZero() {
		return fmt.Errorf("%w: missing exp", pkgerrors.ErrMalformedClaims)
	}
	if claims.Kind != models.TokenAccess && claims.Kind != models.TokenRefresh {
		return fmt.Errorf("%w: unknown token kind %q", pkgerrors.ErrMalformedClaims, claims.Kind)
	}
	return nil
}

// IsExpired is a pure comparison against the current time.
func IsExpired(claims *models.TokenClaims) bool {
	return time.Now().After(claims.ExpiresAt)
}

func claimsFromMap(m jwt.MapClaims) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	jti, ok := m["jti"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: bad jti", pkgerrors.ErrMalformedClaims)
	}
	claims.JTI = jti

	if email, ok := m["user_email"].(string); ok {
		claims.Email = email
	}
	if phone, ok := m["user_phone"].(string); ok {
		claims.Phone = phone
	}
	if role, ok := m["user_role"].(string); ok {
		claims.Role = models.Role(role)
	}
	exp, ok := m["exp"].(float64)
	if !ok {
		return nil, fmt.Errorf("%w: bad exp", pkgerrors.ErrMalformedClaims)
	}
	claims.ExpiresAt = time.Unix(int64(exp), 0)

	if kind, ok := m["type"].(string); ok {
		claims.Kind = models.TokenKind(kind)
	}
	return claims, nil
}

// IssueVerifyToken signs a token carrying only the registration identifier.
// It routes a confirm call to the right pending record and is not a
// credential by itself.
func (s *TokenService) IssueVerifyToken(identifier string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"verify_register_key": identifier,
	})
	signed, err := token.SignedString(s.keys.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign verify token: %w", err)
	}
	return signed, nil
}

// ParseVerifyToken extracts the registration identifier from the
// verification cookie.
func (s *TokenService) ParseVerifyToken(raw string) (string, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	token, err := parser.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return s.keys.PublicKey, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", pkgerrors.ErrNoPendingRegister, err)
	}
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", pkgerrors.ErrNoPendingRegister
	}
	identifier, ok := mapClaims["verify_register_key"].(string)
	if !ok || identifier == "" {
		return "", pkgerrors.ErrNoPendingRegister
	}
	return identifier, nil
}
