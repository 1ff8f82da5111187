package service

import (
	"context"
	"fmt"
	"log/slog"

	stderrors "errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/alexlazarev/shopcore/internal/infrastructure/auth"
	"github.com/alexlazarev/shopcore/internal/models"
	"github.com/alexlazarev/shopcore/internal/repository"
	pkgerrors "github.com/alexlazarev/shopcore/pkg/errors"
)

// SessionResult is the outcome of a successful resolve. NewAccess is
// non-empty when the access token was rotated off a valid refresh token; the
// transport layer writes it back into the access slot.
type SessionResult struct {
	User      *models.User
	NewAccess string
}

type AuthService interface {
	Login(ctx context.Context, email, phone, password string) (access, refresh string, err error)
	Resolve(ctx context.Context, accessRaw, refreshRaw string) (*SessionResult, error)
	DeleteAccount(ctx context.Context, userID int64) error
	RevokeSession(ctx context.Context, jti string) error
}

type authService struct {
	users       repository.UserRepository
	orders      repository.OrderRepository
	revocations repository.RevocationRepository
	tokens      *auth.TokenService
}

func NewAuthService(
	users repository.UserRepository,
	orders repository.OrderRepository,
	revocations repository.RevocationRepository,
	tokens *auth.TokenService,
) *authService {
	return &authService{
		users:       users,
		orders:      orders,
		revocations: revocations,
		tokens:      tokens,
	}
}

func (s *authService) Login(ctx context.Context, email, phone, password string) (string, string, error) {
	tracer := otel.Tracer("auth-service")
	ctx, span := tracer.Start(ctx, "Login")
	defer span.End()

	user, err := s.users.FindByIdentifier(ctx, email, phone)
	if err != nil {
		if stderrors.Is(err, pkgerrors.ErrUserNotFound) {
			span.SetStatus(codes.Error, "unknown identifier")
			return "", "", pkgerrors.ErrInvalidCredentials
		}
		span.RecordError(err)
		slog.Error("failed to look up user for login", "error", err)
		return "", "", fmt.Errorf("%w: %v", pkgerrors.ErrServiceUnavailable, err)
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		span.SetStatus(codes.Error, "wrong password")
		slog.Warn("login with wrong password", "user_id", user.ID)
		return "", "", pkgerrors.ErrInvalidCredentials
	}

	access, err := s.tokens.Issue(user, models.TokenAccess)
	if err != nil {
		span.RecordError(err)
		return "", "", fmt.Errorf("%w: failed to issue access token", pkgerrors.ErrInternal)
	}
	refresh, err := s.tokens.Issue(user, models.TokenRefresh)
	if err != nil {
		span.RecordError(err)
		return "", "", fmt.Errorf("%w: failed to issue refresh token", pkgerrors.ErrInternal)
	}

	slog.Info("user logged in", "user_id", user.ID)
	return access, refresh, nil
}

// Resolve runs the per-request session state machine. Terminal outcomes:
// an identity (possibly with a rotated access token) or a taxonomy error.
// A revoked refresh token reports ErrSessionRevoked; the caller must then
// clear both slots.
func (s *authService) Resolve(ctx context.Context, accessRaw, refreshRaw string) (*SessionResult, error) {
	tracer := otel.Tracer("auth-service")
	ctx, span := tracer.Start(ctx, "Resolve")
	defer span.End()

	needsRefresh := accessRaw == ""
	if !needsRefresh {
		claims, err := s.tokens.Parse(accessRaw, models.TokenAccess)
		if err != nil {
			span.SetStatus(codes.Error, "malformed access token")
			return nil, err
		}
		if err := auth.ValidateClaims(claims); err != nil {
			span.SetStatus(codes.Error, "malformed access claims")
			return nil, fmt.Errorf("%w: %v", pkgerrors.ErrInvalidToken, err)
		}
		if auth.IsExpired(claims) {
			// Typed branch, not an exception: a valid-but-expired access
			// token routes the request to the refresh path.
			needsRefresh = true
		} else {
			user, err := s.findSubject(ctx, claims)
			if err != nil {
				return nil, err
			}
			return &SessionResult{User: user}, nil
		}
	}

	if refreshRaw == "" {
		return nil, pkgerrors.ErrUnauthenticated
	}
	claims, err := s.tokens.Parse(refreshRaw, models.TokenRefresh)
	if err != nil {
		return nil, fmt.Errorf("%w: bad refresh token", pkgerrors.ErrUnauthenticated)
	}
	if err := auth.ValidateClaims(claims); err != nil {
		return nil, fmt.Errorf("%w: bad refresh claims", pkgerrors.ErrUnauthenticated)
	}
	if auth.IsExpired(claims) {
		return nil, fmt.Errorf("%w: %w", pkgerrors.ErrUnauthenticated, pkgerrors.ErrTokenExpired)
	}

	revoked, err := s.revocations.IsRevoked(ctx, claims.JTI)
	if err != nil {
		// A store blip must not log a legitimate session out.
		span.RecordError(err)
		slog.Error("revocation check failed", "jti", claims.JTI, "error", err)
		return nil, fmt.Errorf("%w: revocation check failed", pkgerrors.ErrServiceUnavailable)
	}
	if revoked {
		span.SetStatus(codes.Error, "session blocked")
		slog.Info("refresh token is blacklisted", "jti", claims.JTI)
		return nil, pkgerrors.ErrSessionRevoked
	}

	user, err := s.findSubject(ctx, claims)
	if err != nil {
		return nil, err
	}

	// The refresh token itself is left untouched; rotation mints only a
	// fresh access token.
	newAccess, err := s.tokens.Issue(user, models.TokenAccess)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: failed to rotate access token", pkgerrors.ErrInternal)
	}
	slog.Info("access token rotated", "user_id", user.ID)
	return &SessionResult{User: user, NewAccess: newAccess}, nil
}

func (s *authService) findSubject(ctx context.Context, claims *models.TokenClaims) (*models.User, error) {
	user, err := s.users.FindByIdentifier(ctx, claims.Email, claims.Phone)
	if err != nil {
		if stderrors.Is(err, pkgerrors.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: unknown token subject", pkgerrors.ErrUnauthenticated)
		}
		slog.Error("failed to look up token subject", "error", err)
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrServiceUnavailable, err)
	}
	return user, nil
}

// DeleteAccount removes the user and all their orders, provided every order
// already reached a terminal status.
func (s *authService) DeleteAccount(ctx context.Context, userID int64) error {
	tracer := otel.Tracer("auth-service")
	ctx, span := tracer.Start(ctx, "DeleteAccount")
	defer span.End()

	active, err := s.orders.ActiveOrders(ctx, userID)
	if err != nil {
		span.RecordError(err)
		slog.Error("failed to check active orders", "user_id", userID, "error", err)
		return fmt.Errorf("%w: %v", pkgerrors.ErrServiceUnavailable, err)
	}
	if len(active) > 0 {
		span.SetStatus(codes.Error, "user has active orders")
		slog.Info("account deletion refused, user has active orders", "user_id", userID, "orders", active)
		return pkgerrors.ErrActiveOrders
	}

	if err := s.users.DeleteWithOrders(ctx, userID); err != nil {
		span.RecordError(err)
		return err
	}
	slog.Info("account deleted", "user_id", userID)
	return nil
}

// RevokeSession permanently blacklists a refresh token by jti.
func (s *authService) RevokeSession(ctx context.Context, jti string) error {
	tracer := otel.Tracer("auth-service")
	ctx, span := tracer.Start(ctx, "RevokeSession")
	defer span.End()

	if err := s.revocations.Revoke(ctx, jti); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: %v", pkgerrors.ErrServiceUnavailable, err)
	}
	return nil
}
