package handler

import (
	"context"
	"log/slog"
	"net/http"

	stderrors "errors"

	"github.com/alexlazarev/shopcore/internal/infrastructure/auth"
	"github.com/alexlazarev/shopcore/internal/models"
	service "github.com/alexlazarev/shopcore/internal/services"
	pkgerrors "github.com/alexlazarev/shopcore/pkg/errors"
)

type contextKey string

const userContextKey contextKey = "user"

// UserFromContext returns the identity resolved by SessionMiddleware.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userContextKey).(*models.User)
	return user, ok
}

// SessionMiddleware resolves the session from the two token cookie slots.
// When the resolver rotates the access token, the new one is written back
// into the access slot; a blocked session drops both slots.
func SessionMiddleware(authSvc service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accessRaw := auth.ReadCookie(r, auth.AccessCookie)
			refreshRaw := auth.ReadCookie(r, auth.RefreshCookie)

			result, err := authSvc.Resolve(r.Context(), accessRaw, refreshRaw)
			if err != nil {
				switch {
				case stderrors.Is(err, pkgerrors.ErrSessionRevoked):
					auth.ClearSessionCookies(w)
					http.Error(w, err.Error(), http.StatusForbidden)
				case stderrors.Is(err, pkgerrors.ErrServiceUnavailable):
					// Never log a session out over a cache blip.
					http.Error(w, err.Error(), http.StatusServiceUnavailable)
				case stderrors.Is(err, pkgerrors.ErrInvalidToken),
					stderrors.Is(err, pkgerrors.ErrMalformedClaims),
					stderrors.Is(err, pkgerrors.ErrUnauthenticated):
					http.Error(w, err.Error(), http.StatusUnauthorized)
				default:
					http.Error(w, err.Error(), http.StatusInternalServerError)
				}
				return
			}

			if result.NewAccess != "" {
				auth.SetAccessCookie(w, result.NewAccess)
			}

			slog.Debug("session resolved", "user_id", result.User.ID)
			ctx := context.WithValue(r.Context(), userContextKey, result.User)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
