package errors

import "errors"

var (
	// tokens and sessions
	ErrInvalidToken    = errors.New("invalid token")
	ErrTokenExpired    = errors.New("token expired")
	ErrMalformedClaims = errors.New("malformed token claims")
	ErrSessionRevoked  = errors.New("session blocked")
	ErrUnauthenticated = errors.New("not authenticated")
	ErrForbidden       = errors.New("forbidden")

	// registration
	ErrUserExists          = errors.New("user already exists")
	ErrWrongCode           = errors.New("wrong verification code")
	ErrNoPendingRegister   = errors.New("no pending verification")
	ErrVerificationExpired = errors.New("verification expired")
	ErrTooManyAttempts     = errors.New("too many attempts, restart registration")
	ErrTooManyRequests     = errors.New("too many requests")

	// accounts
	ErrUserNotFound       = errors.New("user not found")
	ErrNilUser            = errors.New("user is nil")
	ErrActiveOrders       = errors.New("user has active orders")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// infrastructure
	ErrServiceUnavailable = errors.New("service temporarily unavailable")
	ErrDispatchFailed     = errors.New("failed to dispatch verification code")
	ErrInternal           = errors.New("internal error")
)
