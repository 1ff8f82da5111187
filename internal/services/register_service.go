package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	stderrors "errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/alexlazarev/shopcore/internal/infrastructure/auth"
	"github.com/alexlazarev/shopcore/internal/infrastructure/observability"
	"github.com/alexlazarev/shopcore/internal/infrastructure/redis"
	"github.com/alexlazarev/shopcore/internal/models"
	"github.com/alexlazarev/shopcore/internal/repository"
	pkgerrors "github.com/alexlazarev/shopcore/pkg/errors"
)

const (
	verifyCodeKeyPrefix = "verify_code_user:"
	limitIPKeyPrefix    = "limit_code_for_ip:"

	pendingFieldUser    = "user"
	pendingFieldCode    = "code"
	pendingFieldAttempt = "attempt"
)

// CodeDispatcher delivers a verification code on the channel named by the
// registration target.
type CodeDispatcher interface {
	SendCode(ctx context.Context, target models.RegistrationTarget, code int) error
}

// RegistrationRequest carries everything initiate needs. The target is
// decided once at payload validation and never re-derived.
type RegistrationRequest struct {
	Target        models.RegistrationTarget
	Password      string
	City          string
	HomeAddress   string
	PickupStoreID int64
}

type RegisterService interface {
	// Initiate starts the two-phase registration: it throttles the caller's
	// IP, checks identifier uniqueness against durable users, caches the
	// draft with a fresh code, and dispatches the code. Returns the signed
	// verification token for the transport to set as a cookie.
	Initiate(ctx context.Context, req RegistrationRequest, clientIP string) (string, error)
	// Confirm finishes registration: it counts the attempt, compares the
	// code and materializes the durable user row.
	Confirm(ctx context.Context, verifyToken, submittedCode string) (*models.User, error)
}

type registerService struct {
	users      repository.UserRepository
	cache      redis.RedisClient
	tokens     *auth.TokenService
	dispatcher CodeDispatcher

	codeTTL     time.Duration
	limitTTL    time.Duration
	maxAttempts int64
}

func NewRegisterService(
	users repository.UserRepository,
	cache redis.RedisClient,
	tokens *auth.TokenService,
	dispatcher CodeDispatcher,
	codeTTL, limitTTL time.Duration,
	maxAttempts int64,
) *registerService {
	return &registerService{
		users:       users,
		cache:       cache,
		tokens:      tokens,
		dispatcher:  dispatcher,
		codeTTL:     codeTTL,
		limitTTL:    limitTTL,
		maxAttempts: maxAttempts,
	}
}

func (s *registerService) Initiate(ctx context.Context, req RegistrationRequest, clientIP string) (string, error) {
	tracer := otel.Tracer("register-service")
	ctx, span := tracer.Start(ctx, "InitiateRegistration")
	defer span.End()

	if err := s.reserveIP(ctx, clientIP); err != nil {
		span.SetStatus(codes.Error, "ip throttled")
		observability.RegistrationOutcomes.WithLabelValues("initiate", "throttled").Inc()
		return "", err
	}

	var email, phone string
	switch req.Target.Channel {
	case models.ChannelEmail:
		email = req.Target.Recipient
	case models.ChannelPhone:
		phone = req.Target.Recipient
	default:
		return "", fmt.Errorf("unknown registration channel %q", req.Target.Channel)
	}

	// Only a durable user blocks the identifier; a live pending record is
	// simply overwritten with a fresh code and attempt counter.
	_, err := s.users.FindByIdentifier(ctx, email, phone)
	if err == nil {
		span.SetStatus(codes.Error, "identifier taken")
		observability.RegistrationOutcomes.WithLabelValues("initiate", "conflict").Inc()
		return "", pkgerrors.ErrUserExists
	}
	if !stderrors.Is(err, pkgerrors.ErrUserNotFound) {
		span.RecordError(err)
		slog.Error("failed to check identifier uniqueness", "error", err)
		return "", fmt.Errorf("%w: %v", pkgerrors.ErrServiceUnavailable, err)
	}

	code, err := randomCode()
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("%w: failed to generate code", pkgerrors.ErrInternal)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("%w: failed to hash password", pkgerrors.ErrInternal)
	}
	draft := models.DraftUser{
		Email:         email,
		Phone:         phone,
		PasswordHash:  hash,
		City:          req.City,
		HomeAddress:   req.HomeAddress,
		PickupStoreID: req.PickupStoreID,
	}
	if err := s.storePending(ctx, req.Target.Recipient, draft, code); err != nil {
		span.RecordError(err)
		return "", err
	}

	verifyToken, err := s.tokens.IssueVerifyToken(req.Target.Recipient)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("%w: failed to issue verify token", pkgerrors.ErrInternal)
	}

	// Dispatch failure surfaces to the caller. The cached record grants no
	// access by itself, so it is left to expire instead of compensating.
	if err := s.dispatcher.SendCode(ctx, req.Target, code); err != nil {
		span.RecordError(err)
		observability.RegistrationOutcomes.WithLabelValues("initiate", "dispatch_failed").Inc()
		return "", err
	}

	observability.RegistrationOutcomes.WithLabelValues("initiate", "ok").Inc()
	slog.Info("registration initiated", "channel", req.Target.Channel)
	return verifyToken, nil
}

// reserveIP is the single-operation rate-limit check: SETNX both tests and
// reserves the window, so two racing initiates cannot both pass. A cache
// failure fails closed.
func (s *registerService) reserveIP(ctx context.Context, ip string) error {
	value, err := json.Marshal(map[string]string{"ip": ip})
	if err != nil {
		return fmt.Errorf("%w: %v", pkgerrors.ErrInternal, err)
	}
	ok, err := s.cache.SetNX(ctx, limitIPKeyPrefix+ip, value, s.limitTTL)
	if err != nil {
		slog.Error("rate limiter cache failure", "ip", ip, "error", err)
		return fmt.Errorf("%w: rate limiter unavailable", pkgerrors.ErrServiceUnavailable)
	}
	if !ok {
		slog.Info("registration code request throttled", "ip", ip)
		return pkgerrors.ErrTooManyRequests
	}
	return nil
}

func (s *registerService) storePending(ctx context.Context, identifier string, draft models.DraftUser, code int) error {
	draftJSON, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal draft user", pkgerrors.ErrInternal)
	}
	key := verifyCodeKeyPrefix + identifier

	// Drop any previous pending record so the attempt counter restarts.
	if err := s.cache.Del(ctx, key); err != nil {
		return fmt.Errorf("%w: %v", pkgerrors.ErrServiceUnavailable, err)
	}
	fields := map[string]interface{}{
		pendingFieldUser:    draftJSON,
		pendingFieldCode:    code,
		pendingFieldAttempt: 0,
	}
	if err := s.cache.HSet(ctx, key, fields); err != nil {
		return fmt.Errorf("%w: %v", pkgerrors.ErrServiceUnavailable, err)
	}
	if err := s.cache.Expire(ctx, key, s.codeTTL); err != nil {
		return fmt.Errorf("%w: %v", pkgerrors.ErrServiceUnavailable, err)
	}
	return nil
}

func (s *registerService) Confirm(ctx context.Context, verifyToken, submittedCode string) (*models.User, error) {
	tracer := otel.Tracer("register-service")
	ctx, span := tracer.Start(ctx, "ConfirmRegistration")
	defer span.End()

	identifier, err := s.tokens.ParseVerifyToken(verifyToken)
	if err != nil {
		span.SetStatus(codes.Error, "bad verify token")
		return nil, err
	}
	key := verifyCodeKeyPrefix + identifier

	ttl, err := s.cache.TTL(ctx, key)
	if err != nil {
		if stderrors.Is(err, redis.ErrKeyNotFound) {
			observability.RegistrationOutcomes.WithLabelValues("confirm", "expired").Inc()
			return nil, pkgerrors.ErrVerificationExpired
		}
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrServiceUnavailable, err)
	}
	if ttl <= 0 {
		// A record without expiry can only be a stray counter recreated by an
		// increment that raced the expiry. Drop it instead of leaking it.
		if err := s.cache.Del(ctx, key); err != nil {
			slog.Error("failed to drop stray pending record", "error", err)
		}
		observability.RegistrationOutcomes.WithLabelValues("confirm", "expired").Inc()
		return nil, pkgerrors.ErrVerificationExpired
	}

	// Atomic increment-and-fetch; the cap is evaluated against the returned
	// value, so concurrent confirms cannot overshoot the budget. HINCRBY
	// leaves the key TTL alone, preserving the remaining window.
	attempt, err := s.cache.HIncrBy(ctx, key, pendingFieldAttempt, 1)
	if err != nil {
		span.RecordError(err)
		slog.Error("failed to count verification attempt", "error", err)
		return nil, fmt.Errorf("%w: attempt tracking unavailable", pkgerrors.ErrServiceUnavailable)
	}
	if attempt > s.maxAttempts {
		if err := s.cache.Del(ctx, key); err != nil {
			slog.Error("failed to drop exhausted pending record", "error", err)
		}
		span.SetStatus(codes.Error, "attempts exhausted")
		observability.RegistrationOutcomes.WithLabelValues("confirm", "exhausted").Inc()
		slog.Info("verification attempts exhausted", "attempt", attempt)
		return nil, pkgerrors.ErrTooManyAttempts
	}

	record, err := s.cache.HGetAll(ctx, key)
	if err != nil {
		if stderrors.Is(err, redis.ErrKeyNotFound) {
			return nil, pkgerrors.ErrVerificationExpired
		}
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrServiceUnavailable, err)
	}

	codeRaw, ok := record[pendingFieldCode]
	if !ok {
		// The record expired between the TTL check and the increment; the
		// increment recreated the key with nothing but the counter.
		if err := s.cache.Del(ctx, key); err != nil {
			slog.Error("failed to drop stray pending record", "error", err)
		}
		span.SetStatus(codes.Error, "record expired mid-confirm")
		observability.RegistrationOutcomes.WithLabelValues("confirm", "expired").Inc()
		return nil, pkgerrors.ErrVerificationExpired
	}
	storedCode, err := strconv.Atoi(codeRaw)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: corrupt pending record", pkgerrors.ErrInternal)
	}
	// Non-numeric input is just a mismatch, never a crash.
	submitted, convErr := strconv.Atoi(submittedCode)
	if convErr != nil || submitted != storedCode {
		span.SetStatus(codes.Error, "wrong code")
		observability.RegistrationOutcomes.WithLabelValues("confirm", "wrong_code").Inc()
		return nil, pkgerrors.ErrWrongCode
	}

	var draft models.DraftUser
	if err := json.Unmarshal([]byte(record[pendingFieldUser]), &draft); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: corrupt pending record", pkgerrors.ErrInternal)
	}
	user := &models.User{
		Email:         draft.Email,
		Phone:         draft.Phone,
		PasswordHash:  draft.PasswordHash,
		City:          draft.City,
		HomeAddress:   draft.HomeAddress,
		PickupStoreID: draft.PickupStoreID,
		Role:          models.RoleUser,
	}

	// User insertion happens before the record is deleted: if the insert
	// fails, the record and cookie stay intact and confirm can be retried.
	// The unique constraint is the backstop against a racing duplicate.
	if err := s.users.Create(ctx, user); err != nil {
		span.RecordError(err)
		if stderrors.Is(err, pkgerrors.ErrUserExists) {
			observability.RegistrationOutcomes.WithLabelValues("confirm", "conflict").Inc()
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrServiceUnavailable, err)
	}
	if err := s.cache.Del(ctx, key); err != nil {
		// The user row already exists; the leftover record only expires.
		slog.Error("failed to drop confirmed pending record", "error", err)
	}

	observability.RegistrationOutcomes.WithLabelValues("confirm", "ok").Inc()
	slog.Info("user registered", "user_id", user.ID)
	return user, nil
}

// randomCode draws a uniform 6-digit code, 100000 through 999999 inclusive.
func randomCode() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return 0, err
	}
	return 100000 + int(n.Int64()), nil
}
