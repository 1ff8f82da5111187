package service

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexlazarev/shopcore/internal/infrastructure/auth"
	redisinfra "github.com/alexlazarev/shopcore/internal/infrastructure/redis"
	"github.com/alexlazarev/shopcore/internal/models"
	pkgerrors "github.com/alexlazarev/shopcore/pkg/errors"
)

type fakeDispatcher struct {
	targets []models.RegistrationTarget
	codes   []int
	err     error
}

func (f *fakeDispatcher) SendCode(ctx context.Context, target models.RegistrationTarget, code int) error {
	if f.err != nil {
		return f.err
	}
	f.targets = append(f.targets, target)
	f.codes = append(f.codes, code)
	return nil
}

func (f *fakeDispatcher) lastCode(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, f.codes, "no code was dispatched")
	return strconv.Itoa(f.codes[len(f.codes)-1])
}

const (
	testCodeTTL     = 5 * time.Minute
	testLimitTTL    = time.Minute
	testMaxAttempts = 3
)

type registerFixture struct {
	mr         *miniredis.Miniredis
	cache      *redisinfra.Client
	users      *fakeUserRepo
	dispatcher *fakeDispatcher
	svc        RegisterService
}

func newRegisterFixture(t *testing.T) *registerFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redisinfra.NewFromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))

	keys, err := auth.GenerateKeyPair()
	require.NoError(t, err)
	tokens := auth.NewTokenService(keys, 15*time.Minute, 30*24*time.Hour)

	f := &registerFixture{
		mr:         mr,
		cache:      cache,
		users:      &fakeUserRepo{},
		dispatcher: &fakeDispatcher{},
	}
	f.svc = NewRegisterService(f.users, cache, tokens, f.dispatcher, testCodeTTL, testLimitTTL, testMaxAttempts)
	return f
}

func emailRequest(address string) RegistrationRequest {
	return RegistrationRequest{
		Target:      models.EmailTarget(address),
		Password:    "secret-password",
		City:        "Moscow",
		HomeAddress: "Tverskaya 1",
	}
}

func TestRegisterService_HappyPath(t *testing.T) {
	f := newRegisterFixture(t)
	ctx := context.Background()

	token, err := f.svc.Initiate(ctx, emailRequest("new@y.com"), "203.0.113.1")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Len(t, f.dispatcher.codes, 1)
	assert.Equal(t, models.ChannelEmail, f.dispatcher.targets[0].Channel)

	code := f.dispatcher.lastCode(t)
	require.Len(t, code, 6)

	user, err := f.svc.Confirm(ctx, token, code)
	require.NoError(t, err)
	assert.Equal(t, "new@y.com", user.Email)
	assert.Equal(t, models.RoleUser, user.Role)
	assert.NotEmpty(t, user.PasswordHash)
	assert.NotEqual(t, "secret-password", user.PasswordHash)

	// The pending record is gone once the user row exists.
	assert.False(t, f.mr.Exists("verify_code_user:new@y.com"))

	// A finished registration cannot be replayed.
	_, err = f.svc.Confirm(ctx, token, code)
	assert.ErrorIs(t, err, pkgerrors.ErrVerificationExpired)
}

func TestRegisterService_WrongCodeAndExhaustion(t *testing.T) {
	f := newRegisterFixture(t)
	ctx := context.Background()

	token, err := f.svc.Initiate(ctx, emailRequest("new@y.com"), "203.0.113.1")
	require.NoError(t, err)
	code := f.dispatcher.lastCode(t)

	for i := 0; i < testMaxAttempts; i++ {
		_, err = f.svc.Confirm(ctx, token, "000000")
		assert.ErrorIs(t, err, pkgerrors.ErrWrongCode)
	}

	// The attempt over the cap drops the record entirely.
	_, err = f.svc.Confirm(ctx, token, "000000")
	assert.ErrorIs(t, err, pkgerrors.ErrTooManyAttempts)
	assert.False(t, f.mr.Exists("verify_code_user:new@y.com"))

	// Even the right code is useless afterwards.
	_, err = f.svc.Confirm(ctx, token, code)
	assert.ErrorIs(t, err, pkgerrors.ErrVerificationExpired)
	assert.Empty(t, f.users.users)
}

func TestRegisterService_NonNumericCodeIsMismatch(t *testing.T) {
	f := newRegisterFixture(t)
	ctx := context.Background()

	token, err := f.svc.Initiate(ctx, emailRequest("new@y.com"), "203.0.113.1")
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, token, "abcdef")
	assert.ErrorIs(t, err, pkgerrors.ErrWrongCode)
}

func TestRegisterService_ReinitiateResetsAttempts(t *testing.T) {
	f := newRegisterFixture(t)
	ctx := context.Background()

	token, err := f.svc.Initiate(ctx, emailRequest("new@y.com"), "203.0.113.1")
	require.NoError(t, err)
	firstCode := f.dispatcher.lastCode(t)

	for i := 0; i < testMaxAttempts-1; i++ {
		_, err = f.svc.Confirm(ctx, token, "000000")
		assert.ErrorIs(t, err, pkgerrors.ErrWrongCode)
	}

	// A second initiate within the window waits out the IP limiter first.
	f.mr.FastForward(testLimitTTL)
	token, err = f.svc.Initiate(ctx, emailRequest("new@y.com"), "203.0.113.1")
	require.NoError(t, err)
	secondCode := f.dispatcher.lastCode(t)

	// The old code died with the overwritten record.
	if firstCode != secondCode {
		_, err = f.svc.Confirm(ctx, token, firstCode)
		assert.ErrorIs(t, err, pkgerrors.ErrWrongCode)
	}

	// The fresh record carries a full attempt budget again.
	for i := 0; i < testMaxAttempts-1; i++ {
		_, err = f.svc.Confirm(ctx, token, "000000")
		assert.ErrorIs(t, err, pkgerrors.ErrWrongCode)
	}
	user, err := f.svc.Confirm(ctx, token, secondCode)
	require.NoError(t, err)
	assert.Equal(t, "new@y.com", user.Email)
}

func TestRegisterService_CodeExpiry(t *testing.T) {
	f := newRegisterFixture(t)
	ctx := context.Background()

	token, err := f.svc.Initiate(ctx, emailRequest("new@y.com"), "203.0.113.1")
	require.NoError(t, err)
	code := f.dispatcher.lastCode(t)

	f.mr.FastForward(testCodeTTL + time.Second)

	_, err = f.svc.Confirm(ctx, token, code)
	assert.ErrorIs(t, err, pkgerrors.ErrVerificationExpired)
}

func TestRegisterService_IPThrottle(t *testing.T) {
	f := newRegisterFixture(t)
	ctx := context.Background()

	_, err := f.svc.Initiate(ctx, emailRequest("a@y.com"), "203.0.113.1")
	require.NoError(t, err)

	// Same IP inside the window, even for another identifier.
	_, err = f.svc.Initiate(ctx, emailRequest("b@y.com"), "203.0.113.1")
	assert.ErrorIs(t, err, pkgerrors.ErrTooManyRequests)

	// A different IP is untouched.
	_, err = f.svc.Initiate(ctx, emailRequest("b@y.com"), "203.0.113.2")
	require.NoError(t, err)

	// The window lapses and the first IP can ask again.
	f.mr.FastForward(testLimitTTL)
	_, err = f.svc.Initiate(ctx, emailRequest("c@y.com"), "203.0.113.1")
	require.NoError(t, err)
}

func TestRegisterService_DurableUserBlocksInitiate(t *testing.T) {
	f := newRegisterFixture(t)
	ctx := context.Background()
	hash, _ := auth.HashPassword("whatever")
	f.users.users = append(f.users.users, &models.User{ID: 1, Email: "taken@y.com", PasswordHash: hash, Role: models.RoleUser})

	_, err := f.svc.Initiate(ctx, emailRequest("taken@y.com"), "203.0.113.1")
	assert.ErrorIs(t, err, pkgerrors.ErrUserExists)
	assert.Empty(t, f.dispatcher.codes)
}

func TestRegisterService_DispatchFailureSurfaces(t *testing.T) {
	f := newRegisterFixture(t)
	ctx := context.Background()
	f.dispatcher.err = pkgerrors.ErrDispatchFailed

	_, err := f.svc.Initiate(ctx, emailRequest("new@y.com"), "203.0.113.1")
	assert.ErrorIs(t, err, pkgerrors.ErrDispatchFailed)

	// The cached draft stays behind and simply expires on its own.
	assert.True(t, f.mr.Exists("verify_code_user:new@y.com"))
}

func TestRegisterService_CreateFailureLeavesRecordForRetry(t *testing.T) {
	f := newRegisterFixture(t)
	ctx := context.Background()

	token, err := f.svc.Initiate(ctx, emailRequest("new@y.com"), "203.0.113.1")
	require.NoError(t, err)
	code := f.dispatcher.lastCode(t)

	// The insert fails, but the record and cookie survive for a retry.
	f.users.createErr = errors.New("connection refused")
	_, err = f.svc.Confirm(ctx, token, code)
	assert.ErrorIs(t, err, pkgerrors.ErrServiceUnavailable)
	assert.True(t, f.mr.Exists("verify_code_user:new@y.com"))

	f.users.createErr = nil
	user, err := f.svc.Confirm(ctx, token, code)
	require.NoError(t, err)
	assert.Equal(t, "new@y.com", user.Email)
	assert.False(t, f.mr.Exists("verify_code_user:new@y.com"))
}

func TestRegisterService_RacingDuplicateSurfacesConflict(t *testing.T) {
	f := newRegisterFixture(t)
	ctx := context.Background()

	token, err := f.svc.Initiate(ctx, emailRequest("new@y.com"), "203.0.113.1")
	require.NoError(t, err)
	code := f.dispatcher.lastCode(t)

	// Another registration for the same identifier lands first.
	hash, _ := auth.HashPassword("other-password")
	f.users.users = append(f.users.users, &models.User{ID: 1, Email: "new@y.com", PasswordHash: hash, Role: models.RoleUser})

	_, err = f.svc.Confirm(ctx, token, code)
	assert.ErrorIs(t, err, pkgerrors.ErrUserExists)
}

func TestRegisterService_StrayAttemptRecordIsExpiry(t *testing.T) {
	f := newRegisterFixture(t)
	ctx := context.Background()

	token, err := f.svc.Initiate(ctx, emailRequest("new@y.com"), "203.0.113.1")
	require.NoError(t, err)
	key := "verify_code_user:new@y.com"

	// Expiry racing the attempt increment leaves a bare counter behind.
	require.NoError(t, f.cache.Del(ctx, key))
	require.NoError(t, f.cache.HSet(ctx, key, map[string]interface{}{"attempt": 1}))
	require.NoError(t, f.cache.Expire(ctx, key, time.Minute))

	_, err = f.svc.Confirm(ctx, token, "123456")
	assert.ErrorIs(t, err, pkgerrors.ErrVerificationExpired)
	assert.False(t, f.mr.Exists(key))
}

func TestRegisterService_PhoneChannel(t *testing.T) {
	f := newRegisterFixture(t)
	ctx := context.Background()

	req := RegistrationRequest{
		Target:   models.PhoneTarget("+79991112233"),
		Password: "secret-password",
		City:     "Kazan",
	}
	token, err := f.svc.Initiate(ctx, req, "203.0.113.1")
	require.NoError(t, err)
	require.Len(t, f.dispatcher.targets, 1)
	assert.Equal(t, models.ChannelPhone, f.dispatcher.targets[0].Channel)

	user, err := f.svc.Confirm(ctx, token, f.dispatcher.lastCode(t))
	require.NoError(t, err)
	assert.Equal(t, "+79991112233", user.Phone)
	assert.Empty(t, user.Email)
}
