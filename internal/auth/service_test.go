package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"insights-service/internal/audit"
	"insights-service/internal/bucketing"
	"insights-service/internal/cache"
	"insights-service/internal/config"
	"insights-service/internal/encryption"
	"insights-service/internal/hashing"
	"insights-service/internal/identity"
	"insights-service/internal/model"
	"insights-service/internal/token"
	"insights-service/internal/util"
)

// fakeProvider stands in for the external email microservice. verifyErr
// controls the outcome of code checks.
type fakeProvider struct {
	sendErr   error
	verifyErr error
	sendCalls int
}

func (p *fakeProvider) SendCode(context.Context, string) error {
	p.sendCalls++
	return p.sendErr
}

func (p *fakeProvider) VerifyCode(context.Context, string, string) error {
	return p.verifyErr
}

type memoryRepository struct {
	rows map[string]*model.Identity
}

func (r *memoryRepository) GetByEmailKey(_ context.Context, _ int, emailKey string) (*model.Identity, error) {
	row, ok := r.rows[emailKey]
	if !ok {
		return nil, identity.ErrIdentityNotFound
	}
	return row, nil
}

func (r *memoryRepository) Create(_ context.Context, row *model.Identity) (*model.Identity, bool, error) {
	if existing, ok := r.rows[row.EmailKey]; ok {
		return existing, false, nil
	}
	r.rows[row.EmailKey] = row
	return row, true, nil
}

func (r *memoryRepository) HealthCheck(context.Context) error {
	return nil
}

type serviceFixture struct {
	service  *Service
	provider *fakeProvider
	store    cache.Store
	issuer   *token.Issuer
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	cfg := &config.Config{
		Hashing: config.HashingConfig{
			Pepper:            "test-pepper",
			Argon2MemoryCost:  1024,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
		},
		Bucketing: config.BucketingConfig{
			IdentityBuckets: 16,
			EventBuckets:    4,
		},
	}

	encryptor, err := encryption.NewManager(cfg)
	require.NoError(t, err)

	store := cache.NewLocalStore()
	t.Cleanup(store.Close)

	buckets := bucketing.NewManager(cfg)
	resolver := identity.NewResolver(
		&memoryRepository{rows: make(map[string]*model.Identity)},
		store,
		hashing.NewHasher(cfg),
		encryptor,
		buckets,
		time.Hour,
		zap.NewNop(),
	)

	issuer := token.NewIssuer("test-secret", time.Hour)
	provider := &fakeProvider{}
	recorder := audit.NewRecorder(nil, nil, buckets, zap.NewNop())

	service := NewService(
		store,
		provider,
		resolver,
		issuer,
		recorder,
		10*time.Minute,
		time.Hour,
		zap.NewNop(),
	)

	return &serviceFixture{
		service:  service,
		provider: provider,
		store:    store,
		issuer:   issuer,
	}
}

const testEmail = "nurse@hospital.org"

func login(t *testing.T, f *serviceFixture) *LoginResult {
	t.Helper()
	ctx := context.Background()

	_, err := f.service.RequestCode(ctx, testEmail)
	require.NoError(t, err)

	result, err := f.service.VerifyCode(ctx, testEmail, "123456")
	require.NoError(t, err)
	return result
}

func TestRequestCodeCreatesSession(t *testing.T) {
	f := newServiceFixture(t)

	result, err := f.service.RequestCode(context.Background(), "Nurse@Hospital.ORG ")
	require.NoError(t, err)
	assert.Equal(t, 600, result.ExpiresIn)
	assert.Equal(t, 1, f.provider.sendCalls)
}

func TestRequestCodeRejectsInvalidEmail(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.service.RequestCode(context.Background(), "not-an-email")
	assert.ErrorIs(t, err, util.ErrInvalidEmail)
	assert.Zero(t, f.provider.sendCalls)
}

func TestRequestCodeSendFailureWritesNothing(t *testing.T) {
	f := newServiceFixture(t)
	f.provider.sendErr = ErrProviderUnreachable

	_, err := f.service.RequestCode(context.Background(), testEmail)
	assert.ErrorIs(t, err, ErrProviderUnreachable)

	// No session means verify reports expiry, not a wrong code.
	_, err = f.service.VerifyCode(context.Background(), testEmail, "123456")
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestVerifyCodeSuccess(t *testing.T) {
	f := newServiceFixture(t)
	result := login(t, f)

	assert.NotEmpty(t, result.UserID)
	assert.Equal(t, testEmail, result.Email)
	assert.Equal(t, 3600, result.ExpiresIn)

	claims, err := f.issuer.Validate(result.Token)
	require.NoError(t, err)
	assert.Equal(t, result.UserID, claims.UserID)
	assert.Equal(t, testEmail, claims.Email)

	_, err = uuid.Parse(result.UserID)
	assert.NoError(t, err)
}

func TestVerifyCodeSessionIsOneTimeUse(t *testing.T) {
	f := newServiceFixture(t)
	login(t, f)

	_, err := f.service.VerifyCode(context.Background(), testEmail, "123456")
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestVerifyCodeWithoutSession(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.service.VerifyCode(context.Background(), testEmail, "123456")
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestVerifyCodeRejectsBadFormat(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.service.RequestCode(ctx, testEmail)
	require.NoError(t, err)

	for _, code := range []string{"", "12345", "abcdef"} {
		_, err := f.service.VerifyCode(ctx, testEmail, code)
		assert.ErrorIs(t, err, util.ErrInvalidOTPFormat)
	}

	// Format rejections never charge the attempt budget.
	f.provider.verifyErr = nil
	_, err = f.service.VerifyCode(ctx, testEmail, "123456")
	assert.NoError(t, err)
}

func TestVerifyCodeWrongCodePreservesSession(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.service.RequestCode(ctx, testEmail)
	require.NoError(t, err)

	f.provider.verifyErr = ErrCodeRejected
	for i := 0; i < 4; i++ {
		_, err := f.service.VerifyCode(ctx, testEmail, "000000")
		assert.ErrorIs(t, err, ErrInvalidCode)
	}

	f.provider.verifyErr = nil
	result, err := f.service.VerifyCode(ctx, testEmail, "123456")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
}

func TestVerifyCodeExhaustsAttempts(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.service.RequestCode(ctx, testEmail)
	require.NoError(t, err)

	f.provider.verifyErr = ErrCodeRejected
	for i := 0; i < maxAttempts; i++ {
		_, err := f.service.VerifyCode(ctx, testEmail, "000000")
		assert.ErrorIs(t, err, ErrInvalidCode, "attempt %d", i+1)
	}

	// The attempt that crosses the budget terminates the session even
	// with the right code in hand.
	f.provider.verifyErr = nil
	_, err = f.service.VerifyCode(ctx, testEmail, "123456")
	assert.ErrorIs(t, err, ErrMaxAttempts)

	_, err = f.service.VerifyCode(ctx, testEmail, "123456")
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestVerifyCodeProviderOutageChargesAttempt(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.service.RequestCode(ctx, testEmail)
	require.NoError(t, err)

	f.provider.verifyErr = ErrProviderUnreachable
	for i := 0; i < maxAttempts; i++ {
		_, err := f.service.VerifyCode(ctx, testEmail, "123456")
		assert.ErrorIs(t, err, ErrProviderUnavailable)
	}

	f.provider.verifyErr = nil
	_, err = f.service.VerifyCode(ctx, testEmail, "123456")
	assert.ErrorIs(t, err, ErrMaxAttempts)
}

func TestNewSessionResetsAttempts(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.service.RequestCode(ctx, testEmail)
	require.NoError(t, err)

	f.provider.verifyErr = ErrCodeRejected
	for i := 0; i < maxAttempts; i++ {
		_, _ = f.service.VerifyCode(ctx, testEmail, "000000")
	}

	// Requesting again replaces the session and restores the full
	// budget.
	_, err = f.service.RequestCode(ctx, testEmail)
	require.NoError(t, err)

	f.provider.verifyErr = nil
	result, err := f.service.VerifyCode(ctx, testEmail, "123456")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
}

func TestRepeatedLoginsKeepUserID(t *testing.T) {
	f := newServiceFixture(t)

	first := login(t, f)
	second := login(t, f)

	assert.Equal(t, first.UserID, second.UserID)
}

func TestRefreshIssuesNewValidToken(t *testing.T) {
	f := newServiceFixture(t)
	result := login(t, f)

	claims, err := f.issuer.Validate(result.Token)
	require.NoError(t, err)

	refreshed, expiresIn, err := f.service.Refresh(context.Background(), claims)
	require.NoError(t, err)
	assert.Equal(t, 3600, expiresIn)

	newClaims, err := f.issuer.Validate(refreshed)
	require.NoError(t, err)
	assert.Equal(t, result.UserID, newClaims.UserID)
}

func TestLogoutDropsSessionRecord(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	result := login(t, f)

	claims, err := f.issuer.Validate(result.Token)
	require.NoError(t, err)

	user, session := f.service.Profile(ctx, claims)
	require.NotNil(t, session)
	assert.Equal(t, result.UserID, user.UserID)
	assert.True(t, session.Active)

	require.NoError(t, f.service.Logout(ctx, claims))

	user, session = f.service.Profile(ctx, claims)
	assert.Equal(t, result.UserID, user.UserID)
	assert.Nil(t, session)
}

func TestProviderErrorTaxonomy(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.service.RequestCode(ctx, testEmail)
	require.NoError(t, err)

	f.provider.verifyErr = errors.New("tls handshake failed")
	_, err = f.service.VerifyCode(ctx, testEmail, "123456")
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.NotErrorIs(t, err, ErrInvalidCode)
}
