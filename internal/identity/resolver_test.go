package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"insights-service/internal/bucketing"
	"insights-service/internal/cache"
	"insights-service/internal/config"
	"insights-service/internal/encryption"
	"insights-service/internal/hashing"
	"insights-service/internal/model"
)

// fakeRepository keys rows by email key and can simulate losing the
// insert race to a concurrent writer.
type fakeRepository struct {
	rows        map[string]*model.Identity
	createCalls int
	raceWinner  *model.Identity
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{rows: make(map[string]*model.Identity)}
}

func (r *fakeRepository) GetByEmailKey(_ context.Context, _ int, emailKey string) (*model.Identity, error) {
	row, ok := r.rows[emailKey]
	if !ok {
		return nil, ErrIdentityNotFound
	}
	return row, nil
}

func (r *fakeRepository) Create(_ context.Context, identity *model.Identity) (*model.Identity, bool, error) {
	r.createCalls++
	if r.raceWinner != nil {
		r.rows[r.raceWinner.EmailKey] = r.raceWinner
		return r.raceWinner, false, nil
	}
	r.rows[identity.EmailKey] = identity
	return identity, true, nil
}

func (r *fakeRepository) HealthCheck(context.Context) error {
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
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
}

func newTestResolver(t *testing.T, repo Repository) (*Resolver, cache.Store) {
	t.Helper()
	cfg := testConfig()

	encryptor, err := encryption.NewManager(cfg)
	require.NoError(t, err)

	store := cache.NewLocalStore()
	t.Cleanup(store.Close)

	resolver := NewResolver(
		repo,
		store,
		hashing.NewHasher(cfg),
		encryptor,
		bucketing.NewManager(cfg),
		time.Hour,
		zap.NewNop(),
	)
	return resolver, store
}

func TestResolveCreatesIdentityOnce(t *testing.T) {
	repo := newFakeRepository()
	resolver, _ := newTestResolver(t, repo)
	ctx := context.Background()

	first, err := resolver.Resolve(ctx, "nurse@hospital.org")
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := resolver.Resolve(ctx, "nurse@hospital.org")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.createCalls)
}

func TestResolveDistinctEmailsGetDistinctIDs(t *testing.T) {
	repo := newFakeRepository()
	resolver, _ := newTestResolver(t, repo)
	ctx := context.Background()

	a, err := resolver.Resolve(ctx, "a@hospital.org")
	require.NoError(t, err)
	b, err := resolver.Resolve(ctx, "b@hospital.org")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestResolveAdoptsRaceWinner(t *testing.T) {
	repo := newFakeRepository()
	resolver, _ := newTestResolver(t, repo)
	ctx := context.Background()

	winner := &model.Identity{
		EmailKey:  resolver.EmailKey("nurse@hospital.org"),
		UserID:    "winner-id",
		CreatedAt: time.Now().UTC(),
	}
	repo.raceWinner = winner

	got, err := resolver.Resolve(ctx, "nurse@hospital.org")
	require.NoError(t, err)
	assert.Equal(t, "winner-id", got)
}

func TestResolveUsesCachedMapping(t *testing.T) {
	repo := newFakeRepository()
	resolver, store := newTestResolver(t, repo)
	ctx := context.Background()

	userID, err := resolver.Resolve(ctx, "nurse@hospital.org")
	require.NoError(t, err)

	// Drop the durable row; the cached mapping must still answer.
	repo.rows = make(map[string]*model.Identity)

	got, err := resolver.Resolve(ctx, "nurse@hospital.org")
	require.NoError(t, err)
	assert.Equal(t, userID, got)

	// And once the cache entry is gone, a fresh identity is minted.
	require.NoError(t, store.Delete(ctx, emailKeyPrefix+resolver.EmailKey("nurse@hospital.org")))
	fresh, err := resolver.Resolve(ctx, "nurse@hospital.org")
	require.NoError(t, err)
	assert.NotEqual(t, userID, fresh)
}

func TestEmailKeyIsDeterministic(t *testing.T) {
	repo := newFakeRepository()
	resolver, _ := newTestResolver(t, repo)

	assert.Equal(t,
		resolver.EmailKey("nurse@hospital.org"),
		resolver.EmailKey("nurse@hospital.org"),
	)
	assert.NotEqual(t,
		resolver.EmailKey("nurse@hospital.org"),
		resolver.EmailKey("doctor@hospital.org"),
	)
}
