package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"insights-service/internal/bucketing"
	"insights-service/internal/cache"
	"insights-service/internal/encryption"
	"insights-service/internal/hashing"
	"insights-service/internal/model"
	"insights-service/internal/util"
)

const emailKeyPrefix = "id:email:"

// Resolver maps a verified email to its stable opaque user id,
// creating the mapping on first successful login. The durable row in
// Scylla is permanent; the cache entry is a read-through copy.
type Resolver struct {
	repo      Repository
	store     cache.Store
	hasher    *hashing.Hasher
	encryptor *encryption.Manager
	buckets   *bucketing.Manager
	cacheTTL  time.Duration
	logger    *zap.Logger
}

func NewResolver(
	repo Repository,
	store cache.Store,
	hasher *hashing.Hasher,
	encryptor *encryption.Manager,
	buckets *bucketing.Manager,
	cacheTTL time.Duration,
	logger *zap.Logger,
) *Resolver {
	return &Resolver{
		repo:      repo,
		store:     store,
		hasher:    hasher,
		encryptor: encryptor,
		buckets:   buckets,
		cacheTTL:  cacheTTL,
		logger:    logger,
	}
}

// EmailKey exposes the blind index for a normalized email so audit
// records never carry the raw address.
func (r *Resolver) EmailKey(email string) string {
	return r.hasher.EmailKey(email)
}

// Resolve returns the user id for a normalized email, creating the
// identity when none exists yet.
func (r *Resolver) Resolve(ctx context.Context, email string) (string, error) {
	emailKey := r.hasher.EmailKey(email)
	cacheKey := emailKeyPrefix + emailKey

	if userID, err := r.store.Get(ctx, cacheKey); err == nil && userID != "" {
		return userID, nil
	}

	bucket := r.buckets.IdentityBucket(emailKey)

	existing, err := r.repo.GetByEmailKey(ctx, bucket, emailKey)
	if err == nil {
		r.cacheMapping(ctx, cacheKey, existing.UserID)
		return existing.UserID, nil
	}
	if !errors.Is(err, ErrIdentityNotFound) {
		return "", fmt.Errorf("identity lookup failed: %w", err)
	}

	encrypted, err := r.encryptor.EncryptField(ctx, email)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt email: %w", err)
	}

	candidate := &model.Identity{
		Bucket:         bucket,
		EmailKey:       emailKey,
		UserID:         uuid.New().String(),
		EmailEncrypted: []byte(encrypted.EncryptedValue),
		EmailDEK:       encrypted.EncryptedDEK,
		EmailKeyID:     encrypted.KeyID,
		CreatedAt:      time.Now().UTC(),
	}

	stored, created, err := r.repo.Create(ctx, candidate)
	if err != nil {
		return "", fmt.Errorf("identity create failed: %w", err)
	}

	if created {
		r.logger.Info("Identity created",
			util.String("user_id", stored.UserID),
			util.Int("bucket", bucket),
		)
	}

	r.cacheMapping(ctx, cacheKey, stored.UserID)
	return stored.UserID, nil
}

func (r *Resolver) cacheMapping(ctx context.Context, cacheKey, userID string) {
	if err := r.store.Set(ctx, cacheKey, userID, r.cacheTTL); err != nil {
		r.logger.Warn("Failed to cache identity mapping", zap.Error(err))
	}
}
