package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"insights-service/internal/model"
	"insights-service/internal/util"
)

var ErrIdentityNotFound = errors.New("identity not found")

// Repository persists the permanent email-key to user-id mapping.
type Repository interface {
	GetByEmailKey(ctx context.Context, bucket int, emailKey string) (*model.Identity, error)
	// Create inserts the identity if no row exists for the email key.
	// It returns the stored identity and whether this call created it;
	// when another writer won the race, the winner's row is returned.
	Create(ctx context.Context, identity *model.Identity) (*model.Identity, bool, error)
	HealthCheck(ctx context.Context) error
}

const (
	getIdentityCQL = `
		SELECT bucket, email_key, user_id, email_encrypted, email_dek, email_key_id, created_at
		FROM identities WHERE bucket = ? AND email_key = ?`

	createIdentityCQL = `
		INSERT INTO identities (bucket, email_key, user_id, email_encrypted, email_dek, email_key_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) IF NOT EXISTS`
)

type ScyllaRepository struct {
	client *ScyllaClient
}

func NewScyllaRepository(client *ScyllaClient) *ScyllaRepository {
	return &ScyllaRepository{client: client}
}

func (r *ScyllaRepository) GetByEmailKey(ctx context.Context, bucket int, emailKey string) (*model.Identity, error) {
	identity := &model.Identity{}

	err := r.client.Session.Query(getIdentityCQL, bucket, emailKey).
		WithContext(ctx).
		Scan(&identity.Bucket, &identity.EmailKey, &identity.UserID,
			&identity.EmailEncrypted, &identity.EmailDEK, &identity.EmailKeyID,
			&identity.CreatedAt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, ErrIdentityNotFound
		}
		util.Error("Failed to get identity",
			zap.String("email_key", emailKey),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	return identity, nil
}

// Create uses a lightweight transaction so concurrent first logins for
// the same email converge on a single user id.
func (r *ScyllaRepository) Create(ctx context.Context, identity *model.Identity) (*model.Identity, bool, error) {
	previous := make(map[string]interface{})

	applied, err := r.client.Session.Query(createIdentityCQL,
		identity.Bucket, identity.EmailKey, identity.UserID,
		identity.EmailEncrypted, identity.EmailDEK, identity.EmailKeyID,
		identity.CreatedAt).
		WithContext(ctx).
		MapScanCAS(previous)
	if err != nil {
		util.Error("Failed to create identity",
			zap.String("email_key", identity.EmailKey),
			zap.Error(err))
		return nil, false, fmt.Errorf("failed to create identity: %w", err)
	}

	if applied {
		return identity, true, nil
	}

	// Lost the race; adopt the winner's row.
	winner, err := r.GetByEmailKey(ctx, identity.Bucket, identity.EmailKey)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read identity after contended create: %w", err)
	}
	return winner, false, nil
}

func (r *ScyllaRepository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck()
}
