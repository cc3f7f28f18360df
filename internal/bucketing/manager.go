package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"

	"insights-service/internal/config"
)

// Manager assigns stable partition buckets for identity rows and audit
// events so neither keyspace develops hot partitions.
type Manager struct {
	identityBuckets int
	eventBuckets    int
	hasherPool      sync.Pool
}

func NewManager(cfg *config.Config) *Manager {
	m := &Manager{
		identityBuckets: cfg.Bucketing.IdentityBuckets,
		eventBuckets:    cfg.Bucketing.EventBuckets,
	}

	// Pool hash state to avoid per-call allocation
	m.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return m
}

// IdentityBucket returns the partition bucket for an email key.
func (m *Manager) IdentityBucket(emailKey string) int {
	return m.bucket(emailKey, m.identityBuckets)
}

// EventBucket returns the bucket for an audit event identifier.
func (m *Manager) EventBucket(identifier string) int {
	return m.bucket(identifier, m.eventBuckets)
}

// DateBucket returns the UTC date partition for audit indices.
func (m *Manager) DateBucket() string {
	return time.Now().UTC().Format("2006-01-02")
}

func (m *Manager) bucket(identifier string, buckets int) int {
	if buckets <= 0 {
		return 0
	}

	hasher := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(hasher)

	hasher.Reset()
	_, _ = hasher.Write([]byte(identifier))

	return int(hasher.Sum64() % uint64(buckets))
}
