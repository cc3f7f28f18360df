package cache

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type localEntry struct {
	value     string
	expiresAt time.Time
}

// LocalStore is the in-process fallback tier. Expiry is enforced
// lazily on reads and by a background sweeper.
type LocalStore struct {
	mu      sync.Mutex
	entries map[string]*localEntry

	stopOnce sync.Once
	stop     chan struct{}
}

func NewLocalStore() *LocalStore {
	s := &LocalStore{
		entries: make(map[string]*localEntry),
		stop:    make(chan struct{}),
	}
	go s.sweep()
	return s
}

func (s *LocalStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &localEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *LocalStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return "", ErrNotFound
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.entries, key)
		return "", ErrNotFound
	}
	return entry.value, nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// IncrementWithTTL increments a numeric entry under the store lock and
// refreshes its TTL, mirroring the primary tier's INCR+EXPIRE pipeline.
func (s *LocalStore) IncrementWithTTL(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var count int64

	if entry, ok := s.entries[key]; ok && now.Before(entry.expiresAt) {
		parsed, err := strconv.ParseInt(entry.value, 10, 64)
		if err == nil {
			count = parsed
		}
	}
	count++

	s.entries[key] = &localEntry{
		value:     strconv.FormatInt(count, 10),
		expiresAt: now.Add(ttl),
	}
	return count, nil
}

func (s *LocalStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *LocalStore) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for key, entry := range s.entries {
				if now.After(entry.expiresAt) {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		}
	}
}
