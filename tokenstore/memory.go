package tokenstore

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryStore keeps tokens in a process-lifetime ttlcache. The default for
// server-side and test use.
type MemoryStore struct {
	cache *ttlcache.Cache[string, *Tokens]
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory token store with automatic eviction.
func NewMemoryStore() *MemoryStore {
	cache := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, *Tokens](),
	)
	go cache.Start()

	return &MemoryStore{cache: cache}
}

func (s *MemoryStore) Get(_ context.Context, clientID string) (*Tokens, error) {
	item := s.cache.Get(clientID)
	if item == nil {
		return nil, nil
	}
	return item.Value(), nil
}

func (s *MemoryStore) Set(_ context.Context, clientID string, tokens *Tokens) error {
	// A token set with a refresh token outlives its access token expiry.
	ttl := ttlcache.NoTTL
	if tokens.RefreshToken == "" {
		ttl = time.Until(tokens.ExpiresAt)
	}
	s.cache.Set(clientID, tokens, ttl)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, clientID string) error {
	s.cache.Delete(clientID)
	return nil
}

func (s *MemoryStore) ClearAll(_ context.Context) error {
	s.cache.DeleteAll()
	return nil
}

// Close stops the eviction goroutine.
func (s *MemoryStore) Close() error {
	s.cache.Stop()
	return nil
}
