package pending

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryStore keeps pending logins in process memory. It suits a single
// server instance.
type MemoryStore struct {
	cache *ttlcache.Cache[string, PendingLogin]
	now   func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, PendingLogin](DefaultTTL+retention),
		ttlcache.WithDisableTouchOnHit[string, PendingLogin](),
	)
	go cache.Start()

	return &MemoryStore{cache: cache, now: time.Now}
}

func (s *MemoryStore) Put(_ context.Context, p *PendingLogin) error {
	if err := validate(p); err != nil {
		return err
	}
	if s.cache.Has(p.State) {
		return ErrExists
	}
	s.cache.Set(p.State, *p, keepFor(p, s.now()))
	return nil
}

func (s *MemoryStore) Take(_ context.Context, state string) (*PendingLogin, error) {
	item, ok := s.cache.GetAndDelete(state)
	if !ok || item == nil {
		return nil, ErrNotFound
	}
	p := item.Value()
	return &p, nil
}

// Len returns the number of entries held, expired or not.
func (s *MemoryStore) Len() int {
	return s.cache.Len()
}

// Close stops the expiry goroutine.
func (s *MemoryStore) Close() error {
	s.cache.Stop()
	return nil
}
