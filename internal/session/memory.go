package session

import (
	"context"
	"sync"
	"time"

	"github.com/clearancehq/tiergate/internal/observability"
	"github.com/clearancehq/tiergate/internal/tier"
)

// DefaultJanitorInterval is how often expired records are swept.
const DefaultJanitorInterval = time.Minute

// MemoryStore is an in-process session store. Records expire at read time;
// a janitor goroutine sweeps dead entries so memory does not accumulate
// between reads.
type MemoryStore struct {
	records      sync.Map // handle -> *memoryEntry
	now          func() time.Time
	logger       observability.Logger
	janitorEvery time.Duration

	stopCh    chan struct{}
	closeOnce sync.Once
}

type memoryEntry struct {
	rec       Record
	expiresAt time.Time
}

// MemoryStoreOption is a functional option for the MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithMemoryLogger sets the logger for the store.
func WithMemoryLogger(logger observability.Logger) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.logger = logger
	}
}

// WithMemoryClock overrides the time source. Tests only.
func WithMemoryClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithJanitorInterval sets the sweep interval. Zero disables the janitor.
func WithJanitorInterval(d time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.janitorEvery = d
	}
}

// NewMemoryStore creates an in-process session store.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		now:          time.Now,
		logger:       observability.NopLogger(),
		stopCh:       make(chan struct{}),
		janitorEvery: DefaultJanitorInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.janitorEvery > 0 {
		go s.janitor()
	}
	return s
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, handle string) (*Record, error) {
	v, ok := s.records.Load(handle)
	if !ok {
		return nil, ErrSessionNotFound
	}
	entry := v.(*memoryEntry)
	if s.now().After(entry.expiresAt) {
		s.records.Delete(handle)
		return nil, ErrSessionNotFound
	}
	rec := entry.rec
	return &rec, nil
}

// GetTier implements Store.
func (s *MemoryStore) GetTier(ctx context.Context, handle string) (tier.Tier, error) {
	return tierOf(ctx, s, handle)
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, handle string, rec *Record, ttl time.Duration) error {
	expiresAt := s.now().Add(ttl)
	if !rec.ExpiresAt.IsZero() && rec.ExpiresAt.Before(expiresAt) {
		expiresAt = rec.ExpiresAt
	}
	s.records.Store(handle, &memoryEntry{rec: *rec, expiresAt: expiresAt})
	return nil
}

// Invalidate implements Store.
func (s *MemoryStore) Invalidate(_ context.Context, handle string) error {
	s.records.Delete(handle)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCh)
	})
	return nil
}

// Len returns the number of stored entries, including not-yet-swept
// expired ones.
func (s *MemoryStore) Len() int {
	n := 0
	s.records.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (s *MemoryStore) janitor() {
	ticker := time.NewTicker(s.janitorEvery)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *MemoryStore) sweep() {
	now := s.now()
	removed := 0
	s.records.Range(func(k, v any) bool {
		if now.After(v.(*memoryEntry).expiresAt) {
			s.records.Delete(k)
			removed++
		}
		return true
	})
	if removed > 0 {
		s.logger.Debug("swept expired sessions", observability.Int("removed", removed))
	}
}
