package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"lojapos/backend/internal/checkout"
	"lojapos/backend/internal/domain"
	"lojapos/backend/internal/store"
)

// ErrCartLocked is returned when another request is finalizing the cart.
var ErrCartLocked = fmt.Errorf("%w: cart is being finalized", store.ErrConflict)

// CartStore keeps open checkout sessions between register requests. Lock
// claims a cart exclusively until the returned unlock is called.
type CartStore interface {
	Get(ctx context.Context, id string) (*checkout.Session, bool, error)
	Save(ctx context.Context, session *checkout.Session) error
	Delete(ctx context.Context, id string) error
	Lock(ctx context.Context, id string) (unlock func(), err error)
}

// ClosureCache holds closure snapshots by date for report reads.
type ClosureCache interface {
	Get(ctx context.Context, date string) ([]domain.DailyClosure, bool, error)
	Set(ctx context.Context, date string, closures []domain.DailyClosure, ttl time.Duration) error
	Invalidate(ctx context.Context, date string) error
}

type NoopClosureCache struct{}

func (NoopClosureCache) Get(_ context.Context, _ string) ([]domain.DailyClosure, bool, error) {
	return nil, false, nil
}

func (NoopClosureCache) Set(_ context.Context, _ string, _ []domain.DailyClosure, _ time.Duration) error {
	return nil
}

func (NoopClosureCache) Invalidate(_ context.Context, _ string) error {
	return nil
}

type memoryCartEntry struct {
	payload   []byte
	expiresAt time.Time
}

// MemoryCartStore is the in-process CartStore. Sessions are stored encoded so
// callers never share a session value.
type MemoryCartStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryCartEntry
	locked  map[string]struct{}
	now     func() time.Time
}

func NewMemoryCartStore(ttl time.Duration) *MemoryCartStore {
	return &MemoryCartStore{
		ttl:     ttl,
		entries: make(map[string]memoryCartEntry),
		locked:  make(map[string]struct{}),
		now:     time.Now,
	}
}

func (m *MemoryCartStore) Get(_ context.Context, id string) (*checkout.Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[id]
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
		delete(m.entries, id)
		return nil, false, nil
	}
	var session checkout.Session
	if err := json.Unmarshal(entry.payload, &session); err != nil {
		return nil, false, err
	}
	return &session, true, nil
}

func (m *MemoryCartStore) Save(_ context.Context, session *checkout.Session) error {
	if session == nil {
		return nil
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry := memoryCartEntry{payload: payload}
	if m.ttl > 0 {
		entry.expiresAt = m.now().Add(m.ttl)
	}
	m.entries[session.ID] = entry
	m.sweepLocked()
	return nil
}

func (m *MemoryCartStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, id)
	return nil
}

func (m *MemoryCartStore) Lock(_ context.Context, id string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, held := m.locked[id]; held {
		return nil, fmt.Errorf("%w: %s", ErrCartLocked, id)
	}
	m.locked[id] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.locked, id)
			m.mu.Unlock()
		})
	}, nil
}

func (m *MemoryCartStore) sweepLocked() {
	now := m.now()
	for id, entry := range m.entries {
		if !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt) {
			delete(m.entries, id)
		}
	}
}
