package status

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/phrazzld/isplitter/internal/domain"
)

// MemoryTracker keeps records in process memory. Records expire after the
// configured TTL; a zero TTL keeps them for the life of the process.
type MemoryTracker struct {
	// mu serialises read-modify-write cycles; go-cache only guards single calls.
	mu    sync.Mutex
	items *cache.Cache
	now   func() time.Time
}

var _ Tracker = (*MemoryTracker)(nil)

// NewMemoryTracker creates an empty tracker.
func NewMemoryTracker(ttl time.Duration) *MemoryTracker {
	expiration := cache.NoExpiration
	var cleanup time.Duration
	if ttl > 0 {
		expiration = ttl
		cleanup = ttl
	}
	return &MemoryTracker{
		items: cache.New(expiration, cleanup),
		now:   time.Now,
	}
}

// Create implements Tracker.
func (m *MemoryTracker) Create(_ context.Context, t *domain.TryOnTask) error {
	if t == nil {
		return fmt.Errorf("%w: nil task", domain.ErrValidation)
	}
	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.items.Add(t.ID.String(), t.Clone(), cache.DefaultExpiration); err != nil {
		return fmt.Errorf("%w: %s", ErrTaskExists, t.ID)
	}
	return nil
}

// Get implements Tracker.
func (m *MemoryTracker) Get(_ context.Context, id uuid.UUID) (*domain.TryOnTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return t.Clone(), nil
}

// Update implements Tracker.
func (m *MemoryTracker) Update(_ context.Context, id uuid.UUID, u domain.TryOnUpdate) (*domain.TryOnTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	next := current.Clone()
	if err := next.Apply(u, m.now()); err != nil {
		return nil, err
	}

	m.items.Set(id.String(), next, cache.DefaultExpiration)
	return next.Clone(), nil
}

func (m *MemoryTracker) lookup(id uuid.UUID) (*domain.TryOnTask, bool) {
	v, ok := m.items.Get(id.String())
	if !ok {
		return nil, false
	}
	t, ok := v.(*domain.TryOnTask)
	return t, ok
}
