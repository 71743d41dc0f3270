// Package locker serializes writes per (tenant, data category). Two
// concurrent propagation runs must never interleave writes to the same
// tenant's category, so every target's portion of a run happens under
// an exclusive lock from this package.
package locker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Locker grants an exclusive lock for one tenant's data category.
// Acquire blocks until the lock is held or ctx is done, and returns a
// release function.
type Locker interface {
	Acquire(ctx context.Context, tenantID uint, category string) (func(), error)
}

func lockKey(tenantID uint, category string) string {
	return fmt.Sprintf("propagation:lock:%d:%s", tenantID, category)
}

// MemoryLocker is the single-process implementation, used when no
// redis backend is configured and by the test suites.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewMemoryLocker returns an in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]chan struct{})}
}

func (m *MemoryLocker) slot(key string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.locks[key]
	if !ok {
		slot = make(chan struct{}, 1)
		m.locks[key] = slot
	}
	return slot
}

// Acquire takes the lock for (tenantID, category) or fails when ctx is
// done first.
func (m *MemoryLocker) Acquire(ctx context.Context, tenantID uint, category string) (func(), error) {
	slot := m.slot(lockKey(tenantID, category))
	select {
	case slot <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() { <-slot })
		}, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("lock wait for tenant %d (%s): %w", tenantID, category, ctx.Err())
	}
}

// retryInterval is how often the redis locker polls a held lock.
const retryInterval = 50 * time.Millisecond
