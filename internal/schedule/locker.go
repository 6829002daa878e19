package schedule

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var ErrLockNotAcquired = errors.New("practitioner lock not acquired")

// Locker guards the reservation critical section. Exclusivity is scoped per
// practitioner: attempts for different practitioners proceed in parallel,
// only contention on the same practitioner serializes.
type Locker interface {
	WithPractitionerLock(ctx context.Context, practitionerID uuid.UUID, fn func(ctx context.Context) error) error
}

// MutexLocker is the in-process implementation, used with the in-memory
// store and in tests. Acquisition blocks until the lock frees or the context
// ends; a caller that gives up leaves no state change behind.
type MutexLocker struct {
	mu   sync.Mutex
	sems map[uuid.UUID]chan struct{}
}

func NewMutexLocker() *MutexLocker {
	return &MutexLocker{
		sems: make(map[uuid.UUID]chan struct{}),
	}
}

func (l *MutexLocker) sem(practitionerID uuid.UUID) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.sems[practitionerID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.sems[practitionerID] = ch
	}
	return ch
}

func (l *MutexLocker) WithPractitionerLock(ctx context.Context, practitionerID uuid.UUID, fn func(ctx context.Context) error) error {
	ch := l.sem(practitionerID)

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return ErrLockNotAcquired
	}
	defer func() { <-ch }()

	return fn(ctx)
}
