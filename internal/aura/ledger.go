package aura

import (
	"context"
	"fmt"
	"sync"
)

// PointsStore is the slice of the persistence layer the ledger needs.
type PointsStore interface {
	GetUserPoints(ctx context.Context, userID string) (int, error)
	SetUserAura(ctx context.Context, userID string, points, level int) error
}

// Ledger applies reputation deltas. The read-modify-write per user is
// serialized by a per-user mutex so concurrent deltas from simultaneous
// messages and reactions never lose updates. Locks are refcounted and dropped
// from the map once uncontended, so the map tracks in-flight users, not every
// user ever scored. Points clamp at zero and the level is recomputed from
// points on every write, never stored independently.
type Ledger struct {
	store PointsStore

	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	sync.Mutex
	refs int
}

func NewLedger(store PointsStore) *Ledger {
	return &Ledger{
		store: store,
		locks: make(map[string]*userLock),
	}
}

func (l *Ledger) acquire(userID string) *userLock {
	l.mu.Lock()
	lock, ok := l.locks[userID]
	if !ok {
		lock = &userLock{}
		l.locks[userID] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.Lock()
	return lock
}

func (l *Ledger) release(userID string, lock *userLock) {
	lock.Unlock()

	l.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, userID)
	}
	l.mu.Unlock()
}

// ApplyDelta adjusts a user's point balance by delta and returns the
// resulting points and level.
func (l *Ledger) ApplyDelta(ctx context.Context, userID string, delta int) (points, level int, err error) {
	lock := l.acquire(userID)
	defer l.release(userID, lock)

	current, err := l.store.GetUserPoints(ctx, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("read points for %s: %w", userID, err)
	}

	points = current + delta
	if points < 0 {
		points = 0
	}
	level = LevelForPoints(points)

	if err := l.store.SetUserAura(ctx, userID, points, level); err != nil {
		return 0, 0, fmt.Errorf("write points for %s: %w", userID, err)
	}
	return points, level, nil
}
