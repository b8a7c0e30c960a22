package aura

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type memPointsStore struct {
	mu     sync.Mutex
	points map[string]int
	levels map[string]int
	err    error
}

func newMemPointsStore() *memPointsStore {
	return &memPointsStore{points: make(map[string]int), levels: make(map[string]int)}
}

func (s *memPointsStore) GetUserPoints(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	return s.points[userID], nil
}

func (s *memPointsStore) SetUserAura(_ context.Context, userID string, points, level int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.points[userID] = points
	s.levels[userID] = level
	return nil
}

func TestLedgerApplyDelta(t *testing.T) {
	req := require.New(t)
	st := newMemPointsStore()
	ledger := NewLedger(st)

	points, level, err := ledger.ApplyDelta(context.Background(), "u1", 5)
	req.NoError(err)
	req.Equal(5, points)
	req.Equal(1, level)

	points, level, err = ledger.ApplyDelta(context.Background(), "u1", 60)
	req.NoError(err)
	req.Equal(65, points)
	req.Equal(2, level)
}

func TestLedgerClampsAtZero(t *testing.T) {
	req := require.New(t)
	st := newMemPointsStore()
	ledger := NewLedger(st)

	_, _, err := ledger.ApplyDelta(context.Background(), "u1", 3)
	req.NoError(err)

	points, level, err := ledger.ApplyDelta(context.Background(), "u1", -10)
	req.NoError(err)
	req.Equal(0, points)
	req.Equal(1, level)
}

func TestLedgerLevelDerivedFromPoints(t *testing.T) {
	req := require.New(t)
	st := newMemPointsStore()
	ledger := NewLedger(st)

	_, _, err := ledger.ApplyDelta(context.Background(), "u1", 2500)
	req.NoError(err)
	req.Equal(LevelForPoints(2500), st.levels["u1"])

	_, _, err = ledger.ApplyDelta(context.Background(), "u1", -2300)
	req.NoError(err)
	req.Equal(LevelForPoints(200), st.levels["u1"])
}

func TestLedgerConcurrentDeltasDoNotLoseUpdates(t *testing.T) {
	req := require.New(t)
	st := newMemPointsStore()
	ledger := NewLedger(st)

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := ledger.ApplyDelta(context.Background(), "author", 5)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	req.Equal(workers*5, st.points["author"])
	req.Equal(LevelForPoints(workers*5), st.levels["author"])
}

func TestLedgerDropsIdleLocks(t *testing.T) {
	req := require.New(t)
	st := newMemPointsStore()
	ledger := NewLedger(st)

	const users = 20
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _, err := ledger.ApplyDelta(context.Background(), fmt.Sprintf("u%d", n), 5)
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// Once no delta is in flight the lock map is empty again; it must not
	// grow with every user ever scored.
	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	req.Empty(ledger.locks)
}

func TestLedgerPropagatesStoreErrors(t *testing.T) {
	req := require.New(t)
	st := newMemPointsStore()
	st.err = errors.New("store down")
	ledger := NewLedger(st)

	_, _, err := ledger.ApplyDelta(context.Background(), "u1", 5)
	req.ErrorContains(err, "store down")
}
