package main

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStateSingleUse(t *testing.T) {
	store := NewStateStore(NewMemoryDB())

	state, err := store.Issue(10 * time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, state)

	ok, err := store.ValidateAndConsume(state)
	require.NoError(t, err)
	require.True(t, ok)

	for i := 0; i < 3; i++ {
		ok, err = store.ValidateAndConsume(state)
		require.NoError(t, err)
		require.False(t, ok)
	}
}

func TestStateUnknownToken(t *testing.T) {
	store := NewStateStore(NewMemoryDB())

	ok, err := store.ValidateAndConsume("never-issued")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStateExpiry(t *testing.T) {
	store := NewStateStore(NewMemoryDB())

	state, err := store.Issue(0)
	require.NoError(t, err)

	ok, err := store.ValidateAndConsume(state)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStateConsumeRace(t *testing.T) {
	store := NewStateStore(NewMemoryDB())

	state, err := store.Issue(10 * time.Minute)
	require.NoError(t, err)

	const n = 32
	var wins, failures int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := store.ValidateAndConsume(state)
			if err != nil {
				atomic.AddInt64(&failures, 1)
				return
			}
			if ok {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.EqualValues(t, 0, failures)
	require.EqualValues(t, 1, wins)
}

func TestSweepExpired(t *testing.T) {
	store := NewStateStore(NewMemoryDB())

	expired1, err := store.Issue(0)
	require.NoError(t, err)
	expired2, err := store.Issue(0)
	require.NoError(t, err)
	live, err := store.Issue(10 * time.Minute)
	require.NoError(t, err)

	n, err := store.SweepExpired()
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	// expired tokens are unusable whether swept or not
	for _, state := range []string{expired1, expired2} {
		ok, err := store.ValidateAndConsume(state)
		require.NoError(t, err)
		require.False(t, ok)
	}

	ok, err := store.ValidateAndConsume(live)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSweeperStops(t *testing.T) {
	store := NewStateStore(NewMemoryDB())

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		store.RunSweeper(time.Millisecond, stop)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	close(stop)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSQLiteStateLifecycle(t *testing.T) {
	db, err := NewSQLiteDB(t.TempDir() + "/state_test.db")
	require.NoError(t, err)
	defer db.close()

	store := NewStateStore(db)

	state, err := store.Issue(10 * time.Minute)
	require.NoError(t, err)

	ok, err := store.ValidateAndConsume(state)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.ValidateAndConsume(state)
	require.NoError(t, err)
	require.False(t, ok)

	expired, err := store.Issue(0)
	require.NoError(t, err)
	ok, err = store.ValidateAndConsume(expired)
	require.NoError(t, err)
	require.False(t, ok)

	n, err := store.SweepExpired()
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}
