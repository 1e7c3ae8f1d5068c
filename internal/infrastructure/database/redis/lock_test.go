package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/ipscope/internal/infrastructure/monitoring/logging"
)

func newTestMutex(t *testing.T, client *Client, name string, opts ...MutexOption) *Mutex {
	t.Helper()
	return NewMutex(client, logging.NewNopLogger(), "ipscope:", name, opts...)
}

func TestMutex_TryLockAndUnlock(t *testing.T) {
	mr := startMiniredis(t)
	client := newMiniredisClient(t, mr)
	ctx := context.Background()

	m1 := newTestMutex(t, client, "recount:req-1")
	m2 := newTestMutex(t, client, "recount:req-1")

	ok, err := m1.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m2.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second owner must not acquire a held lock")

	require.NoError(t, m1.Unlock(ctx))

	ok, err = m2.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "lock is free after release")
	require.NoError(t, m2.Unlock(ctx))
}

func TestMutex_DifferentNamesDoNotContend(t *testing.T) {
	mr := startMiniredis(t)
	client := newMiniredisClient(t, mr)
	ctx := context.Background()

	m1 := newTestMutex(t, client, "recount:req-1")
	m2 := newTestMutex(t, client, "recount:req-2")

	ok, err := m1.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m2.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMutex_UnlockNotHeld(t *testing.T) {
	mr := startMiniredis(t)
	client := newMiniredisClient(t, mr)

	m := newTestMutex(t, client, "recount:req-1")
	err := m.Unlock(context.Background())
	assert.ErrorIs(t, err, ErrLockNotHeld)
}

func TestMutex_UnlockAfterTakeover(t *testing.T) {
	mr := startMiniredis(t)
	client := newMiniredisClient(t, mr)
	ctx := context.Background()

	m := newTestMutex(t, client, "recount:req-1")
	ok, err := m.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// simulate expiry plus reacquisition by another owner
	require.NoError(t, mr.Set("ipscope:lock:recount:req-1", "someone-else"))

	assert.ErrorIs(t, m.Unlock(ctx), ErrLockNotHeld)

	val, err := mr.Get("ipscope:lock:recount:req-1")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", val, "foreign lock must survive a stale unlock")
}

func TestMutex_LockWaitsForRelease(t *testing.T) {
	mr := startMiniredis(t)
	client := newMiniredisClient(t, mr)
	ctx := context.Background()

	m1 := newTestMutex(t, client, "recount:req-1")
	ok, err := m1.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	go func() {
		time.Sleep(120 * time.Millisecond)
		_ = m1.Unlock(context.Background())
	}()

	m2 := newTestMutex(t, client, "recount:req-1",
		WithRetryDelay(25*time.Millisecond), WithRetryCount(40))
	require.NoError(t, m2.Lock(ctx))
	require.NoError(t, m2.Unlock(ctx))
}

func TestMutex_LockRetryBudgetExhausted(t *testing.T) {
	mr := startMiniredis(t)
	client := newMiniredisClient(t, mr)
	ctx := context.Background()

	m1 := newTestMutex(t, client, "recount:req-1")
	ok, err := m1.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	m2 := newTestMutex(t, client, "recount:req-1",
		WithRetryDelay(5*time.Millisecond), WithRetryCount(3))
	assert.ErrorIs(t, m2.Lock(ctx), ErrLockNotAcquired)
}

func TestMutex_LockHonorsContext(t *testing.T) {
	mr := startMiniredis(t)
	client := newMiniredisClient(t, mr)

	m1 := newTestMutex(t, client, "recount:req-1")
	ok, err := m1.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	m2 := newTestMutex(t, client, "recount:req-1",
		WithRetryDelay(20*time.Millisecond), WithRetryCount(100))
	assert.ErrorIs(t, m2.Lock(ctx), context.DeadlineExceeded)
}

func TestMutex_ExtendWhileHeld(t *testing.T) {
	mr := startMiniredis(t)
	client := newMiniredisClient(t, mr)
	ctx := context.Background()

	m := newTestMutex(t, client, "recount:req-1", WithLockTTL(10*time.Second))
	ok, err := m.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(8 * time.Second)
	extended, err := m.Extend(ctx)
	require.NoError(t, err)
	assert.True(t, extended)

	ttl, err := m.TTL(ctx)
	require.NoError(t, err)
	assert.Greater(t, ttl, 8*time.Second)

	require.NoError(t, m.Unlock(ctx))
	extended, err = m.Extend(ctx)
	require.NoError(t, err)
	assert.False(t, extended, "a released lock cannot be extended")
}

func TestMutex_WatchdogExtendsAndStopsCleanly(t *testing.T) {
	mr := startMiniredis(t)
	client := newMiniredisClient(t, mr)
	ctx := context.Background()

	m := newTestMutex(t, client, "recount:req-1",
		WithLockTTL(90*time.Millisecond), WithWatchdog(true))
	ok, err := m.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// let the ttl/3 ticker fire a few times; the token must stay ours
	time.Sleep(120 * time.Millisecond)
	held, err := m.Extend(ctx)
	require.NoError(t, err)
	assert.True(t, held)

	// Unlock joins the watchdog goroutine before releasing; a hang here
	// means the goroutine never exited
	require.NoError(t, m.Unlock(ctx))

	m2 := newTestMutex(t, client, "recount:req-1")
	ok, err = m2.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}
