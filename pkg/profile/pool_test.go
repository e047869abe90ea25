package profile

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, size int) *Pool {
	t.Helper()
	root := t.TempDir()
	pool, err := NewPool(PoolOptions{
		ProfilesDir: filepath.Join(root, "profiles"),
		LocksDir:    filepath.Join(root, "locks"),
		Size:        size,
		OwnerTag:    "test-owner",
	})
	require.NoError(t, err)
	return pool
}

// sameRootPool creates a second pool instance over an existing pool's
// directories, simulating another process competing for the same slots.
func sameRootPool(t *testing.T, other *Pool, ownerTag string) *Pool {
	t.Helper()
	pool, err := NewPool(PoolOptions{
		ProfilesDir: other.profilesDir,
		LocksDir:    other.locksDir,
		Size:        other.size,
		OwnerTag:    ownerTag,
	})
	require.NoError(t, err)
	return pool
}

func TestNewPoolValidation(t *testing.T) {
	_, err := NewPool(PoolOptions{})
	assert.Error(t, err)

	pool := newTestPool(t, 0)
	assert.Equal(t, DefaultPoolSize, pool.Size())
}

func TestAcquireFirstFree(t *testing.T) {
	pool := newTestPool(t, 3)

	slot, err := pool.Acquire(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "pool-0", slot.ID)

	// Slot directory is materialized lazily on acquire
	info, err := os.Stat(slot.Path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// Lock record identifies us
	lock, err := readLock(pool.lockPath(slot.ID))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), lock.PID)
	assert.Equal(t, "test-owner", lock.OwnerTag)

	// Next acquire skips the held slot
	next, err := pool.Acquire(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "pool-1", next.ID)
}

func TestAcquirePreferred(t *testing.T) {
	pool := newTestPool(t, 3)

	slot, err := pool.Acquire(context.Background(), "pool-2")
	require.NoError(t, err)
	assert.Equal(t, "pool-2", slot.ID)
}

func TestAcquirePreferredBusyFallsBack(t *testing.T) {
	pool := newTestPool(t, 3)

	// A live foreign process holds pool-2
	writeLockRecord(t, pool.lockPath("pool-2"), os.Getpid(), "other-client")

	slot, err := pool.Acquire(context.Background(), "pool-2")
	require.NoError(t, err)
	assert.Equal(t, "pool-0", slot.ID)
}

func TestAcquirePreferredStaleReclaimsBeforeFree(t *testing.T) {
	pool := newTestPool(t, 3)

	// pool-1 was held by a process that died; pool-0 is free
	writeLockRecord(t, pool.lockPath("pool-1"), deadPID, "crashed")

	slot, err := pool.Acquire(context.Background(), "pool-1")
	require.NoError(t, err)
	assert.Equal(t, "pool-1", slot.ID)

	// The reclaimed lock reflects the new owner
	lock, err := readLock(pool.lockPath("pool-1"))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), lock.PID)
	assert.Equal(t, "test-owner", lock.OwnerTag)
}

func TestAcquireUnknownPreferred(t *testing.T) {
	pool := newTestPool(t, 3)

	tests := []struct {
		name        string
		preferredID string
	}{
		{name: "index out of range", preferredID: "pool-99"},
		{name: "wrong prefix", preferredID: "slot-1"},
		{name: "not a number", preferredID: "pool-x"},
		{name: "negative", preferredID: "pool--1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pool.Acquire(context.Background(), tt.preferredID)
			assert.ErrorIs(t, err, ErrUnknownSlot)
		})
	}
}

func TestAcquireStaleReclamation(t *testing.T) {
	pool := newTestPool(t, 2)

	// Both slots left locked by dead processes
	writeLockRecord(t, pool.lockPath("pool-0"), deadPID, "crashed-a")
	writeLockRecord(t, pool.lockPath("pool-1"), deadPID, "crashed-b")

	slot, err := pool.Acquire(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "pool-0", slot.ID)

	lock, err := readLock(pool.lockPath("pool-0"))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), lock.PID)
}

func TestAcquireAllBusyDiagnostics(t *testing.T) {
	pool := newTestPool(t, 3)

	// All slots held by live processes (our own PID is certainly alive)
	for _, slot := range pool.Slots() {
		writeLockRecord(t, pool.lockPath(slot.ID), os.Getpid(), "other-client")
	}

	other := sameRootPool(t, pool, "late-arrival")
	_, err := other.Acquire(context.Background(), "")
	require.Error(t, err)

	var allBusy *AllBusyError
	require.ErrorAs(t, err, &allBusy)
	require.Len(t, allBusy.Statuses, 3)

	for i, status := range allBusy.Statuses {
		assert.Equal(t, SlotName(i), status.Slot.ID)
		assert.False(t, status.Available)
		assert.False(t, status.Stale)
		require.NotNil(t, status.Lock)
		assert.Equal(t, os.Getpid(), status.Lock.PID)
		assert.Equal(t, "other-client", status.Lock.OwnerTag)
	}

	assert.Contains(t, err.Error(), "all 3 profile slots are busy")
	assert.Contains(t, err.Error(), "force-release")
}

func TestAcquireSkipsCorruptLock(t *testing.T) {
	pool := newTestPool(t, 1)

	lockPath := pool.lockPath("pool-0")
	require.NoError(t, os.WriteFile(lockPath, []byte("garbage"), 0644))

	// A corrupt record is never treated as free or reclaimable
	_, err := pool.Acquire(context.Background(), "")
	var allBusy *AllBusyError
	require.ErrorAs(t, err, &allBusy)
	require.Len(t, allBusy.Statuses, 1)
	assert.True(t, allBusy.Statuses[0].Corrupt)
	assert.False(t, allBusy.Statuses[0].Available)

	// The garbage record is still on disk, untouched
	data, err := os.ReadFile(lockPath)
	require.NoError(t, err)
	assert.Equal(t, "garbage", string(data))
}

func TestAcquireCancelledContext(t *testing.T) {
	pool := newTestPool(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pool.Acquire(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMutualExclusionAcrossInstances(t *testing.T) {
	const size = 4
	pool := newTestPool(t, size)

	// Two instances over the same directories, racing from many goroutines
	other := sameRootPool(t, pool, "second-process")
	pools := []*Pool{pool, other}

	var mu sync.Mutex
	acquired := make(map[string]int)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			slot, err := pools[n%2].Acquire(context.Background(), "")
			if err != nil {
				return
			}
			mu.Lock()
			acquired[slot.ID]++
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	// No slot was handed out twice while held, and the pool never grew
	require.Len(t, acquired, size)
	for slotID, count := range acquired {
		assert.Equal(t, 1, count, "slot %s acquired %d times", slotID, count)
	}
}

func TestRelease(t *testing.T) {
	pool := newTestPool(t, 2)

	slot, err := pool.Acquire(context.Background(), "")
	require.NoError(t, err)

	require.NoError(t, pool.Release(slot.ID))

	_, err = os.Stat(pool.lockPath(slot.ID))
	assert.True(t, os.IsNotExist(err))

	// Releasing an already-free slot is a no-op
	require.NoError(t, pool.Release(slot.ID))
}

func TestReleaseLeavesForeignLock(t *testing.T) {
	pool := newTestPool(t, 2)

	writeLockRecord(t, pool.lockPath("pool-0"), deadPID, "someone-else")

	require.NoError(t, pool.Release("pool-0"))

	// Foreign lock untouched, even though its owner is gone
	lock, err := readLock(pool.lockPath("pool-0"))
	require.NoError(t, err)
	assert.Equal(t, deadPID, lock.PID)
}

func TestReleaseUnknownSlot(t *testing.T) {
	pool := newTestPool(t, 2)
	assert.ErrorIs(t, pool.Release("pool-9"), ErrUnknownSlot)
}

func TestForceRelease(t *testing.T) {
	pool := newTestPool(t, 2)

	// Foreign lock with a live owner is still removed
	writeLockRecord(t, pool.lockPath("pool-0"), os.Getpid(), "stuck-client")

	released, err := pool.ForceRelease("pool-0")
	require.NoError(t, err)
	assert.True(t, released)

	_, err = os.Stat(pool.lockPath("pool-0"))
	assert.True(t, os.IsNotExist(err))
}

func TestForceReleaseAbsent(t *testing.T) {
	pool := newTestPool(t, 2)

	tests := []struct {
		name   string
		slotID string
	}{
		{name: "unlocked slot", slotID: "pool-1"},
		{name: "unknown slot", slotID: "pool-42"},
		{name: "nonsense id", slotID: "what"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			released, err := pool.ForceRelease(tt.slotID)
			require.NoError(t, err)
			assert.False(t, released)
		})
	}
}

func TestForceReleaseClearsCorruptLock(t *testing.T) {
	pool := newTestPool(t, 1)

	lockPath := pool.lockPath("pool-0")
	require.NoError(t, os.WriteFile(lockPath, []byte("garbage"), 0644))

	released, err := pool.ForceRelease("pool-0")
	require.NoError(t, err)
	assert.True(t, released)

	// The slot is usable again
	slot, err := pool.Acquire(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "pool-0", slot.ID)
}

func TestList(t *testing.T) {
	pool := newTestPool(t, 3)

	writeLockRecord(t, pool.lockPath("pool-0"), os.Getpid(), "live-client")
	writeLockRecord(t, pool.lockPath("pool-1"), deadPID, "crashed")

	statuses := pool.List()
	require.Len(t, statuses, 3)

	held := statuses[0]
	assert.False(t, held.Available)
	assert.False(t, held.Stale)
	require.NotNil(t, held.Lock)
	assert.Equal(t, "live-client", held.Lock.OwnerTag)

	stale := statuses[1]
	assert.False(t, stale.Available)
	assert.True(t, stale.Stale)
	require.NotNil(t, stale.Lock)
	assert.Equal(t, deadPID, stale.Lock.PID)

	free := statuses[2]
	assert.True(t, free.Available)
	assert.Nil(t, free.Lock)
}

func TestIsLocked(t *testing.T) {
	pool := newTestPool(t, 2)

	locked, err := pool.IsLocked("pool-0")
	require.NoError(t, err)
	assert.False(t, locked)

	// Even a stale record counts as locked until reclaimed
	writeLockRecord(t, pool.lockPath("pool-0"), deadPID, "crashed")
	locked, err = pool.IsLocked("pool-0")
	require.NoError(t, err)
	assert.True(t, locked)

	_, err = pool.IsLocked("pool-7")
	assert.ErrorIs(t, err, ErrUnknownSlot)
}

func TestSlotName(t *testing.T) {
	assert.Equal(t, "pool-0", SlotName(0))
	assert.Equal(t, "pool-12", SlotName(12))
}
