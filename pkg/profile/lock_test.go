package profile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// deadPID exceeds every platform's PID range, so it never names a live process
const deadPID = 999999999

func TestCreateLock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "pool-0.lock")

	lock, err := createLock(lockPath, "tester")
	require.NoError(t, err)

	assert.Equal(t, os.Getpid(), lock.PID)
	assert.Equal(t, "tester", lock.OwnerTag)
	assert.WithinDuration(t, time.Now().UTC(), lock.AcquiredAt, 5*time.Second)

	// The record on disk round-trips
	onDisk, err := readLock(lockPath)
	require.NoError(t, err)
	assert.Equal(t, lock.PID, onDisk.PID)
	assert.Equal(t, lock.OwnerTag, onDisk.OwnerTag)
}

func TestCreateLockAlreadyHeld(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "pool-0.lock")

	_, err := createLock(lockPath, "first")
	require.NoError(t, err)

	_, err = createLock(lockPath, "second")
	assert.ErrorIs(t, err, ErrSlotBusy)

	// The original record survives the losing attempt
	onDisk, err := readLock(lockPath)
	require.NoError(t, err)
	assert.Equal(t, "first", onDisk.OwnerTag)
}

func TestReadLockMissing(t *testing.T) {
	_, err := readLock(filepath.Join(t.TempDir(), "pool-0.lock"))
	assert.True(t, os.IsNotExist(err))
}

func TestReadLockCorrupt(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "pool-0.lock")
	require.NoError(t, os.WriteFile(lockPath, []byte("not json{"), 0644))

	_, err := readLock(lockPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, errCorruptLock)
	assert.False(t, os.IsNotExist(err))
}

func TestRemoveLock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "pool-0.lock")

	// Removing a missing lock is not an error
	require.NoError(t, removeLock(lockPath))

	_, err := createLock(lockPath, "tester")
	require.NoError(t, err)
	require.NoError(t, removeLock(lockPath))

	_, err = os.Stat(lockPath)
	assert.True(t, os.IsNotExist(err))
}

func TestIsProcessAlive(t *testing.T) {
	assert.True(t, isProcessAlive(os.Getpid()))
	assert.False(t, isProcessAlive(deadPID))
}

// writeLockRecord fabricates a lock record, e.g. one left behind by a crashed
// process.
func writeLockRecord(t *testing.T, lockPath string, pid int, ownerTag string) {
	t.Helper()
	data, err := json.MarshalIndent(Lock{
		PID:        pid,
		AcquiredAt: time.Now().UTC().Add(-time.Hour),
		OwnerTag:   ownerTag,
	}, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(lockPath, data, 0644))
}
