package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"
)

// errCorruptLock marks a lock file that exists but cannot be parsed. A corrupt
// record must never be treated as free: that would break mutual exclusion.
var errCorruptLock = errors.New("unreadable lock record")

// createLock atomically creates the lock file for a slot. The O_EXCL create is
// the entire mutual-exclusion contract: two processes racing here see exactly
// one winner, with no separate existence check to race against.
func createLock(lockPath, ownerTag string) (*Lock, error) {
	lock := &Lock{
		PID:        os.Getpid(),
		AcquiredAt: time.Now().UTC(),
		OwnerTag:   ownerTag,
	}

	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock: %w", err)
	}

	f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrSlotBusy
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		os.Remove(lockPath)
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}

	return lock, nil
}

// readLock reads and parses a lock file. A missing file surfaces the
// underlying os.IsNotExist error; an unparsable file surfaces errCorruptLock.
func readLock(lockPath string) (*Lock, error) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return nil, err
	}

	var lock Lock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("%w: %v", errCorruptLock, err)
	}

	return &lock, nil
}

// removeLock deletes a lock file. Missing files are not an error.
func removeLock(lockPath string) error {
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// isProcessAlive checks if a process with the given PID is still running.
// Subject to PID reuse: a fresh, unrelated process that happens to receive a
// dead owner's PID will be misread as the original holder until it too exits.
func isProcessAlive(pid int) bool {
	// On Unix, sending signal 0 checks if process exists without affecting it
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	err = process.Signal(syscall.Signal(0))
	return err == nil
}
