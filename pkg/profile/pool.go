package profile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hydraspecter/hydraspecter/pkg/logging"
)

// Pool is a fixed-size registry of named profile slots backed by on-disk
// directories. Mutual exclusion across processes rests entirely on the lock
// files; the in-process mutex only serializes this instance's own scans.
//
// A Pool is an explicitly constructed service: create one at process start and
// pass it to consumers. There is no package-level instance.
type Pool struct {
	mu          sync.Mutex
	profilesDir string
	locksDir    string
	size        int
	ownerTag    string
	logger      *logging.Logger
}

// PoolOptions configures a Pool.
type PoolOptions struct {
	// ProfilesDir holds one directory per slot (pool-0, pool-1, ...)
	ProfilesDir string

	// LocksDir holds one lock record per held slot (pool-0.lock, ...)
	LocksDir string

	// Size is the number of slots; defaults to DefaultPoolSize
	Size int

	// OwnerTag identifies this client in lock records and diagnostics;
	// defaults to hostname plus a short random suffix
	OwnerTag string

	// Logger is optional; a component logger is created when nil
	Logger *logging.Logger
}

// NewPool creates a profile pool over the given directories, creating them if
// absent. Slot directories themselves are materialized lazily on first
// acquire.
func NewPool(opts PoolOptions) (*Pool, error) {
	if opts.ProfilesDir == "" || opts.LocksDir == "" {
		return nil, fmt.Errorf("profile pool requires profiles and locks directories")
	}

	size := opts.Size
	if size <= 0 {
		size = DefaultPoolSize
	}

	ownerTag := opts.OwnerTag
	if ownerTag == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		ownerTag = fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8])
	}

	logger := opts.Logger
	if logger == nil {
		logger, _ = NewPoolLogger()
	}

	for _, dir := range []string{opts.ProfilesDir, opts.LocksDir} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create pool directory: %w", err)
		}
	}

	return &Pool{
		profilesDir: opts.ProfilesDir,
		locksDir:    opts.LocksDir,
		size:        size,
		ownerTag:    ownerTag,
		logger:      logger,
	}, nil
}

// NewPoolLogger creates the component logger used when PoolOptions.Logger is
// nil. Split out so callers embedding the pool can share it.
func NewPoolLogger() (*logging.Logger, error) {
	return logging.NewLogger("profile-pool")
}

// Size returns the number of slots in the pool.
func (p *Pool) Size() int {
	return p.size
}

// OwnerTag returns the tag written into lock records acquired by this pool.
func (p *Pool) OwnerTag() string {
	return p.ownerTag
}

// Slot resolves a slot ID to its Slot. Returns ErrUnknownSlot for IDs outside
// this pool.
func (p *Pool) Slot(slotID string) (Slot, error) {
	index, err := slotIndex(slotID)
	if err != nil {
		return Slot{}, err
	}
	if index >= p.size {
		return Slot{}, fmt.Errorf("%w: %q (pool size %d)", ErrUnknownSlot, slotID, p.size)
	}
	return Slot{ID: slotID, Path: filepath.Join(p.profilesDir, slotID)}, nil
}

// Slots returns every slot in index order.
func (p *Pool) Slots() []Slot {
	slots := make([]Slot, 0, p.size)
	for i := 0; i < p.size; i++ {
		id := SlotName(i)
		slots = append(slots, Slot{ID: id, Path: filepath.Join(p.profilesDir, id)})
	}
	return slots
}

// Acquire claims a slot for this process. Scan order is deterministic: the
// preferred slot first (taken if free or stale-reclaimable), then the first
// free slot, then the first stale-reclaimable slot. When every slot is held by
// a live process it returns an *AllBusyError carrying the full pool status.
func (p *Pool) Acquire(ctx context.Context, preferredID string) (*Slot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if preferredID != "" {
		slot, err := p.Slot(preferredID)
		if err != nil {
			return nil, err
		}
		lock, err := p.tryLock(slot, true)
		if err != nil {
			return nil, err
		}
		if lock != nil {
			p.logger.Infof("acquired %s (preferred) as %s", slot.ID, p.ownerTag)
			return &slot, nil
		}
	}

	// First free slot in index order
	for _, slot := range p.Slots() {
		if slot.ID == preferredID {
			continue
		}
		lock, err := p.tryLock(slot, false)
		if err != nil {
			return nil, err
		}
		if lock != nil {
			p.logger.Infof("acquired %s as %s", slot.ID, p.ownerTag)
			return &slot, nil
		}
	}

	// Then the first slot whose holder has exited
	for _, slot := range p.Slots() {
		if slot.ID == preferredID {
			continue
		}
		lock, err := p.tryLock(slot, true)
		if err != nil {
			return nil, err
		}
		if lock != nil {
			p.logger.Infof("acquired %s (reclaimed) as %s", slot.ID, p.ownerTag)
			return &slot, nil
		}
	}

	statuses := p.list()
	p.logger.Warnf("no free profile slot among %d", p.size)
	return nil, &AllBusyError{Statuses: statuses}
}

// tryLock attempts the atomic create for one slot, optionally reclaiming a
// stale lock first. A nil lock with nil error means the slot is held and the
// caller should move on.
func (p *Pool) tryLock(slot Slot, reclaimStale bool) (*Lock, error) {
	if err := os.MkdirAll(slot.Path, 0750); err != nil {
		return nil, fmt.Errorf("failed to materialize slot directory: %w", err)
	}

	lockPath := p.lockPath(slot.ID)
	lock, err := createLock(lockPath, p.ownerTag)
	if err == nil {
		return lock, nil
	}
	if !errors.Is(err, ErrSlotBusy) {
		return nil, err
	}
	if !reclaimStale {
		return nil, nil
	}

	existing, readErr := readLock(lockPath)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			// Holder released between our attempts; take it now or miss
			lock, err := createLock(lockPath, p.ownerTag)
			if err == nil {
				return lock, nil
			}
			if errors.Is(err, ErrSlotBusy) {
				return nil, nil
			}
			return nil, err
		}
		// Corrupt records are never reclaimed: treating them as free would
		// break mutual exclusion. Force-release is the only way out.
		p.logger.Warnf("lock for %s is unreadable, leaving it in place: %v", slot.ID, readErr)
		return nil, nil
	}

	if isProcessAlive(existing.PID) {
		return nil, nil
	}

	p.logger.Warnf("reclaiming stale lock on %s (PID %d gone, held since %s)",
		slot.ID, existing.PID, existing.AcquiredAt.Format(time.RFC3339))
	if err := removeLock(lockPath); err != nil {
		return nil, err
	}

	lock, err = createLock(lockPath, p.ownerTag)
	if err != nil {
		// Losing the retake race to another process is a normal miss
		if errors.Is(err, ErrSlotBusy) {
			return nil, nil
		}
		return nil, err
	}
	return lock, nil
}

// Release frees a slot held by this process. Locks held by other processes
// are left untouched; releasing an already-free slot is a no-op.
func (p *Pool) Release(slotID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	slot, err := p.Slot(slotID)
	if err != nil {
		return err
	}

	lockPath := p.lockPath(slot.ID)
	existing, err := readLock(lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		// Unreadable record: this process writes only valid records, so it
		// cannot be ours. Leave it for force-release.
		p.logger.Warnf("not releasing %s: unreadable lock record: %v", slot.ID, err)
		return nil
	}

	if existing.PID != os.Getpid() {
		p.logger.Warnf("not releasing %s: lock owned by PID %d, not us", slot.ID, existing.PID)
		return nil
	}

	if err := removeLock(lockPath); err != nil {
		return fmt.Errorf("failed to release %s: %w", slot.ID, err)
	}

	p.logger.Infof("released %s", slot.ID)
	return nil
}

// ForceRelease removes a slot's lock unconditionally, regardless of owner.
// Intended for operator-invoked recovery. Returns false (not an error) when
// the slot does not exist or holds no lock. Callers whose own live browser
// context backs the slot must close that context first; the pool manages lock
// records, never the process lifetimes of things it did not spawn.
func (p *Pool) ForceRelease(slotID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	slot, err := p.Slot(slotID)
	if err != nil {
		return false, nil
	}

	lockPath := p.lockPath(slot.ID)
	if _, err := os.Stat(lockPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to inspect lock for %s: %w", slot.ID, err)
	}

	if err := removeLock(lockPath); err != nil {
		return false, fmt.Errorf("failed to force-release %s: %w", slot.ID, err)
	}

	p.logger.Warnf("force-released %s", slot.ID)
	return true, nil
}

// List reports the status of every slot: availability, lock detail, derived
// staleness and corruption.
func (p *Pool) List() []Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.list()
}

// list is List without the mutex, for callers already holding it.
func (p *Pool) list() []Status {
	statuses := make([]Status, 0, p.size)
	for _, slot := range p.Slots() {
		statuses = append(statuses, p.status(slot))
	}
	return statuses
}

func (p *Pool) status(slot Slot) Status {
	lock, err := readLock(p.lockPath(slot.ID))
	if err != nil {
		if os.IsNotExist(err) {
			return Status{Slot: slot, Available: true}
		}
		return Status{Slot: slot, Available: false, Corrupt: true}
	}
	return Status{
		Slot:      slot,
		Available: false,
		Lock:      lock,
		Stale:     !isProcessAlive(lock.PID),
	}
}

// IsLocked reports whether a slot currently has a lock record. Presence is
// enough: even a stale record means the slot is not safely writable until it
// has been reclaimed or force-released.
func (p *Pool) IsLocked(slotID string) (bool, error) {
	slot, err := p.Slot(slotID)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(p.lockPath(slot.ID)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (p *Pool) lockPath(slotID string) string {
	return filepath.Join(p.locksDir, slotID+LockSuffix)
}
