package profile

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// SlotPrefix is the naming prefix shared by every pool slot
	SlotPrefix = "pool-"

	// AuthenticatedSlotID is the slot conventionally kept in sync with the
	// user's real browser login state
	AuthenticatedSlotID = "pool-0"

	// LockSuffix is appended to a slot ID to form its lock file name
	LockSuffix = ".lock"

	// DefaultPoolSize is the number of slots when none is configured
	DefaultPoolSize = 5
)

// Slot is one fixed, named, on-disk browser profile directory managed by the
// pool. Identity is the directory path; slots are never deleted during normal
// operation.
type Slot struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// Lock is the on-disk record indicating a slot is currently held. Presence of
// the lock file means held; absence means free.
type Lock struct {
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
	OwnerTag   string    `json:"owner_tag"`
}

// Status is the read model for one slot. Stale is derived at read time, never
// stored: true when a lock exists but its PID no longer maps to a running
// process. Corrupt marks a lock file that exists but cannot be parsed; such a
// slot is reported as held by an unknown owner and is never reclaimed by the
// staleness logic.
type Status struct {
	Slot      Slot   `json:"slot"`
	Available bool   `json:"available"`
	Lock      *Lock  `json:"lock,omitempty"`
	Stale     bool   `json:"stale"`
	Corrupt   bool   `json:"corrupt,omitempty"`
}

// SlotName returns the canonical slot ID for an index, e.g. SlotName(0) is
// "pool-0".
func SlotName(index int) string {
	return fmt.Sprintf("%s%d", SlotPrefix, index)
}

// slotIndex parses a slot ID back to its index. Returns an error for anything
// that is not of the form pool-<N>.
func slotIndex(slotID string) (int, error) {
	rest, ok := strings.CutPrefix(slotID, SlotPrefix)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSlot, slotID)
	}
	index, err := strconv.Atoi(rest)
	if err != nil || index < 0 {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSlot, slotID)
	}
	return index, nil
}

// Describe renders a short human-readable summary of the status, used in
// diagnostics and the CLI listing.
func (s Status) Describe() string {
	switch {
	case s.Corrupt:
		return "locked (unreadable lock record, owner unknown)"
	case s.Available:
		return "free"
	case s.Stale:
		return fmt.Sprintf("stale (PID %d no longer running, held since %s)",
			s.Lock.PID, s.Lock.AcquiredAt.Format(time.RFC3339))
	default:
		return fmt.Sprintf("in use by PID %d (%s) since %s",
			s.Lock.PID, s.Lock.OwnerTag, s.Lock.AcquiredAt.Format(time.RFC3339))
	}
}
