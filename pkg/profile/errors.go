package profile

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSlotBusy is returned when a specific slot is requested but currently held
// by a live process.
var ErrSlotBusy = errors.New("profile slot is locked by another process")

// ErrUnknownSlot is returned when a slot ID does not name a slot in this pool.
var ErrUnknownSlot = errors.New("unknown profile slot")

// AllBusyError is returned by Acquire when every slot is held by a live
// process. It carries the full status of the pool so callers can present
// actionable diagnostics instead of a bare failure.
type AllBusyError struct {
	Statuses []Status
}

func (e *AllBusyError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "all %d profile slots are busy:", len(e.Statuses))
	for _, status := range e.Statuses {
		fmt.Fprintf(&b, "\n  %s: %s", status.Slot.ID, status.Describe())
	}
	b.WriteString("\n")
	b.WriteString(e.Hint())
	return b.String()
}

// Hint returns remediation guidance for the all-busy condition.
func (e *AllBusyError) Hint() string {
	return "hint: force-release an abandoned slot (hydraspecter profiles release --force <slot>) or run with a one-shot non-persistent profile"
}
