//go:build !windows

package session

import (
	"time"

	"github.com/hydraspecter/hydraspecter/pkg/logging"
)

// NewPlatformSnapshotTaker returns a disabled taker. Shadow-copy style
// escalation only exists on Windows; elsewhere the unprivileged
// strategies are all we have.
func NewPlatformSnapshotTaker(script string, timeout time.Duration, logger *logging.Logger) SnapshotTaker {
	return NoopSnapshotTaker{}
}
