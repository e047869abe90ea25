package session

import (
	"time"

	"github.com/hydraspecter/hydraspecter/pkg/logging"
)

// NewPlatformSnapshotTaker returns the Windows escalation path: a
// PowerShell helper script that copies locked browser state via a volume
// shadow copy. An empty script path disables escalation.
func NewPlatformSnapshotTaker(script string, timeout time.Duration, logger *logging.Logger) SnapshotTaker {
	if script == "" {
		return NoopSnapshotTaker{}
	}
	command := []string{"powershell", "-NoProfile", "-ExecutionPolicy", "Bypass", "-File", script}
	return NewScriptSnapshotTaker(command, timeout, logger)
}
