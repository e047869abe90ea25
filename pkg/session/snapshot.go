package session

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/hydraspecter/hydraspecter/pkg/logging"
)

// DefaultSnapshotTimeout bounds how long a privileged snapshot helper may
// run before it is killed.
const DefaultSnapshotTimeout = 30 * time.Second

// SnapshotTaker is the escalation hook the import chain falls back to
// when every unprivileged strategy has failed. Implementations copy the
// external browser's locked state into targetDir using whatever elevated
// mechanism the platform offers, and report plain success or failure.
// Failure is informational only; callers never treat it as an error.
type SnapshotTaker interface {
	AttemptPrivilegedSnapshot(ctx context.Context, targetDir string) bool
}

// NoopSnapshotTaker is the SnapshotTaker for platforms and setups with no
// elevated copy mechanism. It always reports failure.
type NoopSnapshotTaker struct{}

// AttemptPrivilegedSnapshot always returns false.
func (NoopSnapshotTaker) AttemptPrivilegedSnapshot(ctx context.Context, targetDir string) bool {
	return false
}

// ScriptSnapshotTaker shells out to a configured helper command, passing
// the target directory as the final argument.
type ScriptSnapshotTaker struct {
	command []string
	timeout time.Duration
	logger  *logging.Logger
}

// NewScriptSnapshotTaker builds a taker that runs command with targetDir
// appended. A zero timeout falls back to DefaultSnapshotTimeout.
func NewScriptSnapshotTaker(command []string, timeout time.Duration, logger *logging.Logger) *ScriptSnapshotTaker {
	if timeout <= 0 {
		timeout = DefaultSnapshotTimeout
	}
	if logger == nil {
		logger, _ = logging.NewLogger("snapshot")
	}
	return &ScriptSnapshotTaker{command: command, timeout: timeout, logger: logger}
}

// AttemptPrivilegedSnapshot runs the helper command and reports whether
// it exited cleanly within the timeout.
func (s *ScriptSnapshotTaker) AttemptPrivilegedSnapshot(ctx context.Context, targetDir string) bool {
	if len(s.command) == 0 {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	args := append(append([]string{}, s.command[1:]...), targetDir)
	cmd := exec.CommandContext(ctx, s.command[0], args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		s.logger.Infof("privileged snapshot helper failed: %v output=%s", err, strings.TrimSpace(string(out)))
		return false
	}

	s.logger.Infof("privileged snapshot helper succeeded for %s", targetDir)
	return true
}
