package session

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/hydraspecter/hydraspecter/pkg/logging"
)

// DefaultFreshnessThreshold is how much older a slot's cookie store may
// be than the external profile's before an import is worth the work.
const DefaultFreshnessThreshold = 10 * time.Minute

// Importer copies login state from an external browser profile into a
// pool slot. The cookie database is the contract: the import counts as
// successful only when the slot ends up with a readable copy of the
// external cookie store. Local storage and IndexedDB ride along on a
// best-effort basis.
type Importer struct {
	externalProfile string
	threshold       time.Duration
	snapshot        SnapshotTaker
	origins         *OriginFilter
	logger          *logging.Logger
}

// ImporterOptions configures an Importer.
type ImporterOptions struct {
	// ExternalProfile is the profile directory of the everyday browser,
	// e.g. ~/.config/google-chrome/Default. Empty disables importing.
	ExternalProfile string

	// FreshnessThreshold short-circuits the import when the slot's cookie
	// store is already within this window of the external one. Zero means
	// DefaultFreshnessThreshold.
	FreshnessThreshold time.Duration

	// Snapshot is the escalation hook tried after every unprivileged
	// strategy has failed. Nil disables escalation.
	Snapshot SnapshotTaker

	// CriticalOrigins are host globs selecting which IndexedDB origins to
	// carry over, e.g. "*google.com".
	CriticalOrigins []string

	Logger *logging.Logger
}

// NewImporter creates an Importer.
func NewImporter(opts ImporterOptions) (*Importer, error) {
	origins, err := NewOriginFilter(opts.CriticalOrigins)
	if err != nil {
		return nil, err
	}

	threshold := opts.FreshnessThreshold
	if threshold <= 0 {
		threshold = DefaultFreshnessThreshold
	}

	snapshot := opts.Snapshot
	if snapshot == nil {
		snapshot = NoopSnapshotTaker{}
	}

	logger := opts.Logger
	if logger == nil {
		logger, _ = logging.NewLogger("session-import")
	}

	return &Importer{
		externalProfile: opts.ExternalProfile,
		threshold:       threshold,
		snapshot:        snapshot,
		origins:         origins,
		logger:          logger,
	}, nil
}

// ImportFromExternalProfile syncs the external profile's session into the
// slot at targetSlotPath. It never fails hard: the return value reports
// whether the cookie store made it across, and a false simply means the
// slot runs logged out.
//
// Cookie strategies are tried in order: a freshness gate that skips the
// whole import when the slot copy is recent, a direct byte copy, a
// lock-bypassing database rebuild, and finally the privileged snapshot
// hook.
func (i *Importer) ImportFromExternalProfile(ctx context.Context, targetSlotPath string) bool {
	if i.externalProfile == "" {
		i.logger.Debugf("no external profile configured, skipping session import")
		return false
	}

	srcCookie := ExternalCookiePath(i.externalProfile)
	if srcCookie == "" {
		i.logger.Infof("external profile %s has no cookie store, skipping session import", i.externalProfile)
		return false
	}
	dstCookie := CookieStorePath(targetSlotPath)

	if i.slotIsFresh(srcCookie, dstCookie) {
		i.logger.Infof("slot cookie store is fresh (within %v of source), skipping import", i.threshold)
		return true
	}

	synced := i.runCookieChain(ctx, srcCookie, dstCookie, targetSlotPath)

	i.syncLocalStorage(targetSlotPath)
	i.syncIndexedDB(targetSlotPath)

	return synced
}

// slotIsFresh reports whether the slot's cookie copy is recent enough to
// keep. A fresh slot means the import does no copying at all.
func (i *Importer) slotIsFresh(srcCookie, dstCookie string) bool {
	srcInfo, err := os.Stat(srcCookie)
	if err != nil {
		return false
	}
	dstInfo, err := os.Stat(dstCookie)
	if err != nil {
		return false
	}
	return srcInfo.ModTime().Sub(dstInfo.ModTime()) <= i.threshold
}

func (i *Importer) runCookieChain(ctx context.Context, srcCookie, dstCookie, targetSlotPath string) bool {
	steps := []importStep{
		{
			name: "direct copy",
			run: func(ctx context.Context) stepOutcome {
				return i.directCopy(ctx, srcCookie, dstCookie)
			},
		},
		{
			name: "locked-db rebuild",
			run: func(ctx context.Context) stepOutcome {
				return i.rebuildLocked(ctx, srcCookie, dstCookie)
			},
		},
		{
			name: "privileged snapshot",
			run: func(ctx context.Context) stepOutcome {
				if i.snapshot.AttemptPrivilegedSnapshot(ctx, targetSlotPath) {
					return stepSuccess
				}
				return stepRetryNext
			},
		},
	}

	for _, step := range steps {
		if ctx.Err() != nil {
			i.logger.Warnf("session import cancelled before %s: %v", step.name, ctx.Err())
			return false
		}

		switch step.run(ctx) {
		case stepSuccess:
			i.logger.Infof("cookie sync succeeded via %s", step.name)
			return true
		case stepFatal:
			i.logger.Warnf("cookie sync aborted during %s", step.name)
			return false
		case stepRetryNext:
			i.logger.Debugf("cookie sync strategy %s did not apply, trying next", step.name)
		}
	}

	i.logger.Warnf("all cookie sync strategies failed for %s", targetSlotPath)
	return false
}

// directCopy copies the cookie database and its journal companions byte
// for byte, then verifies the result opens as a database. A browser
// holding the source locked tends to produce an unreadable copy, which
// hands over to the rebuild strategy.
func (i *Importer) directCopy(ctx context.Context, srcCookie, dstCookie string) stepOutcome {
	for _, suffix := range []string{"-journal", "-wal", "-shm"} {
		if err := os.Remove(dstCookie + suffix); err != nil && !os.IsNotExist(err) {
			i.logger.Debugf("failed to remove stale companion %s: %v", dstCookie+suffix, err)
			return stepRetryNext
		}
	}

	if err := copyFile(srcCookie, dstCookie); err != nil {
		i.logger.Debugf("direct cookie copy failed: %v", err)
		return stepRetryNext
	}

	for _, suffix := range []string{"-journal", "-wal", "-shm"} {
		if !fileExists(srcCookie + suffix) {
			continue
		}
		if err := copyFile(srcCookie+suffix, dstCookie+suffix); err != nil {
			i.logger.Debugf("cookie companion copy failed: %v", err)
			return stepRetryNext
		}
	}

	count, err := CountCookies(ctx, dstCookie)
	if err != nil {
		i.logger.Debugf("copied cookie store failed verification: %v", err)
		return stepRetryNext
	}

	i.logger.Debugf("copied cookie store with %d cookies", count)
	return stepSuccess
}

// rebuildLocked reconstructs the cookie database through a lock-free
// read, for sources a running browser refuses to let us copy cleanly.
func (i *Importer) rebuildLocked(ctx context.Context, srcCookie, dstCookie string) stepOutcome {
	rows, err := CloneLocked(ctx, srcCookie, dstCookie)
	if err != nil {
		i.logger.Debugf("locked-db rebuild failed: %v", err)
		return stepRetryNext
	}
	i.logger.Debugf("rebuilt cookie store with %d rows", rows)
	return stepSuccess
}

// syncLocalStorage replaces the slot's local storage directory with the
// external profile's. Failures are logged and swallowed.
func (i *Importer) syncLocalStorage(targetSlotPath string) {
	src := filepath.Join(i.externalProfile, "Local Storage")
	if info, err := os.Stat(src); err != nil || !info.IsDir() {
		return
	}

	dst := filepath.Join(targetSlotPath, "Default", "Local Storage")
	if err := os.RemoveAll(dst); err != nil {
		i.logger.Warnf("failed to clear slot local storage: %v", err)
		return
	}
	if err := copyDir(src, dst); err != nil {
		i.logger.Warnf("local storage sync failed: %v", err)
		return
	}
	i.logger.Debugf("synced local storage into %s", dst)
}

// syncIndexedDB copies over the IndexedDB directories of allowed origins
// only. IndexedDB can run to gigabytes, so everything outside the
// critical set stays behind.
func (i *Importer) syncIndexedDB(targetSlotPath string) {
	src := filepath.Join(i.externalProfile, "IndexedDB")
	entries, err := os.ReadDir(src)
	if err != nil {
		return
	}

	copied := 0
	for _, entry := range entries {
		if !entry.IsDir() || !i.origins.Matches(entry.Name()) {
			continue
		}

		dst := filepath.Join(targetSlotPath, "Default", "IndexedDB", entry.Name())
		if err := os.RemoveAll(dst); err != nil {
			i.logger.Warnf("failed to clear slot IndexedDB for %s: %v", entry.Name(), err)
			continue
		}
		if err := copyDir(filepath.Join(src, entry.Name()), dst); err != nil {
			i.logger.Warnf("IndexedDB sync failed for %s: %v", entry.Name(), err)
			continue
		}
		copied++
	}

	if copied > 0 {
		i.logger.Debugf("synced %d IndexedDB origin(s)", copied)
	}
}
