package session

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/hydraspecter/hydraspecter/pkg/logging"
	"github.com/hydraspecter/hydraspecter/pkg/profile"
	"github.com/hydraspecter/hydraspecter/pkg/security/dataroot"
)

// SlotSource is the view of the profile pool the broadcaster needs. It
// is satisfied by *profile.Pool.
type SlotSource interface {
	Slots() []profile.Slot
	Slot(id string) (profile.Slot, error)
	IsLocked(id string) (bool, error)
}

// Broadcaster fans session state out from one slot to the rest of the
// pool, so a login performed in one slot is usable everywhere.
type Broadcaster struct {
	slots    SlotSource
	manifest []FileSpec
	guard    *dataroot.Guard
	logger   *logging.Logger
}

// BroadcasterOptions configures a Broadcaster.
type BroadcasterOptions struct {
	// Slots supplies the pool layout and lock state. Required.
	Slots SlotSource

	// Manifest lists the files to propagate. Nil means DefaultManifest.
	Manifest []FileSpec

	// Guard confines every touched path to the data root. Required.
	Guard *dataroot.Guard

	Logger *logging.Logger
}

// NewBroadcaster creates a Broadcaster.
func NewBroadcaster(opts BroadcasterOptions) (*Broadcaster, error) {
	if opts.Slots == nil {
		return nil, fmt.Errorf("slot source is required")
	}
	if opts.Guard == nil {
		return nil, fmt.Errorf("data root guard is required")
	}

	manifest := opts.Manifest
	if len(manifest) == 0 {
		manifest = DefaultManifest()
	}

	logger := opts.Logger
	if logger == nil {
		logger, _ = logging.NewLogger("session-broadcast")
	}

	return &Broadcaster{
		slots:    opts.Slots,
		manifest: manifest,
		guard:    opts.Guard,
		logger:   logger,
	}, nil
}

// Report summarizes a propagation run.
type Report struct {
	Synced  int
	Skipped int
}

// Propagate copies the source slot's session files into every other
// slot. Locked slots are skipped so a live browser never has its state
// swapped underneath it. A source with no cookies makes the whole run a
// no-op, since propagating an empty session would wipe logins pool-wide.
func (b *Broadcaster) Propagate(ctx context.Context, sourceSlotID string) (Report, error) {
	source, err := b.slots.Slot(sourceSlotID)
	if err != nil {
		return Report{}, err
	}

	srcCookie := CookieStorePath(source.Path)
	count, err := CountCookies(ctx, srcCookie)
	if err != nil {
		b.logger.Infof("source slot %s has no readable cookie store, skipping propagation: %v", sourceSlotID, err)
		return Report{}, nil
	}
	if count == 0 {
		b.logger.Infof("source slot %s has no cookies, skipping propagation", sourceSlotID)
		return Report{}, nil
	}

	// The source holds its cookies at exactly one of the two Chrome
	// layouts; only that one can be a hard requirement for targets.
	activeCookieRel, err := filepath.Rel(source.Path, srcCookie)
	if err != nil {
		return Report{}, fmt.Errorf("failed to resolve source cookie layout: %w", err)
	}

	var report Report
	for _, slot := range b.slots.Slots() {
		if slot.ID == sourceSlotID {
			continue
		}

		locked, err := b.slots.IsLocked(slot.ID)
		if err != nil {
			b.logger.Warnf("failed to check lock on %s, skipping: %v", slot.ID, err)
			report.Skipped++
			continue
		}
		if locked {
			b.logger.Debugf("slot %s is in use, skipping", slot.ID)
			report.Skipped++
			continue
		}

		if b.copySlotFiles(source.Path, slot, activeCookieRel) {
			report.Synced++
		} else {
			report.Skipped++
		}
	}

	b.logger.Infof("propagated session from %s: %d synced, %d skipped", sourceSlotID, report.Synced, report.Skipped)
	return report, nil
}

// copySlotFiles applies the manifest to one target slot. A missing
// required file or any copy failure abandons the target; missing
// optional files are just skipped. Cookie store entries are required
// exactly when they name the layout the source actually uses, so a
// legacy-layout profile is not abandoned for lacking the modern path.
func (b *Broadcaster) copySlotFiles(srcRoot string, target profile.Slot, activeCookieRel string) bool {
	for _, spec := range b.manifest {
		rel := filepath.FromSlash(spec.RelativePath)
		src := filepath.Join(srcRoot, rel)
		dst := filepath.Join(target.Path, rel)

		required := spec.Required
		if isCookieLayoutPath(spec.RelativePath) {
			required = rel == activeCookieRel
		}

		if err := b.guard.ValidatePath(src); err != nil {
			b.logger.Warnf("refusing to read %s: %v", src, err)
			return false
		}
		if err := b.guard.ValidatePath(dst); err != nil {
			b.logger.Warnf("refusing to write %s: %v", dst, err)
			return false
		}

		if !fileExists(src) {
			if required {
				b.logger.Warnf("required file %s missing in source, abandoning %s", spec.RelativePath, target.ID)
				return false
			}
			b.logger.Debugf("optional file %s missing in source, skipping", spec.RelativePath)
			continue
		}

		if err := copyFile(src, dst); err != nil {
			b.logger.Warnf("failed to copy %s into %s: %v", spec.RelativePath, target.ID, err)
			return false
		}
	}
	return true
}
