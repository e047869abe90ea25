package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/hydraspecter/hydraspecter/pkg/logging"
	"github.com/hydraspecter/hydraspecter/pkg/profile"
	"github.com/hydraspecter/hydraspecter/pkg/session"
)

// Orchestrator ties the profile pool, session importer, broadcaster and
// browser launcher into the open/close lifecycle. It is an explicitly
// constructed service; create one and inject it where browsing happens.
//
// One orchestrator can hold several contexts at once, each on its own
// slot, but a slot never backs more than one context.
type Orchestrator struct {
	mu          sync.Mutex
	pool        *profile.Pool
	importer    *session.Importer
	broadcaster *session.Broadcaster
	launcher    Launcher
	launchOpts  LaunchOptions
	logger      *logging.Logger
	active      map[string]*Active
}

// OrchestratorOptions configures an Orchestrator.
type OrchestratorOptions struct {
	// Pool supplies and locks profile slots. Required.
	Pool *profile.Pool

	// Launcher starts browser contexts. Required.
	Launcher Launcher

	// Importer syncs the external profile into slots on open. Nil
	// disables importing.
	Importer *session.Importer

	// Broadcaster fans session state out on close. Nil disables
	// propagation.
	Broadcaster *session.Broadcaster

	// Launch is applied to every context.
	Launch LaunchOptions

	Logger *logging.Logger
}

// Active describes one open browser context and the slot backing it.
type Active struct {
	Slot   profile.Slot
	Handle Handle

	// SessionSynced reports whether the cookie import succeeded during
	// this open. False means the context runs with whatever state the
	// slot already had.
	SessionSynced bool
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(opts OrchestratorOptions) (*Orchestrator, error) {
	if opts.Pool == nil {
		return nil, fmt.Errorf("profile pool is required")
	}
	if opts.Launcher == nil {
		return nil, fmt.Errorf("launcher is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger, _ = logging.NewLogger("orchestrator")
	}

	return &Orchestrator{
		pool:        opts.Pool,
		importer:    opts.Importer,
		broadcaster: opts.Broadcaster,
		launcher:    opts.Launcher,
		launchOpts:  opts.Launch,
		logger:      logger,
		active:      make(map[string]*Active),
	}, nil
}

// Open acquires a slot, syncs the external session into it, launches a
// context on its directory and injects any pending session marker.
// preferredSlotID may be empty; pool exhaustion comes back as a
// *profile.AllBusyError carrying per-slot diagnostics.
func (o *Orchestrator) Open(ctx context.Context, preferredSlotID string) (*Active, error) {
	slot, err := o.pool.Acquire(ctx, preferredSlotID)
	if err != nil {
		return nil, err
	}

	synced := false
	if o.importer != nil {
		synced = o.importer.ImportFromExternalProfile(ctx, slot.Path)
	}
	if !synced {
		o.logger.Infof("opening %s without a fresh external session", slot.ID)
	}

	handle, err := o.launcher.Launch(ctx, slot.Path, o.launchOpts)
	if err != nil {
		if releaseErr := o.pool.Release(slot.ID); releaseErr != nil {
			o.logger.Warnf("failed to release %s after launch failure: %v", slot.ID, releaseErr)
		}
		return nil, err
	}

	o.injectMarker(slot, handle)

	act := &Active{Slot: *slot, Handle: handle, SessionSynced: synced}

	o.mu.Lock()
	o.active[slot.ID] = act
	o.mu.Unlock()

	slotID := slot.ID
	handle.OnClose(func() {
		o.handleContextClosed(slotID)
	})

	return act, nil
}

// injectMarker consumes the slot's pending-session marker, if any, and
// pushes its cookies and origin storage into the fresh context. Marker
// problems are soft: the context stays up either way, and a cookie
// failure does not block the origin storage (or vice versa).
func (o *Orchestrator) injectMarker(slot *profile.Slot, handle Handle) {
	state, err := session.ConsumeMarker(slot.Path)
	if err != nil {
		o.logger.Warnf("failed to consume session marker in %s: %v", slot.ID, err)
		return
	}
	if state == nil {
		return
	}

	cookies := session.Dedupe(state.Cookies)
	if err := handle.AddCookies(cookies); err != nil {
		o.logger.Warnf("failed to inject %d marker cookies into %s: %v", len(cookies), slot.ID, err)
	} else if len(cookies) > 0 {
		o.logger.Infof("injected %d marker cookies into %s", len(cookies), slot.ID)
	}

	if len(state.Origins) == 0 {
		return
	}
	if err := handle.AddOriginStorage(state.Origins); err != nil {
		o.logger.Warnf("failed to seed marker origin storage in %s: %v", slot.ID, err)
		return
	}
	o.logger.Infof("seeded local storage for %d marker origin(s) in %s", len(state.Origins), slot.ID)
}

// Close tears down the context on slotID, propagates its session to the
// rest of the pool and releases the slot, in that order.
func (o *Orchestrator) Close(ctx context.Context, slotID string) error {
	o.mu.Lock()
	act, ok := o.active[slotID]
	if ok {
		delete(o.active, slotID)
	}
	o.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNoActiveContext, slotID)
	}

	if err := act.Handle.Close(); err != nil {
		o.logger.Warnf("error closing context on %s: %v", slotID, err)
	}

	o.propagate(ctx, slotID)

	if err := o.pool.Release(slotID); err != nil {
		return fmt.Errorf("failed to release %s: %w", slotID, err)
	}
	return nil
}

// ForceReleaseResult reports what a force-release actually did.
type ForceReleaseResult struct {
	// Released is true when a lock record was removed.
	Released bool

	// ContextClosed is true when this orchestrator had a live context on
	// the slot and closed it.
	ContextClosed bool
}

// ForceRelease unconditionally frees a slot. When the slot backs one of
// this orchestrator's own contexts, that context is closed before the
// lock is touched; handing the slot to someone else while a live browser
// still holds its files would just move the contention into the
// filesystem. No propagation happens on this path.
func (o *Orchestrator) ForceRelease(ctx context.Context, slotID string) (ForceReleaseResult, error) {
	var result ForceReleaseResult

	o.mu.Lock()
	act, ok := o.active[slotID]
	if ok {
		delete(o.active, slotID)
	}
	o.mu.Unlock()

	if ok {
		if err := act.Handle.Close(); err != nil {
			o.logger.Warnf("error closing context on %s during force-release: %v", slotID, err)
		}
		result.ContextClosed = true
	}

	released, err := o.pool.ForceRelease(slotID)
	result.Released = released
	return result, err
}

// SwitchToAuthenticated closes the context on fromSlotID (empty means
// nothing to close) and re-opens on the authenticated slot. When the
// authenticated slot is busy and the pool hands back a different one,
// the new context is returned together with ErrNotAuthenticatedSlot so
// callers depending on the authenticated session know they did not get
// it.
func (o *Orchestrator) SwitchToAuthenticated(ctx context.Context) (*Active, error) {
	return o.switchToAuthenticated(ctx, "")
}

// SwitchToAuthenticatedFrom is SwitchToAuthenticated with an explicit
// context to close first.
func (o *Orchestrator) SwitchToAuthenticatedFrom(ctx context.Context, fromSlotID string) (*Active, error) {
	return o.switchToAuthenticated(ctx, fromSlotID)
}

func (o *Orchestrator) switchToAuthenticated(ctx context.Context, fromSlotID string) (*Active, error) {
	if fromSlotID != "" {
		if err := o.Close(ctx, fromSlotID); err != nil {
			return nil, err
		}
	}

	act, err := o.Open(ctx, profile.AuthenticatedSlotID)
	if err != nil {
		return nil, err
	}

	if act.Slot.ID != profile.AuthenticatedSlotID {
		o.logger.Warnf("authenticated slot busy, landed on %s instead", act.Slot.ID)
		return act, ErrNotAuthenticatedSlot
	}
	return act, nil
}

// List reports the status of every slot in the pool.
func (o *Orchestrator) List() []profile.Status {
	return o.pool.List()
}

// ActiveSlots returns the slot IDs this orchestrator currently holds
// contexts on.
func (o *Orchestrator) ActiveSlots() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	ids := make([]string, 0, len(o.active))
	for id := range o.active {
		ids = append(ids, id)
	}
	return ids
}

// CloseAll closes every active context with the full close flow.
func (o *Orchestrator) CloseAll(ctx context.Context) error {
	var firstErr error
	for _, slotID := range o.ActiveSlots() {
		if err := o.Close(ctx, slotID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// propagate runs the broadcaster for a slot, logging instead of failing.
func (o *Orchestrator) propagate(ctx context.Context, slotID string) {
	if o.broadcaster == nil {
		return
	}
	report, err := o.broadcaster.Propagate(ctx, slotID)
	if err != nil {
		o.logger.Warnf("session propagation from %s failed: %v", slotID, err)
		return
	}
	o.logger.Infof("session propagated from %s: %d synced, %d skipped", slotID, report.Synced, report.Skipped)
}

// handleContextClosed runs when a context disappears without Close being
// called, e.g. the user closed the browser window. The slot still holds
// fresh session state, so the normal propagate-then-release flow applies.
func (o *Orchestrator) handleContextClosed(slotID string) {
	o.mu.Lock()
	_, ok := o.active[slotID]
	if ok {
		delete(o.active, slotID)
	}
	o.mu.Unlock()

	if !ok {
		return
	}

	o.logger.Infof("context on %s closed externally", slotID)

	ctx := context.Background()
	o.propagate(ctx, slotID)
	if err := o.pool.Release(slotID); err != nil {
		o.logger.Warnf("failed to release %s after external close: %v", slotID, err)
	}
}
