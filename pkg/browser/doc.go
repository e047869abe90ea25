// Package browser launches persistent browser contexts on pool slots and
// owns their open/close lifecycle.
//
// The package splits the concern in two. Launcher knows how to start a
// Playwright context on a given user-data directory; Orchestrator decides
// which directory that is and what happens around the launch.
//
// # Opening
//
// Open acquires a slot from the pool, lets the session importer pull the
// user's everyday browser state into it, launches the context, and
// injects any pending session marker left by a previous run. A launch
// failure puts the slot straight back; a failed import does not, the
// context simply opens with the state the slot already had.
//
// # Closing
//
// Close tears down in a fixed order: context first, then session
// propagation to sibling slots, then lock release. The order matters
// twice over. Propagating before release keeps other processes from
// grabbing the slot mid-copy, and force-release closes this process's
// own context before touching the lock so the slot is not handed to a
// new owner while a live browser still writes into it.
//
// Contexts can also die from the outside, typically the user closing the
// window. The orchestrator subscribes to the driver's close event and
// runs the same propagate-then-release flow, so an externally closed
// context never strands its slot.
//
// # Stealth
//
// Launches carry the flag set and init script that keep automated Chrome
// looking like a normal install: automation banners off, the
// navigator.webdriver probe masked, and optionally the system Chrome
// channel instead of the bundled Chromium.
package browser
