// Package session moves browser login state between profiles.
//
// The package has three jobs: importing a session from the user's
// everyday browser profile into a pool slot, broadcasting a session from
// one slot to the rest of the pool, and carrying a pending-session
// marker that the browser layer injects on the next launch.
//
// # Importing
//
// Importer tries a chain of cookie sync strategies in order: a freshness
// gate that skips work when the slot copy is recent, a direct byte copy,
// a lock-bypassing SQLite rebuild for stores a running browser holds
// open, and finally a privileged snapshot hook. The import never fails
// hard; its boolean result reports whether the slot got the cookies.
//
// # Broadcasting
//
// Broadcaster copies a manifest of session files from a source slot into
// every unlocked sibling. Sources with no cookies are never propagated,
// and every path is confined to the data root.
//
// # Markers
//
// A marker is a JSON file inside a slot holding cookies and origin
// storage in the driver's storage-state shape. WriteMarker persists it
// atomically; ConsumeMarker reads and removes it so state is injected at
// most once.
package session
