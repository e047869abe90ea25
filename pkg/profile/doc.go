// Package profile manages the pool of persistent browser profile directories.
//
// A pool is a fixed set of named slots (pool-0 .. pool-N), each backed by one
// on-disk Chrome profile directory. Multiple independently launched processes
// compete for the same slots, so exclusion is enforced with per-slot lock
// files rather than in-process state.
//
// # Locking
//
// A slot is held exactly while its lock file exists. Acquisition is a single
// atomic create-exclusive operation; there is deliberately no separate
// "check, then write" step for two processes to race between. The lock record
// stores the owner's PID, acquisition time and a logical owner tag, all of
// which are diagnostic only: the file's existence is the lock.
//
// # Staleness
//
// A lock whose recorded PID no longer maps to a running process is stale and
// is reclaimed automatically on the next acquire. Liveness is probed with
// signal 0, which is subject to PID reuse; the window is accepted because the
// worst case is brief contention for one slot, not data corruption. Lock files
// that exist but cannot be parsed are reported as held by an unknown owner and
// are never reclaimed automatically.
//
// # Exhaustion
//
// When every slot is held by a live process, Acquire fails with AllBusyError,
// which carries the full per-slot status (owner PID, acquisition time,
// staleness) so the operator sees exactly who holds what instead of a bare
// "busy". The pool never grows past its configured size.
package profile
