// Package signup owns the per-event role claim state.
//
// A Registry maps announcement message IDs to Events. Each Event guards its
// claims with its own mutex, so transitions on one event are serialised and
// transitions on different events run in parallel. Claim and Release never
// perform I/O; callers act on the returned Snapshot after the lock is
// released.
package signup
