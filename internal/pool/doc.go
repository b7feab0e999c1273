// Package pool holds the fixed, ordered set of backends and selects among
// them by strict round-robin, skipping backends that are not available.
//
// The rotation cursor is guarded by a pool-level mutex; each backend's state
// is guarded by that backend's own mutex, so health updates on one backend
// never serialize against checks of another.
package pool
