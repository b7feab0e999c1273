// Package backend models a single upstream TCP server: its address, its
// availability state as reported by health probing, and the number of
// relays currently in flight against it.
package backend
