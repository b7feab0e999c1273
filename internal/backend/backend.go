package backend

import (
	"sync"
)

// State is the availability of a backend as last observed by its health checker.
type State int

const (
	StateUnavailable State = iota
	StateAvailable
)

func (s State) String() string {
	switch s {
	case StateAvailable:
		return "AVAILABLE"
	case StateUnavailable:
		return "UNAVAILABLE"
	default:
		return "UNKNOWN"
	}
}

// Backend represents an upstream server with availability state and
// in-flight relay tracking. All fields are guarded by mutex.
type Backend struct {
	address      string
	mutex        sync.Mutex
	state        State
	activeRelays int
}

// New creates a new Backend for the given host:port address.
// The backend starts unavailable until its first successful probe.
func New(address string) *Backend {
	return &Backend{
		address: address,
		state:   StateUnavailable,
	}
}

// Address returns the backend's host:port address.
func (b *Backend) Address() string {
	return b.address
}

// State returns the current availability state.
func (b *Backend) State() State {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.state
}

// IsAvailable returns true if the backend may receive traffic.
func (b *Backend) IsAvailable() bool {
	return b.State() == StateAvailable
}

// SetState updates the availability state.
// Returns true if the state changed, false if it was already in that state.
func (b *Backend) SetState(state State) (changed bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.state == state {
		return false
	}

	b.state = state
	return true
}

// IncrementRelays marks the start of a relay against this backend.
func (b *Backend) IncrementRelays() {
	b.mutex.Lock()
	b.activeRelays++
	b.mutex.Unlock()
}

// DecrementRelays marks the end of a relay against this backend.
func (b *Backend) DecrementRelays() {
	b.mutex.Lock()
	if b.activeRelays > 0 {
		b.activeRelays--
	}
	b.mutex.Unlock()
}

// ActiveRelays returns the number of relays currently in flight.
func (b *Backend) ActiveRelays() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.activeRelays
}
