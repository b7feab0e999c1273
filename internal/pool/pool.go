package pool

import (
	"errors"
	"sync"

	"github.com/angeloszaimis/tcp-load-balancer/internal/backend"
)

// ErrNoAvailableBackend is returned by Select when no backend is available.
var ErrNoAvailableBackend = errors.New("no available backend")

type Pool struct {
	backends []*backend.Backend
	mutex    sync.Mutex
	cursor   int
}

// New creates a pool over backends in the given order. The slice is copied
// and never resized afterwards.
func New(backends []*backend.Backend) *Pool {
	owned := make([]*backend.Backend, len(backends))
	copy(owned, backends)

	return &Pool{
		backends: owned,
	}
}

// Select returns the next available backend in configured order, starting
// from the cursor, and advances the cursor past it.
func (p *Pool) Select() (*backend.Backend, error) {
	n := len(p.backends)
	if n == 0 {
		return nil, ErrNoAvailableBackend
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	for i := 0; i < n; i++ {
		index := (p.cursor + i) % n
		candidate := p.backends[index]

		if candidate.IsAvailable() {
			p.cursor = (index + 1) % n
			return candidate, nil
		}
	}

	return nil, ErrNoAvailableBackend
}

// Backends returns the pool's backends in configured order.
func (p *Pool) Backends() []*backend.Backend {
	out := make([]*backend.Backend, len(p.backends))
	copy(out, p.backends)
	return out
}

func (p *Pool) Len() int {
	return len(p.backends)
}
