package mind

import (
	"errors"
	"sync"
)

// ErrBusy is returned when a heavy operation is already running for the key.
var ErrBusy = errors.New("operation already in progress")

// Guard admits at most one holder per key and rejects, never queues, the rest.
type Guard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func NewGuard() *Guard {
	return &Guard{active: make(map[string]struct{})}
}

// TryAcquire returns a release func, or ErrBusy when key is held.
func (g *Guard) TryAcquire(key string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.active[key]; held {
		return nil, ErrBusy
	}
	g.active[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.active, key)
			g.mu.Unlock()
		})
	}, nil
}

// Held reports whether key is currently held.
func (g *Guard) Held(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, held := g.active[key]
	return held
}
