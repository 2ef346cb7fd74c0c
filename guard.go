package coach

import "sync"

// editGuard enforces single-flight editing per session within this process.
// acquire rejects instead of queuing. The cross-process guarantee comes from
// the store's edit lease; this guard exists so an overlapping local call
// fails fast without a round trip.
type editGuard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func newEditGuard() *editGuard {
	return &editGuard{active: make(map[string]struct{})}
}

// acquire reports whether the caller now holds the guard for sessionID.
func (g *editGuard) acquire(sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.active[sessionID]; held {
		return false
	}
	g.active[sessionID] = struct{}{}
	return true
}

// release is unconditional and idempotent.
func (g *editGuard) release(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, sessionID)
}
