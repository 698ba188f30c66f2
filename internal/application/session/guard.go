package session

import "sync"

// Guard rejects overlapping sign-in attempts for the same key across
// managers. The HTTP adapter builds a fresh Manager per request and shares
// one Guard so two concurrent logins for one email cannot interleave.
type Guard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// NewGuard returns an empty Guard.
func NewGuard() *Guard {
	return &Guard{active: make(map[string]struct{})}
}

// TryAcquire claims key. The returned release func must be called once the
// attempt finishes. ok is false when another attempt holds key.
func (g *Guard) TryAcquire(key string) (release func(), ok bool) {
	if g == nil {
		return func() {}, true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.active[key]; busy {
		return nil, false
	}
	g.active[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.active, key)
			g.mu.Unlock()
		})
	}, true
}
