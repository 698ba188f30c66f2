package oauth

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// ClientCache keeps one Client per browser for servers running in
// federated session mode. Entries are keyed by an opaque random handle
// kept in a cookie and dropped after idle time without use.
type ClientCache struct {
	google *Google
	idle   time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	client   *Client
	lastSeen time.Time
}

// NewClientCache returns an empty cache whose clients talk to g.
func NewClientCache(g *Google, idle time.Duration) *ClientCache {
	return &ClientCache{
		google:  g,
		idle:    idle,
		now:     time.Now,
		entries: make(map[string]*cacheEntry),
	}
}

// Lookup returns the client for handle, if any, and marks it used.
func (c *ClientCache) Lookup(handle string) (*Client, bool) {
	if handle == "" {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[handle]
	if !ok {
		return nil, false
	}
	e.lastSeen = c.now()
	return e.client, true
}

// Create registers a new client and returns it with its handle.
func (c *ClientCache) Create(verifyState func(string) error) (string, *Client) {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	handle := hex.EncodeToString(b)
	cl := NewClient(c.google, verifyState)

	c.mu.Lock()
	c.entries[handle] = &cacheEntry{client: cl, lastSeen: c.now()}
	c.mu.Unlock()
	return handle, cl
}

// Remove drops handle's client.
func (c *ClientCache) Remove(handle string) {
	c.mu.Lock()
	e, ok := c.entries[handle]
	delete(c.entries, handle)
	c.mu.Unlock()
	if ok {
		e.client.Close()
	}
}

// Sweep drops clients idle for longer than the cache's idle window and
// returns how many were removed.
func (c *ClientCache) Sweep() int {
	cutoff := c.now().Add(-c.idle)
	var stale []*Client
	c.mu.Lock()
	for h, e := range c.entries {
		if e.lastSeen.Before(cutoff) {
			stale = append(stale, e.client)
			delete(c.entries, h)
		}
	}
	c.mu.Unlock()
	for _, cl := range stale {
		cl.Close()
	}
	return len(stale)
}

// Len returns the number of cached clients.
func (c *ClientCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
