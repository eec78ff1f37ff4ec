package transfer

import (
	"context"
	"sync"
	"time"
)

// ReplayCache remembers accepted (pubkey, timestamp, signature) triples for
// the replay window. A triple seen twice within the window is a replay.
// Entries past the window are swept in the background; once a triple
// expires its timestamp is stale anyway, so forgetting it is safe.
type ReplayCache struct {
	ttl time.Duration

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewReplayCache creates a cache retaining triples for ttl.
func NewReplayCache(ttl time.Duration) *ReplayCache {
	return &ReplayCache{ttl: ttl, seen: map[string]time.Time{}}
}

func replayKey(pubkey, timestamp, signature string) string {
	return pubkey + "|" + timestamp + "|" + signature
}

// Contains reports whether the triple was accepted within the window.
// It does not record the triple; only fully authenticated requests are
// inserted, so a forged signature cannot poison the cache.
func (c *ReplayCache) Contains(pubkey, timestamp, signature string, now time.Time) bool {
	key := replayKey(pubkey, timestamp, signature)
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.seen[key]
	return ok && now.Sub(at) <= c.ttl
}

// Insert records an accepted triple.
func (c *ReplayCache) Insert(pubkey, timestamp, signature string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[replayKey(pubkey, timestamp, signature)] = now
}

// Len returns the number of retained triples.
func (c *ReplayCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// sweep drops entries older than the window.
func (c *ReplayCache) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, at := range c.seen {
		if now.Sub(at) > c.ttl {
			delete(c.seen, key)
		}
	}
}

// RunSweep sweeps expired triples on an interval until ctx is cancelled.
func (c *ReplayCache) RunSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep(time.Now())
		}
	}
}
