// Package availability answers whether the backup destination is currently
// reachable. The destination lives on a network mount, so probes are cached
// for a short TTL to keep the polling loop from hammering the volume.
package availability

import (
	"os"
	"sync"
	"time"
)

const defaultTTL = 30 * time.Second

// Checker probes the destination path with a read-through TTL cache. The
// cached value is not authoritative: on expiry it re-probes instead of
// trusting the previous answer. A stale "reachable" may let a run start
// against an unmounted volume; the backup script fails safely in that case.
type Checker struct {
	mu          sync.Mutex
	path        string
	ttl         time.Duration
	probe       func(string) bool
	now         func() time.Time
	lastChecked time.Time
	lastResult  bool
}

func NewChecker(path string) *Checker {
	return &Checker{
		path:  path,
		ttl:   defaultTTL,
		probe: statProbe,
		now:   time.Now,
	}
}

// SetPath switches the probed destination, invalidating the cache. Called on
// config reload.
func (c *Checker) SetPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.path != path {
		c.path = path
		c.lastChecked = time.Time{}
	}
}

// IsReachable returns the cached probe result, refreshing it when the TTL
// has expired.
func (c *Checker) IsReachable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !c.lastChecked.IsZero() && now.Sub(c.lastChecked) < c.ttl {
		return c.lastResult
	}

	c.lastResult = c.probe(c.path)
	c.lastChecked = now
	return c.lastResult
}

// Probe bypasses the cache and checks the destination directly. Manual
// backup starts use this so the user gets a current answer. The fresh result
// also refreshes the cache.
func (c *Checker) Probe() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastResult = c.probe(c.path)
	c.lastChecked = c.now()
	return c.lastResult
}

func statProbe(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
