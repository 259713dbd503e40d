package exporter

import (
	"sync"
	"sync/atomic"
)

// snapshotCache holds the latest snapshot. The refresh path overwrites it
// wholesale, never merges; readers copy it out. The lock is held only for
// the copy, never across network I/O.
type snapshotCache struct {
	mu     sync.Mutex
	snap   Snapshot
	primed atomic.Bool
}

func (c *snapshotCache) store(snap Snapshot) {
	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()

	c.primed.Store(true)
}

func (c *snapshotCache) load() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.snap
}

// hasData reports whether at least one refresh has completed. Once true it
// stays true for the cache's lifetime.
func (c *snapshotCache) hasData() bool {
	return c.primed.Load()
}
