package syncagent

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

var ErrSessionClosed = errors.New("session closed")

// SessionCache holds bootstrap snapshots for one client session, keyed by
// recipient. Concurrent loads of the same recipient share one fetch.
type SessionCache struct {
	group singleflight.Group

	mu        sync.Mutex
	snapshots map[int64]Snapshot
	// gens counts invalidations per recipient; a fetch started under an older
	// generation is returned to its callers but never cached.
	gens   map[int64]uint64
	closed bool
}

func NewSessionCache() *SessionCache {
	return &SessionCache{snapshots: make(map[int64]Snapshot), gens: make(map[int64]uint64)}
}

// Load returns the cached snapshot of userID, calling fetch when there is none.
func (c *SessionCache) Load(ctx context.Context, userID int64, fetch func(context.Context) (Snapshot, error)) (Snapshot, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Snapshot{}, ErrSessionClosed
	}
	if s, ok := c.snapshots[userID]; ok {
		c.mu.Unlock()
		return s, nil
	}
	gen := c.gens[userID]
	c.mu.Unlock()

	v, err, _ := c.group.Do(strconv.FormatInt(userID, 10), func() (any, error) {
		s, err := fetch(ctx)
		if err != nil {
			return Snapshot{}, err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return Snapshot{}, ErrSessionClosed
		}
		if c.gens[userID] == gen {
			c.snapshots[userID] = s
		}
		return s, nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return v.(Snapshot), nil
}

// Invalidate drops the snapshot of userID so the next Load fetches again.
func (c *SessionCache) Invalidate(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snapshots, userID)
	c.gens[userID]++
	c.group.Forget(strconv.FormatInt(userID, 10))
}

// Close ends the session. Later loads fail with ErrSessionClosed.
func (c *SessionCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.snapshots = make(map[int64]Snapshot)
}
