package exmdb

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	iconfig "github.com/foxcpp/exmdb/internal/config"
	"github.com/foxcpp/exmdb/internal/elog"
	"github.com/foxcpp/exmdb/internal/limits/limiters"
	"github.com/foxcpp/exmdb/internal/metrics"
)

// sweepInterval is how often the maintenance loop checks for handles past
// their idle TTL; a fraction of the default HandleTTL keeps eviction
// reasonably timely without polling too aggressively.
const sweepInterval = 30 * time.Second

// entry is one cached handle plus its last-use bookkeeping for the
// idle-TTL sweep (spec §9 "Global mutable state... LRU with soft TTL").
type entry struct {
	handle   *Handle
	lastUsed time.Time
}

// Cache is the process-wide DB-handle cache: one *Handle per mailbox
// directory, evicted after idleness (spec §2 "the DB handle is evicted by
// an LRU after idleness", §9 "the process-wide DB-handle cache... needs an
// explicit init/shutdown and an eviction policy").
type Cache struct {
	cfg iconfig.StoreConfig
	log elog.Logger
	sem limiters.Semaphore

	mu      sync.Mutex
	handles map[string]*entry

	// open collapses concurrent first-accesses of the same directory into
	// a single openHandle call, so two goroutines racing to open the same
	// mailbox never both pay the open cost (or both take a semaphore slot).
	open singleflight.Group

	stopSweeper chan struct{}
}

// NewCache starts a DB-handle cache bound by cfg (spec §9's ambient
// Configuration section: db path, batch threshold, quota defaults, LRU
// TTL). The returned Cache must be closed with Close.
func NewCache(cfg iconfig.StoreConfig, log elog.Logger) *Cache {
	c := &Cache{
		cfg:         cfg,
		log:         log,
		sem:         limiters.NewSemaphore(cfg.MaxOpenHandles),
		handles:     make(map[string]*entry),
		stopSweeper: make(chan struct{}),
	}
	go c.sweeper()
	return c
}

// Get returns the open handle for dir, opening and provisioning it if
// this is the first access (spec §2 "acquires the DB handle").
func (c *Cache) Get(ctx context.Context, dir string) (*Handle, error) {
	c.mu.Lock()
	if e, ok := c.handles[dir]; ok {
		e.lastUsed = time.Now()
		c.mu.Unlock()
		metrics.HandleCacheHits.WithLabelValues(dir).Inc()
		return e.handle, nil
	}
	c.mu.Unlock()

	metrics.HandleCacheMisses.WithLabelValues(dir).Inc()

	v, err, _ := c.open.Do(dir, func() (interface{}, error) {
		c.mu.Lock()
		if e, ok := c.handles[dir]; ok {
			e.lastUsed = time.Now()
			c.mu.Unlock()
			return e.handle, nil
		}
		c.mu.Unlock()

		if err := c.sem.TakeContext(ctx); err != nil {
			return nil, err
		}
		h, err := openHandle(ctx, dir, c.log)
		if err != nil {
			c.sem.Release()
			return nil, err
		}

		c.mu.Lock()
		c.handles[dir] = &entry{handle: h, lastUsed: time.Now()}
		metrics.OpenHandles.Set(float64(len(c.handles)))
		c.mu.Unlock()
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Handle), nil
}

// Evict closes and drops dir's handle immediately, regardless of idleness
// (used for explicit unload requests).
func (c *Cache) Evict(dir string) error {
	c.mu.Lock()
	e, ok := c.handles[dir]
	if ok {
		delete(c.handles, dir)
		metrics.OpenHandles.Set(float64(len(c.handles)))
	}
	c.mu.Unlock()
	if !ok {
		return nil
	}
	c.sem.Release()
	return e.handle.close()
}

// Close stops the maintenance sweeper and closes every open handle.
func (c *Cache) Close() error {
	close(c.stopSweeper)

	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for dir, e := range c.handles {
		if err := e.handle.close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("exmdb: close handle %s: %w", dir, err)
		}
		delete(c.handles, dir)
	}
	metrics.OpenHandles.Set(0)
	return firstErr
}

func (c *Cache) sweeper() {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("handle cache sweeper panic", fmt.Errorf("%v\n%s", r, debug.Stack()))
		}
	}()

	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.evictIdle()
		case <-c.stopSweeper:
			return
		}
	}
}

func (c *Cache) evictIdle() {
	ttl := c.cfg.HandleTTL
	if ttl <= 0 {
		return
	}
	cutoff := time.Now().Add(-ttl)

	var toClose []*Handle
	c.mu.Lock()
	for dir, e := range c.handles {
		if e.lastUsed.Before(cutoff) {
			toClose = append(toClose, e.handle)
			delete(c.handles, dir)
			c.sem.Release()
			metrics.HandleCacheEvictions.WithLabelValues(dir).Inc()
		}
	}
	metrics.OpenHandles.Set(float64(len(c.handles)))
	c.mu.Unlock()

	for _, h := range toClose {
		if err := h.close(); err != nil {
			c.log.Error("failed to close idle handle", err, "dir", h.Dir)
		}
	}
}
