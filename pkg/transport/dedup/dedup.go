// Package dedup remembers the replies of recently served requests so a
// retried request is answered without running its operation again.
package dedup

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/vnykmshr/cardflow/pkg/common/validation"
	"github.com/vnykmshr/cardflow/pkg/metrics"
)

// Config configures a Cache.
type Config struct {
	// TTL is how long a reply is served from the cache.
	TTL time.Duration

	// MaxEntries bounds the cache; the oldest entry is evicted first.
	MaxEntries int

	// SweepInterval is the period of the cron sweep started by Start.
	SweepInterval time.Duration

	// Metrics receives the entry gauge. Nil disables it.
	Metrics *metrics.Registry

	// Now is the clock. Nil means time.Now.
	Now func() time.Time
}

// DefaultConfig returns a cache sized for a single server.
func DefaultConfig() Config {
	return Config{
		TTL:           time.Minute,
		MaxEntries:    10000,
		SweepInterval: 30 * time.Second,
	}
}

type entry struct {
	id      string
	reply   []byte
	expires time.Time
}

// Cache maps request ids to replies. Concurrent calls for the same id share
// one execution.
type Cache struct {
	config Config
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List

	group singleflight.Group

	cronMu sync.Mutex
	cron   *cron.Cron
}

// New creates a cache.
func New(config Config) (*Cache, error) {
	if err := validation.ValidatePositiveDuration("dedup", "TTL", config.TTL); err != nil {
		return nil, err
	}
	if err := validation.ValidatePositive("dedup", "MaxEntries", config.MaxEntries); err != nil {
		return nil, err
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &Cache{
		config:  config,
		now:     now,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}, nil
}

// Get returns the live reply stored for id.
func (c *Cache) Get(id string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	if !c.now().Before(e.expires) {
		c.remove(el)
		return nil, false
	}
	return e.reply, true
}

// Put stores reply for id, replacing any previous one.
func (c *Cache) Put(id string, reply []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[id]; ok {
		c.remove(el)
	}
	for c.order.Len() >= c.config.MaxEntries {
		c.remove(c.order.Front())
	}
	c.entries[id] = c.order.PushBack(&entry{id: id, reply: reply, expires: c.now().Add(c.config.TTL)})
	c.report()
}

// Do returns the cached reply for id, or runs fn once for all concurrent
// callers and caches its reply when fn succeeds. hit reports whether the
// reply came from the cache or from another caller's execution.
func (c *Cache) Do(id string, fn func() ([]byte, error)) (reply []byte, hit bool, err error) {
	if reply, ok := c.Get(id); ok {
		return reply, true, nil
	}

	executed := false
	v, err, _ := c.group.Do(id, func() (any, error) {
		if reply, ok := c.Get(id); ok {
			return reply, nil
		}
		executed = true
		reply, err := fn()
		if err != nil {
			return nil, err
		}
		c.Put(id, reply)
		return reply, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.([]byte), !executed, nil
}

// Sweep removes expired entries and returns how many were removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if !now.Before(el.Value.(*entry).expires) {
			c.remove(el)
			removed++
		}
		el = next
	}
	c.report()
	return removed
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Start schedules Sweep every SweepInterval.
func (c *Cache) Start() error {
	if err := validation.ValidatePositiveDuration("dedup", "SweepInterval", c.config.SweepInterval); err != nil {
		return err
	}

	c.cronMu.Lock()
	defer c.cronMu.Unlock()
	if c.cron != nil {
		return errors.New("dedup: sweeper already started")
	}

	sweeper := cron.New()
	if _, err := sweeper.AddFunc(fmt.Sprintf("@every %s", c.config.SweepInterval), func() { c.Sweep() }); err != nil {
		return fmt.Errorf("dedup: schedule sweep: %w", err)
	}
	sweeper.Start()
	c.cron = sweeper
	return nil
}

// Stop stops the sweeper. The returned context is done once a running sweep
// has finished.
func (c *Cache) Stop() context.Context {
	c.cronMu.Lock()
	defer c.cronMu.Unlock()
	if c.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	ctx := c.cron.Stop()
	c.cron = nil
	return ctx
}

func (c *Cache) remove(el *list.Element) {
	c.order.Remove(el)
	delete(c.entries, el.Value.(*entry).id)
}

func (c *Cache) report() {
	if c.config.Metrics != nil {
		c.config.Metrics.DedupEntries.Set(float64(c.order.Len()))
	}
}
