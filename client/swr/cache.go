// Package swr is a stale-while-revalidate cache for API reads.
//
// Entries are keyed by opaque strings. Concurrent loads of one key share a
// single producer call, failed loads keep the previous data next to the new
// error, and Mutate overwrites a value locally without touching the network.
package swr

import (
	"context"
	"strings"
	"sync"
	"time"

	"medportal/internal/metrics"

	"golang.org/x/sync/singleflight"
)

// Fetcher produces the value for one key. It receives the cache context,
// not the caller's: a load keeps running after the caller stops waiting.
type Fetcher func(ctx context.Context) (any, error)

// State is a snapshot of one entry.
type State struct {
	Data      any
	HasData   bool
	Err       error
	IsLoading bool
	UpdatedAt time.Time
}

// Listener runs on the goroutine that changed the entry.
type Listener func(State)

type Cache struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	entries   map[string]*State
	listeners map[string]map[uint64]Listener
	nextID    uint64

	group    singleflight.Group
	focus    *focusHub
	observer metrics.ClientObserver
}

type CacheOption func(*Cache)

func WithObserver(obs metrics.ClientObserver) CacheOption {
	return func(c *Cache) {
		if obs != nil {
			c.observer = obs
		}
	}
}

// NewCache starts the focus hub. Close stops it together with every
// interval and focus revalidation loop.
func NewCache(opts ...CacheOption) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		ctx:       ctx,
		cancel:    cancel,
		entries:   make(map[string]*State),
		listeners: make(map[string]map[uint64]Listener),
		focus:     newFocusHub(),
		observer:  metrics.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	go c.focus.run(ctx)
	return c
}

func (c *Cache) Close() {
	c.cancel()
}

// Get returns the current state of key.
func (c *Cache) Get(key string) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[key]
	if !ok {
		return State{}, false
	}
	return *s, true
}

// Load runs fetch for key unless a load is already in flight, in which case
// it waits for that one. It returns the producer error, which is also stored
// on the entry, or ctx.Err() when the caller stops waiting first.
func (c *Cache) Load(ctx context.Context, key string, fetch Fetcher) error {
	if key == "" || fetch == nil {
		return nil
	}
	ch := c.group.DoChan(key, func() (any, error) {
		return c.run(key, fetch)
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (c *Cache) run(key string, fetch Fetcher) (any, error) {
	c.update(key, func(s *State) {
		s.IsLoading = true
	})

	data, err := fetch(c.ctx)
	c.observer.RecordCacheLoad(err == nil)

	c.update(key, func(s *State) {
		s.IsLoading = false
		s.UpdatedAt = time.Now()
		if err != nil {
			s.Err = err
			return
		}
		s.Data = data
		s.HasData = true
		s.Err = nil
	})
	return data, err
}

// Mutate replaces the value of key with update(current) and clears the
// stored error. update runs under the cache lock and must not call back
// into the cache.
func (c *Cache) Mutate(key string, update func(cur any, ok bool) any) {
	if key == "" || update == nil {
		return
	}
	c.update(key, func(s *State) {
		s.Data = update(s.Data, s.HasData)
		s.HasData = true
		s.Err = nil
		s.UpdatedAt = time.Now()
	})
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.ClearPrefix("")
}

// ClearPrefix drops the entries whose key starts with prefix. Observers of
// a dropped key are notified with an empty state.
func (c *Cache) ClearPrefix(prefix string) {
	c.mu.Lock()
	var notify []Listener
	for key := range c.entries {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		delete(c.entries, key)
		for _, fn := range c.listeners[key] {
			notify = append(notify, fn)
		}
	}
	c.mu.Unlock()

	for _, fn := range notify {
		fn(State{})
	}
}

// Focus signals that the application regained focus. Every query
// registered for focus revalidation reloads its key.
func (c *Cache) Focus() {
	c.focus.publish(c.ctx)
}

// Subscribe registers fn for changes of key.
func (c *Cache) Subscribe(key string, fn Listener) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	if c.listeners[key] == nil {
		c.listeners[key] = make(map[uint64]Listener)
	}
	c.listeners[key][id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners[key], id)
		if len(c.listeners[key]) == 0 {
			delete(c.listeners, key)
		}
		c.mu.Unlock()
	}
}

// observe reports whether key had no entry yet. In that case an entry in
// loading state is created so that only the first observer triggers a load.
func (c *Cache) observe(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		return false
	}
	c.entries[key] = &State{IsLoading: true}
	return true
}

func (c *Cache) update(key string, apply func(*State)) {
	c.mu.Lock()
	s, ok := c.entries[key]
	if !ok {
		s = &State{}
		c.entries[key] = s
	}
	apply(s)
	snapshot := *s
	notify := make([]Listener, 0, len(c.listeners[key]))
	for _, fn := range c.listeners[key] {
		notify = append(notify, fn)
	}
	c.mu.Unlock()

	for _, fn := range notify {
		fn(snapshot)
	}
}
