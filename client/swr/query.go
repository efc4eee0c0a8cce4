package swr

import (
	"context"
	"sync"
	"time"

	"medportal/pkg/logger"

	"go.uber.org/zap"
)

type options struct {
	refreshInterval   time.Duration
	revalidateOnFocus bool
}

type Option func(*options)

// WithRefreshInterval reloads the key every d while the query is open.
// d <= 0 disables polling.
func WithRefreshInterval(d time.Duration) Option {
	return func(o *options) { o.refreshInterval = d }
}

// WithRevalidateOnFocus toggles reloading on Cache.Focus. Enabled by default.
func WithRevalidateOnFocus(enabled bool) Option {
	return func(o *options) { o.revalidateOnFocus = enabled }
}

// Snapshot is the typed view of State.
type Snapshot[T any] struct {
	Data      T
	HasData   bool
	Err       error
	IsLoading bool
	UpdatedAt time.Time
}

// Query observes one key of a Cache. Queries with the same key share the
// entry, its in-flight load and its observers.
type Query[T any] struct {
	cache *Cache
	key   string
	fetch Fetcher
	opts  options

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Use opens a query on key. An empty key yields an inert query: no
// fetching, no data, no loading, no error. The first query for a key with
// no entry triggers a load in the background.
func Use[T any](c *Cache, key string, fetch func(ctx context.Context) (T, error), opts ...Option) *Query[T] {
	o := options{revalidateOnFocus: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	q := &Query[T]{cache: c, key: key, opts: o}
	if key == "" || fetch == nil {
		return q
	}
	q.fetch = func(ctx context.Context) (any, error) {
		return fetch(ctx)
	}

	if o.refreshInterval > 0 || o.revalidateOnFocus {
		ctx, cancel := context.WithCancel(c.ctx)
		q.cancel = cancel
		q.done = make(chan struct{})
		var focus chan struct{}
		if o.revalidateOnFocus {
			focus = c.focus.subscribe(ctx)
		}
		go q.run(ctx, focus)
	}

	if c.observe(key) {
		go q.revalidate(c.ctx)
	}
	return q
}

func (q *Query[T]) run(ctx context.Context, focus chan struct{}) {
	defer close(q.done)
	defer q.cache.focus.unsubscribe(q.cache.ctx, focus)

	var tick <-chan time.Time
	if q.opts.refreshInterval > 0 {
		ticker := time.NewTicker(q.opts.refreshInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			q.revalidate(ctx)
		case _, ok := <-focus:
			if !ok {
				focus = nil
				continue
			}
			q.revalidate(ctx)
		}
	}
}

func (q *Query[T]) revalidate(ctx context.Context) {
	if err := q.cache.Load(ctx, q.key, q.fetch); err != nil {
		logger.Debug("cache revalidation failed", zap.String("key", q.key), zap.Error(err))
	}
}

func (q *Query[T]) Key() string {
	return q.key
}

func (q *Query[T]) Snapshot() Snapshot[T] {
	if q.key == "" {
		return Snapshot[T]{}
	}
	s, _ := q.cache.Get(q.key)
	return typed[T](s)
}

func (q *Query[T]) Data() (T, bool) {
	s := q.Snapshot()
	return s.Data, s.HasData
}

func (q *Query[T]) Err() error {
	return q.Snapshot().Err
}

func (q *Query[T]) IsLoading() bool {
	return q.Snapshot().IsLoading
}

// Mutate sets the cached value without a network call.
func (q *Query[T]) Mutate(v T) {
	q.MutateFunc(func(T, bool) T { return v })
}

// MutateFunc computes the new value from the cached one.
func (q *Query[T]) MutateFunc(update func(cur T, ok bool) T) {
	if q.key == "" {
		return
	}
	q.cache.Mutate(q.key, func(cur any, ok bool) any {
		v, isT := cur.(T)
		return update(v, ok && isT)
	})
}

// Reload loads the key again, joining a load already in flight, and
// returns once it settles.
func (q *Query[T]) Reload(ctx context.Context) error {
	if q.key == "" {
		return nil
	}
	return q.cache.Load(ctx, q.key, q.fetch)
}

// Subscribe calls fn on every change of the key.
func (q *Query[T]) Subscribe(fn func(Snapshot[T])) func() {
	if q.key == "" {
		return func() {}
	}
	return q.cache.Subscribe(q.key, func(s State) {
		fn(typed[T](s))
	})
}

// Close stops interval and focus revalidation for this query.
func (q *Query[T]) Close() {
	q.closeOnce.Do(func() {
		if q.cancel != nil {
			q.cancel()
			<-q.done
		}
	})
}

func typed[T any](s State) Snapshot[T] {
	out := Snapshot[T]{
		Err:       s.Err,
		IsLoading: s.IsLoading,
		UpdatedAt: s.UpdatedAt,
	}
	if v, ok := s.Data.(T); ok && s.HasData {
		out.Data = v
		out.HasData = true
	}
	return out
}
