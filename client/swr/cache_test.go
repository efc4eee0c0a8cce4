package swr

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"medportal/pkg/logger"
)

func init() {
	logger.InitLogger("test")
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestLoad_SingleFlight(t *testing.T) {
	c := NewCache()
	defer c.Close()

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "appointments", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Load(context.Background(), "appointments", fetch); err != nil {
				t.Errorf("Load: %v", err)
			}
		}()
	}

	waitFor(t, "loading state", func() bool {
		s, _ := c.Get("appointments")
		return s.IsLoading
	})
	// Give the second caller time to join before releasing the producer.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("producer called %d times, want 1", got)
	}
	s, _ := c.Get("appointments")
	if s.Data != "appointments" || s.IsLoading || s.Err != nil {
		t.Errorf("unexpected state %+v", s)
	}
}

func TestMutate_BypassesNetwork(t *testing.T) {
	c := NewCache()
	defer c.Close()

	var calls atomic.Int32
	fetch := func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 0, errors.New("offline")
	}

	// Seed an error so that Mutate has something to clear.
	q := Use(c, "stats", fetch, WithRevalidateOnFocus(false))
	defer q.Close()
	waitFor(t, "initial load", func() bool { return q.Err() != nil })
	before := calls.Load()

	q.Mutate(42)

	snap := q.Snapshot()
	if !snap.HasData || snap.Data != 42 {
		t.Errorf("Data = %v (has=%v), want 42", snap.Data, snap.HasData)
	}
	if snap.Err != nil {
		t.Errorf("Err = %v, want nil", snap.Err)
	}
	if got := calls.Load(); got != before {
		t.Errorf("Mutate invoked the producer (%d -> %d)", before, got)
	}
}

func TestMutateFunc_UsesCurrentValue(t *testing.T) {
	c := NewCache()
	defer c.Close()

	c.Mutate("counter", func(any, bool) any { return 1 })
	q := Use(c, "counter", func(context.Context) (int, error) {
		t.Error("existing entry must not trigger a load")
		return 0, nil
	}, WithRevalidateOnFocus(false))
	defer q.Close()

	q.MutateFunc(func(cur int, ok bool) int {
		if !ok {
			t.Errorf("expected current value to be present")
		}
		return cur + 1
	})

	if v, _ := q.Data(); v != 2 {
		t.Errorf("Data = %d, want 2", v)
	}
}

func TestReload_StaleOnError(t *testing.T) {
	c := NewCache()
	defer c.Close()

	fail := errors.New("boom")
	var attempt atomic.Int32
	fetch := func(ctx context.Context) ([]string, error) {
		if attempt.Add(1) == 1 {
			return []string{"a1", "a2"}, nil
		}
		return nil, fail
	}

	q := Use(c, "appointments", fetch, WithRevalidateOnFocus(false))
	defer q.Close()
	waitFor(t, "initial data", func() bool { _, ok := q.Data(); return ok })

	err := q.Reload(context.Background())
	if !errors.Is(err, fail) {
		t.Fatalf("Reload error = %v, want %v", err, fail)
	}

	snap := q.Snapshot()
	if !errors.Is(snap.Err, fail) {
		t.Errorf("stored error = %v, want %v", snap.Err, fail)
	}
	if !snap.HasData || len(snap.Data) != 2 {
		t.Errorf("stale data lost: %+v", snap)
	}
	if snap.IsLoading {
		t.Errorf("still loading after Reload settled")
	}
}

func TestLoad_SuccessClearsError(t *testing.T) {
	c := NewCache()
	defer c.Close()
	ctx := context.Background()

	c.Load(ctx, "k", func(context.Context) (any, error) { return nil, errors.New("first") })
	if s, _ := c.Get("k"); s.Err == nil || s.HasData {
		t.Fatalf("expected error state without data, got %+v", s)
	}

	if err := c.Load(ctx, "k", func(context.Context) (any, error) { return "ok", nil }); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s, _ := c.Get("k"); s.Err != nil || s.Data != "ok" {
		t.Errorf("expected ready state, got %+v", s)
	}
}

func TestUse_EmptyKeyIsInert(t *testing.T) {
	c := NewCache()
	defer c.Close()

	q := Use(c, "", func(context.Context) (string, error) {
		t.Error("producer called for empty key")
		return "", nil
	}, WithRefreshInterval(time.Millisecond))
	defer q.Close()

	q.Mutate("ignored")
	if err := q.Reload(context.Background()); err != nil {
		t.Errorf("Reload on empty key: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	snap := q.Snapshot()
	if snap.HasData || snap.Err != nil || snap.IsLoading {
		t.Errorf("empty key query not inert: %+v", snap)
	}
}

func TestUse_SharedEntryTriggersOneLoad(t *testing.T) {
	c := NewCache()
	defer c.Close()

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "dr-house", nil
	}

	first := Use(c, "auth:me", fetch, WithRevalidateOnFocus(false))
	defer first.Close()
	second := Use(c, "auth:me", fetch, WithRevalidateOnFocus(false))
	defer second.Close()

	if !first.IsLoading() || !second.IsLoading() {
		t.Errorf("both observers should see the load in flight")
	}

	var seen atomic.Int32
	unsubscribe := second.Subscribe(func(s Snapshot[string]) {
		if s.HasData && s.Data == "dr-house" {
			seen.Add(1)
		}
	})
	defer unsubscribe()

	close(release)
	waitFor(t, "shared data", func() bool {
		v, ok := second.Data()
		return ok && v == "dr-house"
	})

	if v, _ := first.Data(); v != "dr-house" {
		t.Errorf("first observer data = %q", v)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("producer called %d times, want 1", got)
	}
	if seen.Load() == 0 {
		t.Errorf("subscriber not notified of the settled load")
	}
}

func TestUse_RefreshInterval(t *testing.T) {
	c := NewCache()
	defer c.Close()

	var calls atomic.Int32
	q := Use(c, "stats", func(context.Context) (int32, error) {
		return calls.Add(1), nil
	}, WithRefreshInterval(10*time.Millisecond), WithRevalidateOnFocus(false))

	waitFor(t, "periodic reloads", func() bool { return calls.Load() >= 3 })

	q.Close()
	stopped := calls.Load()
	time.Sleep(50 * time.Millisecond)
	if got := calls.Load(); got > stopped+1 {
		t.Errorf("interval kept firing after Close: %d -> %d", stopped, got)
	}
}

func TestFocus_Revalidates(t *testing.T) {
	c := NewCache()
	defer c.Close()

	var focused, unfocused atomic.Int32
	qa := Use(c, "a", func(context.Context) (int32, error) { return focused.Add(1), nil })
	defer qa.Close()
	qb := Use(c, "b", func(context.Context) (int32, error) { return unfocused.Add(1), nil },
		WithRevalidateOnFocus(false))
	defer qb.Close()

	waitFor(t, "initial loads", func() bool { return focused.Load() == 1 && unfocused.Load() == 1 })

	// A focus event arriving while the initial load is still settling joins
	// it, so keep focusing until a fresh load happens.
	waitFor(t, "focus reload", func() bool {
		c.Focus()
		return focused.Load() >= 2
	})

	time.Sleep(20 * time.Millisecond)
	if got := unfocused.Load(); got != 1 {
		t.Errorf("query with focus revalidation disabled reloaded %d times", got)
	}
}

func TestClearPrefix(t *testing.T) {
	c := NewCache()
	defer c.Close()

	for _, key := range []string{"availabilities:d1", "availabilities:d2", "stats"} {
		c.Mutate(key, func(any, bool) any { return key })
	}

	var cleared atomic.Int32
	unsubscribe := c.Subscribe("availabilities:d1", func(s State) {
		if !s.HasData {
			cleared.Add(1)
		}
	})
	defer unsubscribe()

	c.ClearPrefix("availabilities:")

	if _, ok := c.Get("availabilities:d1"); ok {
		t.Error("availabilities:d1 survived ClearPrefix")
	}
	if _, ok := c.Get("availabilities:d2"); ok {
		t.Error("availabilities:d2 survived ClearPrefix")
	}
	if _, ok := c.Get("stats"); !ok {
		t.Error("stats removed by unrelated prefix")
	}
	if cleared.Load() != 1 {
		t.Errorf("observer notified %d times, want 1", cleared.Load())
	}

	c.Clear()
	if _, ok := c.Get("stats"); ok {
		t.Error("stats survived Clear")
	}
}

func TestLoad_CallerContextDoesNotCancelProducer(t *testing.T) {
	c := NewCache()
	defer c.Close()

	release := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Load(ctx, "slow", func(pctx context.Context) (any, error) {
			<-release
			return "late", pctx.Err()
		})
	}()

	waitFor(t, "load in flight", func() bool { s, _ := c.Get("slow"); return s.IsLoading })
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Load returned %v, want context.Canceled", err)
	}

	close(release)
	waitFor(t, "superseded load to settle", func() bool {
		s, _ := c.Get("slow")
		return s.Data == "late"
	})
}
