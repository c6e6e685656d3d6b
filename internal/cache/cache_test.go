package cache

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"techrank/internal/clock"
)

var epoch = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestCache(c clock.Clock) *Cache[int] {
	return New[int](Options{Name: "test", StaleGrace: time.Hour, Clock: c})
}

func TestCache_TTLExpiryIsLazy(t *testing.T) {
	fc := clock.Fake(epoch)
	c := newTestCache(fc)

	c.Set("a", 1, 10*time.Minute)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("Get(a) = %d, %v", v, ok)
	}

	fc.Advance(10 * time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Error("entry should be expired at exactly its TTL")
	}
	if c.Len() != 1 {
		t.Errorf("expired entry should be retained for stale reads, Len = %d", c.Len())
	}
}

func TestCache_StaleFallback(t *testing.T) {
	fc := clock.Fake(epoch)
	c := newTestCache(fc)
	c.Set("a", 7, time.Minute)

	fc.Advance(30 * time.Minute)
	e, ok := c.Stale("a")
	if !ok || e.Value != 7 || e.Fresh(fc.Now()) {
		t.Fatalf("Stale(a) = %+v, %v", e, ok)
	}

	fc.Advance(2 * time.Hour)
	if _, ok := c.Stale("a"); ok {
		t.Error("entry past its grace window should not be served")
	}
}

func TestCache_SweepOnWrite(t *testing.T) {
	fc := clock.Fake(epoch)
	c := New[int](Options{StaleGrace: time.Minute, SoftLimit: 2, Clock: fc})

	c.Set("old-1", 1, time.Minute)
	c.Set("old-2", 2, time.Minute)
	fc.Advance(time.Hour)
	c.Set("new", 3, time.Minute)

	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1 after sweep", c.Len())
	}
}

func TestCache_ZeroTTLIsNotStored(t *testing.T) {
	c := newTestCache(clock.Fake(epoch))
	v, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (int, time.Duration, error) {
		return 5, 0, nil
	})
	if err != nil || v != 5 {
		t.Fatalf("GetOrLoad = %d, %v", v, err)
	}
	if c.Len() != 0 {
		t.Error("zero TTL value should not be cached")
	}
}

func TestCache_SingleFlight(t *testing.T) {
	c := newTestCache(clock.Fake(epoch))

	var loads atomic.Int32
	release := make(chan struct{})
	loader := func(context.Context) (int, time.Duration, error) {
		loads.Add(1)
		<-release
		return 42, time.Hour, nil
	}

	const n = 50
	var wg sync.WaitGroup
	results := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrLoad(context.Background(), "tech:1", loader)
			if err != nil {
				t.Errorf("GetOrLoad: %v", err)
			}
			results <- v
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	if got := loads.Load(); got != 1 {
		t.Errorf("loads = %d, want exactly 1", got)
	}
	for v := range results {
		if v != 42 {
			t.Errorf("caller got %d, want 42", v)
		}
	}
}

func TestCache_DistinctKeysLoadIndependently(t *testing.T) {
	c := newTestCache(clock.Fake(epoch))
	var loads atomic.Int32
	for _, k := range []string{"a", "b", "c"} {
		_, _ = c.GetOrLoad(context.Background(), k, func(context.Context) (int, time.Duration, error) {
			loads.Add(1)
			return 1, time.Hour, nil
		})
	}
	if loads.Load() != 3 {
		t.Errorf("loads = %d, want 3", loads.Load())
	}
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	c := newTestCache(clock.Fake(epoch))
	boom := errors.New("boom")

	_, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (int, time.Duration, error) {
		return 0, time.Hour, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	v, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (int, time.Duration, error) {
		return 9, time.Hour, nil
	})
	if err != nil || v != 9 {
		t.Errorf("second load = %d, %v", v, err)
	}
}

func TestCache_CanceledWaiterLeavesLoadRunning(t *testing.T) {
	c := newTestCache(clock.Fake(epoch))
	release := make(chan struct{})
	done := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer close(done)
		_, err := c.GetOrLoad(ctx, "k", func(loadCtx context.Context) (int, time.Duration, error) {
			<-release
			if loadCtx.Err() != nil {
				t.Error("load context must not inherit the waiter's cancellation")
			}
			return 11, time.Hour, nil
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done
	close(release)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if v, ok := c.Get("k"); ok {
			if v != 11 {
				t.Errorf("cached %d, want 11", v)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("in-flight load was not cached after the waiter left")
}

func TestCache_SnapshotRoundTrip(t *testing.T) {
	fc := clock.Fake(epoch)
	src := newTestCache(fc)
	src.Set("a", 1, time.Minute)
	src.Set("b", 2, time.Hour)

	path := filepath.Join(t.TempDir(), "metrics.jsonl")
	if err := src.SaveSnapshot(path); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	fc.Advance(10 * time.Minute)
	dst := newTestCache(fc)
	if err := dst.LoadSnapshot(path); err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}

	if _, ok := dst.Get("a"); ok {
		t.Error("restored entry a should be expired")
	}
	if e, ok := dst.Stale("a"); !ok || e.Value != 1 {
		t.Errorf("restored entry a should be a stale fallback, got %+v %v", e, ok)
	}
	if v, ok := dst.Get("b"); !ok || v != 2 {
		t.Errorf("restored entry b = %d, %v", v, ok)
	}

	if err := dst.LoadSnapshot(filepath.Join(t.TempDir(), "missing.jsonl")); err != nil {
		t.Errorf("missing snapshot should not be an error: %v", err)
	}
}
