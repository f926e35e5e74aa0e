package syncdata

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetCachesWithinTTL(t *testing.T) {
	var fetches int32
	resource := NewResource(time.Minute, func(_ context.Context, sig string) (string, error) {
		atomic.AddInt32(&fetches, 1)
		return "payload:" + sig, nil
	})

	for i := 0; i < 3; i++ {
		payload, err := resource.Get(context.Background(), "a=1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if payload != "payload:a=1" {
			t.Fatalf("unexpected payload %q", payload)
		}
	}
	if got := atomic.LoadInt32(&fetches); got != 1 {
		t.Fatalf("expected exactly one fetch, got %d", got)
	}
}

func TestGetRefetchesAfterTTL(t *testing.T) {
	var fetches int32
	resource := NewResource(time.Minute, func(_ context.Context, _ string) (int, error) {
		return int(atomic.AddInt32(&fetches, 1)), nil
	})

	current := time.Now()
	resource.now = func() time.Time { return current }

	if _, err := resource.Get(context.Background(), "sig"); err != nil {
		t.Fatalf("get: %v", err)
	}
	current = current.Add(2 * time.Minute)
	payload, err := resource.Get(context.Background(), "sig")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if payload != 2 {
		t.Fatalf("expected refetch after TTL, got payload %d", payload)
	}
}

func TestConcurrentSameSignatureSharesOneFetch(t *testing.T) {
	release := make(chan struct{})
	var fetches int32
	resource := NewResource(time.Minute, func(_ context.Context, _ string) (string, error) {
		atomic.AddInt32(&fetches, 1)
		<-release
		return "shared", nil
	})

	var wg sync.WaitGroup
	results := make([]string, 4)
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = resource.Get(context.Background(), "sig")
		}(i)
	}

	// Let every goroutine reach the cache before releasing the fetch.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := range results {
		if errs[i] != nil {
			t.Fatalf("get %d: %v", i, errs[i])
		}
		if results[i] != "shared" {
			t.Fatalf("get %d: payload %q", i, results[i])
		}
	}
	if got := atomic.LoadInt32(&fetches); got != 1 {
		t.Fatalf("expected one shared fetch, got %d", got)
	}
}

func TestNewSignatureCancelsInFlightFetch(t *testing.T) {
	started := make(chan string, 2)
	resource := NewResource(time.Minute, func(ctx context.Context, sig string) (string, error) {
		started <- sig
		if sig == "old" {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "payload:" + sig, nil
	})

	var wg sync.WaitGroup
	var oldErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, oldErr = resource.Get(context.Background(), "old")
	}()
	<-started

	payload, err := resource.Get(context.Background(), "new")
	if err != nil {
		t.Fatalf("new signature get: %v", err)
	}
	if payload != "payload:new" {
		t.Fatalf("unexpected payload %q", payload)
	}
	wg.Wait()

	if !errors.Is(oldErr, ErrAborted) {
		t.Fatalf("superseded fetch must abort, got %v", oldErr)
	}
	if _, ok := resource.Cached("old"); ok {
		t.Fatalf("cancelled fetch must not be stored")
	}
	if _, ok := resource.Cached("new"); !ok {
		t.Fatalf("latest signature must be stored")
	}
}

func TestLateResultForSupersededSignatureIsDiscarded(t *testing.T) {
	// The old fetch ignores cancellation and completes anyway; its result
	// must still not land in the cache.
	block := make(chan struct{})
	started := make(chan struct{})
	resource := NewResource(time.Minute, func(_ context.Context, sig string) (string, error) {
		if sig == "old" {
			close(started)
			<-block
		}
		return "payload:" + sig, nil
	})

	var wg sync.WaitGroup
	var oldErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, oldErr = resource.Get(context.Background(), "old")
	}()
	<-started

	if _, err := resource.Get(context.Background(), "new"); err != nil {
		t.Fatalf("new get: %v", err)
	}
	close(block)
	wg.Wait()

	if !errors.Is(oldErr, ErrAborted) {
		t.Fatalf("late result must abort, got %v", oldErr)
	}
	if _, ok := resource.Cached("old"); ok {
		t.Fatalf("late result must be discarded")
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	var fetches int32
	resource := NewResource(time.Minute, func(_ context.Context, _ string) (int, error) {
		return int(atomic.AddInt32(&fetches, 1)), nil
	})

	if _, err := resource.Get(context.Background(), "sig"); err != nil {
		t.Fatalf("get: %v", err)
	}
	resource.Invalidate("sig")
	payload, err := resource.Get(context.Background(), "sig")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if payload != 2 {
		t.Fatalf("expected refetch after invalidation, got %d", payload)
	}
}

func TestTransportFailureLeavesStaleEntryServable(t *testing.T) {
	transportDown := errors.New("connection refused")
	failing := false
	resource := NewResource(time.Minute, func(_ context.Context, _ string) (string, error) {
		if failing {
			return "", transportDown
		}
		return "good", nil
	})

	current := time.Now()
	resource.now = func() time.Time { return current }

	if _, err := resource.Get(context.Background(), "sig"); err != nil {
		t.Fatalf("seed get: %v", err)
	}

	current = current.Add(2 * time.Minute)
	failing = true
	if _, err := resource.Get(context.Background(), "sig"); !errors.Is(err, transportDown) {
		t.Fatalf("expected transport error surfaced, got %v", err)
	}
	if payload, ok := resource.Cached("sig"); !ok || payload != "good" {
		t.Fatalf("stale entry must remain servable, ok=%v payload=%q", ok, payload)
	}
}

func TestCallerCancellationAborts(t *testing.T) {
	resource := NewResource(time.Minute, func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	if _, err := resource.Get(ctx, "sig"); !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted on caller cancellation, got %v", err)
	}
}
