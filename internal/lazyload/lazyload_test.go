package lazyload_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/sereno/internal/lazyload"
)

func TestEnsure_ConcurrentCallersShareOneLoad(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	release := make(chan struct{})
	l := lazyload.New(func(context.Context) (*int, error) {
		calls.Add(1)
		<-release
		v := 42
		return &v, nil
	})

	const n = 16
	results := make([]*int, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := l.Ensure(context.Background())
			if err != nil {
				t.Errorf("Ensure: %v", err)
			}
			results[i] = v
		}()
	}

	// Let every goroutine join the flight before the load completes.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("load called %d times, want 1", got)
	}
	for i, r := range results {
		if r != results[0] {
			t.Fatalf("caller %d got a different value", i)
		}
	}
	if *results[0] != 42 {
		t.Errorf("value = %d, want 42", *results[0])
	}
}

func TestEnsure_SuccessIsCached(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	l := lazyload.New(func(context.Context) (string, error) {
		calls.Add(1)
		return "pool", nil
	})
	for range 3 {
		if v, err := l.Ensure(context.Background()); err != nil || v != "pool" {
			t.Fatalf("Ensure = %q, %v", v, err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("load called %d times, want 1", got)
	}
	if v, ok := l.Loaded(); !ok || v != "pool" {
		t.Errorf("Loaded = %q, %v", v, ok)
	}
}

func TestEnsure_FailureIsNotCached(t *testing.T) {
	t.Parallel()
	errBoom := errors.New("boom")
	var calls atomic.Int32
	l := lazyload.New(func(context.Context) (int, error) {
		if calls.Add(1) == 1 {
			return 0, errBoom
		}
		return 7, nil
	})

	if _, err := l.Ensure(context.Background()); !errors.Is(err, errBoom) {
		t.Fatalf("first Ensure error = %v, want boom", err)
	}
	if _, ok := l.Loaded(); ok {
		t.Error("failed load reported as loaded")
	}
	v, err := l.Ensure(context.Background())
	if err != nil || v != 7 {
		t.Fatalf("second Ensure = %d, %v; want 7", v, err)
	}
}

func TestEnsure_ContextCancelled(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	l := lazyload.New(func(ctx context.Context) (int, error) {
		<-release
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 1, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Ensure(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Ensure error = %v, want deadline exceeded", err)
	}

	// The load keeps running detached from the cancelled caller.
	close(release)
	v, err := l.Ensure(context.Background())
	if err != nil || v != 1 {
		t.Fatalf("Ensure after release = %d, %v; want 1", v, err)
	}
}
