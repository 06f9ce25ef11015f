// Package lazyload provides an ensure-loaded singleton for expensive
// process-wide resources such as database pools.
//
// The first [Loader.Ensure] call starts the load; concurrent callers join the
// same in-flight load and receive the same result. A successful result is
// cached for the lifetime of the Loader. A failed load is not cached, so the
// next Ensure retries.
package lazyload

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

const flightKey = "load"

// Loader lazily produces a single value of type T.
type Loader[T any] struct {
	load  func(context.Context) (T, error)
	group singleflight.Group

	mu     sync.Mutex
	value  T
	loaded bool
}

// New returns a Loader that calls load on first use.
func New[T any](load func(context.Context) (T, error)) *Loader[T] {
	return &Loader[T]{load: load}
}

// Ensure returns the loaded value, loading it if necessary. The load itself
// is not bound to ctx so that one caller giving up does not fail the others;
// Ensure returns ctx.Err() if ctx ends first.
func (l *Loader[T]) Ensure(ctx context.Context) (T, error) {
	if v, ok := l.Loaded(); ok {
		return v, nil
	}

	ch := l.group.DoChan(flightKey, func() (any, error) {
		if v, ok := l.Loaded(); ok {
			return v, nil
		}
		v, err := l.load(context.WithoutCancel(ctx))
		if err != nil {
			return v, err
		}
		l.mu.Lock()
		l.value, l.loaded = v, true
		l.mu.Unlock()
		return v, nil
	})

	select {
	case res := <-ch:
		v, _ := res.Val.(T)
		return v, res.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Loaded returns the cached value and true once a load has succeeded.
func (l *Loader[T]) Loaded() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value, l.loaded
}
