// Package cache provides the process-wide registry of per-repository
// cache singletons.
package cache

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// CreateFunc is the function type used to produce new values to cache.
type CreateFunc[K comparable, V any] func(context.Context, K) (*V, error)

// Registry hands out one value per key for the life of the process.
//
// It exists for the cache tiers themselves: a repository's L1 map and L2
// store are constructed lazily on first use and must be the same instance
// for every caller, no matter how many goroutines race to be first. The
// singleflight group guarantees at most one construction per key is ever
// in flight; losers of the race share the winner's result.
//
// The Create member can be populated to simplify a call site, ala
// [sync.Pool.New].
// The zero value is safe to use.
type Registry[K comparable, V any] struct {
	Create CreateFunc[K, V]
	m      sync.Map
	sf     singleflight.Group
}

// Get returns the value associated with the key, calling the "Create"
// function if populated and the "create" argument is nil.
//
// This function will panic if neither function is provided.
func (r *Registry[K, V]) Get(ctx context.Context, key K, create CreateFunc[K, V]) (*V, error) {
	var fn CreateFunc[K, V]
	switch {
	case create != nil:
		fn = create
	case r.Create != nil:
		fn = r.Create
	default:
		panic("programmer error: missing create function")
	}

	// Try to load an existing value out of the registry.
	if v, ok := r.m.Load(key); ok {
		return v.(*V), nil
	}

	ch := r.sf.DoChan(r.sfKey(key), func() (any, error) {
		// Re-check under the singleflight: the winner of an earlier
		// race may have already stored a value.
		if v, ok := r.m.Load(key); ok {
			return v.(*V), nil
		}
		// Eagerly check the Context so that every create function
		// doesn't need the preamble.
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}
		v, err := fn(ctx, key)
		if err != nil {
			return nil, err
		}
		got, _ := r.m.LoadOrStore(key, v)
		return got.(*V), nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*V), nil
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}

// SfKey turns a key into the string form [singleflight.Group] wants.
// Keys in this module are repository names already; anything else goes
// through [fmt.Sprint].
func (r *Registry[K, V]) sfKey(key K) string {
	if k, ok := any(key).(string); ok {
		return k
	}
	return fmt.Sprint(key)
}

// Clear removes all registered entries.
//
// No additional calls are made for individual values; the registry simply
// drops any references it has. Intended for tests.
func (r *Registry[K, V]) Clear() { r.m.Clear() }
