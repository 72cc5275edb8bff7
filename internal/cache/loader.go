package cache

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"
)

// Loader fills a cache on miss. Concurrent misses for the same key share a
// single call to the load function.
type Loader[T any] struct {
	cache Cache[T]
	load  func(ctx context.Context, key string) (T, error)
	group singleflight.Group
}

func NewLoader[T any](c Cache[T], load func(ctx context.Context, key string) (T, error)) *Loader[T] {
	return &Loader[T]{cache: c, load: load}
}

// Get returns the cached value for key, loading it on a miss. Errors are not cached.
func (l *Loader[T]) Get(ctx context.Context, key string) (T, error) {
	if v, ok := l.cache.Get(key); ok {
		return v, nil
	}
	v, err, _ := l.group.Do(key, func() (any, error) {
		if v, ok := l.cache.Get(key); ok {
			return v, nil
		}
		v, err := l.load(ctx, key)
		if err != nil {
			return v, err
		}
		l.cache.Set(key, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, fmt.Errorf("load %s: %w", key, err)
	}
	return v.(T), nil
}

// Invalidate drops key so the next Get reloads it.
func (l *Loader[T]) Invalidate(key string) {
	l.cache.Delete(key)
}
