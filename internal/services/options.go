package services

import (
	"context"
	"fmt"
	"time"

	"winery/internal/cache"
	"winery/internal/core"
	"winery/internal/filter"
	"winery/internal/listing"
	"winery/internal/winery"
)

const (
	optionsPersons    = core.ResourcePersons
	optionsCategories = core.ResourceCategories
)

// Options serves the person and category dropdowns. Lists are fetched once
// per TTL with a single large page; concurrent misses share one API call.
type Options struct {
	persons    *cache.Loader[[]filter.Option]
	categories *cache.Loader[[]filter.Option]
	store      *cache.LRUCache[[]filter.Option]
}

func NewOptions(api winery.API, pageSize int, ttl time.Duration) *Options {
	store := cache.NewLRUCache[[]filter.Option](4, ttl)
	req := listing.Request{Page: 0, Size: pageSize, Sort: listing.Sort{Field: "name"}}
	return &Options{
		store: store,
		persons: cache.NewLoader[[]filter.Option](store, func(ctx context.Context, _ string) ([]filter.Option, error) {
			page, err := api.ListPersons(ctx, req, filter.PersonFilter{})
			if err != nil {
				return nil, fmt.Errorf("list person options: %w", err)
			}
			return filter.PersonOptions(page.Content), nil
		}),
		categories: cache.NewLoader[[]filter.Option](store, func(ctx context.Context, _ string) ([]filter.Option, error) {
			page, err := api.ListCategories(ctx, req, filter.CategoryFilter{})
			if err != nil {
				return nil, fmt.Errorf("list category options: %w", err)
			}
			return filter.CategoryOptions(page.Content), nil
		}),
	}
}

func (o *Options) Persons(ctx context.Context) ([]filter.Option, error) {
	return o.persons.Get(ctx, optionsPersons)
}

func (o *Options) Categories(ctx context.Context) ([]filter.Option, error) {
	return o.categories.Get(ctx, optionsCategories)
}

// Invalidate drops the cached options for resource, if it has any.
func (o *Options) Invalidate(resource string) {
	switch resource {
	case core.ResourcePersons:
		o.persons.Invalidate(optionsPersons)
	case core.ResourceCategories:
		o.categories.Invalidate(optionsCategories)
	}
}

// Cleaner exposes the backing cache to the cache manager.
func (o *Options) Cleaner() cache.Cleaner {
	return o.store
}
