package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is a bounded in-memory cache whose entries expire after a fixed TTL.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V)
	Remove(key K)
	Purge()
	Len() int
}

type lruCache[K comparable, V any] struct {
	lru *expirable.LRU[K, V]
}

// NewLRU returns a Cache holding at most size entries for ttl each.
func NewLRU[K comparable, V any](size int, ttl time.Duration) Cache[K, V] {
	if size <= 0 {
		size = 128
	}
	return &lruCache[K, V]{lru: expirable.NewLRU[K, V](size, nil, ttl)}
}

func (c *lruCache[K, V]) Get(key K) (V, bool) { return c.lru.Get(key) }

func (c *lruCache[K, V]) Set(key K, value V) { c.lru.Add(key, value) }

func (c *lruCache[K, V]) Remove(key K) { c.lru.Remove(key) }

func (c *lruCache[K, V]) Purge() { c.lru.Purge() }

func (c *lruCache[K, V]) Len() int { return c.lru.Len() }
