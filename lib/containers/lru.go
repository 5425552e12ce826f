// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package containers holds typed wrappers around generic container
// libraries.
package containers

import (
	lru "github.com/hashicorp/golang-lru"
)

// LRUCache is a typed adaptive-replacement cache.  A zero LRUCache
// is not usable; it must be initialized with NewLRUCache.
//
// It is safe for concurrent use.
type LRUCache[K comparable, V any] struct {
	inner *lru.ARCCache
}

// NewLRUCache returns a cache holding at most size entries.  A
// non-positive size is treated as 1.
func NewLRUCache[K comparable, V any](size int) *LRUCache[K, V] {
	if size < 1 {
		size = 1
	}
	inner, err := lru.NewARC(size)
	if err != nil {
		// lru.NewARC only fails for size<=0.
		panic(err)
	}
	return &LRUCache[K, V]{inner: inner}
}

func (c *LRUCache[K, V]) Add(key K, value V) {
	c.inner.Add(key, value)
}

func (c *LRUCache[K, V]) Get(key K) (value V, ok bool) {
	_value, ok := c.inner.Get(key)
	if ok {
		//nolint:forcetypeassert // Typed wrapper around untyped lib.
		value = _value.(V)
	}
	return value, ok
}

func (c *LRUCache[K, V]) Len() int {
	return c.inner.Len()
}

func (c *LRUCache[K, V]) Remove(key K) {
	c.inner.Remove(key)
}

func (c *LRUCache[K, V]) Purge() {
	c.inner.Purge()
}
