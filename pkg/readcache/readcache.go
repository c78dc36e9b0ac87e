/*
Copyright 2024 The CASD Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package readcache is the process-wide read cache (C4): a small, high
// priority blob is pinned here so a hot retrieve never needs a bulk-store
// round trip. It offers no durability guarantee and performs no negative
// caching, per spec.md §4.4.
//
// The eviction policy is an LRU list keyed by (namespace, digest), modeled
// directly on the teacher repo's pkg/lru.Cache.
package readcache

import (
	"container/list"
	"sync"

	"github.com/cas-project/casd/pkg/entry"
)

// Cache is an LRU cache of blob bytes, safe for concurrent use. Capacity is
// tracked in bytes, not entry count, since blobs vary from a few bytes up
// to entry.MaxCached.
type Cache struct {
	maxBytes int64

	mu        sync.Mutex
	usedBytes int64
	ll        *list.List
	index     map[entry.Key]*list.Element
}

type cacheEntry struct {
	key   entry.Key
	bytes []byte
}

// New returns a cache that holds at most maxBytes of blob data.
func New(maxBytes int64) *Cache {
	return &Cache{
		maxBytes: maxBytes,
		ll:       list.New(),
		index:    make(map[entry.Key]*list.Element),
	}
}

// Add inserts data for key, evicting the least-recently-used entries as
// needed to stay within the byte budget. Per spec.md §4.4, callers are
// expected to only call this for high-priority blobs no larger than
// entry.MaxCached; Add does not enforce that itself so tests can probe
// eviction with smaller budgets.
func (c *Cache) Add(key entry.Key, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		old := el.Value.(*cacheEntry)
		c.usedBytes -= int64(len(old.bytes))
		old.bytes = append([]byte(nil), data...)
		c.usedBytes += int64(len(old.bytes))
		c.ll.MoveToFront(el)
		c.evictLocked()
		return
	}

	ce := &cacheEntry{key: key, bytes: append([]byte(nil), data...)}
	el := c.ll.PushFront(ce)
	c.index[key] = el
	c.usedBytes += int64(len(ce.bytes))
	c.evictLocked()
}

// Get returns the cached bytes for key, if present. The returned slice must
// not be mutated by the caller.
func (c *Cache) Get(key entry.Key) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*cacheEntry).bytes, true
}

// Remove evicts key, if present.
func (c *Cache) Remove(key entry.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		c.removeElementLocked(el)
	}
}

// Flush empties the cache, used by obliteration (C8).
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.index = make(map[entry.Key]*list.Element)
	c.usedBytes = 0
}

func (c *Cache) evictLocked() {
	for c.usedBytes > c.maxBytes {
		oldest := c.ll.Back()
		if oldest == nil {
			return
		}
		c.removeElementLocked(oldest)
	}
}

func (c *Cache) removeElementLocked(el *list.Element) {
	ce := el.Value.(*cacheEntry)
	c.ll.Remove(el)
	delete(c.index, ce.key)
	c.usedBytes -= int64(len(ce.bytes))
}
