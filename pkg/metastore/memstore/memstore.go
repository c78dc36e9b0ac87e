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

// Package memstore is a metastore.KV backed only by an in-process sorted
// map. It is mostly useful for tests and single-process development; it has
// no durability. Modeled on the teacher repo's pkg/sorted in-memory
// backend, which plays the same "naive, test-and-dev-only" role there.
package memstore

import (
	"sort"
	"sync"

	"github.com/cas-project/casd/pkg/metastore"
)

func init() {
	metastore.RegisterBackend("memory", func(string) (metastore.KV, error) {
		return New(), nil
	})
}

// KV is an in-memory, sorted metastore.KV.
type KV struct {
	mu   sync.RWMutex
	data map[string]string
	keys []string // kept sorted; rebuilt lazily by Find after a write
	dirty bool
}

// New returns an empty in-memory KV.
func New() *KV {
	return &KV{data: make(map[string]string)}
}

func (m *KV) Get(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return "", metastore.ErrNotFound
	}
	return v, nil
}

func (m *KV) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.data[key]; !exists {
		m.dirty = true
	}
	m.data[key] = value
	return nil
}

func (m *KV) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; !ok {
		return nil
	}
	delete(m.data, key)
	m.dirty = true
	return nil
}

func (m *KV) sortedKeysLocked() []string {
	if m.dirty || m.keys == nil {
		keys := make([]string, 0, len(m.data))
		for k := range m.data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m.keys = keys
		m.dirty = false
	}
	return m.keys
}

func (m *KV) Find(start, end string) metastore.Iterator {
	// Write lock: sortedKeysLocked may rebuild m.keys and clear m.dirty.
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := m.sortedKeysLocked()
	i := sort.SearchStrings(keys, start)
	return &iter{kv: m, keys: keys, i: i, end: end}
}

func (m *KV) Close() error { return nil }

type iter struct {
	kv   *KV
	keys []string
	i    int
	end  string
	cur  string
}

func (it *iter) Next() bool {
	if it.i >= len(it.keys) {
		return false
	}
	k := it.keys[it.i]
	if it.end != "" && k >= it.end {
		return false
	}
	it.cur = k
	it.i++
	return true
}

func (it *iter) Key() string { return it.cur }

func (it *iter) Value() string {
	it.kv.mu.RLock()
	defer it.kv.mu.RUnlock()
	return it.kv.data[it.cur]
}

func (it *iter) Close() error { return nil }
