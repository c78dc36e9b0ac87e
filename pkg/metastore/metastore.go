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

// Package metastore defines the durable key->entry mapping (C2): the only
// cross-client ordering primitive in the system is InsertIfAbsent, and every
// other operation is free to run in parallel.
//
// Concrete backends (memstore, leveldbstore) implement KV, a small ordered
// key-value contract modeled on the teacher repo's sorted.KeyValue. Store
// wraps a KV with the entry-aware contract described in spec.md §4.2.
package metastore

import (
	"errors"
)

// ErrNotFound is returned by KV.Get when the key is absent.
var ErrNotFound = errors.New("metastore: key not found")

// KV is the ordered key-value contract a metastore backend must implement.
// Keys sort lexicographically as Go strings; Store relies on this ordering
// to turn "ancestor = ns" and "last_access < cutoff" queries (spec.md §4.2
// scan) into range scans instead of table scans.
type KV interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error

	// Find returns an iterator positioned at the first key >= start. If end
	// is non-empty, the iterator stops before it (half-open range).
	Find(start, end string) Iterator

	Close() error
}

// Iterator iterates key/value pairs in key order. Must be Closed after use.
type Iterator interface {
	Next() bool
	Key() string
	Value() string
	Close() error
}

// Backend is a KV constructor registered under a name so the config layer
// (serverconfig) can select one by string, the way the teacher's
// sorted.KeyValue backends are registered by name.
type Backend func(dsn string) (KV, error)

var backends = map[string]Backend{}

// RegisterBackend makes a named KV constructor available to Open.
func RegisterBackend(name string, b Backend) {
	backends[name] = b
}

// Open constructs the named backend with the given DSN.
func Open(name, dsn string) (KV, error) {
	b, ok := backends[name]
	if !ok {
		return nil, errors.New("metastore: unknown backend " + name)
	}
	return b(dsn)
}

