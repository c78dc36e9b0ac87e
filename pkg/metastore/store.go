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

package metastore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cas-project/casd/pkg/entry"
)

const (
	entryPrefix     = "e\x00"
	namespacePrefix = "n\x00"
	globalIdxPrefix = "g\x00"
	nsIdxPrefix     = "i\x00"
)

// NamespaceRow is the persisted metadata for a namespace row.
type NamespaceRow struct {
	Name      string    `json:"name"`
	IsTesting bool      `json:"is_testing"`
	CreatedAt time.Time `json:"created_at"`
}

// Store implements the C2 contract (spec.md §4.2) on top of a KV backend.
type Store struct {
	kv KV

	// mu serializes InsertIfAbsent, the one operation in this contract
	// that must be linearizable per key. Every other method may run
	// concurrently without it.
	mu sync.Mutex
}

// New wraps a KV backend as a Store.
func New(kv KV) *Store {
	return &Store{kv: kv}
}

func entryKey(ns, digest string) string {
	return entryPrefix + ns + "\x00" + digest
}

func dayPad(d entry.Day) string {
	return fmt.Sprintf("%020d", int64(d))
}

func nsIdxKey(ns string, d entry.Day, digest string) string {
	return nsIdxPrefix + ns + "\x00" + dayPad(d) + "\x00" + digest
}

func globalIdxKey(d entry.Day, ns, digest string) string {
	return globalIdxPrefix + dayPad(d) + "\x00" + ns + "\x00" + digest
}

type wireEntry struct {
	Digest         string      `json:"digest"`
	Placement      int         `json:"placement"`
	InlineBytes    []byte      `json:"inline_bytes,omitempty"`
	BulkName       string      `json:"bulk_name,omitempty"`
	Size           int64       `json:"size"`
	ExpandedSize   int64       `json:"expanded_size"`
	IsHighPriority bool        `json:"is_high_priority"`
	LastAccess     entry.Day   `json:"last_access"`
	CreatedAt      time.Time   `json:"created_at"`
}

func encodeEntry(ns string, e entry.Entry) string {
	w := wireEntry{
		Digest:         e.Digest,
		Placement:      int(e.Placement),
		InlineBytes:    e.InlineBytes,
		BulkName:       e.BulkName,
		Size:           e.Size,
		ExpandedSize:   e.ExpandedSize,
		IsHighPriority: e.IsHighPriority,
		LastAccess:     e.LastAccess,
		CreatedAt:      e.CreatedAt,
	}
	b, err := json.Marshal(w)
	if err != nil {
		// wireEntry has no unmarshalable fields; a failure here is a bug.
		panic("metastore: encode entry: " + err.Error())
	}
	_ = ns
	return string(b)
}

func decodeEntry(ns, digest, value string) (entry.Entry, error) {
	var w wireEntry
	if err := json.Unmarshal([]byte(value), &w); err != nil {
		return entry.Entry{}, fmt.Errorf("metastore: decode entry %s/%s: %w", ns, digest, err)
	}
	return entry.Entry{
		Key:            entry.Key{Namespace: ns, Digest: digest},
		Placement:      entry.Placement(w.Placement),
		InlineBytes:    w.InlineBytes,
		BulkName:       w.BulkName,
		Size:           w.Size,
		ExpandedSize:   w.ExpandedSize,
		IsHighPriority: w.IsHighPriority,
		LastAccess:     w.LastAccess,
		CreatedAt:      w.CreatedAt,
	}, nil
}

// getOrInsertNamespace creates the namespace row on demand, matching
// spec.md §3's "created lazily on first use (get-or-insert)".
func (s *Store) getOrInsertNamespace(ns string, isTesting bool) error {
	key := namespacePrefix + ns
	if _, err := s.kv.Get(key); err == nil {
		return nil
	} else if err != ErrNotFound {
		return err
	}
	row := NamespaceRow{Name: ns, IsTesting: isTesting, CreatedAt: time.Now().UTC()}
	b, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return s.kv.Set(key, string(b))
}

// Get performs a point lookup. It returns ErrNotFound if absent.
func (s *Store) Get(ctx context.Context, ns, digest string) (entry.Entry, error) {
	v, err := s.kv.Get(entryKey(ns, digest))
	if err != nil {
		return entry.Entry{}, err
	}
	return decodeEntry(ns, digest, v)
}

// ExistsBatch issues the lookups concurrently via a bounded errgroup,
// preserving input order in the returned slice (spec.md §4.2).
func (s *Store) ExistsBatch(ctx context.Context, ns string, digests []string) []bool {
	out := make([]bool, len(digests))
	var g errgroup.Group
	g.SetLimit(existsBatchConcurrency)
	for i, d := range digests {
		i, d := i, d
		g.Go(func() error {
			_, err := s.kv.Get(entryKey(ns, d))
			out[i] = err == nil
			return nil
		})
	}
	g.Wait()
	return out
}

// existsBatchConcurrency bounds in-flight lookups per exists_batch call so a
// MaxKeysPerCall-sized request can't spawn thousands of goroutines at once.
const existsBatchConcurrency = 64

// InsertIfAbsent atomically creates the namespace row if needed and inserts
// e if no entry exists yet for e.Key. It reports whether the insert
// happened; false means a duplicate was found and e was left untouched.
//
// This is the only operation in the contract that must be linearizable per
// key (spec.md §4.2 concurrency note).
func (s *Store) InsertIfAbsent(ctx context.Context, ns string, isTesting bool, e entry.Entry) (inserted bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.getOrInsertNamespace(ns, isTesting); err != nil {
		return false, err
	}
	key := entryKey(e.Namespace, e.Digest)
	if _, err := s.kv.Get(key); err == nil {
		return false, nil
	} else if err != ErrNotFound {
		return false, err
	}
	if err := s.kv.Set(key, encodeEntry(ns, e)); err != nil {
		return false, err
	}
	if err := s.kv.Set(nsIdxKey(e.Namespace, e.LastAccess, e.Digest), ""); err != nil {
		return false, err
	}
	if err := s.kv.Set(globalIdxKey(e.LastAccess, e.Namespace, e.Digest), ""); err != nil {
		return false, err
	}
	return true, nil
}

// Update mutates only ExpandedSize and LastAccess on an existing entry, per
// spec.md §4.2. It is a no-op error if the entry is absent.
func (s *Store) Update(ctx context.Context, ns, digest string, expandedSize *int64, lastAccess *entry.Day) error {
	key := entryKey(ns, digest)
	v, err := s.kv.Get(key)
	if err != nil {
		return err
	}
	e, err := decodeEntry(ns, digest, v)
	if err != nil {
		return err
	}
	oldDay := e.LastAccess
	if expandedSize != nil {
		e.ExpandedSize = *expandedSize
	}
	if lastAccess != nil {
		e.LastAccess = *lastAccess
	}
	if err := s.kv.Set(key, encodeEntry(ns, e)); err != nil {
		return err
	}
	if lastAccess != nil && *lastAccess != oldDay {
		if err := s.kv.Delete(nsIdxKey(ns, oldDay, digest)); err != nil {
			return err
		}
		if err := s.kv.Delete(globalIdxKey(oldDay, ns, digest)); err != nil {
			return err
		}
		if err := s.kv.Set(nsIdxKey(ns, *lastAccess, digest), ""); err != nil {
			return err
		}
		if err := s.kv.Set(globalIdxKey(*lastAccess, ns, digest), ""); err != nil {
			return err
		}
	}
	return nil
}

// Finalize overwrites an existing entry's Placement, InlineBytes, BulkName,
// Size, ExpandedSize, and IsHighPriority. It exists only for the ingest
// path (C5 step 5): insert_if_absent's provisional row carries just the
// key, since placement isn't decided until after the digest is verified,
// and the public Update contract intentionally does not allow widening
// placement after the fact. LastAccess is left untouched; the index rows
// it governs don't change.
func (s *Store) Finalize(ctx context.Context, ns, digest string, placement entry.Placement, inlineBytes []byte, bulkName string, size, expandedSize int64, isHighPriority bool) error {
	key := entryKey(ns, digest)
	v, err := s.kv.Get(key)
	if err != nil {
		return err
	}
	e, err := decodeEntry(ns, digest, v)
	if err != nil {
		return err
	}
	e.Placement = placement
	e.InlineBytes = inlineBytes
	e.BulkName = bulkName
	e.Size = size
	e.ExpandedSize = expandedSize
	e.IsHighPriority = isHighPriority
	return s.kv.Set(key, encodeEntry(ns, e))
}

// DeleteOne removes a single entry and its index rows. Callers needing
// bulk/async deletion fan this out themselves; see pkg/casengine's
// asyncDeleter for the bounded in-flight pattern of spec.md §4.8.
func (s *Store) DeleteOne(ctx context.Context, ns, digest string) error {
	v, err := s.kv.Get(entryKey(ns, digest))
	if err == ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	e, err := decodeEntry(ns, digest, v)
	if err != nil {
		return err
	}
	if err := s.kv.Delete(entryKey(ns, digest)); err != nil {
		return err
	}
	if err := s.kv.Delete(nsIdxKey(ns, e.LastAccess, digest)); err != nil {
		return err
	}
	return s.kv.Delete(globalIdxKey(e.LastAccess, ns, digest))
}

// DeleteNamespace removes a namespace row. Callers must ensure it holds no
// entries first (spec.md §3: "deleted only by the cleanup pass once they
// contain no entries").
func (s *Store) DeleteNamespace(ctx context.Context, ns string) error {
	return s.kv.Delete(namespacePrefix + ns)
}

// Filter selects a subset of entry keys for Scan.
type Filter struct {
	// Namespace scopes the scan to one namespace ("ancestor = ns"). Empty
	// means unscoped.
	Namespace string
	// Before, if non-nil, restricts to entries with LastAccess < *Before.
	Before *entry.Day
}

// Scan returns the keys matching filter, in an implementation-defined
// order, without loading full entry values. Combined with the namespace and
// global last-access indexes, every case in spec.md §4.2 (last_access <
// cutoff, ancestor = ns, unfiltered-in-namespace) is a single range scan.
func (s *Store) Scan(ctx context.Context, filter Filter) ([]entry.Key, error) {
	switch {
	case filter.Namespace != "" && filter.Before != nil:
		return s.scanIndex(nsIdxPrefix+filter.Namespace+"\x00", nsIdxPrefix+filter.Namespace+"\x00"+dayPad(*filter.Before)+"\x00", func(rest string) (string, string) {
			// rest is "<day>\x00<digest>"; the namespace is fixed.
			i := indexByte(rest, 0, '\x00')
			return filter.Namespace, rest[i+1:]
		})
	case filter.Namespace != "" && filter.Before == nil:
		return s.scanEntryPrefix(filter.Namespace)
	case filter.Namespace == "" && filter.Before != nil:
		end := globalIdxPrefix + dayPad(*filter.Before) + "\x00"
		return s.scanIndex(globalIdxPrefix, end, func(rest string) (string, string) {
			// rest is "<day>\x00<ns>\x00<digest>"; ns/digest follow day.
			i := indexByte(rest, 0, '\x00')
			rest = rest[i+1:]
			j := indexByte(rest, 0, '\x00')
			return rest[:j], rest[j+1:]
		})
	default:
		return s.scanEntryPrefix("")
	}
}

func (s *Store) scanIndex(start, end string, split func(rest string) (ns, digest string)) ([]entry.Key, error) {
	it := s.kv.Find(start, end)
	defer it.Close()
	var keys []entry.Key
	for it.Next() {
		k := it.Key()
		if len(k) < len(start) {
			continue
		}
		rest := k[len(start):]
		ns, digest := split(rest)
		keys = append(keys, entry.Key{Namespace: ns, Digest: digest})
	}
	return keys, nil
}

func (s *Store) scanEntryPrefix(ns string) ([]entry.Key, error) {
	start := entryPrefix + ns
	end := prefixEnd(start)
	it := s.kv.Find(start, end)
	defer it.Close()
	var keys []entry.Key
	for it.Next() {
		k := it.Key()
		rest := k[len(entryPrefix):]
		i := indexByte(rest, 0, '\x00')
		if i < 0 {
			continue
		}
		keys = append(keys, entry.Key{Namespace: rest[:i], Digest: rest[i+1:]})
	}
	return keys, nil
}

// ScanNamespaces returns every namespace row, optionally filtered by
// is_testing, for C8's per-namespace eviction pass.
func (s *Store) ScanNamespaces(ctx context.Context, testingOnly bool) ([]NamespaceRow, error) {
	start := namespacePrefix
	end := prefixEnd(start)
	it := s.kv.Find(start, end)
	defer it.Close()
	var rows []NamespaceRow
	for it.Next() {
		var row NamespaceRow
		if err := json.Unmarshal([]byte(it.Value()), &row); err != nil {
			continue
		}
		if testingOnly && !row.IsTesting {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Close releases the underlying backend.
func (s *Store) Close() error { return s.kv.Close() }

func prefixEnd(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] != 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return "" // no upper bound
}

func indexByte(s string, from int, c byte) int {
	for i := from; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}
