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

package casengine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/cas-project/casd/pkg/entry"
)

// maxInFlightDeletes bounds concurrent deletes at 10x the batch size, per
// spec.md §4.8's shared backpressure rule.
const maxInFlightDeletes = 10 * ItemsToDeleteAsync

// asyncDeleter runs delete operations in the background, bounded at
// maxInFlightDeletes in-flight goroutines by an errgroup.Group limit. This is
// the Go shape of spec.md §9's "deferred deletes become a bounded in-flight
// set with explicit drain points."
type asyncDeleter struct {
	g      errgroup.Group
	inited bool
}

func (d *asyncDeleter) submit(fn func() error) {
	if !d.inited {
		d.g.SetLimit(maxInFlightDeletes)
		d.inited = true
	}
	d.g.Go(fn)
}

// drain waits for every submitted delete to finish, returning the first
// error seen (if any).
func (d *asyncDeleter) drain() error {
	return d.g.Wait()
}

// deleteEntryAndObject deletes ent's metadata row and, if bulk-backed, its
// bulk object, snapshotting BulkName before the entry delete so a concurrent
// reader can't observe a dangling reference.
func (e *Engine) deleteEntryAndObject(ctx context.Context, ent entry.Key, bulkName string) error {
	if err := e.Meta.DeleteOne(ctx, ent.Namespace, ent.Digest); err != nil {
		return err
	}
	if bulkName == "" {
		return nil
	}
	return e.Bulk.Delete(ctx, []string{bulkName})
}

// CleanupOld implements the "old" cleanup pass of spec.md §4.8: evict
// entries with LastAccess older than today - RetentionDays. Returns whether
// any items were found.
func (e *Engine) CleanupOld(ctx context.Context) (found bool, err error) {
	cutoff := e.today() - entry.Day(e.RetentionDays)
	keys, err := e.Meta.Scan(ctx, metaFilter(cutoff))
	if err != nil {
		return false, err
	}
	if len(keys) == 0 {
		return false, nil
	}

	var d asyncDeleter
	for _, k := range keys {
		k := k
		ent, getErr := e.Meta.Get(ctx, k.Namespace, k.Digest)
		bulkName := ""
		if getErr == nil {
			bulkName = ent.BulkName
		}
		d.submit(func() error {
			return e.deleteEntryAndObject(ctx, k, bulkName)
		})
	}
	if err := d.drain(); err != nil {
		return true, err
	}
	return true, nil
}

// CleanupTesting implements the "testing" cleanup pass of spec.md §4.8:
// for every namespace with IsTesting set, evict entries with LastAccess
// older than today-1. Each namespace's entry deletes are drained before its
// remaining entries are counted; a namespace left empty gets a reap task
// enqueued on the cleanup queue right away, with no delay before it runs.
func (e *Engine) CleanupTesting(ctx context.Context) (found bool, err error) {
	rows, err := e.Meta.ScanNamespaces(ctx, true)
	if err != nil {
		return false, err
	}
	cutoff := e.today() - 1

	var any bool
	for _, row := range rows {
		keys, err := e.Meta.Scan(ctx, namespaceCutoffFilter(row.Name, cutoff))
		if err != nil {
			return any, err
		}
		if len(keys) == 0 {
			continue
		}
		any = true

		var d asyncDeleter
		for _, k := range keys {
			k := k
			ent, getErr := e.Meta.Get(ctx, k.Namespace, k.Digest)
			bulkName := ""
			if getErr == nil {
				bulkName = ent.BulkName
			}
			d.submit(func() error {
				return e.deleteEntryAndObject(ctx, k, bulkName)
			})
		}
		if err := d.drain(); err != nil {
			return any, err
		}

		remaining, err := e.Meta.Scan(ctx, ancestorFilter(row.Name))
		if err != nil {
			return any, err
		}
		if len(remaining) == 0 {
			if err := e.Tasks.Cleanup.Enqueue(e.namespaceReapTask(row.Name)); err != nil {
				e.Logger.Printf("cleanup-testing: enqueue namespace reap for %s: %v", row.Name, err)
			}
		}
	}
	return any, nil
}

// namespaceReapTask deletes the namespace row once its entries are gone. It
// runs whenever the cleanup queue delivers it, which is not deferred by a
// day; it re-checks that the namespace is still empty and otherwise does
// nothing.
func (e *Engine) namespaceReapTask(ns string) func(ctx context.Context) {
	return func(ctx context.Context) {
		remaining, err := e.Meta.Scan(ctx, ancestorFilter(ns))
		if err != nil || len(remaining) > 0 {
			return
		}
		if err := e.Meta.DeleteNamespace(ctx, ns); err != nil {
			e.Logger.Printf("cleanup-testing: delete namespace %s: %v", ns, err)
		}
	}
}

// Obliterate implements spec.md §4.8's full wipe: every entry, then every
// namespace row, then every bulk object, then a read-cache flush. Intended
// for disaster reset, not routine operation.
func (e *Engine) Obliterate(ctx context.Context) error {
	keys, err := e.Meta.Scan(ctx, ancestorFilter(""))
	if err != nil {
		return err
	}
	var d asyncDeleter
	for _, k := range keys {
		k := k
		d.submit(func() error {
			return e.Meta.DeleteOne(ctx, k.Namespace, k.Digest)
		})
	}
	if err := d.drain(); err != nil {
		return err
	}

	rows, err := e.Meta.ScanNamespaces(ctx, false)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := e.Meta.DeleteNamespace(ctx, row.Name); err != nil {
			return err
		}
	}

	names, err := e.Bulk.List(ctx, "")
	if err != nil {
		return err
	}
	var bd asyncDeleter
	for _, name := range names {
		name := name
		bd.submit(func() error {
			return e.Bulk.Delete(ctx, []string{name})
		})
	}
	if err := bd.drain(); err != nil {
		return err
	}

	e.Cache.Flush()
	return nil
}

// OrphanSweep enumerates bulk objects under prefix that lack a metadata
// entry referencing them and deletes them, reusing Obliterate's
// batch/backpressure discipline per spec.md §4.8's "orphan (implicit)"
// note. A bulk object's name (an opaque UUID minted by the bulk backend) is
// never itself a digest, so the only way to tell "orphan" from "live" is to
// cross-reference against every entry's recorded BulkName.
func (e *Engine) OrphanSweep(ctx context.Context, prefix string) error {
	names, err := e.Bulk.List(ctx, prefix)
	if err != nil {
		return err
	}

	live := make(map[string]bool)
	keys, err := e.Meta.Scan(ctx, ancestorFilter(""))
	if err != nil {
		return err
	}
	for _, k := range keys {
		ent, err := e.Meta.Get(ctx, k.Namespace, k.Digest)
		if err != nil || ent.Placement != entry.Bulk {
			continue
		}
		live[ent.BulkName] = true
	}

	var d asyncDeleter
	for _, name := range names {
		name := name
		if live[name] {
			continue
		}
		d.submit(func() error {
			return e.Bulk.Delete(ctx, []string{name})
		})
	}
	return d.drain()
}
