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
	"errors"
	"io"

	"github.com/cas-project/casd/pkg/casderr"
	"github.com/cas-project/casd/pkg/entry"
	"github.com/cas-project/casd/pkg/metastore"
	"github.com/cas-project/casd/pkg/stats"
)

// Retrieve returns the stored bytes for (ns, digest) exactly as originally
// written — compressed namespaces return the compressed stream, matching
// the testable-property scenario of spec.md §8.2 ("retrieve returns the
// stored compressed stream"). The read cache (C4) is consulted first.
func (e *Engine) Retrieve(ctx context.Context, ns, hexDigest string) ([]byte, error) {
	key := entry.Key{Namespace: ns, Digest: hexDigest}
	if cached, ok := e.Cache.Get(key); ok {
		e.Stats.Record(stats.Event{Kind: stats.Return, Namespace: ns, Size: int64(len(cached)), Detail: "cache hit"})
		return cached, nil
	}

	ent, err := e.Meta.Get(ctx, ns, hexDigest)
	if errors.Is(err, metastore.ErrNotFound) {
		e.Stats.Record(stats.Event{Kind: stats.Lookup, Namespace: ns, Detail: "miss"})
		return nil, casderr.New(casderr.NotFound, "no entry for digest")
	}
	if err != nil {
		return nil, err
	}

	var data []byte
	if ent.Placement == entry.Inline {
		data = ent.InlineBytes
	} else {
		r, err := e.Bulk.OpenRead(ctx, ent.BulkName)
		if err != nil {
			return nil, casderr.Wrap(casderr.Unknown, "open bulk object", err)
		}
		defer r.Close()
		data, err = io.ReadAll(r)
		if err != nil {
			return nil, casderr.Wrap(casderr.Unknown, "read bulk object", err)
		}
	}

	// last_access is bumped only by the contains/tag pipeline (spec.md
	// §4.7), not by retrieval itself; the original service's retrieve
	// handler never touches it either.
	if ent.IsHighPriority && ent.Placement == entry.Bulk && ent.Size <= entry.MaxCached {
		e.Cache.Add(key, data)
	}
	e.Stats.Record(stats.Event{Kind: stats.Return, Namespace: ns, Size: int64(len(data)), Detail: ent.Placement.String()})
	return data, nil
}
