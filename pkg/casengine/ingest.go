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
	"bytes"
	"compress/zlib"
	"context"
	"encoding/hex"
	"io"
	"strings"

	"github.com/cas-project/casd/pkg/casderr"
	"github.com/cas-project/casd/pkg/digest"
	"github.com/cas-project/casd/pkg/entry"
	"github.com/cas-project/casd/pkg/stats"
)

// StoreInline implements the inline-store ingest path of spec.md §4.5: a
// single request carrying (ns, digest, bytes). priorityZero mirrors the
// original's priority==0 query parameter ("is_high_priority").
func (e *Engine) StoreInline(ctx context.Context, ns digest.Namespace, hexDigest string, payload []byte, priorityZero bool) error {
	if !digest.ValidHex(ns, hexDigest) {
		return casderr.New(casderr.MalformedInput, "digest does not match namespace's hash size")
	}

	provisional := entry.Entry{
		Key:            entry.Key{Namespace: ns.Name, Digest: hexDigest},
		ExpandedSize:   0,
		IsHighPriority: priorityZero,
		LastAccess:     e.today(),
	}
	inserted, err := e.Meta.InsertIfAbsent(ctx, ns.Name, ns.IsTesting, provisional)
	if err != nil {
		return casderr.Wrap(casderr.Unknown, "insert_if_absent", err)
	}
	if !inserted {
		e.Stats.Record(stats.Event{Kind: stats.Dupe, Namespace: ns.Name, Size: int64(len(payload))})
		return casderr.New(casderr.Duplicate, "entry already exists")
	}

	computedHex, expandedSize, err := e.hashPayload(ns, payload)
	if err != nil {
		e.cleanupFailedInsert(ctx, ns.Name, hexDigest)
		return casderr.Wrap(casderr.CorruptPayload, "decompress failed", err)
	}
	if computedHex != hexDigest {
		e.cleanupFailedInsert(ctx, ns.Name, hexDigest)
		return casderr.New(casderr.DigestMismatch, "computed digest does not match declared digest")
	}

	final := provisional
	final.Size = int64(len(payload))
	final.ExpandedSize = expandedSize

	if len(payload) < entry.MinSizeForBulk {
		final.Placement = entry.Inline
		final.InlineBytes = payload
	} else {
		bulkName, err := e.Bulk.Put(ctx, ns.Name, hexDigest, payload)
		if err != nil {
			e.cleanupFailedInsert(ctx, ns.Name, hexDigest)
			return casderr.Wrap(casderr.BulkPutFailed, "bulk store put", err)
		}
		final.Placement = entry.Bulk
		final.BulkName = bulkName
	}

	if err := e.Meta.Finalize(ctx, ns.Name, hexDigest, final.Placement, final.InlineBytes, final.BulkName, final.Size, final.ExpandedSize, final.IsHighPriority); err != nil {
		return casderr.Wrap(casderr.Unknown, "finalize entry", err)
	}

	if final.IsHighPriority && final.Placement == entry.Bulk && final.Size <= entry.MaxCached {
		e.Cache.Add(final.Key, payload)
	}
	e.Stats.Record(stats.Event{Kind: stats.Store, Namespace: ns.Name, Size: final.Size, Detail: final.Placement.String()})
	return nil
}

// cleanupFailedInsert removes a provisional entry whose corruption/digest
// check failed in StoreInline; the entry was never a full one, so there is
// never a bulk object to clean up alongside it.
func (e *Engine) cleanupFailedInsert(ctx context.Context, ns, hexDigest string) {
	if err := e.Meta.DeleteOne(ctx, ns, hexDigest); err != nil {
		e.Logger.Printf("store %s/%s: cleanup after rejected payload: %v", ns, hexDigest, err)
	}
}

// hashPayload decompresses payload (if ns is compressed) while hashing it,
// returning the computed hex digest and the expanded (uncompressed) size.
func (e *Engine) hashPayload(ns digest.Namespace, payload []byte) (hexDigest string, expandedSize int64, err error) {
	h := digest.HashFor(ns)
	if ns.Compressed == digest.None {
		n, err := h.Write(payload)
		if err != nil {
			return "", 0, err
		}
		return hex.EncodeToString(h.Sum(nil)), int64(n), nil
	}
	zr, err := zlib.NewReader(bytes.NewReader(payload))
	if err != nil {
		return "", 0, err
	}
	defer zr.Close()
	n, err := io.Copy(h, zr)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// IssueUploadURL begins the bulk-store ingest path of spec.md §4.5: the
// client is handed a time-limited URL to POST bytes to directly.
func (e *Engine) IssueUploadURL(ctx context.Context, ns digest.Namespace, hexDigest, callbackURL string) (string, error) {
	if !digest.ValidHex(ns, hexDigest) {
		return "", casderr.New(casderr.MalformedInput, "digest does not match namespace's hash size")
	}
	url, err := e.Bulk.IssueUploadURL(ctx, ns.Name, hexDigest, callbackURL)
	if err != nil {
		return "", casderr.Wrap(casderr.Unknown, "issue upload url", err)
	}
	return url, nil
}

// UploadCallback implements the bulk-store callback of spec.md §4.5: it
// runs once bytes have landed in the bulk store, under the chosen bulkName.
// Invoked with exactly one bulkName; callers that observe more than one
// posted file must delete them all and call this with none (matching the
// original's "reject if more than one file was posted").
func (e *Engine) UploadCallback(ctx context.Context, ns digest.Namespace, hexDigest string, bulkName string, size int64) error {
	if !strings.HasPrefix(bulkName, ns.Name+"/") {
		e.Bulk.Delete(ctx, []string{bulkName})
		return casderr.New(casderr.MalformedInput, "uploaded object's namespace prefix does not match")
	}

	provisional := entry.Entry{
		Key:          entry.Key{Namespace: ns.Name, Digest: hexDigest},
		Placement:    entry.Bulk,
		BulkName:     bulkName,
		Size:         size,
		ExpandedSize: entry.Unverified,
		LastAccess:   e.today(),
	}
	inserted, err := e.Meta.InsertIfAbsent(ctx, ns.Name, ns.IsTesting, provisional)
	if err != nil {
		e.Bulk.Delete(ctx, []string{bulkName})
		return casderr.Wrap(casderr.Unknown, "insert_if_absent", err)
	}
	if !inserted {
		e.Bulk.Delete(ctx, []string{bulkName})
		e.Stats.Record(stats.Event{Kind: stats.Dupe, Namespace: ns.Name, Size: size})
		return casderr.New(casderr.Duplicate, "entry already exists")
	}

	if err := e.Tasks.Verify.Enqueue(e.verifyTask(ns.Name, hexDigest)); err != nil {
		e.Meta.DeleteOne(ctx, ns.Name, hexDigest)
		e.Bulk.Delete(ctx, []string{bulkName})
		return casderr.Wrap(casderr.EnqueueFailed, "enqueue verification", err)
	}
	e.Stats.Record(stats.Event{Kind: stats.Store, Namespace: ns.Name, Size: size, Detail: "bulk"})
	return nil
}
