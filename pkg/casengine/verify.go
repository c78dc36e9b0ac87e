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
	"errors"
	"io"

	"github.com/cas-project/casd/pkg/digest"
	"github.com/cas-project/casd/pkg/entry"
	"github.com/cas-project/casd/pkg/metastore"
)

// verifyTask returns the taskqueue.Task closure that runs Verify for (ns,
// hexDigest), used both by UploadCallback's immediate enqueue and by any
// redelivery the scheduler performs.
func (e *Engine) verifyTask(ns, hexDigest string) func(ctx context.Context) {
	return func(ctx context.Context) {
		if err := e.Verify(ctx, ns, hexDigest); err != nil {
			e.Logger.Printf("verify %s/%s: %v", ns, hexDigest, err)
		}
	}
}

// Verify implements the verification worker of spec.md §4.6. It never
// returns an error for expected outcomes (missing entry, already verified,
// corrupt content) — those are all terminal successes from the scheduler's
// point of view; only genuinely unexpected storage errors are returned so
// the caller can log them.
func (e *Engine) Verify(ctx context.Context, ns, hexDigest string) error {
	ent, err := e.Meta.Get(ctx, ns, hexDigest)
	if errors.Is(err, metastore.ErrNotFound) {
		e.Logger.Printf("verify %s/%s: entry missing, nothing to do", ns, hexDigest)
		return nil
	}
	if err != nil {
		return err
	}
	if ent.ExpandedSize != entry.Unverified {
		e.Logger.Printf("verify %s/%s: already verified, skipping", ns, hexDigest)
		return nil
	}
	if ent.Placement == entry.Inline {
		e.Logger.Printf("verify %s/%s: entry is inline, should never have been scheduled", ns, hexDigest)
		return nil
	}

	capture := ent.IsHighPriority && ent.Size <= entry.MaxCached

	parsedNS, err := digest.Parse(ns)
	if err != nil {
		return err
	}

	r, err := e.Bulk.OpenRead(ctx, ent.BulkName)
	if err != nil {
		e.Logger.Printf("verify %s/%s: open bulk object: %v, deleting", ns, hexDigest, err)
		e.deleteUnverified(ctx, ent)
		return nil
	}
	defer r.Close()

	h := digest.HashFor(parsedNS)
	var captured *bytes.Buffer
	var src io.Reader = r
	if parsedNS.Compressed != digest.None {
		zr, zerr := zlib.NewReader(r)
		if zerr != nil {
			e.Logger.Printf("verify %s/%s: zlib init: %v, deleting", ns, hexDigest, zerr)
			e.deleteUnverified(ctx, ent)
			return nil
		}
		defer zr.Close()
		src = zr
	}
	if capture {
		captured = &bytes.Buffer{}
		src = io.TeeReader(src, captured)
	}

	n, err := io.Copy(h, src)
	if err != nil {
		if ctx.Err() != nil {
			// Deadline exceeded mid-stream: the one legal give-up path.
			// Leave the entry unverified. No cleanup pass re-enqueues
			// verification; the entry stays unverified until a verify
			// task for it runs again.
			e.Logger.Printf("verify %s/%s: context done mid-stream, deferring", ns, hexDigest)
			return nil
		}
		e.Logger.Printf("verify %s/%s: stream error: %v, deleting", ns, hexDigest, err)
		e.deleteUnverified(ctx, ent)
		return nil
	}

	computedHex := hex.EncodeToString(h.Sum(nil))
	if computedHex != hexDigest {
		e.Logger.Printf("verify %s/%s: digest mismatch, deleting", ns, hexDigest)
		e.deleteUnverified(ctx, ent)
		return nil
	}

	expandedSize := n
	if err := e.Meta.Update(ctx, ns, hexDigest, &expandedSize, nil); err != nil {
		return err
	}
	if capture {
		e.Cache.Add(ent.Key, captured.Bytes())
	}
	return nil
}

func (e *Engine) deleteUnverified(ctx context.Context, ent entry.Entry) {
	if err := e.Meta.DeleteOne(ctx, ent.Namespace, ent.Digest); err != nil {
		e.Logger.Printf("verify %s/%s: delete entry: %v", ent.Namespace, ent.Digest, err)
	}
	if ent.BulkName != "" {
		if err := e.Bulk.Delete(ctx, []string{ent.BulkName}); err != nil {
			e.Logger.Printf("verify %s/%s: delete bulk object %s: %v", ent.Namespace, ent.Digest, ent.BulkName, err)
		}
	}
}
