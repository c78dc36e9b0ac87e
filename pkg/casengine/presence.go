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
	"encoding/hex"

	"github.com/cas-project/casd/pkg/casderr"
	"github.com/cas-project/casd/pkg/digest"
	"github.com/cas-project/casd/pkg/entry"
)

// Contains implements the presence-check half of spec.md §4.7. raw is a
// concatenation of N fixed-size raw digest bytes; the returned slice has
// one byte per input digest, 0x01 if present else 0x00, preserving order.
// Present digests are folded into a tag task enqueued against today.
func (e *Engine) Contains(ctx context.Context, ns digest.Namespace, raw []byte) ([]byte, error) {
	size := ns.Size()
	if size == 0 || len(raw)%size != 0 {
		return nil, casderr.New(casderr.MalformedInput, "payload length is not a multiple of the digest size")
	}
	n := len(raw) / size
	if n > MaxKeysPerCall {
		return nil, casderr.New(casderr.MalformedInput, "too many keys in one call")
	}

	hexDigests := make([]string, n)
	for i := 0; i < n; i++ {
		hexDigests[i] = hex.EncodeToString(raw[i*size : (i+1)*size])
	}

	present := e.Meta.ExistsBatch(ctx, ns.Name, hexDigests)

	resp := make([]byte, n)
	var hits []byte
	for i, ok := range present {
		if ok {
			resp[i] = 0x01
			hits = append(hits, raw[i*size:(i+1)*size]...)
		}
	}

	if len(hits) > 0 {
		if err := e.Tasks.Tag.Enqueue(e.tagTask(ns.Name, e.today(), hits, size)); err != nil {
			// Per spec.md §4.7: enqueue failure here is logged, not
			// surfaced, since presence correctness does not depend on it.
			e.Logger.Printf("contains %s: enqueue tag task: %v", ns.Name, err)
		}
	}
	return resp, nil
}

// tagTask returns the taskqueue.Task closure that bumps last_access for
// every digest in raw (a concatenation of digestSize-byte raw digests) to
// day, the tag half of spec.md §4.7.
func (e *Engine) tagTask(ns string, day entry.Day, raw []byte, digestSize int) func(ctx context.Context) {
	return func(ctx context.Context) {
		if err := e.Tag(ctx, ns, day, raw, digestSize); err != nil {
			e.Logger.Printf("tag %s: %v", ns, err)
		}
	}
}

// Tag implements the tag task of spec.md §4.7: for each digest in raw, load
// the entry and, if LastAccess != day, bump it.
func (e *Engine) Tag(ctx context.Context, ns string, day entry.Day, raw []byte, digestSize int) error {
	if digestSize == 0 || len(raw)%digestSize != 0 {
		return casderr.New(casderr.MalformedInput, "tag payload length is not a multiple of the digest size")
	}
	n := len(raw) / digestSize
	for i := 0; i < n; i++ {
		hexDigest := hex.EncodeToString(raw[i*digestSize : (i+1)*digestSize])
		ent, err := e.Meta.Get(ctx, ns, hexDigest)
		if err != nil {
			// A digest tagged between the contains scan and this task
			// running may have since been evicted; skip it rather than
			// fail the whole batch.
			continue
		}
		if ent.LastAccess == day {
			continue
		}
		d := day
		if err := e.Meta.Update(ctx, ns, hexDigest, nil, &d); err != nil {
			return err
		}
	}
	return nil
}
