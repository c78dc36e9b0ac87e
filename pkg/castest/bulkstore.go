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

package castest

import (
	"context"
	"io"
	"testing"

	"github.com/cas-project/casd/pkg/bulkstore"
)

// BulkStoreConformance runs the bulkstore.Store contract (C3) against a
// fresh backend produced by newStore. It covers Put, OpenRead, Delete and
// List; IssueUploadURL is not exercised here (diskblob tests it in its own
// package).
func BulkStoreConformance(t *testing.T, newStore func() bulkstore.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutThenOpenReadRoundTrips", func(t *testing.T) {
		s := newStore()
		payload := []byte("bulk payload contents")
		name, err := s.Put(ctx, "default", "deadbeef", payload)
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		if name == "" {
			t.Fatal("Put returned empty bulk name")
		}
		rc, err := s.OpenRead(ctx, name)
		if err != nil {
			t.Fatalf("OpenRead: %v", err)
		}
		defer rc.Close()
		got, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("ReadAll: %v", err)
		}
		if string(got) != string(payload) {
			t.Errorf("round trip = %q, want %q", got, payload)
		}
	})

	t.Run("PutTwiceYieldsDistinctNames", func(t *testing.T) {
		s := newStore()
		n1, err := s.Put(ctx, "default", "d1", []byte("one"))
		if err != nil {
			t.Fatalf("Put 1: %v", err)
		}
		n2, err := s.Put(ctx, "default", "d2", []byte("two"))
		if err != nil {
			t.Fatalf("Put 2: %v", err)
		}
		if n1 == n2 {
			t.Errorf("Put produced the same bulk name twice: %q", n1)
		}
	})

	t.Run("OpenReadMissingErrors", func(t *testing.T) {
		s := newStore()
		if _, err := s.OpenRead(ctx, "default/does-not-exist"); err == nil {
			t.Error("OpenRead of a missing bulk name returned nil error")
		}
	})

	t.Run("DeleteRemovesObject", func(t *testing.T) {
		s := newStore()
		name, err := s.Put(ctx, "default", "d3", []byte("gone soon"))
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		if err := s.Delete(ctx, []string{name}); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := s.OpenRead(ctx, name); err == nil {
			t.Error("OpenRead succeeded after Delete")
		}
	})

	t.Run("DeleteMissingIsNotFatal", func(t *testing.T) {
		s := newStore()
		if err := s.Delete(ctx, []string{"default/never-existed"}); err != nil {
			t.Errorf("Delete(never-existed) = %v, want nil", err)
		}
	})

	t.Run("ListFiltersByPrefix", func(t *testing.T) {
		s := newStore()
		n1, _ := s.Put(ctx, "alpha", "d1", []byte("a"))
		n2, _ := s.Put(ctx, "beta", "d2", []byte("b"))
		names, err := s.List(ctx, "alpha/")
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		foundN1, foundN2 := false, false
		for _, n := range names {
			if n == n1 {
				foundN1 = true
			}
			if n == n2 {
				foundN2 = true
			}
		}
		if !foundN1 {
			t.Errorf("List(alpha/) missing %q", n1)
		}
		if foundN2 {
			t.Errorf("List(alpha/) unexpectedly includes %q", n2)
		}
	})
}
