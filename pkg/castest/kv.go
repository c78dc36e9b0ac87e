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

// Package castest holds shared conformance suites and fixtures so every
// metastore.KV and bulkstore.Store backend is held to the same contract,
// the way the teacher repo's pkg/sorted and pkg/blobserver/storagetest
// packages give every backend a single shared test suite to satisfy.
package castest

import (
	"testing"

	"github.com/cas-project/casd/pkg/metastore"
)

// KVConformance runs the metastore.KV contract (spec.md §4.2's underlying
// storage primitive) against a fresh backend produced by newKV. Call it as
// a subtest from each backend's own _test.go:
//
//	func TestConformance(t *testing.T) {
//		castest.KVConformance(t, func() metastore.KV { return New() })
//	}
func KVConformance(t *testing.T, newKV func() metastore.KV) {
	t.Helper()

	t.Run("GetMissingIsErrNotFound", func(t *testing.T) {
		kv := newKV()
		defer kv.Close()
		if _, err := kv.Get("absent"); err != metastore.ErrNotFound {
			t.Errorf("Get(absent) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("SetThenGetRoundTrips", func(t *testing.T) {
		kv := newKV()
		defer kv.Close()
		if err := kv.Set("a", "1"); err != nil {
			t.Fatalf("Set: %v", err)
		}
		v, err := kv.Get("a")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if v != "1" {
			t.Errorf("Get(a) = %q, want 1", v)
		}
	})

	t.Run("SetOverwrites", func(t *testing.T) {
		kv := newKV()
		defer kv.Close()
		kv.Set("a", "1")
		kv.Set("a", "2")
		v, _ := kv.Get("a")
		if v != "2" {
			t.Errorf("Get(a) = %q, want 2", v)
		}
	})

	t.Run("DeleteRemoves", func(t *testing.T) {
		kv := newKV()
		defer kv.Close()
		kv.Set("a", "1")
		if err := kv.Delete("a"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := kv.Get("a"); err != metastore.ErrNotFound {
			t.Errorf("Get after delete = %v, want ErrNotFound", err)
		}
	})

	t.Run("DeleteMissingIsNotAnError", func(t *testing.T) {
		kv := newKV()
		defer kv.Close()
		if err := kv.Delete("never-set"); err != nil {
			t.Errorf("Delete(never-set) = %v, want nil", err)
		}
	})

	t.Run("FindIteratesInKeyOrder", func(t *testing.T) {
		kv := newKV()
		defer kv.Close()
		for _, k := range []string{"c", "a", "b", "d"} {
			kv.Set(k, k+"-value")
		}
		it := kv.Find("", "")
		defer it.Close()
		var got []string
		for it.Next() {
			got = append(got, it.Key())
		}
		want := []string{"a", "b", "c", "d"}
		if len(got) != len(want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
			}
		}
	})

	t.Run("FindRespectsHalfOpenRange", func(t *testing.T) {
		kv := newKV()
		defer kv.Close()
		for _, k := range []string{"a", "b", "c", "d", "e"} {
			kv.Set(k, k)
		}
		it := kv.Find("b", "d")
		defer it.Close()
		var got []string
		for it.Next() {
			got = append(got, it.Key())
		}
		want := []string{"b", "c"}
		if len(got) != len(want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
			}
		}
	})

	t.Run("FindValueMatchesGet", func(t *testing.T) {
		kv := newKV()
		defer kv.Close()
		kv.Set("k", "v")
		it := kv.Find("k", "")
		defer it.Close()
		if !it.Next() {
			t.Fatal("expected at least one entry")
		}
		if it.Value() != "v" {
			t.Errorf("Value() = %q, want v", it.Value())
		}
	})
}
