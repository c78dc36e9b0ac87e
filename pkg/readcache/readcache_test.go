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

package readcache

import (
	"testing"

	"github.com/cas-project/casd/pkg/entry"
)

func TestAddGet(t *testing.T) {
	c := New(1024)
	k := entry.Key{Namespace: "default", Digest: "abc"}
	c.Add(k, []byte("hello"))
	got, ok := c.Get(k)
	if !ok || string(got) != "hello" {
		t.Fatalf("Get = %q, %v; want \"hello\", true", got, ok)
	}
}

func TestEvictsOldestWhenOverBudget(t *testing.T) {
	c := New(10)
	a := entry.Key{Namespace: "ns", Digest: "a"}
	b := entry.Key{Namespace: "ns", Digest: "b"}
	c.Add(a, []byte("12345"))
	c.Add(b, []byte("12345"))
	// Budget is 10 bytes; a third 5-byte add must evict the least
	// recently used entry, which is a (b was added after a).
	d := entry.Key{Namespace: "ns", Digest: "d"}
	c.Add(d, []byte("12345"))
	if _, ok := c.Get(a); ok {
		t.Errorf("a should have been evicted")
	}
	if _, ok := c.Get(b); !ok {
		t.Errorf("b should still be cached")
	}
	if _, ok := c.Get(d); !ok {
		t.Errorf("d should be cached")
	}
}

func TestGetRefreshesRecency(t *testing.T) {
	c := New(10)
	a := entry.Key{Namespace: "ns", Digest: "a"}
	b := entry.Key{Namespace: "ns", Digest: "b"}
	c.Add(a, []byte("12345"))
	c.Add(b, []byte("12345"))
	c.Get(a) // touch a, making b the LRU entry
	d := entry.Key{Namespace: "ns", Digest: "d"}
	c.Add(d, []byte("12345"))
	if _, ok := c.Get(b); ok {
		t.Errorf("b should have been evicted after a was touched")
	}
	if _, ok := c.Get(a); !ok {
		t.Errorf("a should still be cached")
	}
}

func TestFlush(t *testing.T) {
	c := New(1024)
	k := entry.Key{Namespace: "ns", Digest: "a"}
	c.Add(k, []byte("x"))
	c.Flush()
	if _, ok := c.Get(k); ok {
		t.Errorf("Get after Flush = found, want absent")
	}
}

func TestNoNegativeCaching(t *testing.T) {
	c := New(1024)
	k := entry.Key{Namespace: "ns", Digest: "missing"}
	if _, ok := c.Get(k); ok {
		t.Fatalf("Get on empty cache returned ok=true")
	}
}
