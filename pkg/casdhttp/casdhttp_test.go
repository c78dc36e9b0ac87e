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

package casdhttp

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cas-project/casd/pkg/bulkstore/memblob"
	"github.com/cas-project/casd/pkg/casengine"
	"github.com/cas-project/casd/pkg/metastore"
	"github.com/cas-project/casd/pkg/metastore/memstore"
	"github.com/cas-project/casd/pkg/readcache"
	"github.com/cas-project/casd/pkg/taskqueue"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	meta := metastore.New(memstore.New())
	bulk := memblob.New()
	cache := readcache.New(1 << 20)
	sched := &casengine.Scheduler{
		Verify:  taskqueue.NewQueue("verify", 1, 8, nil),
		Tag:     taskqueue.NewQueue("tag", 1, 8, nil),
		Cleanup: taskqueue.NewQueue("cleanup", 1, 8, nil),
	}
	t.Cleanup(func() {
		sched.Verify.Close()
		sched.Tag.Close()
		sched.Cleanup.Close()
	})
	e := casengine.New(meta, bulk, cache, sched, 30)
	return NewServer(e, nil, "test-secret", nil)
}

func sha1Hex(b []byte) string {
	h := sha1.Sum(b)
	return hex.EncodeToString(h[:])
}

func TestStoreAndRetrieveInline(t *testing.T) {
	s := newTestServer(t)
	payload := []byte("hello")
	d := sha1Hex(payload)

	req := httptest.NewRequest(http.MethodPost, "/content/store/default/"+d, bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("store status = %d, body %q", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/content/retrieve/default/"+d, nil)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("retrieve status = %d", rec.Code)
	}
	if !bytes.Equal(rec.Body.Bytes(), payload) {
		t.Errorf("retrieve body = %q, want %q", rec.Body.Bytes(), payload)
	}
	if got := rec.Header().Get("Cache-Control"); got != "public, max-age=43200" {
		t.Errorf("Cache-Control = %q", got)
	}
}

func TestRetrieveMissingIs404(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/content/retrieve/default/"+sha1Hex([]byte("nope")), nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestStoreDigestMismatchIs400(t *testing.T) {
	s := newTestServer(t)
	payload := []byte("hello")
	wrongDigest := sha1Hex([]byte("jello"))
	req := httptest.NewRequest(http.MethodPost, "/content/store/default/"+wrongDigest, bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRestrictedEndpointRequiresSecret(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/restricted/cleanup/trigger/old", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status without secret = %d, want 405", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/restricted/cleanup/trigger/old", nil)
	req.Header.Set(taskQueueSecretHeader, "test-secret")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status with secret = %d, want 200", rec.Code)
	}
}

func TestContainsRoundTrip(t *testing.T) {
	s := newTestServer(t)
	payload := []byte("hello")
	d := sha1Hex(payload)
	req := httptest.NewRequest(http.MethodPost, "/content/store/default/"+d, bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("store status = %d", rec.Code)
	}

	raw, _ := hex.DecodeString(d)
	req = httptest.NewRequest(http.MethodPost, "/content/contains/default", bytes.NewReader(raw))
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("contains status = %d", rec.Code)
	}
	if !bytes.Equal(rec.Body.Bytes(), []byte{0x01}) {
		t.Errorf("contains body = %v, want [1]", rec.Body.Bytes())
	}
}
