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

// Package memblob is an in-memory bulkstore.Store, for tests and single
// process development. Modeled on the teacher repo's
// pkg/blobserver/memory, which serves the identical role for blob storage.
package memblob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Store is an in-memory bulkstore.Store. The zero value is ready to use.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

func (s *Store) ensure() {
	if s.data == nil {
		s.data = make(map[string][]byte)
	}
}

// IssueUploadURL has no HTTP layer to hand off to in-memory; it invokes no
// callback itself. Tests that exercise the upload-URL path should call Put
// directly and invoke the callback manually. Returns a descriptive
// placeholder URL for symmetry with the real backends.
func (s *Store) IssueUploadURL(ctx context.Context, ns, digest, callbackURL string) (string, error) {
	return "memblob://" + ns + "/" + digest, nil
}

func (s *Store) Put(ctx context.Context, ns, digest string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure()
	name := ns + "/" + uuid.NewString()
	buf := make([]byte, len(data))
	copy(buf, data)
	s.data[name] = buf
	return name, nil
}

func (s *Store) OpenRead(ctx context.Context, bulkName string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data[bulkName]
	if !ok {
		return nil, errors.New("memblob: no such object " + bulkName)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *Store) Delete(ctx context.Context, bulkNames []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range bulkNames {
		delete(s.data, n)
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for name := range s.data {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}
