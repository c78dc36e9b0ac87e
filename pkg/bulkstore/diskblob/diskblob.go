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

// Package diskblob is a local-filesystem bulkstore.Store. Bulk names are
// "<namespace>/<uuid>" and map directly to a relative path under root,
// matching the persistent layout spec.md §6 describes for the bucket-backed
// production store. It is a single-node dev/standalone backend; gcsblob is
// the production one. Upload/rename discipline (write to a temp file, sync,
// then rename into place) is modeled on the teacher repo's
// pkg/blobserver/localdisk ReceiveBlob.
package diskblob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Store writes blobs under root, one file per bulk name.
type Store struct {
	root string
}

// New returns a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &Store{root: dir}, nil
}

func (s *Store) path(bulkName string) string {
	return filepath.Join(s.root, filepath.FromSlash(bulkName))
}

func (s *Store) IssueUploadURL(ctx context.Context, ns, digest, callbackURL string) (string, error) {
	return "", fmt.Errorf("diskblob: direct upload URLs are not supported; use Put")
}

func (s *Store) Put(ctx context.Context, ns, digest string, data []byte) (string, error) {
	name := ns + "/" + uuid.NewString()
	fullPath := s.path(name)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o700); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(filepath.Dir(fullPath), "upload-*.tmp")
	if err != nil {
		return "", err
	}
	success := false
	defer func() {
		if !success {
			os.Remove(tmp.Name())
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return "", err
	}
	success = true
	return name, nil
}

func (s *Store) OpenRead(ctx context.Context, bulkName string) (io.ReadCloser, error) {
	return os.Open(s.path(bulkName))
}

func (s *Store) Delete(ctx context.Context, bulkNames []string) error {
	var firstErr error
	for _, n := range bulkNames {
		if err := os.Remove(s.path(n)); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// List enumerates bulk names (relative, slash-separated paths) under root
// whose bulk name starts with prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	err := filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return nil
		}
		name := filepath.ToSlash(rel)
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}
