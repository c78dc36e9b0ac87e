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
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/cas-project/casd/pkg/casderr"
	"github.com/cas-project/casd/pkg/digest"
	"github.com/cas-project/casd/pkg/entry"
)

// digestPattern matches the digest path segment of spec.md §6:
// /<hex:[a-f0-9]{4,}>. Full length-for-algorithm validation happens against
// the parsed namespace via digest.ValidHex.
var digestPattern = regexp.MustCompile(`^[a-f0-9]{4,}$`)

func parseNamespace(r *http.Request) (digest.Namespace, error) {
	ns, err := digest.Parse(r.PathValue("ns"))
	if err != nil {
		return digest.Namespace{}, casderr.Wrap(casderr.MalformedInput, "invalid namespace", err)
	}
	return ns, nil
}

func parseHexDigest(r *http.Request, ns digest.Namespace) (string, error) {
	hexDigest := r.PathValue("hex")
	if !digestPattern.MatchString(hexDigest) {
		return "", casderr.New(casderr.MalformedInput, "digest must be lowercase hex, at least 4 characters")
	}
	if !digest.ValidHex(ns, hexDigest) {
		return "", casderr.New(casderr.MalformedInput, "digest length does not match namespace's hash size")
	}
	return hexDigest, nil
}

func (s *Server) handleContains(w http.ResponseWriter, r *http.Request) {
	ns, err := parseNamespace(r)
	if err != nil {
		writeError(w, err)
		return
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, casderr.Wrap(casderr.MalformedInput, "read body", err))
		return
	}
	resp, err := s.Engine.Contains(r.Context(), ns, raw)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(resp)
}

func (s *Server) handleStore(w http.ResponseWriter, r *http.Request) {
	ns, err := parseNamespace(r)
	if err != nil {
		writeError(w, err)
		return
	}
	hexDigest, err := parseHexDigest(r, ns)
	if err != nil {
		writeError(w, err)
		return
	}
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, casderr.Wrap(casderr.MalformedInput, "read body", err))
		return
	}
	priorityZero := r.URL.Query().Get("priority") == "0"

	if err := s.Engine.StoreInline(r.Context(), ns, hexDigest, payload, priorityZero); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if len(payload) < entry.MinSizeForBulk {
		w.Write([]byte("Content stored inline."))
	} else {
		w.Write([]byte("Content saved."))
	}
}

func (s *Server) handleGenerateURL(w http.ResponseWriter, r *http.Request) {
	ns, err := parseNamespace(r)
	if err != nil {
		writeError(w, err)
		return
	}
	hexDigest, err := parseHexDigest(r, ns)
	if err != nil {
		writeError(w, err)
		return
	}
	callbackURL := fmt.Sprintf("/restricted/content/store_blobstore/%s/%s/", ns.Name, hexDigest)
	url, err := s.Engine.IssueUploadURL(r.Context(), ns, hexDigest, callbackURL)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(url))
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	ns, err := parseNamespace(r)
	if err != nil {
		writeError(w, err)
		return
	}
	hexDigest, err := parseHexDigest(r, ns)
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := s.Engine.Retrieve(r.Context(), ns.Name, hexDigest)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Cache-Control", "public, max-age=43200")
	w.Write(data)
}

func (s *Server) handleStoreBlobstore(w http.ResponseWriter, r *http.Request) {
	ns, err := parseNamespace(r)
	if err != nil {
		writeError(w, err)
		return
	}
	hexDigest, err := parseHexDigest(r, ns)
	if err != nil {
		writeError(w, err)
		return
	}
	id := r.PathValue("id")
	bulkName := ns.Name + "/" + id
	size := r.ContentLength
	if size < 0 {
		size = 0
	}
	if err := s.Engine.UploadCallback(r.Context(), ns, hexDigest, bulkName, size); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("Content saved."))
}

func (s *Server) handleCleanupTrigger(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	switch name {
	case "old", "testing", "obliterate", "orphaned":
	default:
		writeError(w, casderr.New(casderr.NotFound, "unknown cleanup name"))
		return
	}
	queueName := name
	if name == "orphaned" {
		queueName = "orphan"
	}
	if err := s.Engine.Tasks.Cleanup.Enqueue(s.cleanupTask(queueName)); err != nil {
		writeError(w, casderr.Wrap(casderr.EnqueueFailed, "enqueue cleanup", err))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("Triggered."))
}

func (s *Server) handleCleanupWorker(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	switch name {
	case "old":
		if _, err := s.Engine.CleanupOld(r.Context()); err != nil {
			writeError(w, err)
			return
		}
	case "testing":
		if _, err := s.Engine.CleanupTesting(r.Context()); err != nil {
			writeError(w, err)
			return
		}
	case "obliterate":
		if err := s.Engine.Obliterate(r.Context()); err != nil {
			writeError(w, err)
			return
		}
	case "orphan", "orphaned":
		if err := s.Engine.OrphanSweep(r.Context(), ""); err != nil {
			writeError(w, err)
			return
		}
	default:
		writeError(w, casderr.New(casderr.NotFound, "unknown cleanup name"))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("Done."))
}

func (s *Server) cleanupTask(name string) func(ctx context.Context) {
	return func(ctx context.Context) {
		var err error
		switch name {
		case "old":
			_, err = s.Engine.CleanupOld(ctx)
		case "testing":
			_, err = s.Engine.CleanupTesting(ctx)
		case "obliterate":
			err = s.Engine.Obliterate(ctx)
		case "orphan":
			err = s.Engine.OrphanSweep(ctx, "")
		}
		if err != nil {
			s.Logger.Printf("cleanup %s: %v", name, err)
		}
	}
}

func (s *Server) handleVerifyWorker(w http.ResponseWriter, r *http.Request) {
	ns, err := parseNamespace(r)
	if err != nil {
		writeError(w, err)
		return
	}
	hexDigest, err := parseHexDigest(r, ns)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.Engine.Verify(r.Context(), ns.Name, hexDigest); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("Verified."))
}

func (s *Server) handleTagWorker(w http.ResponseWriter, r *http.Request) {
	ns, err := parseNamespace(r)
	if err != nil {
		writeError(w, err)
		return
	}
	day, err := parseDate(r.PathValue("date"))
	if err != nil {
		writeError(w, casderr.Wrap(casderr.MalformedInput, "invalid date", err))
		return
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, casderr.Wrap(casderr.MalformedInput, "read body", err))
		return
	}
	if err := s.Engine.Tag(r.Context(), ns.Name, day, raw, ns.Size()); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("Tagged."))
}

func parseDate(s string) (entry.Day, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return 0, err
	}
	return entry.DayFromTime(t), nil
}
