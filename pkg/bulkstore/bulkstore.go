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

// Package bulkstore defines the byte-stream storage contract for large
// blobs (C3): streaming read, direct-upload URL issuance, and bulk delete.
// Concrete backends (memblob, diskblob, gcsblob) are thin ports over a
// concrete object store, mirroring the teacher repo's blobserver.Storage
// split across localdisk/memory/google/cloudstorage.
package bulkstore

import (
	"context"
	"io"
)

// UploadCallback is invoked by a Store once bytes POSTed to an
// issue-upload-url have landed, with the chosen bulk name and final size.
type UploadCallback func(ctx context.Context, bulkName string, size int64) error

// Store is the C3 contract.
type Store interface {
	// IssueUploadURL returns a time-limited URL the client sends bytes to.
	// callbackURL names the restricted endpoint that records the upload
	// (see pkg/casdhttp). No backend in this module calls it: gcsblob and
	// s3blob issue signed URLs and leave the callback to the uploader,
	// memblob returns a placeholder URL, and diskblob returns an error.
	IssueUploadURL(ctx context.Context, ns, digest, callbackURL string) (string, error)

	// Put is a direct server-side write for payloads that exceed the
	// inline threshold but arrived in a single request body.
	Put(ctx context.Context, ns, digest string, data []byte) (bulkName string, err error)

	// OpenRead returns a streaming reader over bulkName's bytes.
	OpenRead(ctx context.Context, bulkName string) (io.ReadCloser, error)

	// Delete is a best-effort bulk delete; failures are logged by the
	// caller, not retried inline (the orphan sweep catches leaks).
	Delete(ctx context.Context, bulkNames []string) error

	// List enumerates bulk names under prefix, used only by obliteration
	// and the orphan sweep.
	List(ctx context.Context, prefix string) ([]string, error)
}
