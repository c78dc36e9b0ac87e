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

// Package s3blob is an alternate production bulkstore.Store backend,
// storing objects in an Amazon S3 bucket for deployments that run on AWS
// rather than GCP. It is modeled on the teacher repo's
// pkg/blobserver/s3: one bucket, an optional "directory" key prefix, and
// bulk delete batched to S3's DeleteObjects limit.
package s3blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/google/uuid"
)

// UploadURLTTL is how long an issued upload URL remains valid.
const UploadURLTTL = 10 * time.Minute

// maxDeleteBatch is S3's DeleteObjects limit per call.
const maxDeleteBatch = 1000

// Store is a bulkstore.Store backed by one S3 bucket.
type Store struct {
	bucket    string
	dirPrefix string // optional "directory" within the bucket, trailing slash

	client   *s3.S3
	uploader *s3manager.Uploader
}

// Option configures a Store.
type Option func(*Store)

// WithDirPrefix stores objects under bucket/prefix/... instead of at the
// bucket root.
func WithDirPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" && !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		s.dirPrefix = prefix
	}
}

// New constructs a Store for bucket, using the default AWS credential chain
// (environment, shared config, or an attached instance/task role).
func New(bucket string, opts ...Option) (*Store, error) {
	sess, err := session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, fmt.Errorf("s3blob: new session: %w", err)
	}
	s := &Store{
		bucket:   bucket,
		client:   s3.New(sess),
		uploader: s3manager.NewUploader(sess),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Store) key(bulkName string) string {
	return s.dirPrefix + bulkName
}

// IssueUploadURL returns a presigned PUT URL for (ns, digest). The bulk name
// chosen is "<ns>/<uuid>"; S3 has no native upload-complete webhook, so
// invoking callbackURL once the PUT lands is the caller's responsibility
// (see pkg/casdhttp), the same division of labor as gcsblob.
func (s *Store) IssueUploadURL(ctx context.Context, ns, digest, callbackURL string) (string, error) {
	bulkName := ns + "/" + uuid.NewString()
	req, _ := s.client.PutObjectRequest(&s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(bulkName)),
	})
	url, err := req.Presign(UploadURLTTL)
	if err != nil {
		return "", fmt.Errorf("s3blob: presign upload url: %w", err)
	}
	return url, nil
}

func (s *Store) Put(ctx context.Context, ns, digest string, data []byte) (string, error) {
	bulkName := ns + "/" + uuid.NewString()
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(bulkName)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", err
	}
	return bulkName, nil
}

var errNotExist = errors.New("object does not exist")

func (s *Store) OpenRead(ctx context.Context, bulkName string) (io.ReadCloser, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(bulkName)),
	})
	if aerr, ok := err.(awserr.Error); ok && (aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound") {
		return nil, fmt.Errorf("s3blob: %s: %w", bulkName, errNotExist)
	}
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

func (s *Store) Delete(ctx context.Context, bulkNames []string) error {
	for len(bulkNames) > 0 {
		n := len(bulkNames)
		if n > maxDeleteBatch {
			n = maxDeleteBatch
		}
		batch := bulkNames[:n]
		bulkNames = bulkNames[n:]

		ids := make([]*s3.ObjectIdentifier, len(batch))
		for i, name := range batch {
			ids[i] = &s3.ObjectIdentifier{Key: aws.String(s.key(name))}
		}
		out, err := s.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &s3.Delete{Objects: ids},
		})
		if err != nil {
			return fmt.Errorf("s3blob: delete objects: %w", err)
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return fmt.Errorf("s3blob: delete %s: %s", aws.StringValue(e.Key), aws.StringValue(e.Message))
		}
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.dirPrefix + prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.StringValue(obj.Key), s.dirPrefix)
			out = append(out, name)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
