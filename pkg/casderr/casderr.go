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

// Package casderr classifies the error kinds an ingest, retrieve, or
// maintenance operation can fail with, so the HTTP layer can map a single
// enum to the status codes in the CASD external interface rather than each
// handler guessing at a status code.
package casderr

import "fmt"

// Kind classifies an error for the purpose of status-code mapping. It never
// implies a retry policy on its own; see the handler mapping for that.
type Kind int

const (
	// Unknown is the zero Kind; errors without an explicit Kind map to a
	// generic 500.
	Unknown Kind = iota
	MalformedInput
	Duplicate
	CorruptPayload
	DigestMismatch
	BulkPutFailed
	EnqueueFailed
	DeadlineExceeded
	NotFound
	AuthFailed
)

func (k Kind) String() string {
	switch k {
	case MalformedInput:
		return "malformed_input"
	case Duplicate:
		return "duplicate"
	case CorruptPayload:
		return "corrupt_payload"
	case DigestMismatch:
		return "digest_mismatch"
	case BulkPutFailed:
		return "bulk_put_failed"
	case EnqueueFailed:
		return "enqueue_failed"
	case DeadlineExceeded:
		return "deadline_exceeded"
	case NotFound:
		return "not_found"
	case AuthFailed:
		return "auth_failed"
	default:
		return "unknown"
	}
}

// Error is a Kind-tagged error value.
type Error struct {
	Kind Kind
	Msg  string
	Err  error // optional wrapped cause
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an *Error of the given kind.
func New(k Kind, msg string) error {
	return &Error{Kind: k, Msg: msg}
}

// Wrap returns an *Error of the given kind wrapping err.
func Wrap(k Kind, msg string, err error) error {
	return &Error{Kind: k, Msg: msg, Err: err}
}

// KindOf extracts the Kind from err, or Unknown if err doesn't carry one.
func KindOf(err error) Kind {
	var e *Error
	for err != nil {
		if ce, ok := err.(*Error); ok {
			e = ce
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return Unknown
	}
	return e.Kind
}
