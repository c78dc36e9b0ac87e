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
	"net/http"

	"github.com/cas-project/casd/pkg/casderr"
)

// statusFor maps a casderr.Kind to the status code of spec.md §6/§7, so no
// handler hand-rolls one.
func statusFor(k casderr.Kind) int {
	switch k {
	case casderr.MalformedInput, casderr.CorruptPayload, casderr.DigestMismatch:
		return http.StatusBadRequest
	case casderr.NotFound:
		return http.StatusNotFound
	case casderr.AuthFailed:
		return http.StatusForbidden
	case casderr.BulkPutFailed:
		return http.StatusServiceUnavailable
	case casderr.EnqueueFailed:
		return http.StatusInternalServerError
	case casderr.Duplicate, casderr.DeadlineExceeded:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err's casderr.Kind to a status code and writes it with
// err's message as the plain-text body. A Duplicate is deliberately not an
// error status: spec.md §7 treats it as "200 already existed," matching the
// original service's "Entry already existed" response.
func writeError(w http.ResponseWriter, err error) {
	kind := casderr.KindOf(err)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if kind == casderr.Duplicate {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Entry already existed"))
		return
	}
	w.WriteHeader(statusFor(kind))
	w.Write([]byte(err.Error()))
}
