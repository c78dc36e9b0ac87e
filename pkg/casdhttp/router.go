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

// Package casdhttp is the HTTP transport (C9): a net/http.ServeMux-based
// router exposing exactly the routes of spec.md §6, grounded on the
// teacher's pkg/webserver (a thin wrapper over http.Server/http.ServeMux,
// never a third-party mux library).
package casdhttp

import (
	"log"
	"net/http"

	"github.com/cas-project/casd/pkg/casengine"
)

// Server is the HTTP transport. It holds no state beyond what it needs to
// route to the engine; if NewServer gets a nil logger it uses a new
// "casdhttp: "-prefixed logger writing to log.Writer().
type Server struct {
	Engine          *casengine.Engine
	Authorizer      Authorizer
	TaskQueueSecret string
	Logger          *log.Logger

	mux *http.ServeMux
}

// NewServer builds a Server and registers every route of spec.md §6.
func NewServer(engine *casengine.Engine, authorizer Authorizer, taskQueueSecret string, logger *log.Logger) *Server {
	if authorizer == nil {
		authorizer = AllowAll{}
	}
	if logger == nil {
		logger = log.New(log.Writer(), "casdhttp: ", log.LstdFlags)
	}
	s := &Server{
		Engine:          engine,
		Authorizer:      authorizer,
		TaskQueueSecret: taskQueueSecret,
		Logger:          logger,
		mux:             http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /content/contains/{ns}", s.public(s.handleContains))
	s.mux.HandleFunc("POST /content/store/{ns}/{hex}", s.public(s.handleStore))
	s.mux.HandleFunc("POST /content/generate_blobstore_url/{ns}/{hex}", s.public(s.handleGenerateURL))
	s.mux.HandleFunc("GET /content/retrieve/{ns}/{hex}", s.public(s.handleRetrieve))

	s.mux.HandleFunc("POST /restricted/content/store_blobstore/{ns}/{hex}/{id}", s.restricted(s.handleStoreBlobstore))
	s.mux.HandleFunc("GET /restricted/cleanup/trigger/{name}", s.restricted(s.handleCleanupTrigger))
	s.mux.HandleFunc("POST /restricted/taskqueue/cleanup/{name}", s.restricted(s.handleCleanupWorker))
	s.mux.HandleFunc("POST /restricted/taskqueue/verify/{ns}/{hex}", s.restricted(s.handleVerifyWorker))
	s.mux.HandleFunc("POST /restricted/taskqueue/tag/{ns}/{date}", s.restricted(s.handleTagWorker))
}
