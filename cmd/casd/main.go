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

// The casd binary is the content-addressed storage daemon: it wires a
// metastore backend, a bulk object store, the read cache, and the
// verify/tag/cleanup task queues behind the HTTP surface of spec.md §6.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cas-project/casd/pkg/bulkstore"
	"github.com/cas-project/casd/pkg/bulkstore/diskblob"
	"github.com/cas-project/casd/pkg/bulkstore/gcsblob"
	"github.com/cas-project/casd/pkg/bulkstore/memblob"
	"github.com/cas-project/casd/pkg/bulkstore/s3blob"
	"github.com/cas-project/casd/pkg/casdhttp"
	"github.com/cas-project/casd/pkg/casengine"
	"github.com/cas-project/casd/pkg/metastore"
	_ "github.com/cas-project/casd/pkg/metastore/leveldbstore"
	_ "github.com/cas-project/casd/pkg/metastore/memstore"
	_ "github.com/cas-project/casd/pkg/metastore/mysqlstore"
	"github.com/cas-project/casd/pkg/readcache"
	"github.com/cas-project/casd/pkg/serverconfig"
	"github.com/cas-project/casd/pkg/stats"
	"github.com/cas-project/casd/pkg/taskqueue"
)

var (
	flagConfigFile     = flag.String("configfile", "", "Path to a casd JSON config file. If blank, defaults plus CASD_* environment variables are used.")
	flagVerifyWorkers  = flag.Int("verify_workers", 4, "concurrent verification workers")
	flagTagWorkers     = flag.Int("tag_workers", 4, "concurrent last-access tagging workers")
	flagCleanupWorkers = flag.Int("cleanup_workers", 2, "concurrent cleanup-pass workers")
	flagQueueDepth     = flag.Int("queue_depth", 1024, "buffered task slots per queue before Enqueue starts rejecting")
)

func exitf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func openBulkStore(ctx context.Context, cfg serverconfig.Config) (bulkstore.Store, error) {
	switch cfg.BulkBackend {
	case "", "memory":
		return memblob.New(), nil
	case "disk":
		if cfg.BulkDSN == "" {
			return nil, errors.New("bulk_backend \"disk\" requires bulk_dsn to name a directory")
		}
		return diskblob.New(cfg.BulkDSN)
	case "gcs":
		if cfg.BucketName == "" {
			return nil, errors.New("bulk_backend \"gcs\" requires bucket_name")
		}
		return gcsblob.New(ctx, cfg.BucketName)
	case "s3":
		if cfg.BucketName == "" {
			return nil, errors.New("bulk_backend \"s3\" requires bucket_name")
		}
		return s3blob.New(cfg.BucketName)
	default:
		return nil, fmt.Errorf("unknown bulk_backend %q", cfg.BulkBackend)
	}
}

func main() {
	flag.Parse()

	cfg, err := serverconfig.Load(*flagConfigFile)
	if err != nil {
		exitf("casd: loading config: %v", err)
	}

	kv, err := metastore.Open(cfg.MetaBackend, cfg.MetaDSN)
	if err != nil {
		exitf("casd: opening metastore backend %q: %v", cfg.MetaBackend, err)
	}
	meta := metastore.New(kv)

	ctx := context.Background()
	bulk, err := openBulkStore(ctx, cfg)
	if err != nil {
		exitf("casd: opening bulk store: %v", err)
	}

	cache := readcache.New(cfg.ReadCacheBytes)

	logger := log.New(os.Stderr, "casd: ", log.LstdFlags)
	sched := &casengine.Scheduler{
		Verify:  taskqueue.NewQueue("verify", *flagVerifyWorkers, *flagQueueDepth, logger),
		Tag:     taskqueue.NewQueue("tag", *flagTagWorkers, *flagQueueDepth, logger),
		Cleanup: taskqueue.NewQueue("cleanup", *flagCleanupWorkers, *flagQueueDepth, logger),
	}

	engine := casengine.New(meta, bulk, cache, sched, cfg.RetentionDays,
		casengine.WithLogger(logger),
		casengine.WithStats(stats.New(logger)),
	)

	srv := casdhttp.NewServer(engine, nil, cfg.TaskQueueSecret, logger)
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv,
	}

	shutdownc := make(chan os.Signal, 1)
	signal.Notify(shutdownc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdownc
		logger.Print("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Printf("shutdown: %v", err)
		}
		sched.Verify.Close()
		sched.Tag.Close()
		sched.Cleanup.Close()
	}()

	logger.Printf("listening on %s (meta=%s bulk=%s retention_days=%d)", cfg.ListenAddr, cfg.MetaBackend, cfg.BulkBackend, cfg.RetentionDays)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		exitf("casd: %v", err)
	}
}
