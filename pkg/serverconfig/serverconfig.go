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

// Package serverconfig resolves the knobs a runnable casd binary needs
// (spec.md §6's retention_days/bucket_name plus the wiring knobs a real
// deployment requires) from a JSON config file with CASD_<FIELD>
// environment-variable overrides, the layered approach the teacher repo's
// pkg/serverconfig + pkg/jsonconfig take for cmd/perkeepd.
package serverconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Config is the fully resolved set of knobs cmd/casd needs to start.
type Config struct {
	// RetentionDays is the cleanup-old cutoff (spec.md §6).
	RetentionDays int `json:"retention_days"`
	// BucketName names the GCS bucket gcsblob writes to (spec.md §6).
	BucketName string `json:"bucket_name"`

	// ListenAddr is the HTTP listen address, e.g. ":8080".
	ListenAddr string `json:"listen_addr"`

	// MetaBackend selects a registered metastore.KV backend ("memory",
	// "leveldb", or "mysql").
	MetaBackend string `json:"meta_backend"`
	// MetaDSN is the backend-specific data source, e.g. a leveldb path or
	// a MySQL DSN.
	MetaDSN string `json:"meta_dsn"`

	// BulkBackend selects the bulk object store ("memory", "disk", "gcs",
	// or "s3").
	BulkBackend string `json:"bulk_backend"`
	// BulkDSN is the backend-specific root, e.g. a disk path.
	BulkDSN string `json:"bulk_dsn"`

	// TaskQueueSecret is compared against the X-Task-Queue-Secret header
	// on restricted endpoints (spec.md §4.9).
	TaskQueueSecret string `json:"task_queue_secret"`

	// ReadCacheBytes bounds the process-wide read cache (C4).
	ReadCacheBytes int64 `json:"read_cache_bytes"`
}

// defaults matches a single-process, in-memory development deployment.
func defaults() Config {
	return Config{
		RetentionDays:  30,
		ListenAddr:     ":8080",
		MetaBackend:    "memory",
		BulkBackend:    "memory",
		ReadCacheBytes: 64 << 20,
	}
}

// Load reads path (a JSON file) over the defaults, then applies any
// CASD_<FIELD> environment variable present, matching the teacher's
// flags-over-jsonconfig layering. path may be empty, in which case only
// defaults and environment variables apply.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("serverconfig: read %s: %w", path, err)
		}
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("serverconfig: parse %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("CASD_RETENTION_DAYS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("serverconfig: CASD_RETENTION_DAYS: %w", err)
		}
		cfg.RetentionDays = n
	}
	if v, ok := os.LookupEnv("CASD_BUCKET_NAME"); ok {
		cfg.BucketName = v
	}
	if v, ok := os.LookupEnv("CASD_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("CASD_META_BACKEND"); ok {
		cfg.MetaBackend = v
	}
	if v, ok := os.LookupEnv("CASD_META_DSN"); ok {
		cfg.MetaDSN = v
	}
	if v, ok := os.LookupEnv("CASD_BULK_BACKEND"); ok {
		cfg.BulkBackend = v
	}
	if v, ok := os.LookupEnv("CASD_BULK_DSN"); ok {
		cfg.BulkDSN = v
	}
	if v, ok := os.LookupEnv("CASD_TASK_QUEUE_SECRET"); ok {
		cfg.TaskQueueSecret = v
	}
	if v, ok := os.LookupEnv("CASD_READ_CACHE_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("serverconfig: CASD_READ_CACHE_BYTES: %w", err)
		}
		cfg.ReadCacheBytes = n
	}
	return nil
}
