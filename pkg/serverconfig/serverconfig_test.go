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

package serverconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RetentionDays != 30 || cfg.MetaBackend != "memory" {
		t.Errorf("defaults = %+v, want retention_days=30 meta_backend=memory", cfg)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "casd.json")
	if err := os.WriteFile(path, []byte(`{"retention_days": 7, "bucket_name": "my-bucket"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RetentionDays != 7 || cfg.BucketName != "my-bucket" {
		t.Errorf("cfg = %+v, want retention_days=7 bucket_name=my-bucket", cfg)
	}
	if cfg.MetaBackend != "memory" {
		t.Errorf("unset fields should keep defaults, got meta_backend=%s", cfg.MetaBackend)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "casd.json")
	if err := os.WriteFile(path, []byte(`{"retention_days": 7}`), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CASD_RETENTION_DAYS", "14")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RetentionDays != 14 {
		t.Errorf("RetentionDays = %d, want env override 14", cfg.RetentionDays)
	}
}

func TestEnvBadIntRejected(t *testing.T) {
	t.Setenv("CASD_RETENTION_DAYS", "not-a-number")
	if _, err := Load(""); err == nil {
		t.Fatal("expected an error for a non-integer CASD_RETENTION_DAYS")
	}
}
