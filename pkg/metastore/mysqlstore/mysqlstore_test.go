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

package mysqlstore

import (
	"os"
	"testing"

	"github.com/cas-project/casd/pkg/castest"
	"github.com/cas-project/casd/pkg/metastore"
)

// TestConformance runs against a real MySQL server named by
// CASD_MYSQL_TEST_DSN (e.g. "root@tcp(localhost:3306)/casd_test"). There is
// no in-process MySQL, so this is skipped rather than faked when the
// variable is unset.
func TestConformance(t *testing.T) {
	dsn := os.Getenv("CASD_MYSQL_TEST_DSN")
	if dsn == "" {
		t.Skip("CASD_MYSQL_TEST_DSN not set; skipping, no MySQL server available")
	}
	castest.KVConformance(t, func() metastore.KV {
		kv, err := Open(dsn)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if _, err := kv.db.Exec("DELETE FROM casd_rows"); err != nil {
			t.Fatalf("truncating casd_rows between subtests: %v", err)
		}
		t.Cleanup(func() { kv.Close() })
		return kv
	})
}
