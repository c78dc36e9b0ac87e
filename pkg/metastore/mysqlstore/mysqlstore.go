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

// Package mysqlstore is a metastore.KV backend over MySQL, for deployments
// that already run a MySQL server for other services and would rather not
// stand up a second stateful system for casd's metadata. Keys and values are
// both stored as a single ordered rows(k, v) table, the same shape the
// teacher repo's pkg/sorted/mysql uses for sorted.KeyValue.
package mysqlstore

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/cas-project/casd/pkg/metastore"
)

func init() {
	metastore.RegisterBackend("mysql", func(dsn string) (metastore.KV, error) {
		return Open(dsn)
	})
}

// schema creates the table casd's rows live in, mirroring the teacher's
// "rows(k, v)" table with a binary-collated key so lexicographic Go string
// ordering and MySQL's ORDER BY agree.
const schema = `CREATE TABLE IF NOT EXISTS casd_rows (
	k VARBINARY(1024) NOT NULL PRIMARY KEY,
	v MEDIUMBLOB NOT NULL
) ENGINE=InnoDB CHARACTER SET binary`

// KV is a metastore.KV backed by a MySQL rows table. dsn is passed straight
// through to github.com/go-sql-driver/mysql, e.g.
// "user:pass@tcp(host:3306)/dbname".
type KV struct {
	db *sql.DB
}

// Open opens (and if necessary, creates) the casd_rows table on the
// database named by dsn.
func Open(dsn string) (*KV, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysqlstore: unreachable: %v", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysqlstore: creating table: %v", err)
	}
	return &KV{db: db}, nil
}

func (k *KV) Get(key string) (string, error) {
	var v []byte
	err := k.db.QueryRow("SELECT v FROM casd_rows WHERE k = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", metastore.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func (k *KV) Set(key, value string) error {
	_, err := k.db.Exec("REPLACE INTO casd_rows (k, v) VALUES (?, ?)", key, value)
	return err
}

func (k *KV) Delete(key string) error {
	_, err := k.db.Exec("DELETE FROM casd_rows WHERE k = ?", key)
	return err
}

func (k *KV) Find(start, end string) metastore.Iterator {
	var rows *sql.Rows
	var err error
	if end == "" {
		rows, err = k.db.Query("SELECT k, v FROM casd_rows WHERE k >= ? ORDER BY k", start)
	} else {
		rows, err = k.db.Query("SELECT k, v FROM casd_rows WHERE k >= ? AND k < ? ORDER BY k", start, end)
	}
	if err != nil {
		return &iter{err: err}
	}
	return &iter{rows: rows}
}

func (k *KV) Close() error { return k.db.Close() }

type iter struct {
	rows       *sql.Rows
	err        error
	key, value string
}

func (i *iter) Next() bool {
	if i.rows == nil || !i.rows.Next() {
		return false
	}
	var k, v string
	if err := i.rows.Scan(&k, &v); err != nil {
		i.err = err
		return false
	}
	i.key, i.value = k, v
	return true
}

func (i *iter) Key() string   { return i.key }
func (i *iter) Value() string { return i.value }

func (i *iter) Close() error {
	if i.rows == nil {
		return i.err
	}
	if err := i.rows.Close(); err != nil && i.err == nil {
		i.err = err
	}
	return i.err
}
