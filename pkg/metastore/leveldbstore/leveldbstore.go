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

// Package leveldbstore is the durable metastore.KV backend, storing the
// entry rows and both last-access indexes in a single ordered LevelDB
// keyspace on local disk. This is the single-node production backend: it
// survives process restarts, which memstore does not.
package leveldbstore

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/cas-project/casd/pkg/metastore"
)

func init() {
	metastore.RegisterBackend("leveldb", func(dsn string) (metastore.KV, error) {
		return Open(dsn)
	})
}

// KV is a metastore.KV backed by a LevelDB database directory.
type KV struct {
	db *leveldb.DB
}

// Open opens (creating if absent) the LevelDB database at dir.
func Open(dir string) (*KV, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, err
	}
	return &KV{db: db}, nil
}

func (k *KV) Get(key string) (string, error) {
	v, err := k.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return "", metastore.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func (k *KV) Set(key, value string) error {
	return k.db.Put([]byte(key), []byte(value), nil)
}

func (k *KV) Delete(key string) error {
	err := k.db.Delete([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return nil
	}
	return err
}

func (k *KV) Find(start, end string) metastore.Iterator {
	var r *util.Range
	if end != "" {
		r = &util.Range{Start: []byte(start), Limit: []byte(end)}
	} else {
		r = &util.Range{Start: []byte(start)}
	}
	return &iter{it: k.db.NewIterator(r, nil)}
}

func (k *KV) Close() error { return k.db.Close() }

type iter struct {
	it interface {
		Next() bool
		Key() []byte
		Value() []byte
		Release()
		Error() error
	}
}

func (i *iter) Next() bool       { return i.it.Next() }
func (i *iter) Key() string      { return string(i.it.Key()) }
func (i *iter) Value() string    { return string(i.it.Value()) }
func (i *iter) Close() error {
	i.it.Release()
	return i.it.Error()
}
