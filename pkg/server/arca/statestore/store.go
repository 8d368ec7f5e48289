/*
Copyright 2020 The OpenEBS Authors

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

// Package statestore is the reference (in-process) backing store for the
// REST server's SVM/Volume/Directory/Export/Snapshot records, one JSON
// file per collection under the state directory, written with the same
// tmp-file/fsync/rename/fsync-dir discipline as everything else this
// system persists. It is deliberately untyped: callers own their record
// shapes and pass them through as opaque JSON documents keyed by name.
package statestore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/arca-storage/arca/pkg/arcaerrors"
	"github.com/arca-storage/arca/pkg/atomicfile"
)

// Store is a collection of independently-persisted JSON documents, one
// file per collection name, serialized by a single mutex since the REST
// server's own KeyLock already bounds write concurrency per resource.
type Store struct {
	mu  sync.Mutex
	dir string
}

// New constructs a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, arcaerrors.Wrap(arcaerrors.KindInternal, err, "create state directory")
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(collection string) string {
	return filepath.Join(s.dir, collection+".json")
}

// Load unmarshals collection's current contents into out (a pointer to a
// map or slice). A missing file leaves out untouched, matching the
// original state store's "empty list if the file was never written" rule.
func (s *Store) Load(collection string, out interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path(collection))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return arcaerrors.Wrapf(arcaerrors.KindCorruption, err, "read state collection %s", collection)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return arcaerrors.Wrapf(arcaerrors.KindCorruption, err, "parse state collection %s", collection)
	}
	return nil
}

// Save atomically replaces collection's contents with data.
func (s *Store) Save(collection string, data interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return arcaerrors.Wrap(arcaerrors.KindInternal, err, "marshal state collection")
	}
	if err := atomicfile.Write(s.path(collection), raw, 0640); err != nil {
		return arcaerrors.Wrapf(arcaerrors.KindInternal, err, "persist state collection %s", collection)
	}
	return nil
}
