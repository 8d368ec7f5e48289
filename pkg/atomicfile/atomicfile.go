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

// Package atomicfile implements the tmp-file/fsync/rename/fsync-directory
// write pattern every persistent on-disk record in this repo (exporter
// config, config snapshots, node state, local SVM/volume/export state) uses
// so that a crash mid-write never leaves a half-written file behind.
package atomicfile

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Write durably replaces path's contents with data. It writes to a sibling
// temporary file, fsyncs it, renames it over path, then fsyncs the
// containing directory so the rename itself survives a crash.
func Write(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "failed to create temp file for %s", path)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to write temp file for %s", path)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to fsync temp file for %s", path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to close temp file for %s", path)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return errors.Wrapf(err, "failed to chmod temp file for %s", path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrapf(err, "failed to rename temp file into %s", path)
	}

	dirHandle, err := os.Open(dir)
	if err != nil {
		return errors.Wrapf(err, "failed to open directory %s for fsync", dir)
	}
	defer dirHandle.Close()
	if err := dirHandle.Sync(); err != nil {
		return errors.Wrapf(err, "failed to fsync directory %s", dir)
	}
	return nil
}

// WriteIfChanged writes data to path only if its current contents differ,
// so unchanged renders never touch mtimes or trigger needless fsyncs.
func WriteIfChanged(path string, data []byte, perm os.FileMode) (bool, error) {
	existing, err := os.ReadFile(path)
	if err == nil && string(existing) == string(data) {
		return false, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return false, errors.Wrapf(err, "failed to read %s", path)
	}
	if err := Write(path, data, perm); err != nil {
		return false, err
	}
	return true, nil
}
