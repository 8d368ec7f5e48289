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

package arca

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/arca-storage/arca/pkg/arcaerrors"
)

// CreateSnapshot implements POST /v1/snapshots: an O(1) reflink copy of
// one path within an SVM onto another path.
func (s *Server) CreateSnapshot(ctx context.Context, req CreateSnapshotRequest) (Snapshot, bool, error) {
	if req.SVMName == "" || req.SourcePath == "" || req.SnapshotPath == "" {
		return Snapshot{}, false, arcaerrors.New(arcaerrors.KindValidation, "svm_name, source_path and snapshot_path are required")
	}
	svm, err := s.GetSVM(req.SVMName)
	if err != nil {
		return Snapshot{}, false, err
	}

	key := req.SVMName + "/" + req.SnapshotPath
	unlock := s.locks.Lock("svm:" + req.SVMName + ":volume:" + req.SnapshotPath)
	defer unlock()

	s.mu.RLock()
	existing, ok := s.snapshots[key]
	s.mu.RUnlock()
	if ok {
		if existing.SourcePath == req.SourcePath {
			return *existing, false, nil
		}
		return Snapshot{}, false, arcaerrors.New(arcaerrors.KindAlreadyExists,
			fmt.Sprintf("snapshot %s already exists on svm %s from a different source", req.SnapshotPath, req.SVMName))
	}

	if err := s.stack.Snapshot(ctx, svm.MountPath, req.SourcePath, req.SnapshotPath); err != nil {
		return Snapshot{}, false, err
	}

	snap := Snapshot{
		SVMName:      req.SVMName,
		SourcePath:   req.SourcePath,
		SnapshotPath: req.SnapshotPath,
		CreatedAt:    time.Now(),
	}

	s.mu.Lock()
	s.snapshots[key] = &snap
	perr := s.persistSnapshotsLocked()
	s.mu.Unlock()
	if perr != nil {
		return Snapshot{}, false, perr
	}
	return snap, true, nil
}

// RestoreSnapshot implements POST /v1/snapshots/restore: materializes a
// new directory at target_path from an existing snapshot.
func (s *Server) RestoreSnapshot(ctx context.Context, req RestoreSnapshotRequest) error {
	if req.SVMName == "" || req.SnapshotPath == "" || req.TargetPath == "" {
		return arcaerrors.New(arcaerrors.KindValidation, "svm_name, snapshot_path and target_path are required")
	}
	svm, err := s.GetSVM(req.SVMName)
	if err != nil {
		return err
	}

	s.mu.RLock()
	_, ok := s.snapshots[req.SVMName+"/"+req.SnapshotPath]
	s.mu.RUnlock()
	if !ok {
		return arcaerrors.New(arcaerrors.KindNotFound, "snapshot "+req.SnapshotPath+" not found on svm "+req.SVMName)
	}

	unlock := s.locks.Lock("svm:" + req.SVMName + ":volume:" + req.TargetPath)
	defer unlock()
	return s.stack.RestoreFromSnapshot(ctx, svm.MountPath, req.SnapshotPath, req.TargetPath)
}

// DeleteSnapshot implements DELETE /v1/snapshots/{svm}?path=...; absence
// is success.
func (s *Server) DeleteSnapshot(ctx context.Context, svmName, path string) error {
	key := svmName + "/" + path
	unlock := s.locks.Lock("svm:" + svmName + ":volume:" + path)
	defer unlock()

	s.mu.RLock()
	_, ok := s.snapshots[key]
	svm, svmOK := s.svms[svmName]
	s.mu.RUnlock()
	if !ok || !svmOK {
		return nil
	}

	if err := s.stack.RemoveVolumeDirectory(ctx, svmName, svm.MountPath, path); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.snapshots, key)
	perr := s.persistSnapshotsLocked()
	s.mu.Unlock()
	return perr
}

func (s *HTTPServer) handleSnapshotsCollection(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodPost {
		return nil, arcaerrors.New(arcaerrors.KindValidation, "method not allowed")
	}
	var body CreateSnapshotRequest
	if err := decodeBody(req, &body); err != nil {
		return nil, err
	}
	snap, wasCreated, err := s.arca.CreateSnapshot(req.Context(), body)
	if err != nil {
		return nil, err
	}
	if wasCreated {
		return created{snap}, nil
	}
	return snap, nil
}

func (s *HTTPServer) handleSnapshotsRestore(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodPost {
		return nil, arcaerrors.New(arcaerrors.KindValidation, "method not allowed")
	}
	var body RestoreSnapshotRequest
	if err := decodeBody(req, &body); err != nil {
		return nil, err
	}
	return nil, s.arca.RestoreSnapshot(req.Context(), body)
}

func (s *HTTPServer) handleSnapshotsItem(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	svmName := pathTail(req, "/v1/snapshots/")
	if svmName == "" {
		return nil, arcaerrors.New(arcaerrors.KindValidation, "missing svm name")
	}
	if req.Method != http.MethodDelete {
		return nil, arcaerrors.New(arcaerrors.KindValidation, "method not allowed")
	}
	path, err := requireQueryParam(req, "path")
	if err != nil {
		return nil, err
	}
	return nil, s.arca.DeleteSnapshot(req.Context(), svmName, path)
}
