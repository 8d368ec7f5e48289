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

// CreateDirectory implements POST /v1/directories: the path-keyed,
// quota-bearing primitive CSI drives directly, as distinct from the
// named Volume resource the REST-facing workflow uses.
func (s *Server) CreateDirectory(ctx context.Context, req CreateDirectoryRequest) (Directory, bool, error) {
	if req.SVMName == "" || req.Path == "" {
		return Directory{}, false, arcaerrors.New(arcaerrors.KindValidation, "svm_name and path are required")
	}
	svm, err := s.GetSVM(req.SVMName)
	if err != nil {
		return Directory{}, false, err
	}

	key := req.SVMName + "/" + req.Path
	unlock := s.locks.Lock("svm:" + req.SVMName + ":volume:" + req.Path)
	defer unlock()

	s.mu.RLock()
	existing, ok := s.directories[key]
	s.mu.RUnlock()
	if ok {
		if existing.QuotaBytes == req.QuotaBytes {
			return *existing, false, nil
		}
		return Directory{}, false, arcaerrors.New(arcaerrors.KindAlreadyExists,
			fmt.Sprintf("directory %s already exists on svm %s with a different quota", req.Path, req.SVMName))
	}

	if err := s.stack.CreateVolumeDirectory(ctx, req.SVMName, svm.MountPath, req.Path, req.QuotaBytes); err != nil {
		return Directory{}, false, err
	}

	dir := Directory{
		SVMName:    req.SVMName,
		Path:       req.Path,
		QuotaBytes: req.QuotaBytes,
		CreatedAt:  time.Now(),
	}

	s.mu.Lock()
	s.directories[key] = &dir
	perr := s.persistDirectoriesLocked()
	s.mu.Unlock()
	if perr != nil {
		return Directory{}, false, perr
	}
	return dir, true, nil
}

// DeleteDirectory implements DELETE /v1/directories/{svm}?path=...;
// absence is success.
func (s *Server) DeleteDirectory(ctx context.Context, svmName, path string) error {
	key := svmName + "/" + path
	unlock := s.locks.Lock("svm:" + svmName + ":volume:" + path)
	defer unlock()

	s.mu.RLock()
	_, ok := s.directories[key]
	svm, svmOK := s.svms[svmName]
	s.mu.RUnlock()
	if !ok || !svmOK {
		return nil
	}

	if err := s.stack.RemoveVolumeDirectory(ctx, svmName, svm.MountPath, path); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.directories, key)
	perr := s.persistDirectoriesLocked()
	s.mu.Unlock()
	return perr
}

func (s *HTTPServer) handleDirectoriesCollection(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodPost {
		return nil, arcaerrors.New(arcaerrors.KindValidation, "method not allowed")
	}
	var body CreateDirectoryRequest
	if err := decodeBody(req, &body); err != nil {
		return nil, err
	}
	dir, wasCreated, err := s.arca.CreateDirectory(req.Context(), body)
	if err != nil {
		return nil, err
	}
	if wasCreated {
		return created{dir}, nil
	}
	return dir, nil
}

func (s *HTTPServer) handleDirectoriesItem(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	svmName := pathTail(req, "/v1/directories/")
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
	return nil, s.arca.DeleteDirectory(req.Context(), svmName, path)
}
