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
	"path/filepath"
	"time"

	"github.com/arca-storage/arca/pkg/arcaerrors"
)

// CreateVolume implements POST /v1/volumes: a named, sized subdirectory of
// an SVM's shared filesystem, capped with its own XFS project quota.
func (s *Server) CreateVolume(ctx context.Context, req CreateVolumeRequest) (Volume, bool, error) {
	if req.SVM == "" || req.Name == "" {
		return Volume{}, false, arcaerrors.New(arcaerrors.KindValidation, "svm and name are required")
	}
	if req.SizeBytes <= 0 {
		return Volume{}, false, arcaerrors.New(arcaerrors.KindValidation, "size_bytes must be positive")
	}

	svm, err := s.GetSVM(req.SVM)
	if err != nil {
		return Volume{}, false, err
	}

	unlock := s.locks.Lock(fmt.Sprintf("svm:%s:volume:%s", req.SVM, req.Name))
	defer unlock()

	key := req.SVM + "/" + req.Name
	s.mu.RLock()
	existing, ok := s.volumes[key]
	s.mu.RUnlock()
	if ok {
		if existing.SizeBytes == req.SizeBytes {
			return *existing, false, nil
		}
		return Volume{}, false, arcaerrors.New(arcaerrors.KindAlreadyExists,
			fmt.Sprintf("volume %s already exists on svm %s with a different size", req.Name, req.SVM))
	}

	if err := s.stack.CreateVolumeDirectory(ctx, req.SVM, svm.MountPath, req.Name, req.SizeBytes); err != nil {
		return Volume{}, false, err
	}

	vol := Volume{
		SVMName:   req.SVM,
		Name:      req.Name,
		Path:      filepath.Join(svm.MountPath, req.Name),
		SizeBytes: req.SizeBytes,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.volumes[key] = &vol
	perr := s.persistVolumesLocked()
	s.mu.Unlock()
	if perr != nil {
		return Volume{}, false, perr
	}
	return vol, true, nil
}

// GrowVolume implements PATCH /v1/volumes/{name}: raises a volume's quota
// cap. Shrink requests are rejected before touching the stack (§9).
func (s *Server) GrowVolume(ctx context.Context, name string, req GrowVolumeRequest) (Volume, error) {
	if req.SVM == "" {
		return Volume{}, arcaerrors.New(arcaerrors.KindValidation, "svm is required")
	}
	svm, err := s.GetSVM(req.SVM)
	if err != nil {
		return Volume{}, err
	}

	unlock := s.locks.Lock(fmt.Sprintf("svm:%s:volume:%s", req.SVM, name))
	defer unlock()

	key := req.SVM + "/" + name
	s.mu.RLock()
	existing, ok := s.volumes[key]
	s.mu.RUnlock()
	if !ok {
		return Volume{}, arcaerrors.New(arcaerrors.KindNotFound, "volume "+name+" not found on svm "+req.SVM)
	}
	if req.SizeBytes < existing.SizeBytes {
		return Volume{}, arcaerrors.New(arcaerrors.KindValidation, "shrinking a volume is not supported")
	}
	if req.SizeBytes == existing.SizeBytes {
		return *existing, nil
	}

	if err := s.stack.ResizeVolumeDirectory(ctx, req.SVM, svm.MountPath, name, req.SizeBytes); err != nil {
		return Volume{}, err
	}

	s.mu.Lock()
	existing.SizeBytes = req.SizeBytes
	perr := s.persistVolumesLocked()
	updated := *existing
	s.mu.Unlock()
	if perr != nil {
		return Volume{}, perr
	}
	return updated, nil
}

// DeleteVolume implements DELETE /v1/volumes/{name}?svm=...; absence is
// success.
func (s *Server) DeleteVolume(ctx context.Context, svmName, name string) error {
	unlock := s.locks.Lock(fmt.Sprintf("svm:%s:volume:%s", svmName, name))
	defer unlock()

	key := svmName + "/" + name
	s.mu.RLock()
	_, ok := s.volumes[key]
	svm, svmOK := s.svms[svmName]
	s.mu.RUnlock()
	if !ok || !svmOK {
		return nil
	}

	if err := s.stack.RemoveVolumeDirectory(ctx, svmName, svm.MountPath, name); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.volumes, key)
	perr := s.persistVolumesLocked()
	s.mu.Unlock()
	return perr
}

func (s *HTTPServer) handleVolumesCollection(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodPost {
		return nil, arcaerrors.New(arcaerrors.KindValidation, "method not allowed")
	}
	var body CreateVolumeRequest
	if err := decodeBody(req, &body); err != nil {
		return nil, err
	}
	vol, wasCreated, err := s.arca.CreateVolume(req.Context(), body)
	if err != nil {
		return nil, err
	}
	if wasCreated {
		return created{vol}, nil
	}
	return vol, nil
}

func (s *HTTPServer) handleVolumesItem(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	name := pathTail(req, "/v1/volumes/")
	if name == "" {
		return nil, arcaerrors.New(arcaerrors.KindValidation, "missing volume name")
	}

	switch req.Method {
	case http.MethodPatch:
		var body GrowVolumeRequest
		if err := decodeBody(req, &body); err != nil {
			return nil, err
		}
		return s.arca.GrowVolume(req.Context(), name, body)
	case http.MethodDelete:
		svmName, err := requireQueryParam(req, "svm")
		if err != nil {
			return nil, err
		}
		return nil, s.arca.DeleteVolume(req.Context(), svmName, name)
	default:
		return nil, arcaerrors.New(arcaerrors.KindValidation, "method not allowed")
	}
}
