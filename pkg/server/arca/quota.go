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
	"net/http"

	"github.com/arca-storage/arca/pkg/arcaerrors"
)

// SetQuota implements POST /v1/quotas: the raw CSI-facing primitive
// underneath CreateDirectory, exposed directly for callers that manage a
// directory's lifecycle themselves and only need the quota cap set.
func (s *Server) SetQuota(ctx context.Context, req SetQuotaRequest) (QuotaInfo, error) {
	if req.SVMName == "" || req.Path == "" {
		return QuotaInfo{}, arcaerrors.New(arcaerrors.KindValidation, "svm_name and path are required")
	}
	svm, err := s.GetSVM(req.SVMName)
	if err != nil {
		return QuotaInfo{}, err
	}

	key := req.SVMName + "/" + req.Path
	unlock := s.locks.Lock("svm:" + req.SVMName + ":volume:" + req.Path)
	defer unlock()

	if err := s.stack.CreateVolumeDirectory(ctx, req.SVMName, svm.MountPath, req.Path, req.QuotaBytes); err != nil {
		return QuotaInfo{}, err
	}

	s.mu.Lock()
	dir, ok := s.directories[key]
	if !ok {
		dir = &Directory{SVMName: req.SVMName, Path: req.Path}
		s.directories[key] = dir
	}
	dir.QuotaBytes = req.QuotaBytes
	perr := s.persistDirectoriesLocked()
	s.mu.Unlock()
	if perr != nil {
		return QuotaInfo{}, perr
	}

	used, _, err := s.stack.GetVolumeQuota(ctx, req.SVMName, svm.MountPath, req.Path)
	if err != nil {
		return QuotaInfo{}, err
	}
	return QuotaInfo{SVMName: req.SVMName, Path: req.Path, QuotaBytes: req.QuotaBytes, UsedBytes: used}, nil
}

// GetQuota implements GET /v1/quotas/{svm}?path=..., reading live usage
// from the XFS quota subsystem rather than trusting the persisted record.
func (s *Server) GetQuota(ctx context.Context, svmName, path string) (QuotaInfo, error) {
	svm, err := s.GetSVM(svmName)
	if err != nil {
		return QuotaInfo{}, err
	}

	s.mu.RLock()
	_, ok := s.directories[svmName+"/"+path]
	s.mu.RUnlock()
	if !ok {
		return QuotaInfo{}, arcaerrors.New(arcaerrors.KindNotFound, "no quota recorded for "+path+" on svm "+svmName)
	}

	used, hard, err := s.stack.GetVolumeQuota(ctx, svmName, svm.MountPath, path)
	if err != nil {
		return QuotaInfo{}, err
	}
	return QuotaInfo{SVMName: svmName, Path: path, QuotaBytes: hard, UsedBytes: used}, nil
}

// ExpandQuota implements PATCH /v1/quotas: raises an existing quota's cap.
// Shrink requests are rejected (§9), matching GrowVolume's rule.
func (s *Server) ExpandQuota(ctx context.Context, req ExpandQuotaRequest) (QuotaInfo, error) {
	if req.SVMName == "" || req.Path == "" {
		return QuotaInfo{}, arcaerrors.New(arcaerrors.KindValidation, "svm_name and path are required")
	}
	svm, err := s.GetSVM(req.SVMName)
	if err != nil {
		return QuotaInfo{}, err
	}

	key := req.SVMName + "/" + req.Path
	unlock := s.locks.Lock("svm:" + req.SVMName + ":volume:" + req.Path)
	defer unlock()

	s.mu.RLock()
	dir, ok := s.directories[key]
	s.mu.RUnlock()
	if !ok {
		return QuotaInfo{}, arcaerrors.New(arcaerrors.KindNotFound, "no quota recorded for "+req.Path+" on svm "+req.SVMName)
	}
	if req.QuotaBytes < dir.QuotaBytes {
		return QuotaInfo{}, arcaerrors.New(arcaerrors.KindValidation, "shrinking a quota is not supported")
	}

	if err := s.stack.ResizeVolumeDirectory(ctx, req.SVMName, svm.MountPath, req.Path, req.QuotaBytes); err != nil {
		return QuotaInfo{}, err
	}

	s.mu.Lock()
	dir.QuotaBytes = req.QuotaBytes
	perr := s.persistDirectoriesLocked()
	s.mu.Unlock()
	if perr != nil {
		return QuotaInfo{}, perr
	}

	used, _, err := s.stack.GetVolumeQuota(ctx, req.SVMName, svm.MountPath, req.Path)
	if err != nil {
		return QuotaInfo{}, err
	}
	return QuotaInfo{SVMName: req.SVMName, Path: req.Path, QuotaBytes: req.QuotaBytes, UsedBytes: used}, nil
}

func (s *HTTPServer) handleQuotasCollection(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	switch req.Method {
	case http.MethodPost:
		var body SetQuotaRequest
		if err := decodeBody(req, &body); err != nil {
			return nil, err
		}
		return s.arca.SetQuota(req.Context(), body)
	case http.MethodPatch:
		var body ExpandQuotaRequest
		if err := decodeBody(req, &body); err != nil {
			return nil, err
		}
		return s.arca.ExpandQuota(req.Context(), body)
	default:
		return nil, arcaerrors.New(arcaerrors.KindValidation, "method not allowed")
	}
}

func (s *HTTPServer) handleQuotasItem(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	svmName := pathTail(req, "/v1/quotas/")
	if svmName == "" {
		return nil, arcaerrors.New(arcaerrors.KindValidation, "missing svm name")
	}
	if req.Method != http.MethodGet {
		return nil, arcaerrors.New(arcaerrors.KindValidation, "method not allowed")
	}
	path, err := requireQueryParam(req, "path")
	if err != nil {
		return nil, err
	}
	return s.arca.GetQuota(req.Context(), svmName, path)
}
