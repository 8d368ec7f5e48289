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

func (s *Server) nextExportIDLocked(svmName string) int {
	max := 0
	for id := range s.exports[svmName] {
		if id > max {
			max = id
		}
	}
	return max + 1
}

// AddExport implements POST /v1/exports. Every export mutation ends by
// re-rendering and reloading the SVM's exporter config so the daemon's
// live ACL table never drifts from the persisted record (§5).
func (s *Server) AddExport(ctx context.Context, req AddExportRequest) (Export, bool, error) {
	if req.SVM == "" || req.Path == "" || req.ClientCIDR == "" {
		return Export{}, false, arcaerrors.New(arcaerrors.KindValidation, "svm, path and client_cidr are required")
	}
	svm, err := s.GetSVM(req.SVM)
	if err != nil {
		return Export{}, false, err
	}

	unlock := s.locks.Lock("svm:" + req.SVM + ":exports")
	defer unlock()

	fullPath := filepath.Join(svm.MountPath, req.Path)

	s.mu.RLock()
	for _, e := range s.exports[req.SVM] {
		if e.Path == fullPath && e.ClientCIDR == req.ClientCIDR {
			s.mu.RUnlock()
			if e.Access == req.Access && e.Squash == req.Squash {
				return *e, false, nil
			}
			return Export{}, false, arcaerrors.New(arcaerrors.KindAlreadyExists,
				fmt.Sprintf("export for %s to %s already exists with different parameters", fullPath, req.ClientCIDR))
		}
	}
	s.mu.RUnlock()

	access := req.Access
	if access == "" {
		access = "rw"
	}
	squash := req.Squash
	if squash == "" {
		squash = "root_squash"
	}

	s.mu.Lock()
	id := s.nextExportIDLocked(req.SVM)
	exp := Export{
		SVMName:    req.SVM,
		ExportID:   id,
		Path:       fullPath,
		ClientCIDR: req.ClientCIDR,
		Access:     access,
		Squash:     squash,
		Sec:        req.Sec,
		CreatedAt:  time.Now(),
	}
	if s.exports[req.SVM] == nil {
		s.exports[req.SVM] = map[int]*Export{}
	}
	s.exports[req.SVM][id] = &exp
	exportsSnapshot := s.exportsForLocked(req.SVM)
	s.mu.Unlock()

	if _, _, err := s.export.Sync(ctx, req.SVM, s.config.GaneshaProtocols, s.config.GaneshaMountdPort, s.config.GaneshaNLMPort, exportsSnapshot); err != nil {
		s.mu.Lock()
		delete(s.exports[req.SVM], id)
		s.mu.Unlock()
		return Export{}, false, err
	}

	s.mu.Lock()
	perr := s.persistExportsLocked()
	s.mu.Unlock()
	if perr != nil {
		return Export{}, false, perr
	}
	return exp, true, nil
}

// ListExports implements GET /v1/exports?svm=....
func (s *Server) ListExports(svmName string) []Export {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Export, 0, len(s.exports[svmName]))
	for _, e := range s.exports[svmName] {
		out = append(out, *e)
	}
	return out
}

// RemoveExport implements DELETE /v1/exports; absence is success.
func (s *Server) RemoveExport(ctx context.Context, req RemoveExportRequest) error {
	if req.SVM == "" {
		return arcaerrors.New(arcaerrors.KindValidation, "svm is required")
	}

	unlock := s.locks.Lock("svm:" + req.SVM + ":exports")
	defer unlock()

	s.mu.RLock()
	_, ok := s.exports[req.SVM][req.ExportID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	s.mu.Lock()
	delete(s.exports[req.SVM], req.ExportID)
	exportsSnapshot := s.exportsForLocked(req.SVM)
	s.mu.Unlock()

	if _, _, err := s.export.Sync(ctx, req.SVM, s.config.GaneshaProtocols, s.config.GaneshaMountdPort, s.config.GaneshaNLMPort, exportsSnapshot); err != nil {
		return err
	}

	s.mu.Lock()
	perr := s.persistExportsLocked()
	s.mu.Unlock()
	return perr
}

func (s *HTTPServer) handleExportsCollection(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	switch req.Method {
	case http.MethodPost:
		var body AddExportRequest
		if err := decodeBody(req, &body); err != nil {
			return nil, err
		}
		exp, wasCreated, err := s.arca.AddExport(req.Context(), body)
		if err != nil {
			return nil, err
		}
		if wasCreated {
			return created{exp}, nil
		}
		return exp, nil
	case http.MethodGet:
		svmName, err := requireQueryParam(req, "svm")
		if err != nil {
			return nil, err
		}
		return s.arca.ListExports(svmName), nil
	case http.MethodDelete:
		var body RemoveExportRequest
		if err := decodeBody(req, &body); err != nil {
			return nil, err
		}
		return nil, s.arca.RemoveExport(req.Context(), body)
	default:
		return nil, arcaerrors.New(arcaerrors.KindValidation, "method not allowed")
	}
}
