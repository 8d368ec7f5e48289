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

// registerHandlers wires the full §6 REST route table onto the mux. Every
// collection except /v1/exports is registered twice: once without a
// trailing slash for POST/GET-list (so ServeMux never redirects a request
// body away), and once with one for item-scoped GET/PATCH/DELETE.
// /v1/exports has only the collection route, which also serves DELETE.
func (s *HTTPServer) registerHandlers() {
	s.mux.HandleFunc("/v1/svms", s.wrap(s.handleSVMsCollection))
	s.mux.HandleFunc("/v1/svms/", s.wrap(s.handleSVMsItem))

	s.mux.HandleFunc("/v1/volumes", s.wrap(s.handleVolumesCollection))
	s.mux.HandleFunc("/v1/volumes/", s.wrap(s.handleVolumesItem))

	s.mux.HandleFunc("/v1/exports", s.wrap(s.handleExportsCollection))

	s.mux.HandleFunc("/v1/directories", s.wrap(s.handleDirectoriesCollection))
	s.mux.HandleFunc("/v1/directories/", s.wrap(s.handleDirectoriesItem))

	s.mux.HandleFunc("/v1/snapshots/restore", s.wrap(s.handleSnapshotsRestore))
	s.mux.HandleFunc("/v1/snapshots", s.wrap(s.handleSnapshotsCollection))
	s.mux.HandleFunc("/v1/snapshots/", s.wrap(s.handleSnapshotsItem))

	s.mux.HandleFunc("/v1/quotas", s.wrap(s.handleQuotasCollection))
	s.mux.HandleFunc("/v1/quotas/", s.wrap(s.handleQuotasItem))
}
