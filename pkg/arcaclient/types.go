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

// Package arcaclient is the HTTP client the CSI controller and node
// plugins use to drive the ARCA REST server, wrapping request retries,
// error classification and distributed SVM provisioning behind the
// resource verbs the CSI driver actually needs.
package arcaclient

import "time"

// SVM mirrors the server's SVM representation over the wire.
type SVM struct {
	Name      string    `json:"name"`
	VLANID    int       `json:"vlan_id"`
	IPCIDR    string    `json:"ip_cidr"`
	VIP       string    `json:"vip"`
	Gateway   string    `json:"gateway"`
	MTU       int       `json:"mtu"`
	State     string    `json:"state"`
	Namespace string    `json:"namespace"`
	IfName    string    `json:"if_name"`
	MountPath string    `json:"mount_path"`
	Device    string    `json:"device"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateSVMRequest is the body of POST /v1/svms.
type CreateSVMRequest struct {
	Name    string `json:"name"`
	VLANID  int    `json:"vlan_id"`
	IPCIDR  string `json:"ip_cidr"`
	Gateway string `json:"gateway,omitempty"`
	MTU     int    `json:"mtu,omitempty"`
}

// CapacityInfo is the body of GET /v1/svms/{name}/capacity.
type CapacityInfo struct {
	TotalBytes     int64 `json:"total_bytes"`
	AvailableBytes int64 `json:"available_bytes"`
	UsedBytes      int64 `json:"used_bytes"`
}

// Directory mirrors the server's Directory representation over the wire.
type Directory struct {
	SVMName    string    `json:"svm_name"`
	Path       string    `json:"path"`
	QuotaBytes int64     `json:"quota_bytes"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateDirectoryRequest is the body of POST /v1/directories.
type CreateDirectoryRequest struct {
	SVMName    string `json:"svm_name"`
	Path       string `json:"path"`
	QuotaBytes int64  `json:"quota_bytes,omitempty"`
}

// Snapshot mirrors the server's Snapshot representation over the wire.
type Snapshot struct {
	SVMName      string    `json:"svm_name"`
	SourcePath   string    `json:"source_path"`
	SnapshotPath string    `json:"snapshot_path"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateSnapshotRequest is the body of POST /v1/snapshots.
type CreateSnapshotRequest struct {
	SVMName      string `json:"svm_name"`
	SourcePath   string `json:"source_path"`
	SnapshotPath string `json:"snapshot_path"`
}

// RestoreSnapshotRequest is the body of POST /v1/snapshots/restore.
type RestoreSnapshotRequest struct {
	SVMName      string `json:"svm_name"`
	SnapshotPath string `json:"snapshot_path"`
	TargetPath   string `json:"target_path"`
}

// QuotaInfo is the body of GET /v1/quotas/{svm}.
type QuotaInfo struct {
	SVMName    string `json:"svm_name"`
	Path       string `json:"path"`
	QuotaBytes int64  `json:"quota_bytes"`
	UsedBytes  int64  `json:"used_bytes"`
}

// SetQuotaRequest is the body of POST /v1/quotas.
type SetQuotaRequest struct {
	SVMName    string `json:"svm_name"`
	Path       string `json:"path"`
	QuotaBytes int64  `json:"quota_bytes"`
}

// ExpandQuotaRequest is the body of PATCH /v1/quotas.
type ExpandQuotaRequest struct {
	SVMName    string `json:"svm_name"`
	Path       string `json:"path"`
	QuotaBytes int64  `json:"quota_bytes"`
}

// envelope mirrors the server's {data, error, message} response shape.
type envelope struct {
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}
