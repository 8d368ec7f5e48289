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

// Package arca implements the ARCA REST Server (§4.6): SVM/Volume/Export/
// Directory/Snapshot/Quota lifecycle over HTTP+JSON, following a
// validate -> lock -> side-effect -> persist pattern for every mutation.
package arca

import "time"

// SVM states. A newly created SVM is Ready once its network, filesystem,
// resource group registration and initial export render have all
// succeeded; a failed registration or render leaves it Degraded rather than
// Ready. The NFS daemon's reachability is not probed.
const (
	SVMStateReady    = "ready"
	SVMStateDegraded = "degraded"
	SVMStateDeleting = "deleting"
)

// SVM is one tenant unit: a netns+VLAN+VIP, a thin XFS volume, and a
// dedicated NFS exporter daemon.
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

// Volume is a named, sized subdirectory of an SVM's filesystem.
type Volume struct {
	SVMName   string    `json:"svm"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// Directory is the lower-level quota-bearing primitive CSI drives
// directly, keyed by an arbitrary relative path rather than a Volume name.
type Directory struct {
	SVMName    string    `json:"svm_name"`
	Path       string    `json:"path"`
	QuotaBytes int64     `json:"quota_bytes"`
	CreatedAt  time.Time `json:"created_at"`
}

// Export is one NFS ACL record for a path within an SVM.
type Export struct {
	SVMName    string    `json:"svm"`
	ExportID   int       `json:"export_id"`
	Path       string    `json:"path"`
	ClientCIDR string    `json:"client_cidr"`
	Access     string    `json:"access"`
	Squash     string    `json:"squash"`
	Sec        []string  `json:"sec,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Snapshot is a reflink copy of one path within an SVM onto another path.
type Snapshot struct {
	SVMName      string    `json:"svm_name"`
	SourcePath   string    `json:"source_path"`
	SnapshotPath string    `json:"snapshot_path"`
	CreatedAt    time.Time `json:"created_at"`
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

// CreateVolumeRequest is the body of POST /v1/volumes.
type CreateVolumeRequest struct {
	SVM       string `json:"svm"`
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
}

// GrowVolumeRequest is the body of PATCH /v1/volumes/{name}.
type GrowVolumeRequest struct {
	SVM       string `json:"svm"`
	SizeBytes int64  `json:"size_bytes"`
}

// AddExportRequest is the body of POST /v1/exports.
type AddExportRequest struct {
	SVM        string   `json:"svm"`
	Path       string   `json:"path"`
	ClientCIDR string   `json:"client_cidr"`
	Access     string   `json:"access,omitempty"`
	Squash     string   `json:"squash,omitempty"`
	Sec        []string `json:"sec,omitempty"`
}

// RemoveExportRequest is the body of DELETE /v1/exports.
type RemoveExportRequest struct {
	SVM      string `json:"svm"`
	ExportID int    `json:"export_id"`
}

// CreateDirectoryRequest is the body of POST /v1/directories.
type CreateDirectoryRequest struct {
	SVMName    string `json:"svm_name"`
	Path       string `json:"path"`
	QuotaBytes int64  `json:"quota_bytes,omitempty"`
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

// QuotaInfo is the body of GET /v1/quotas/{svm}.
type QuotaInfo struct {
	SVMName    string `json:"svm_name"`
	Path       string `json:"path"`
	QuotaBytes int64  `json:"quota_bytes"`
	UsedBytes  int64  `json:"used_bytes"`
}
