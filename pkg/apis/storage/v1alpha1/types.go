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

package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// FinalizerName is the only finalizer this system ever adds or removes.
const FinalizerName = "finalizer.arca-storage.io/driver"

// ArcaContentSourceType is the closed set of content-source variants.
type ArcaContentSourceType string

const (
	// ArcaContentSourceVolume means the new volume is a clone of an existing one.
	ArcaContentSourceVolume ArcaContentSourceType = "Volume"
	// ArcaContentSourceSnapshot means the new volume is restored from a snapshot.
	ArcaContentSourceSnapshot ArcaContentSourceType = "Snapshot"
)

// ArcaContentSource is a tagged union: exactly one of SourceVolumeID or
// SourceSnapshotID is set, matching Type.
type ArcaContentSource struct {
	Type               ArcaContentSourceType `json:"type"`
	SourceVolumeID     *string                `json:"sourceVolumeID,omitempty"`
	SourceSnapshotID   *string                `json:"sourceSnapshotID,omitempty"`
}

// Validate enforces the exactly-one-of rule for the tagged union.
func (c *ArcaContentSource) Validate() error {
	if c == nil {
		return nil
	}
	switch c.Type {
	case ArcaContentSourceVolume:
		if c.SourceVolumeID == nil || c.SourceSnapshotID != nil {
			return errContentSource
		}
	case ArcaContentSourceSnapshot:
		if c.SourceSnapshotID == nil || c.SourceVolumeID != nil {
			return errContentSource
		}
	default:
		return errContentSource
	}
	return nil
}

var errContentSource = errContentSourceType{}

type errContentSourceType struct{}

func (errContentSourceType) Error() string {
	return "content source must set exactly one of sourceVolumeID or sourceSnapshotID, matching type"
}

// ArcaVolumeSpec is the desired/observed state of a CSI-provisioned volume.
type ArcaVolumeSpec struct {
	// VolumeID matches ^pvc-[a-f0-9]{16}$
	VolumeID      string             `json:"volumeID"`
	Name          string             `json:"name"`
	SVMName       string             `json:"svmName"`
	VIP           string             `json:"vip"`
	Path          string             `json:"path"`
	CapacityBytes int64              `json:"capacityBytes"`
	CreatedAt     metav1.Time        `json:"createdAt"`
	ContentSource *ArcaContentSource `json:"contentSource,omitempty"`
}

// ArcaVolumeStatus reports convergence state of an ArcaVolume.
type ArcaVolumeStatus struct {
	ObservedGeneration int64              `json:"observedGeneration,omitempty"`
	Conditions         []metav1.Condition `json:"conditions,omitempty"`
}

// ArcaVolume is the cluster-scoped record of one CSI-provisioned volume.
type ArcaVolume struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   ArcaVolumeSpec   `json:"spec"`
	Status ArcaVolumeStatus `json:"status,omitempty"`
}

// ArcaSnapshotSpec is the desired/observed state of a CSI-provisioned snapshot.
type ArcaSnapshotSpec struct {
	// SnapshotID is 16 lowercase hex characters.
	SnapshotID     string      `json:"snapshotID"`
	Name           string      `json:"name"`
	SourceVolumeID string      `json:"sourceVolumeID"`
	SVMName        string      `json:"svmName"`
	Path           string      `json:"path"`
	SizeBytes      int64       `json:"sizeBytes"`
	CreatedAt      metav1.Time `json:"createdAt"`
}

// ArcaSnapshotStatus reports readiness of an ArcaSnapshot.
type ArcaSnapshotStatus struct {
	ReadyToUse bool `json:"readyToUse"`
}

// ArcaSnapshot is the cluster-scoped record of one CSI-provisioned snapshot.
type ArcaSnapshot struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   ArcaSnapshotSpec   `json:"spec"`
	Status ArcaSnapshotStatus `json:"status,omitempty"`
}
