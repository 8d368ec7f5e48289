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

package csi

import (
	"github.com/container-storage-interface/spec/lib/go/csi"
	"google.golang.org/protobuf/types/known/timestamppb"

	v1alpha1 "github.com/arca-storage/arca/pkg/apis/storage/v1alpha1"
)

func volumeToCSI(v *v1alpha1.ArcaVolume) *csi.Volume {
	vol := &csi.Volume{
		VolumeId:      v.Spec.VolumeID,
		CapacityBytes: v.Spec.CapacityBytes,
		VolumeContext: map[string]string{
			volumeContextSVM:        v.Spec.SVMName,
			volumeContextVIP:        v.Spec.VIP,
			volumeContextVolumePath: v.Spec.Path,
		},
	}
	if src := v.Spec.ContentSource; src != nil {
		switch src.Type {
		case v1alpha1.ArcaContentSourceVolume:
			vol.ContentSource = &csi.VolumeContentSource{
				Type: &csi.VolumeContentSource_Volume{
					Volume: &csi.VolumeContentSource_VolumeSource{VolumeId: *src.SourceVolumeID},
				},
			}
		case v1alpha1.ArcaContentSourceSnapshot:
			vol.ContentSource = &csi.VolumeContentSource{
				Type: &csi.VolumeContentSource_Snapshot{
					Snapshot: &csi.VolumeContentSource_SnapshotSource{SnapshotId: *src.SourceSnapshotID},
				},
			}
		}
	}
	return vol
}

func snapshotToCSI(s *v1alpha1.ArcaSnapshot) *csi.Snapshot {
	return &csi.Snapshot{
		SnapshotId:     s.Spec.SnapshotID,
		SourceVolumeId: s.Spec.SourceVolumeID,
		SizeBytes:      s.Spec.SizeBytes,
		CreationTime:   timestamppb.New(s.Spec.CreatedAt.Time),
		ReadyToUse:     s.Status.ReadyToUse,
	}
}

// contentSourceFromCSI converts a csi.VolumeContentSource into the tagged
// union ArcaVolumeSpec persists, matching Validate's exactly-one-of rule.
func contentSourceFromCSI(src *csi.VolumeContentSource) *v1alpha1.ArcaContentSource {
	if src == nil {
		return nil
	}
	if vol := src.GetVolume(); vol != nil {
		id := vol.GetVolumeId()
		return &v1alpha1.ArcaContentSource{Type: v1alpha1.ArcaContentSourceVolume, SourceVolumeID: &id}
	}
	if snap := src.GetSnapshot(); snap != nil {
		id := snap.GetSnapshotId()
		return &v1alpha1.ArcaContentSource{Type: v1alpha1.ArcaContentSourceSnapshot, SourceSnapshotID: &id}
	}
	return nil
}

// contentSourcesMatch reports whether requested (from a CreateVolumeRequest)
// is compatible with existing (already persisted), for idempotent replay.
func contentSourcesMatch(requested *csi.VolumeContentSource, existing *v1alpha1.ArcaContentSource) bool {
	converted := contentSourceFromCSI(requested)
	if converted == nil && existing == nil {
		return true
	}
	if converted == nil || existing == nil {
		return false
	}
	if converted.Type != existing.Type {
		return false
	}
	switch converted.Type {
	case v1alpha1.ArcaContentSourceVolume:
		return *converted.SourceVolumeID == *existing.SourceVolumeID
	case v1alpha1.ArcaContentSourceSnapshot:
		return *converted.SourceSnapshotID == *existing.SourceSnapshotID
	}
	return false
}
