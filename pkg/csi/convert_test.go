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
	"testing"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	v1alpha1 "github.com/arca-storage/arca/pkg/apis/storage/v1alpha1"
)

func TestVolumeToCSICarriesContext(t *testing.T) {
	v := &v1alpha1.ArcaVolume{
		Spec: v1alpha1.ArcaVolumeSpec{
			VolumeID:      "pvc-abc123",
			SVMName:       "k8s-team-a",
			VIP:           "10.0.0.5",
			Path:          "pvc-abc123",
			CapacityBytes: 5 * 1024 * 1024 * 1024,
		},
	}

	got := volumeToCSI(v)
	require.Equal(t, "pvc-abc123", got.VolumeId)
	require.Equal(t, int64(5*1024*1024*1024), got.CapacityBytes)
	require.Equal(t, "k8s-team-a", got.VolumeContext[volumeContextSVM])
	require.Equal(t, "10.0.0.5", got.VolumeContext[volumeContextVIP])
	require.Nil(t, got.ContentSource)
}

func TestVolumeToCSITranslatesContentSource(t *testing.T) {
	sourceID := "pvc-source"
	v := &v1alpha1.ArcaVolume{
		Spec: v1alpha1.ArcaVolumeSpec{
			VolumeID: "pvc-clone",
			ContentSource: &v1alpha1.ArcaContentSource{
				Type:           v1alpha1.ArcaContentSourceVolume,
				SourceVolumeID: &sourceID,
			},
		},
	}

	got := volumeToCSI(v)
	require.NotNil(t, got.ContentSource)
	require.Equal(t, sourceID, got.ContentSource.GetVolume().GetVolumeId())
}

func TestSnapshotToCSI(t *testing.T) {
	s := &v1alpha1.ArcaSnapshot{
		Spec: v1alpha1.ArcaSnapshotSpec{
			SnapshotID:     "snap-1",
			SourceVolumeID: "pvc-1",
			SizeBytes:      1024,
			CreatedAt:      metav1.Now(),
		},
		Status: v1alpha1.ArcaSnapshotStatus{ReadyToUse: true},
	}

	got := snapshotToCSI(s)
	require.Equal(t, "snap-1", got.SnapshotId)
	require.Equal(t, "pvc-1", got.SourceVolumeId)
	require.True(t, got.ReadyToUse)
	require.NotNil(t, got.CreationTime)
}

func TestContentSourceFromCSI(t *testing.T) {
	require.Nil(t, contentSourceFromCSI(nil))

	volSrc := &csi.VolumeContentSource{
		Type: &csi.VolumeContentSource_Volume{
			Volume: &csi.VolumeContentSource_VolumeSource{VolumeId: "pvc-x"},
		},
	}
	converted := contentSourceFromCSI(volSrc)
	require.Equal(t, v1alpha1.ArcaContentSourceVolume, converted.Type)
	require.Equal(t, "pvc-x", *converted.SourceVolumeID)
}

func TestContentSourcesMatch(t *testing.T) {
	require.True(t, contentSourcesMatch(nil, nil))

	sourceID := "pvc-x"
	requested := &csi.VolumeContentSource{
		Type: &csi.VolumeContentSource_Volume{
			Volume: &csi.VolumeContentSource_VolumeSource{VolumeId: sourceID},
		},
	}
	existing := &v1alpha1.ArcaContentSource{Type: v1alpha1.ArcaContentSourceVolume, SourceVolumeID: &sourceID}
	require.True(t, contentSourcesMatch(requested, existing))

	otherID := "pvc-y"
	other := &v1alpha1.ArcaContentSource{Type: v1alpha1.ArcaContentSourceVolume, SourceVolumeID: &otherID}
	require.False(t, contentSourcesMatch(requested, other))

	require.False(t, contentSourcesMatch(requested, nil))
	require.False(t, contentSourcesMatch(nil, existing))
}
