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
	"context"
	"testing"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	v1alpha1 "github.com/arca-storage/arca/pkg/apis/storage/v1alpha1"
	"github.com/arca-storage/arca/pkg/metastore"
)

func newTestControllerDriver(t *testing.T, store metastore.Store) *Driver {
	if store == nil {
		store = metastore.NewMemoryStore()
	}
	d, err := NewDriver(&DriverConfig{Mode: "controller", Store: store})
	require.NoError(t, err)
	return d
}

func mountVolumeCapability() *csi.VolumeCapability {
	return &csi.VolumeCapability{
		AccessType: &csi.VolumeCapability_Mount{Mount: &csi.VolumeCapability_MountVolume{}},
		AccessMode: &csi.VolumeCapability_AccessMode{Mode: csi.VolumeCapability_AccessMode_SINGLE_NODE_WRITER},
	}
}

func TestCreateVolumeReplaysExistingWithoutTouchingBackend(t *testing.T) {
	store := metastore.NewMemoryStore()
	d := newTestControllerDriver(t, store)
	ctx := context.Background()

	req := &csi.CreateVolumeRequest{
		Name:               "my-pvc",
		VolumeCapabilities: []*csi.VolumeCapability{mountVolumeCapability()},
		CapacityRange:      &csi.CapacityRange{RequiredBytes: 2 * 1024 * 1024 * 1024},
		Parameters:         map[string]string{paramNamespace: "team-a", paramPVCName: "my-pvc"},
	}
	volumeID := d.volumeIDGen.GenerateVolumeID(req.GetName())

	_, err := store.CreateVolume(ctx, &v1alpha1.ArcaVolume{
		ObjectMeta: metav1.ObjectMeta{Name: volumeID},
		Spec: v1alpha1.ArcaVolumeSpec{
			VolumeID:      volumeID,
			SVMName:       "k8s-team-a",
			VIP:           "10.0.0.5",
			Path:          volumeID,
			CapacityBytes: 2 * 1024 * 1024 * 1024,
		},
	})
	require.NoError(t, err)

	resp, err := d.CreateVolume(ctx, req)
	require.NoError(t, err)
	require.Equal(t, volumeID, resp.Volume.VolumeId)
}

func TestCreateVolumeRejectsCapacityMismatchOnReplay(t *testing.T) {
	store := metastore.NewMemoryStore()
	d := newTestControllerDriver(t, store)
	ctx := context.Background()

	req := &csi.CreateVolumeRequest{
		Name:               "my-pvc",
		VolumeCapabilities: []*csi.VolumeCapability{mountVolumeCapability()},
		CapacityRange:      &csi.CapacityRange{RequiredBytes: 4 * 1024 * 1024 * 1024},
		Parameters:         map[string]string{paramNamespace: "team-a"},
	}
	volumeID := d.volumeIDGen.GenerateVolumeID(req.GetName())

	_, err := store.CreateVolume(ctx, &v1alpha1.ArcaVolume{
		ObjectMeta: metav1.ObjectMeta{Name: volumeID},
		Spec: v1alpha1.ArcaVolumeSpec{
			VolumeID:      volumeID,
			SVMName:       "k8s-team-a",
			CapacityBytes: 1 * 1024 * 1024 * 1024,
		},
	})
	require.NoError(t, err)

	_, err = d.CreateVolume(ctx, req)
	st, ok := status.FromError(err)
	require.True(t, ok)
	require.Equal(t, codes.AlreadyExists, st.Code())
}

func TestCreateVolumeRequiresNamespaceParameter(t *testing.T) {
	d := newTestControllerDriver(t, nil)
	req := &csi.CreateVolumeRequest{
		Name:               "my-pvc",
		VolumeCapabilities: []*csi.VolumeCapability{mountVolumeCapability()},
	}
	_, err := d.CreateVolume(context.Background(), req)
	st, ok := status.FromError(err)
	require.True(t, ok)
	require.Equal(t, codes.InvalidArgument, st.Code())
}

func TestDeleteVolumeNotFoundIsIdempotent(t *testing.T) {
	d := newTestControllerDriver(t, nil)
	resp, err := d.DeleteVolume(context.Background(), &csi.DeleteVolumeRequest{VolumeId: "pvc-does-not-exist"})
	require.NoError(t, err)
	require.NotNil(t, resp)
}

func TestListSnapshotsFiltersBySourceVolume(t *testing.T) {
	store := metastore.NewMemoryStore()
	d := newTestControllerDriver(t, store)
	ctx := context.Background()

	mkSnap := func(id, sourceVolumeID string) {
		_, err := store.CreateSnapshot(ctx, &v1alpha1.ArcaSnapshot{
			ObjectMeta: metav1.ObjectMeta{Name: id},
			Spec:       v1alpha1.ArcaSnapshotSpec{SnapshotID: id, SourceVolumeID: sourceVolumeID},
			Status:     v1alpha1.ArcaSnapshotStatus{ReadyToUse: true},
		})
		require.NoError(t, err)
	}
	mkSnap("snap-a1", "pvc-a")
	mkSnap("snap-a2", "pvc-a")
	mkSnap("snap-b1", "pvc-b")

	resp, err := d.ListSnapshots(ctx, &csi.ListSnapshotsRequest{SourceVolumeId: "pvc-a"})
	require.NoError(t, err)
	require.Len(t, resp.Entries, 2)
	for _, e := range resp.Entries {
		require.Equal(t, "pvc-a", e.Snapshot.SourceVolumeId)
	}
}

func TestControllerExpandVolumeNoopWhenNotGrowing(t *testing.T) {
	store := metastore.NewMemoryStore()
	d := newTestControllerDriver(t, store)
	ctx := context.Background()

	_, err := store.CreateVolume(ctx, &v1alpha1.ArcaVolume{
		ObjectMeta: metav1.ObjectMeta{Name: "pvc-1"},
		Spec:       v1alpha1.ArcaVolumeSpec{VolumeID: "pvc-1", CapacityBytes: 4 * 1024 * 1024 * 1024},
	})
	require.NoError(t, err)

	resp, err := d.ControllerExpandVolume(ctx, &csi.ControllerExpandVolumeRequest{
		VolumeId:      "pvc-1",
		CapacityRange: &csi.CapacityRange{RequiredBytes: 2 * 1024 * 1024 * 1024},
	})
	require.NoError(t, err)
	require.Equal(t, int64(4*1024*1024*1024), resp.CapacityBytes)
	require.False(t, resp.NodeExpansionRequired)
}
