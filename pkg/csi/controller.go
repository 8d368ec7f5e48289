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
	"fmt"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/klog/v2"

	v1alpha1 "github.com/arca-storage/arca/pkg/apis/storage/v1alpha1"
	"github.com/arca-storage/arca/pkg/arcaclient"
	"github.com/arca-storage/arca/pkg/arcaerrors"
	"github.com/arca-storage/arca/pkg/idempotency"
)

const (
	paramNamespace = "csi.storage.k8s.io/pvc/namespace"
	paramPVCName   = "csi.storage.k8s.io/pvc/name"

	volumeContextSVM        = "svm"
	volumeContextVIP        = "vip"
	volumeContextVolumePath = "volumePath"

	defaultCapacityBytes = 1 * 1024 * 1024 * 1024
)

func (d *Driver) ensureControllerServiceConfigured() error {
	if d.mode != "controller" {
		return status.Errorf(codes.FailedPrecondition, "controller service is not available in %s mode", d.mode)
	}
	return nil
}

func requestedCapacity(req *csi.CreateVolumeRequest) int64 {
	if r := req.GetCapacityRange(); r != nil && r.GetRequiredBytes() > 0 {
		return r.GetRequiredBytes()
	}
	return defaultCapacityBytes
}

func (d *Driver) validateVolumeCapabilities(caps []*csi.VolumeCapability) error {
	for _, c := range caps {
		mode := c.GetAccessMode()
		if mode == nil {
			return fmt.Errorf("access mode is required")
		}
		switch mode.GetMode() {
		case csi.VolumeCapability_AccessMode_SINGLE_NODE_WRITER,
			csi.VolumeCapability_AccessMode_SINGLE_NODE_READER_ONLY,
			csi.VolumeCapability_AccessMode_MULTI_NODE_READER_ONLY,
			csi.VolumeCapability_AccessMode_MULTI_NODE_MULTI_WRITER:
		default:
			return fmt.Errorf("unsupported access mode: %v", mode.GetMode())
		}

		switch c.GetAccessType().(type) {
		case *csi.VolumeCapability_Mount:
		case *csi.VolumeCapability_Block:
			return fmt.Errorf("block access type is not supported")
		default:
			return fmt.Errorf("access type is required")
		}
	}
	return nil
}

func (d *Driver) CreateVolume(ctx context.Context, req *csi.CreateVolumeRequest) (*csi.CreateVolumeResponse, error) {
	klog.V(4).Infof("CreateVolume called with name: %s", req.GetName())

	if err := d.ensureControllerServiceConfigured(); err != nil {
		return nil, err
	}
	if req.GetName() == "" {
		return nil, status.Error(codes.InvalidArgument, "volume name is required")
	}
	if len(req.GetVolumeCapabilities()) == 0 {
		return nil, status.Error(codes.InvalidArgument, "volume capabilities are required")
	}
	if err := d.validateVolumeCapabilities(req.GetVolumeCapabilities()); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid volume capabilities: %v", err)
	}

	params := req.GetParameters()
	namespace := params[paramNamespace]
	if namespace == "" {
		return nil, status.Error(codes.InvalidArgument, "namespace parameter is required")
	}
	pvcName := params[paramPVCName]
	if pvcName == "" {
		pvcName = req.GetName()
	}

	volumeID := d.volumeIDGen.GenerateVolumeID(req.GetName())

	if existing, err := d.store.GetVolume(ctx, volumeID); err == nil {
		if compatible, err := d.matchesExisting(existing, req); !compatible {
			return nil, status.Errorf(codes.AlreadyExists, "volume %s already exists but is incompatible: %v", volumeID, err)
		}
		klog.V(4).Infof("volume %s already exists, returning existing volume", volumeID)
		return &csi.CreateVolumeResponse{Volume: volumeToCSI(existing)}, nil
	} else if !arcaerrors.IsNotFound(err) {
		return nil, grpcError(err, "check existing volume %s", volumeID)
	}

	capacityBytes := requestedCapacity(req)
	volumePath := volumeID

	var svm *arcaclient.SVM
	var contentSource *v1alpha1.ArcaContentSource

	if src := req.GetVolumeContentSource(); src != nil {
		var err error
		svm, contentSource, err = d.provisionFromContentSource(ctx, src, volumePath)
		if err != nil {
			return nil, err
		}
	} else {
		var err error
		svm, err = d.svmManager.EnsureSVM(ctx, namespace)
		if err != nil {
			return nil, grpcError(err, "ensure SVM for namespace %s", namespace)
		}

		klog.V(4).Infof("creating directory %s on SVM %s", volumePath, svm.Name)
		if _, err := d.arcaClient.CreateDirectory(ctx, &arcaclient.CreateDirectoryRequest{
			SVMName: svm.Name,
			Path:    volumePath,
		}); err != nil && !arcaerrors.IsAlreadyExists(err) {
			return nil, grpcError(err, "create directory %s", volumePath)
		}
	}

	klog.V(4).Infof("setting quota for volume %s: %d bytes", volumeID, capacityBytes)
	if _, err := d.arcaClient.SetQuota(ctx, &arcaclient.SetQuotaRequest{
		SVMName:    svm.Name,
		Path:       volumePath,
		QuotaBytes: capacityBytes,
	}); err != nil {
		return nil, grpcError(err, "set quota for volume %s", volumeID)
	}

	volume := &v1alpha1.ArcaVolume{
		ObjectMeta: metav1.ObjectMeta{Name: volumeID},
		Spec: v1alpha1.ArcaVolumeSpec{
			VolumeID:      volumeID,
			Name:          pvcName,
			SVMName:       svm.Name,
			VIP:           svm.VIP,
			Path:          volumePath,
			CapacityBytes: capacityBytes,
			CreatedAt:     metav1.Now(),
			ContentSource: contentSource,
		},
	}

	created, err := d.store.CreateVolume(ctx, volume)
	if err != nil {
		if arcaerrors.IsAlreadyExists(err) {
			if existing, getErr := d.store.GetVolume(ctx, volumeID); getErr == nil {
				return &csi.CreateVolumeResponse{Volume: volumeToCSI(existing)}, nil
			}
		}
		return nil, grpcError(err, "store volume %s", volumeID)
	}

	klog.Infof("volume %s created successfully (SVM: %s, path: %s)", volumeID, svm.Name, volumePath)
	return &csi.CreateVolumeResponse{Volume: volumeToCSI(created)}, nil
}

// matchesExisting reports whether req is compatible with an already-stored
// volume, letting CreateVolume replay idempotently.
func (d *Driver) matchesExisting(existing *v1alpha1.ArcaVolume, req *csi.CreateVolumeRequest) (bool, error) {
	if requestedCapacity(req) != existing.Spec.CapacityBytes {
		return false, fmt.Errorf("capacity mismatch: requested %d, existing %d", requestedCapacity(req), existing.Spec.CapacityBytes)
	}
	if !contentSourcesMatch(req.GetVolumeContentSource(), existing.Spec.ContentSource) {
		return false, fmt.Errorf("content source mismatch")
	}
	return true, nil
}

// provisionFromContentSource clones an existing volume or restores a
// snapshot into volumePath via a server-side reflink, returning the SVM the
// clone/restore landed on (always the source's SVM, never a fresh one).
func (d *Driver) provisionFromContentSource(ctx context.Context, src *csi.VolumeContentSource, volumePath string) (*arcaclient.SVM, *v1alpha1.ArcaContentSource, error) {
	if vol := src.GetVolume(); vol != nil {
		sourceVolumeID := vol.GetVolumeId()
		sourceVol, err := d.store.GetVolume(ctx, sourceVolumeID)
		if err != nil {
			return nil, nil, status.Errorf(codes.NotFound, "source volume %s not found: %v", sourceVolumeID, err)
		}

		if _, err := d.arcaClient.CreateSnapshot(ctx, &arcaclient.CreateSnapshotRequest{
			SVMName:      sourceVol.Spec.SVMName,
			SourcePath:   sourceVol.Spec.Path,
			SnapshotPath: volumePath,
		}); err != nil && !arcaerrors.IsAlreadyExists(err) {
			return nil, nil, grpcError(err, "clone volume %s", sourceVolumeID)
		}

		return &arcaclient.SVM{Name: sourceVol.Spec.SVMName, VIP: sourceVol.Spec.VIP},
			&v1alpha1.ArcaContentSource{Type: v1alpha1.ArcaContentSourceVolume, SourceVolumeID: &sourceVolumeID}, nil
	}

	if snap := src.GetSnapshot(); snap != nil {
		snapshotID := snap.GetSnapshotId()
		snapshot, err := d.store.GetSnapshot(ctx, snapshotID)
		if err != nil {
			return nil, nil, status.Errorf(codes.NotFound, "snapshot %s not found: %v", snapshotID, err)
		}
		if !snapshot.Status.ReadyToUse {
			return nil, nil, status.Errorf(codes.Unavailable, "snapshot %s is not ready", snapshotID)
		}

		svm, err := d.arcaClient.GetSVM(ctx, snapshot.Spec.SVMName)
		if err != nil {
			return nil, nil, grpcError(err, "get SVM %s for snapshot restore", snapshot.Spec.SVMName)
		}

		if _, err := d.arcaClient.CreateSnapshot(ctx, &arcaclient.CreateSnapshotRequest{
			SVMName:      snapshot.Spec.SVMName,
			SourcePath:   snapshot.Spec.Path,
			SnapshotPath: volumePath,
		}); err != nil && !arcaerrors.IsAlreadyExists(err) {
			return nil, nil, grpcError(err, "restore snapshot %s", snapshotID)
		}

		return svm, &v1alpha1.ArcaContentSource{Type: v1alpha1.ArcaContentSourceSnapshot, SourceSnapshotID: &snapshotID}, nil
	}

	return nil, nil, status.Error(codes.InvalidArgument, "volume content source must set either volume or snapshot")
}

func (d *Driver) DeleteVolume(ctx context.Context, req *csi.DeleteVolumeRequest) (*csi.DeleteVolumeResponse, error) {
	klog.V(4).Infof("DeleteVolume called with volumeID: %s", req.GetVolumeId())

	if err := d.ensureControllerServiceConfigured(); err != nil {
		return nil, err
	}
	volumeID := req.GetVolumeId()
	if volumeID == "" {
		return nil, status.Error(codes.InvalidArgument, "volume ID is required")
	}

	volume, err := d.store.GetVolume(ctx, volumeID)
	if err != nil {
		if arcaerrors.IsNotFound(err) {
			klog.V(4).Infof("volume %s not found, considering it already deleted", volumeID)
			return &csi.DeleteVolumeResponse{}, nil
		}
		return nil, grpcError(err, "get volume %s", volumeID)
	}

	if err := d.arcaClient.DeleteDirectory(ctx, volume.Spec.SVMName, volume.Spec.Path); err != nil && !arcaerrors.IsNotFound(err) {
		return nil, grpcError(err, "delete directory for volume %s", volumeID)
	}

	if err := d.store.DeleteVolume(ctx, volumeID); err != nil && !arcaerrors.IsNotFound(err) {
		return nil, grpcError(err, "delete volume metadata %s", volumeID)
	}

	klog.Infof("volume %s deleted successfully", volumeID)
	return &csi.DeleteVolumeResponse{}, nil
}

func (d *Driver) ControllerPublishVolume(ctx context.Context, req *csi.ControllerPublishVolumeRequest) (*csi.ControllerPublishVolumeResponse, error) {
	return nil, status.Error(codes.Unimplemented, "ControllerPublishVolume is not supported for NFS")
}

func (d *Driver) ControllerUnpublishVolume(ctx context.Context, req *csi.ControllerUnpublishVolumeRequest) (*csi.ControllerUnpublishVolumeResponse, error) {
	return nil, status.Error(codes.Unimplemented, "ControllerUnpublishVolume is not supported for NFS")
}

func (d *Driver) ValidateVolumeCapabilities(ctx context.Context, req *csi.ValidateVolumeCapabilitiesRequest) (*csi.ValidateVolumeCapabilitiesResponse, error) {
	klog.V(4).Infof("ValidateVolumeCapabilities called with volumeID: %s", req.GetVolumeId())

	if err := d.ensureControllerServiceConfigured(); err != nil {
		return nil, err
	}
	if req.GetVolumeId() == "" {
		return nil, status.Error(codes.InvalidArgument, "volume ID is required")
	}
	if len(req.GetVolumeCapabilities()) == 0 {
		return nil, status.Error(codes.InvalidArgument, "volume capabilities are required")
	}

	if _, err := d.store.GetVolume(ctx, req.GetVolumeId()); err != nil {
		return nil, status.Errorf(codes.NotFound, "volume %s not found", req.GetVolumeId())
	}

	if err := d.validateVolumeCapabilities(req.GetVolumeCapabilities()); err != nil {
		return &csi.ValidateVolumeCapabilitiesResponse{Message: err.Error()}, nil
	}

	return &csi.ValidateVolumeCapabilitiesResponse{
		Confirmed: &csi.ValidateVolumeCapabilitiesResponse_Confirmed{
			VolumeCapabilities: req.GetVolumeCapabilities(),
		},
	}, nil
}

func (d *Driver) ListVolumes(ctx context.Context, req *csi.ListVolumesRequest) (*csi.ListVolumesResponse, error) {
	klog.V(4).Infof("ListVolumes called")

	if err := d.ensureControllerServiceConfigured(); err != nil {
		return nil, err
	}

	result, err := d.store.ListVolumes(ctx, int(req.GetMaxEntries()), req.GetStartingToken())
	if err != nil {
		return nil, grpcError(err, "list volumes")
	}

	entries := make([]*csi.ListVolumesResponse_Entry, len(result.Volumes))
	for i, v := range result.Volumes {
		entries[i] = &csi.ListVolumesResponse_Entry{Volume: volumeToCSI(v)}
	}

	return &csi.ListVolumesResponse{Entries: entries, NextToken: result.ContinueToken}, nil
}

func (d *Driver) GetCapacity(ctx context.Context, req *csi.GetCapacityRequest) (*csi.GetCapacityResponse, error) {
	klog.V(4).Infof("GetCapacity called")

	if err := d.ensureControllerServiceConfigured(); err != nil {
		return nil, err
	}

	params := req.GetParameters()
	namespace := params[paramNamespace]
	if namespace == "" {
		// No namespace to resolve to an SVM; report unknown rather than guess.
		return &csi.GetCapacityResponse{AvailableCapacity: 0}, nil
	}

	svm, err := d.svmManager.GetSVMForNamespace(ctx, namespace)
	if err != nil {
		if arcaerrors.IsNotFound(err) {
			return &csi.GetCapacityResponse{AvailableCapacity: 0}, nil
		}
		return nil, grpcError(err, "get SVM for namespace %s", namespace)
	}

	info, err := d.arcaClient.GetSVMCapacity(ctx, svm.Name)
	if err != nil {
		return nil, grpcError(err, "get capacity for SVM %s", svm.Name)
	}

	return &csi.GetCapacityResponse{AvailableCapacity: info.AvailableBytes}, nil
}

func (d *Driver) ControllerGetCapabilities(ctx context.Context, req *csi.ControllerGetCapabilitiesRequest) (*csi.ControllerGetCapabilitiesResponse, error) {
	klog.V(4).Infof("ControllerGetCapabilities called")

	if err := d.ensureControllerServiceConfigured(); err != nil {
		return nil, err
	}

	rpcs := []csi.ControllerServiceCapability_RPC_Type{
		csi.ControllerServiceCapability_RPC_CREATE_DELETE_VOLUME,
		csi.ControllerServiceCapability_RPC_CREATE_DELETE_SNAPSHOT,
		csi.ControllerServiceCapability_RPC_CLONE_VOLUME,
		csi.ControllerServiceCapability_RPC_EXPAND_VOLUME,
		csi.ControllerServiceCapability_RPC_LIST_VOLUMES,
		csi.ControllerServiceCapability_RPC_LIST_SNAPSHOTS,
		csi.ControllerServiceCapability_RPC_GET_CAPACITY,
	}
	caps := make([]*csi.ControllerServiceCapability, len(rpcs))
	for i, rpc := range rpcs {
		caps[i] = &csi.ControllerServiceCapability{
			Type: &csi.ControllerServiceCapability_Rpc{
				Rpc: &csi.ControllerServiceCapability_RPC{Type: rpc},
			},
		}
	}

	return &csi.ControllerGetCapabilitiesResponse{Capabilities: caps}, nil
}

func (d *Driver) CreateSnapshot(ctx context.Context, req *csi.CreateSnapshotRequest) (*csi.CreateSnapshotResponse, error) {
	klog.V(4).Infof("CreateSnapshot called with name: %s", req.GetName())

	if err := d.ensureControllerServiceConfigured(); err != nil {
		return nil, err
	}
	if req.GetName() == "" {
		return nil, status.Error(codes.InvalidArgument, "snapshot name is required")
	}
	sourceVolumeID := req.GetSourceVolumeId()
	if sourceVolumeID == "" {
		return nil, status.Error(codes.InvalidArgument, "source volume ID is required")
	}

	snapshotID := d.snapshotIDGen.GenerateSnapshotID(sourceVolumeID, req.GetName())

	if existing, err := d.store.GetSnapshot(ctx, snapshotID); err == nil {
		klog.V(4).Infof("snapshot %s already exists, returning existing snapshot", snapshotID)
		return &csi.CreateSnapshotResponse{Snapshot: snapshotToCSI(existing)}, nil
	} else if !arcaerrors.IsNotFound(err) {
		return nil, grpcError(err, "check existing snapshot %s", snapshotID)
	}

	sourceVolume, err := d.store.GetVolume(ctx, sourceVolumeID)
	if err != nil {
		return nil, status.Errorf(codes.NotFound, "source volume %s not found", sourceVolumeID)
	}

	snapshotPath := idempotency.SnapshotPath(snapshotID)

	if _, err := d.arcaClient.CreateSnapshot(ctx, &arcaclient.CreateSnapshotRequest{
		SVMName:      sourceVolume.Spec.SVMName,
		SourcePath:   sourceVolume.Spec.Path,
		SnapshotPath: snapshotPath,
	}); err != nil && !arcaerrors.IsAlreadyExists(err) {
		return nil, grpcError(err, "create snapshot %s", snapshotID)
	}

	snapshot := &v1alpha1.ArcaSnapshot{
		ObjectMeta: metav1.ObjectMeta{Name: snapshotID},
		Spec: v1alpha1.ArcaSnapshotSpec{
			SnapshotID:     snapshotID,
			Name:           req.GetName(),
			SourceVolumeID: sourceVolumeID,
			SVMName:        sourceVolume.Spec.SVMName,
			Path:           snapshotPath,
			SizeBytes:      sourceVolume.Spec.CapacityBytes,
			CreatedAt:      metav1.Now(),
		},
		Status: v1alpha1.ArcaSnapshotStatus{ReadyToUse: false},
	}

	created, err := d.store.CreateSnapshot(ctx, snapshot)
	if err != nil {
		if arcaerrors.IsAlreadyExists(err) {
			if existing, getErr := d.store.GetSnapshot(ctx, snapshotID); getErr == nil {
				return &csi.CreateSnapshotResponse{Snapshot: snapshotToCSI(existing)}, nil
			}
		}
		return nil, grpcError(err, "store snapshot %s", snapshotID)
	}

	created.Status.ReadyToUse = true
	ready, err := d.store.UpdateSnapshot(ctx, created)
	if err != nil {
		klog.Errorf("snapshot %s: failed to persist ready status, rolling back: %v", snapshotID, err)
		if delErr := d.store.DeleteSnapshot(ctx, snapshotID); delErr != nil {
			klog.Errorf("snapshot %s: failed to roll back after status update failure: %v", snapshotID, delErr)
		}
		return nil, grpcError(err, "persist ready status for snapshot %s", snapshotID)
	}

	klog.Infof("snapshot %s created successfully from volume %s", snapshotID, sourceVolumeID)
	return &csi.CreateSnapshotResponse{Snapshot: snapshotToCSI(ready)}, nil
}

func (d *Driver) DeleteSnapshot(ctx context.Context, req *csi.DeleteSnapshotRequest) (*csi.DeleteSnapshotResponse, error) {
	klog.V(4).Infof("DeleteSnapshot called with snapshotID: %s", req.GetSnapshotId())

	if err := d.ensureControllerServiceConfigured(); err != nil {
		return nil, err
	}
	snapshotID := req.GetSnapshotId()
	if snapshotID == "" {
		return nil, status.Error(codes.InvalidArgument, "snapshot ID is required")
	}

	snapshot, err := d.store.GetSnapshot(ctx, snapshotID)
	if err != nil {
		if arcaerrors.IsNotFound(err) {
			klog.V(4).Infof("snapshot %s not found, considering it already deleted", snapshotID)
			return &csi.DeleteSnapshotResponse{}, nil
		}
		return nil, grpcError(err, "get snapshot %s", snapshotID)
	}

	if err := d.arcaClient.DeleteSnapshot(ctx, snapshot.Spec.SVMName, snapshot.Spec.Path); err != nil && !arcaerrors.IsNotFound(err) {
		return nil, grpcError(err, "delete snapshot %s", snapshotID)
	}

	if err := d.store.DeleteSnapshot(ctx, snapshotID); err != nil && !arcaerrors.IsNotFound(err) {
		return nil, grpcError(err, "delete snapshot metadata %s", snapshotID)
	}

	klog.Infof("snapshot %s deleted successfully", snapshotID)
	return &csi.DeleteSnapshotResponse{}, nil
}

func (d *Driver) ListSnapshots(ctx context.Context, req *csi.ListSnapshotsRequest) (*csi.ListSnapshotsResponse, error) {
	klog.V(4).Infof("ListSnapshots called")

	if err := d.ensureControllerServiceConfigured(); err != nil {
		return nil, err
	}

	if snapshotID := req.GetSnapshotId(); snapshotID != "" {
		snapshot, err := d.store.GetSnapshot(ctx, snapshotID)
		if err != nil {
			return nil, status.Errorf(codes.NotFound, "snapshot %s not found", snapshotID)
		}
		return &csi.ListSnapshotsResponse{
			Entries: []*csi.ListSnapshotsResponse_Entry{{Snapshot: snapshotToCSI(snapshot)}},
		}, nil
	}

	result, err := d.store.ListSnapshots(ctx, int(req.GetMaxEntries()), req.GetStartingToken())
	if err != nil {
		return nil, grpcError(err, "list snapshots")
	}

	sourceVolumeID := req.GetSourceVolumeId()
	entries := make([]*csi.ListSnapshotsResponse_Entry, 0, len(result.Snapshots))
	for _, s := range result.Snapshots {
		if sourceVolumeID != "" && s.Spec.SourceVolumeID != sourceVolumeID {
			continue
		}
		entries = append(entries, &csi.ListSnapshotsResponse_Entry{Snapshot: snapshotToCSI(s)})
	}

	return &csi.ListSnapshotsResponse{Entries: entries, NextToken: result.ContinueToken}, nil
}

func (d *Driver) ControllerExpandVolume(ctx context.Context, req *csi.ControllerExpandVolumeRequest) (*csi.ControllerExpandVolumeResponse, error) {
	klog.V(4).Infof("ControllerExpandVolume called with volumeID: %s", req.GetVolumeId())

	if err := d.ensureControllerServiceConfigured(); err != nil {
		return nil, err
	}
	volumeID := req.GetVolumeId()
	if volumeID == "" {
		return nil, status.Error(codes.InvalidArgument, "volume ID is required")
	}
	if req.GetCapacityRange() == nil {
		return nil, status.Error(codes.InvalidArgument, "capacity range is required")
	}
	newCapacityBytes := req.GetCapacityRange().GetRequiredBytes()
	if newCapacityBytes == 0 {
		return nil, status.Error(codes.InvalidArgument, "required bytes must be greater than 0")
	}

	volume, err := d.store.GetVolume(ctx, volumeID)
	if err != nil {
		return nil, status.Errorf(codes.NotFound, "volume %s not found", volumeID)
	}

	if newCapacityBytes <= volume.Spec.CapacityBytes {
		return &csi.ControllerExpandVolumeResponse{
			CapacityBytes:         volume.Spec.CapacityBytes,
			NodeExpansionRequired: false,
		}, nil
	}

	if _, err := d.arcaClient.ExpandQuota(ctx, &arcaclient.ExpandQuotaRequest{
		SVMName:    volume.Spec.SVMName,
		Path:       volume.Spec.Path,
		QuotaBytes: newCapacityBytes,
	}); err != nil {
		return nil, grpcError(err, "expand quota for volume %s", volumeID)
	}

	volume.Spec.CapacityBytes = newCapacityBytes
	if _, err := d.store.UpdateVolume(ctx, volume); err != nil {
		klog.Warningf("failed to update volume metadata for %s: %v", volumeID, err)
	}

	klog.Infof("volume %s expanded successfully to %d bytes", volumeID, newCapacityBytes)
	return &csi.ControllerExpandVolumeResponse{
		CapacityBytes:         newCapacityBytes,
		NodeExpansionRequired: false,
	}, nil
}

func (d *Driver) ControllerGetVolume(ctx context.Context, req *csi.ControllerGetVolumeRequest) (*csi.ControllerGetVolumeResponse, error) {
	return nil, status.Error(codes.Unimplemented, "ControllerGetVolume is not implemented")
}
