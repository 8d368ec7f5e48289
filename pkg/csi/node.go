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
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	mountutils "k8s.io/mount-utils"

	"k8s.io/klog/v2"
)

func (d *Driver) ensureNodeServiceConfigured() error {
	if d.mode != "node" {
		return status.Errorf(codes.FailedPrecondition, "node service is not available in %s mode", d.mode)
	}
	if d.nodeID == "" || d.nodeState == nil || d.mountManager == nil {
		return status.Error(codes.FailedPrecondition, "node service is not configured (run as node plugin with node-id)")
	}
	return nil
}

// validateVolumePath rejects an absolute path or one that could escape the
// SVM root once joined onto the shared mount.
func validateVolumePath(path string) error {
	if path == "" {
		return fmt.Errorf("volume path cannot be empty")
	}
	if filepath.IsAbs(path) {
		return fmt.Errorf("volume path must be relative, not absolute: %s", path)
	}
	cleaned := filepath.Clean(path)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return fmt.Errorf("volume path attempts to escape root: %s", path)
	}
	return nil
}

func validateVIP(vip string) error {
	if vip == "" {
		return fmt.Errorf("VIP cannot be empty")
	}
	if net.ParseIP(vip) == nil {
		return fmt.Errorf("invalid VIP address: %s", vip)
	}
	return nil
}

func (d *Driver) NodeStageVolume(ctx context.Context, req *csi.NodeStageVolumeRequest) (*csi.NodeStageVolumeResponse, error) {
	klog.V(4).Infof("NodeStageVolume called with volumeID: %s", req.GetVolumeId())

	if err := d.ensureNodeServiceConfigured(); err != nil {
		return nil, err
	}
	volumeID := req.GetVolumeId()
	if volumeID == "" {
		return nil, status.Error(codes.InvalidArgument, "volume ID is required")
	}
	stagingTargetPath := req.GetStagingTargetPath()
	if stagingTargetPath == "" {
		return nil, status.Error(codes.InvalidArgument, "staging target path is required")
	}
	if req.GetVolumeCapability() == nil {
		return nil, status.Error(codes.InvalidArgument, "volume capability is required")
	}

	volumeContext := req.GetVolumeContext()
	svmName := volumeContext[volumeContextSVM]
	vip := volumeContext[volumeContextVIP]
	volumePath := volumeContext[volumeContextVolumePath]
	if svmName == "" || vip == "" || volumePath == "" {
		return nil, status.Error(codes.InvalidArgument, "volume context must contain svm, vip, and volumePath")
	}
	if err := validateVIP(vip); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid VIP: %v", err)
	}
	if err := validateVolumePath(volumePath); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid volume path: %v", err)
	}

	klog.V(4).Infof("staging volume %s (SVM: %s, VIP: %s, path: %s) to %s", volumeID, svmName, vip, volumePath, stagingTargetPath)

	svmMountPath, err := d.mountManager.EnsureSVMMount(ctx, svmName, vip)
	if err != nil {
		return nil, grpcError(err, "ensure SVM mount for %s", svmName)
	}

	if err := os.MkdirAll(stagingTargetPath, 0750); err != nil {
		return nil, status.Errorf(codes.Internal, "create staging target directory: %v", err)
	}

	sourcePath := filepath.Join(svmMountPath, volumePath)

	mounter := mountutils.New("")
	notMnt, err := mounter.IsLikelyNotMountPoint(stagingTargetPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, status.Errorf(codes.Internal, "check mount point: %v", err)
		}
		notMnt = true
	}
	if !notMnt {
		klog.V(4).Infof("volume %s already staged at %s", volumeID, stagingTargetPath)
		return &csi.NodeStageVolumeResponse{}, nil
	}

	klog.V(4).Infof("creating bind mount from %s to %s", sourcePath, stagingTargetPath)
	if err := mounter.Mount(sourcePath, stagingTargetPath, "", []string{"bind"}); err != nil {
		return nil, status.Errorf(codes.Internal, "bind mount: %v", err)
	}

	if err := d.nodeState.RecordVolumeStaging(volumeID, svmName, vip, stagingTargetPath); err != nil {
		klog.Warningf("failed to record volume staging, rolling back mount: %v", err)
		if rmErr := d.nodeState.RemoveVolumeStaging(volumeID); rmErr != nil {
			klog.Warningf("failed to remove volume staging during rollback: %v", rmErr)
		}
		if umErr := mounter.Unmount(stagingTargetPath); umErr != nil {
			klog.Warningf("failed to unmount %s during rollback: %v", stagingTargetPath, umErr)
		}
		if rmErr := os.Remove(stagingTargetPath); rmErr != nil && !os.IsNotExist(rmErr) {
			klog.Warningf("failed to remove staging directory %s during rollback: %v", stagingTargetPath, rmErr)
		}
		return nil, status.Errorf(codes.Internal, "persist node state for volume staging: %v", err)
	}

	klog.Infof("volume %s staged successfully at %s", volumeID, stagingTargetPath)
	return &csi.NodeStageVolumeResponse{}, nil
}

func (d *Driver) NodeUnstageVolume(ctx context.Context, req *csi.NodeUnstageVolumeRequest) (*csi.NodeUnstageVolumeResponse, error) {
	klog.V(4).Infof("NodeUnstageVolume called with volumeID: %s", req.GetVolumeId())

	if err := d.ensureNodeServiceConfigured(); err != nil {
		return nil, err
	}
	volumeID := req.GetVolumeId()
	if volumeID == "" {
		return nil, status.Error(codes.InvalidArgument, "volume ID is required")
	}
	stagingTargetPath := req.GetStagingTargetPath()
	if stagingTargetPath == "" {
		return nil, status.Error(codes.InvalidArgument, "staging target path is required")
	}

	svmName, err := d.nodeState.GetSVMForVolume(volumeID)
	if err != nil {
		klog.Warningf("volume %s not found in node state: %v", volumeID, err)
		svmName = ""
	}

	mounter := mountutils.New("")
	notMnt, err := mounter.IsLikelyNotMountPoint(stagingTargetPath)
	if err != nil {
		if os.IsNotExist(err) {
			if rmErr := d.nodeState.RemoveVolumeStaging(volumeID); rmErr != nil {
				klog.Warningf("failed to remove volume staging: %v", rmErr)
			}
			return &csi.NodeUnstageVolumeResponse{}, nil
		}
		return nil, status.Errorf(codes.Internal, "check mount point: %v", err)
	}
	if !notMnt {
		if err := mounter.Unmount(stagingTargetPath); err != nil {
			return nil, status.Errorf(codes.Internal, "unmount: %v", err)
		}
	}
	if err := os.Remove(stagingTargetPath); err != nil && !os.IsNotExist(err) {
		klog.Warningf("failed to remove staging directory %s: %v", stagingTargetPath, err)
	}
	if err := d.nodeState.RemoveVolumeStaging(volumeID); err != nil {
		klog.Warningf("failed to remove volume staging from node state: %v", err)
	}

	if svmName != "" {
		if d.mountManager.ShouldUnmountSVM(ctx, svmName) {
			klog.V(4).Infof("unmounting SVM %s (no more staged volumes)", svmName)
			if err := d.mountManager.UnmountSVM(ctx, svmName); err != nil {
				klog.Warningf("failed to unmount SVM %s: %v", svmName, err)
			}
		}
	}

	klog.Infof("volume %s unstaged successfully from %s", volumeID, stagingTargetPath)
	return &csi.NodeUnstageVolumeResponse{}, nil
}

func (d *Driver) NodePublishVolume(ctx context.Context, req *csi.NodePublishVolumeRequest) (*csi.NodePublishVolumeResponse, error) {
	klog.V(4).Infof("NodePublishVolume called with volumeID: %s", req.GetVolumeId())

	if err := d.ensureNodeServiceConfigured(); err != nil {
		return nil, err
	}
	volumeID := req.GetVolumeId()
	if volumeID == "" {
		return nil, status.Error(codes.InvalidArgument, "volume ID is required")
	}
	stagingTargetPath := req.GetStagingTargetPath()
	if stagingTargetPath == "" {
		return nil, status.Error(codes.InvalidArgument, "staging target path is required")
	}
	targetPath := req.GetTargetPath()
	if targetPath == "" {
		return nil, status.Error(codes.InvalidArgument, "target path is required")
	}
	if req.GetVolumeCapability() == nil {
		return nil, status.Error(codes.InvalidArgument, "volume capability is required")
	}

	klog.V(4).Infof("publishing volume %s from %s to %s", volumeID, stagingTargetPath, targetPath)

	if err := os.MkdirAll(targetPath, 0750); err != nil {
		return nil, status.Errorf(codes.Internal, "create target directory: %v", err)
	}

	mounter := mountutils.New("")
	notMnt, err := mounter.IsLikelyNotMountPoint(targetPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, status.Errorf(codes.Internal, "check mount point: %v", err)
		}
		notMnt = true
	}
	if !notMnt {
		klog.V(4).Infof("volume %s already published at %s", volumeID, targetPath)
		return &csi.NodePublishVolumeResponse{}, nil
	}

	readonly := req.GetReadonly()
	mountOptions := []string{"bind"}
	if mountCap := req.GetVolumeCapability().GetMount(); mountCap != nil {
		for _, opt := range mountCap.GetMountFlags() {
			if opt != "ro" && opt != "rw" {
				mountOptions = append(mountOptions, opt)
			}
		}
	}

	klog.V(4).Infof("creating bind mount from %s to %s with options: %v", stagingTargetPath, targetPath, mountOptions)
	if err := mounter.Mount(stagingTargetPath, targetPath, "", mountOptions); err != nil {
		return nil, status.Errorf(codes.Internal, "bind mount: %v", err)
	}

	if readonly {
		klog.V(4).Infof("remounting %s as read-only", targetPath)
		remountOptions := append(append([]string{}, mountOptions...), "ro", "remount")
		if err := mounter.Mount(stagingTargetPath, targetPath, "", remountOptions); err != nil {
			klog.Errorf("failed to remount as read-only, rolling back: %v", err)
			if umErr := mounter.Unmount(targetPath); umErr != nil {
				klog.Errorf("failed to roll back bind mount: %v", umErr)
			}
			os.Remove(targetPath)
			return nil, status.Errorf(codes.Internal, "remount as read-only: %v", err)
		}
	}

	if err := d.nodeState.RecordVolumePublish(volumeID, targetPath); err != nil {
		klog.Warningf("failed to record volume publish, rolling back mount: %v", err)
		if rmErr := d.nodeState.RemoveVolumePublish(volumeID, targetPath); rmErr != nil {
			klog.Warningf("failed to remove volume publish during rollback: %v", rmErr)
		}
		if umErr := mounter.Unmount(targetPath); umErr != nil {
			klog.Warningf("failed to unmount %s during rollback: %v", targetPath, umErr)
		}
		if rmErr := os.Remove(targetPath); rmErr != nil && !os.IsNotExist(rmErr) {
			klog.Warningf("failed to remove target directory %s during rollback: %v", targetPath, rmErr)
		}
		return nil, status.Errorf(codes.Internal, "persist node state for volume publish: %v", err)
	}

	klog.Infof("volume %s published successfully at %s", volumeID, targetPath)
	return &csi.NodePublishVolumeResponse{}, nil
}

func (d *Driver) NodeUnpublishVolume(ctx context.Context, req *csi.NodeUnpublishVolumeRequest) (*csi.NodeUnpublishVolumeResponse, error) {
	klog.V(4).Infof("NodeUnpublishVolume called with volumeID: %s", req.GetVolumeId())

	if err := d.ensureNodeServiceConfigured(); err != nil {
		return nil, err
	}
	volumeID := req.GetVolumeId()
	if volumeID == "" {
		return nil, status.Error(codes.InvalidArgument, "volume ID is required")
	}
	targetPath := req.GetTargetPath()
	if targetPath == "" {
		return nil, status.Error(codes.InvalidArgument, "target path is required")
	}

	klog.V(4).Infof("unpublishing volume %s from %s", volumeID, targetPath)

	mounter := mountutils.New("")
	notMnt, err := mounter.IsLikelyNotMountPoint(targetPath)
	if err != nil {
		if os.IsNotExist(err) {
			if rmErr := d.nodeState.RemoveVolumePublish(volumeID, targetPath); rmErr != nil {
				klog.Warningf("failed to remove volume publish from node state: %v", rmErr)
			}
			return &csi.NodeUnpublishVolumeResponse{}, nil
		}
		return nil, status.Errorf(codes.Internal, "check mount point: %v", err)
	}
	if !notMnt {
		if err := mounter.Unmount(targetPath); err != nil {
			return nil, status.Errorf(codes.Internal, "unmount: %v", err)
		}
	}
	if err := os.Remove(targetPath); err != nil && !os.IsNotExist(err) {
		klog.Warningf("failed to remove target directory %s: %v", targetPath, err)
	}
	if err := d.nodeState.RemoveVolumePublish(volumeID, targetPath); err != nil {
		klog.Warningf("failed to remove volume publish from node state: %v", err)
	}

	klog.Infof("volume %s unpublished successfully from %s", volumeID, targetPath)
	return &csi.NodeUnpublishVolumeResponse{}, nil
}

func (d *Driver) NodeGetVolumeStats(ctx context.Context, req *csi.NodeGetVolumeStatsRequest) (*csi.NodeGetVolumeStatsResponse, error) {
	klog.V(4).Infof("NodeGetVolumeStats called with volumeID: %s", req.GetVolumeId())

	if err := d.ensureNodeServiceConfigured(); err != nil {
		return nil, err
	}
	if req.GetVolumeId() == "" {
		return nil, status.Error(codes.InvalidArgument, "volume ID is required")
	}
	volumePath := req.GetVolumePath()
	if volumePath == "" {
		return nil, status.Error(codes.InvalidArgument, "volume path is required")
	}

	var statfs syscall.Statfs_t
	if err := syscall.Statfs(volumePath, &statfs); err != nil {
		if os.IsNotExist(err) {
			return nil, status.Errorf(codes.NotFound, "volume path %s does not exist", volumePath)
		}
		return nil, status.Errorf(codes.Internal, "stat volume path: %v", err)
	}

	total := int64(statfs.Blocks) * int64(statfs.Bsize)
	free := int64(statfs.Bavail) * int64(statfs.Bsize)
	used := total - free

	return &csi.NodeGetVolumeStatsResponse{
		Usage: []*csi.VolumeUsage{
			{Unit: csi.VolumeUsage_BYTES, Total: total, Available: free, Used: used},
			{Unit: csi.VolumeUsage_INODES, Total: int64(statfs.Files), Available: int64(statfs.Ffree), Used: int64(statfs.Files - statfs.Ffree)},
		},
	}, nil
}

func (d *Driver) NodeExpandVolume(ctx context.Context, req *csi.NodeExpandVolumeRequest) (*csi.NodeExpandVolumeResponse, error) {
	klog.V(4).Infof("NodeExpandVolume called with volumeID: %s", req.GetVolumeId())

	if err := d.ensureNodeServiceConfigured(); err != nil {
		return nil, err
	}
	if req.GetVolumeId() == "" {
		return nil, status.Error(codes.InvalidArgument, "volume ID is required")
	}

	klog.V(4).Infof("volume %s expansion is handled server-side, no node action required", req.GetVolumeId())
	return &csi.NodeExpandVolumeResponse{}, nil
}

func (d *Driver) NodeGetCapabilities(ctx context.Context, req *csi.NodeGetCapabilitiesRequest) (*csi.NodeGetCapabilitiesResponse, error) {
	klog.V(4).Infof("NodeGetCapabilities called")

	if err := d.ensureNodeServiceConfigured(); err != nil {
		return nil, err
	}

	rpcs := []csi.NodeServiceCapability_RPC_Type{
		csi.NodeServiceCapability_RPC_STAGE_UNSTAGE_VOLUME,
		csi.NodeServiceCapability_RPC_GET_VOLUME_STATS,
		csi.NodeServiceCapability_RPC_EXPAND_VOLUME,
	}
	caps := make([]*csi.NodeServiceCapability, len(rpcs))
	for i, rpc := range rpcs {
		caps[i] = &csi.NodeServiceCapability{
			Type: &csi.NodeServiceCapability_Rpc{
				Rpc: &csi.NodeServiceCapability_RPC{Type: rpc},
			},
		}
	}

	return &csi.NodeGetCapabilitiesResponse{Capabilities: caps}, nil
}

func (d *Driver) NodeGetInfo(ctx context.Context, req *csi.NodeGetInfoRequest) (*csi.NodeGetInfoResponse, error) {
	klog.V(4).Infof("NodeGetInfo called")

	if d.nodeID == "" {
		return nil, status.Error(codes.Unavailable, "node ID not configured")
	}
	return &csi.NodeGetInfoResponse{NodeId: d.nodeID}, nil
}
