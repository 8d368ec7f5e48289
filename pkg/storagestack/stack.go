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

package storagestack

import (
	"context"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"

	"github.com/arca-storage/arca/pkg/arcaerrors"
)

// Stack composes the LVM and XFS layers into the directory-and-quota
// primitives the REST server's volume and snapshot handlers need: one
// shared XFS filesystem per SVM, one subdirectory with its own project
// quota per volume, and reflink-copy subdirectories for snapshots.
type Stack struct {
	lvm   LVM
	xfs   XFS
	quota Quota
}

// New builds a Stack bound to one volume group and thin pool; every SVM
// this Stack manages shares that pool.
func New(vgName, thinpoolName string) *Stack {
	return &Stack{lvm: LVM{VGName: vgName, ThinpoolName: thinpoolName}}
}

// EnsureSVMFilesystem brings up the thin LV and XFS filesystem backing one
// SVM's shared mount point, formatting and mounting it the first time and
// leaving it alone on subsequent calls.
func (s *Stack) EnsureSVMFilesystem(ctx context.Context, svmName, mountPath string, sizeBytes int64) (string, error) {
	lvName := "svm_" + svmName
	device, err := s.lvm.CreateLV(ctx, lvName, sizeBytes, true)
	if err != nil {
		if arcaerrors.KindOf(err) != arcaerrors.KindAlreadyExists {
			return "", err
		}
		device = lvPath(s.lvm.VGName, lvName)
	} else {
		if err := s.xfs.Format(ctx, device); err != nil {
			return "", err
		}
	}
	if err := s.xfs.Mount(ctx, device, mountPath); err != nil {
		return "", err
	}
	return device, nil
}

// RemoveSVMFilesystem unmounts and destroys the LV backing an SVM; absence
// at any layer is success.
func (s *Stack) RemoveSVMFilesystem(ctx context.Context, svmName, mountPath string) error {
	if err := s.xfs.Unmount(ctx, mountPath); err != nil {
		return err
	}
	return s.lvm.DeleteLV(ctx, "svm_"+svmName)
}

// GrowSVMFilesystem extends both the thin LV and the XFS filesystem on top
// of it to newSizeBytes, rounded up to a whole gibibyte.
func (s *Stack) GrowSVMFilesystem(ctx context.Context, svmName, mountPath string, newSizeBytes int64) error {
	if err := s.lvm.ResizeLV(ctx, "svm_"+svmName, newSizeBytes); err != nil {
		return err
	}
	return s.xfs.Grow(ctx, mountPath)
}

// CreateVolumeDirectory creates a volume's subdirectory under the SVM's
// mount point and caps it with an XFS project quota derived deterministically
// from (svmName, relativePath), so the quota survives a control-plane
// restart without needing to be persisted anywhere.
func (s *Stack) CreateVolumeDirectory(ctx context.Context, svmName, mountPath, relativePath string, sizeBytes int64) error {
	full := filepath.Join(mountPath, relativePath)
	if err := os.MkdirAll(full, 0o770); err != nil {
		return arcaerrors.Wrapf(arcaerrors.KindInternal, err, "failed to create volume directory %s", full)
	}
	projectID := ProjectID(svmName, relativePath)
	if err := s.quota.Set(ctx, mountPath, full, projectID, sizeBytes); err != nil {
		return err
	}
	klog.V(2).Infof("volume directory %s ready with project %d capped at %d bytes", full, projectID, sizeBytes)
	return nil
}

// ResizeVolumeDirectory raises an existing volume directory's quota cap.
// Shrinking is never called; §9's Open Question resolution rejects shrink
// requests at the REST layer before the stack is ever invoked.
func (s *Stack) ResizeVolumeDirectory(ctx context.Context, svmName, mountPath, relativePath string, newSizeBytes int64) error {
	projectID := ProjectID(svmName, relativePath)
	return s.quota.Set(ctx, mountPath, filepath.Join(mountPath, relativePath), projectID, newSizeBytes)
}

// GetVolumeQuota returns the volume directory's observed usage and hard
// cap in bytes, backing the REST GetQuota endpoint (§4.3).
func (s *Stack) GetVolumeQuota(ctx context.Context, svmName, mountPath, relativePath string) (usedBytes, quotaBytes int64, err error) {
	projectID := ProjectID(svmName, relativePath)
	return s.quota.Get(ctx, mountPath, projectID)
}

// GetFilesystemUsage reads an SVM's shared filesystem usage directly off
// the mount, via statfs, rather than through XFS project quota accounting:
// quota tracks a directory's cap, not the filesystem's actual occupancy,
// and §4.6 capacity reporting needs the latter.
func (s *Stack) GetFilesystemUsage(mountPath string) (usedBytes, totalBytes, availableBytes int64, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(mountPath, &st); err != nil {
		return 0, 0, 0, arcaerrors.Wrapf(arcaerrors.KindTransient, err, "failed to statfs %s", mountPath)
	}
	blockSize := int64(st.Bsize)
	totalBytes = int64(st.Blocks) * blockSize
	availableBytes = int64(st.Bavail) * blockSize
	usedBytes = totalBytes - int64(st.Bfree)*blockSize
	return usedBytes, totalBytes, availableBytes, nil
}

// RemoveVolumeDirectory clears the quota and recursively deletes the
// volume's subdirectory; absence is success.
func (s *Stack) RemoveVolumeDirectory(ctx context.Context, svmName, mountPath, relativePath string) error {
	full := filepath.Join(mountPath, relativePath)
	projectID := ProjectID(svmName, relativePath)
	if err := s.quota.Clear(ctx, mountPath, projectID); err != nil {
		klog.Warningf("failed to clear quota for %s before removal: %v", full, err)
	}
	if err := os.RemoveAll(full); err != nil {
		return arcaerrors.Wrapf(arcaerrors.KindInternal, err, "failed to remove volume directory %s", full)
	}
	return nil
}

// Snapshot reflink-copies a volume's directory tree into a new snapshot
// subdirectory. XFS reflinks make this an O(1), space-sharing copy rather
// than a byte-for-byte duplication.
func (s *Stack) Snapshot(ctx context.Context, mountPath, sourceRelativePath, snapshotRelativePath string) error {
	src := filepath.Join(mountPath, sourceRelativePath)
	dst := filepath.Join(mountPath, snapshotRelativePath)
	if _, err := os.Stat(src); err != nil {
		return arcaerrors.Wrapf(arcaerrors.KindNotFound, err, "snapshot source %s does not exist", src)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o770); err != nil {
		return arcaerrors.Wrapf(arcaerrors.KindInternal, err, "failed to create snapshot parent directory for %s", dst)
	}
	out, err := cpReflink(ctx, src, dst)
	if err != nil {
		return arcaerrors.Wrapf(arcaerrors.KindTransient, err, "failed to reflink-copy %s to %s: %s", src, dst, out)
	}
	return nil
}

// RestoreFromSnapshot materializes a new volume directory from an existing
// snapshot, used when a CreateVolume request names a snapshot as its
// content source.
func (s *Stack) RestoreFromSnapshot(ctx context.Context, mountPath, snapshotRelativePath, destRelativePath string) error {
	return s.Snapshot(ctx, mountPath, snapshotRelativePath, destRelativePath)
}
