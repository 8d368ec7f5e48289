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
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"k8s.io/klog/v2"

	"github.com/arca-storage/arca/pkg/arcaerrors"
	"github.com/arca-storage/arca/pkg/util/hash"
)

// XFS wraps mkfs.xfs/mount/xfs_quota operations against one shared,
// per-SVM XFS filesystem. Per-volume isolation within that filesystem is
// enforced with XFS project quotas, not separate filesystems.
type XFS struct{}

func runXFS(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	return string(out), err
}

// Format creates an XFS filesystem on device with the option set the
// original control plane has always used for its thin-pool-backed SVMs:
// a 4k block size, CRC and finobt metadata, 512-byte inodes with room for
// large ACLs, and an allocation group layout pre-tuned for the thin pool's
// stripe geometry.
func (XFS) Format(ctx context.Context, device string) error {
	args := []string{
		"-b", "size=4096",
		"-m", "crc=1,finobt=1",
		"-i", "size=512,maxpct=25",
		"-d", "agcount=32,su=256k,sw=1",
		device,
	}
	out, err := runXFS(ctx, "mkfs.xfs", args...)
	if err != nil {
		return arcaerrors.Wrapf(arcaerrors.KindTransient, err, "failed to format %s as xfs: %s", device, out)
	}
	return nil
}

// Mount mounts device at mountPath with the tuning options (pquota enables
// the per-volume project quota accounting Quota below relies on) and
// creates mountPath first if it does not exist.
func (XFS) Mount(ctx context.Context, device, mountPath string) error {
	if err := os.MkdirAll(mountPath, 0o755); err != nil {
		return arcaerrors.Wrapf(arcaerrors.KindInternal, err, "failed to create mount point %s", mountPath)
	}
	if mounted, err := isMounted(ctx, mountPath); err != nil {
		return err
	} else if mounted {
		klog.V(4).Infof("%s already mounted", mountPath)
		return nil
	}
	out, err := runXFS(ctx, "mount", "-t", "xfs", "-o", "rw,noatime,nodiratime,logbsize=256k,inode64,pquota", device, mountPath)
	if err != nil {
		return arcaerrors.Wrapf(arcaerrors.KindTransient, err, "failed to mount %s at %s: %s", device, mountPath, out)
	}
	return nil
}

// Unmount unmounts mountPath; absence or an already-unmounted path is
// success.
func (XFS) Unmount(ctx context.Context, mountPath string) error {
	mounted, err := isMounted(ctx, mountPath)
	if err != nil {
		return err
	}
	if !mounted {
		return nil
	}
	out, err := runXFS(ctx, "umount", mountPath)
	if err != nil {
		return arcaerrors.Wrapf(arcaerrors.KindTransient, err, "failed to unmount %s: %s", mountPath, out)
	}
	return nil
}

// Grow extends an already-mounted XFS filesystem to fill its (already
// grown) block device.
func (XFS) Grow(ctx context.Context, mountPath string) error {
	out, err := runXFS(ctx, "xfs_growfs", mountPath)
	if err != nil {
		return arcaerrors.Wrapf(arcaerrors.KindTransient, err, "failed to grow xfs filesystem at %s: %s", mountPath, out)
	}
	return nil
}

func isMounted(ctx context.Context, mountPath string) (bool, error) {
	out, err := runXFS(ctx, "findmnt", "-n", mountPath)
	if err != nil {
		// findmnt exits non-zero when the target is not a mountpoint.
		return false, nil
	}
	return strings.TrimSpace(out) != "", nil
}

// ProjectID derives the deterministic XFS project ID a (svmName, path)
// pair maps to, the same way the original Python exporter derived project
// ids before handing a volume's directory its quota.
func ProjectID(svmName, path string) uint32 {
	return hash.StableProjectID(svmName + "/" + path)
}

// Quota sets, clears, and reads an XFS project quota on a subdirectory of
// an already-mounted filesystem.
type Quota struct{}

// Set assigns projectID to path and caps it at sizeBytes (rounded up to
// the nearest gibibyte, the unit xfs_quota's limit command takes),
// creating the project mapping first if xfs_quota has not seen this id
// before.
func (Quota) Set(ctx context.Context, mountPath, path string, projectID uint32, sizeBytes int64) error {
	projectSpec := fmt.Sprintf("%d:%s", projectID, path)
	out, err := runXFS(ctx, "xfs_quota", "-x", "-c", fmt.Sprintf("project -s %s", projectSpec), mountPath)
	if err != nil {
		return arcaerrors.Wrapf(arcaerrors.KindTransient, err, "failed to register xfs project %d for %s: %s", projectID, path, out)
	}
	limit := fmt.Sprintf("bhard=%dg", bytesToGiBCeil(sizeBytes))
	out, err = runXFS(ctx, "xfs_quota", "-x", "-c", fmt.Sprintf("limit -p %s %d", limit, projectID), mountPath)
	if err != nil {
		return arcaerrors.Wrapf(arcaerrors.KindTransient, err, "failed to set xfs quota for project %d: %s", projectID, out)
	}
	return nil
}

// Clear removes projectID's quota limit, leaving the directory unbounded
// except by the filesystem itself.
func (Quota) Clear(ctx context.Context, mountPath string, projectID uint32) error {
	out, err := runXFS(ctx, "xfs_quota", "-x", "-c", fmt.Sprintf("limit -p bhard=0 %d", projectID), mountPath)
	if err != nil {
		return arcaerrors.Wrapf(arcaerrors.KindTransient, err, "failed to clear xfs quota for project %d: %s", projectID, out)
	}
	return nil
}

// Get reads projectID's current hard limit and observed usage from the
// XFS quota subsystem, both in bytes. "quota -N" reports one line of
// space-separated fields (filesystem, blocks-used, soft, hard, warn,
// grace) in 1 KiB blocks with no header, per xfs_quota(8).
func (Quota) Get(ctx context.Context, mountPath string, projectID uint32) (usedBytes, hardLimitBytes int64, err error) {
	out, runErr := runXFS(ctx, "xfs_quota", "-x", "-c", fmt.Sprintf("quota -N -p %d", projectID), mountPath)
	if runErr != nil {
		return 0, 0, arcaerrors.Wrapf(arcaerrors.KindTransient, runErr, "failed to read xfs quota for project %d: %s", projectID, out)
	}

	fields := strings.Fields(out)
	if len(fields) < 4 {
		return 0, 0, arcaerrors.Wrapf(arcaerrors.KindInternal, nil, "unrecognized xfs_quota output for project %d: %q", projectID, out)
	}

	usedKiB, err1 := strconv.ParseInt(fields[1], 10, 64)
	hardKiB, err2 := strconv.ParseInt(fields[3], 10, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, arcaerrors.Wrapf(arcaerrors.KindInternal, nil, "unparseable xfs_quota output for project %d: %q", projectID, out)
	}

	return usedKiB * 1024, hardKiB * 1024, nil
}
