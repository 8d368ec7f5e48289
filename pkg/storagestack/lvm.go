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

// Package storagestack implements §4.3: LVM thin pool volume lifecycle and
// XFS formatting/mounting/quota management on the primary node.
package storagestack

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/arca-storage/arca/pkg/arcaerrors"
)

// LVM wraps LVM thin-provisioning operations against one volume group.
type LVM struct {
	VGName       string
	ThinpoolName string
}

func lvPath(vgName, lvName string) string {
	return fmt.Sprintf("/dev/%s/%s", vgName, lvName)
}

func runLVM(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	return string(out), err
}

func lvExists(ctx context.Context, path string) bool {
	_, err := runLVM(ctx, "lvdisplay", path)
	return err == nil
}

const giB = 1 << 30

// bytesToGiBCeil rounds sizeBytes up to the nearest whole gibibyte, the
// only unit LVM and xfs_quota accept on their command lines; a 1-byte
// overage in a request never rounds down to less than what was asked for.
func bytesToGiBCeil(sizeBytes int64) int64 {
	if sizeBytes <= 0 {
		return 0
	}
	return (sizeBytes + giB - 1) / giB
}

// CreateLV creates a thin (or thick) logical volume of at least sizeBytes
// and returns its device path. Creating over an existing LV of the same
// name fails loudly; callers that want idempotence should check existence
// first. LVM only sizes in whole gibibytes, so sizeBytes is rounded up.
func (l *LVM) CreateLV(ctx context.Context, lvName string, sizeBytes int64, thin bool) (string, error) {
	path := lvPath(l.VGName, lvName)
	if lvExists(ctx, path) {
		return "", arcaerrors.New(arcaerrors.KindAlreadyExists, "logical volume "+path+" already exists")
	}

	sizeGiB := bytesToGiBCeil(sizeBytes)
	var args []string
	if thin {
		args = []string{"-V", fmt.Sprintf("%dG", sizeGiB), "-T", l.VGName + "/" + l.ThinpoolName, "-n", lvName}
	} else {
		args = []string{"-L", fmt.Sprintf("%dG", sizeGiB), "-n", lvName, l.VGName}
	}

	out, err := runLVM(ctx, "lvcreate", args...)
	if err != nil {
		return "", arcaerrors.Wrapf(arcaerrors.KindTransient, err, "failed to create logical volume %s: %s", path, out)
	}
	return path, nil
}

// ResizeLV grows a logical volume to at least newSizeBytes. Shrinking is
// never attempted by this method's caller (§4.3, §9 Open Questions: shrink
// is rejected everywhere); a request for newSizeBytes <= the volume's
// current size is the caller's responsibility to reject before calling this.
func (l *LVM) ResizeLV(ctx context.Context, lvName string, newSizeBytes int64) error {
	path := lvPath(l.VGName, lvName)
	if !lvExists(ctx, path) {
		return arcaerrors.New(arcaerrors.KindNotFound, "logical volume "+path+" does not exist")
	}
	out, err := runLVM(ctx, "lvextend", "-L", fmt.Sprintf("%dG", bytesToGiBCeil(newSizeBytes)), path)
	if err != nil {
		return arcaerrors.Wrapf(arcaerrors.KindTransient, err, "failed to resize logical volume %s: %s", path, out)
	}
	return nil
}

// DeleteLV deletes a logical volume; absence is success.
func (l *LVM) DeleteLV(ctx context.Context, lvName string) error {
	path := lvPath(l.VGName, lvName)
	if !lvExists(ctx, path) {
		return nil
	}
	out, err := runLVM(ctx, "lvremove", "-f", path)
	if err != nil {
		return arcaerrors.Wrapf(arcaerrors.KindTransient, err, "failed to delete logical volume %s: %s", path, out)
	}
	return nil
}
