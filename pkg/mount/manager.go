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

package mount

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	mountutils "k8s.io/mount-utils"

	"k8s.io/klog/v2"

	"github.com/arca-storage/arca/pkg/arcaerrors"
)

// SVMMount is one shared, refcounted NFS mount of an SVM's root export.
type SVMMount struct {
	SVMName   string
	VIP       string
	MountPath string
}

// MountManager owns the single shared NFS mount per SVM that every staged
// volume on this node is bind-mounted out of. Lifecycle is refcounted off
// NodeState: the SVM mount is created on first staged volume and torn down
// once the last one unstages.
type MountManager struct {
	mu            sync.Mutex
	mounts        map[string]*SVMMount
	nodeState     *NodeState
	baseMountPath string
	mounter       mountutils.Interface
}

// DefaultBaseMountPath is where per-SVM NFS mounts live when unconfigured.
const DefaultBaseMountPath = "/var/lib/kubelet/plugins/csi.arca-storage.io/mounts"

// NewMountManager constructs a MountManager rooted at baseMountPath
// (defaulting to DefaultBaseMountPath) and reconciles it against
// nodeState so a restarted kubelet/plugin rediscovers mounts it already
// owns instead of leaking or re-mounting them.
func NewMountManager(nodeState *NodeState, baseMountPath string) (*MountManager, error) {
	if baseMountPath == "" {
		baseMountPath = DefaultBaseMountPath
	}
	if err := os.MkdirAll(baseMountPath, 0750); err != nil {
		return nil, arcaerrors.Wrap(arcaerrors.KindInternal, err, "create base mount path")
	}

	m := &MountManager{
		mounts:        make(map[string]*SVMMount),
		nodeState:     nodeState,
		baseMountPath: baseMountPath,
		mounter:       mountutils.New(""),
	}
	m.reconcile()
	return m, nil
}

// reconcile restores mount tracking for every SVM NodeState still
// references, remounting any that are missing on disk.
func (m *MountManager) reconcile() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for svmName, vip := range m.nodeState.GetUniqueSVMs() {
		mountPath := m.getMountPath(svmName)
		notMount, err := m.mounter.IsLikelyNotMountPoint(mountPath)
		if err != nil && !os.IsNotExist(err) {
			klog.Warningf("reconcile: checking mount point for SVM %s: %v", svmName, err)
			continue
		}
		if err != nil || notMount {
			if _, merr := m.mountSVMLocked(svmName, vip); merr != nil {
				klog.Warningf("reconcile: failed to remount SVM %s: %v", svmName, merr)
			}
			continue
		}
		m.mounts[svmName] = &SVMMount{SVMName: svmName, VIP: vip, MountPath: mountPath}
	}
}

// EnsureSVMMount returns the mount path for svmName's NFS export, mounting
// it if this is the first volume on this node to need it.
func (m *MountManager) EnsureSVMMount(ctx context.Context, svmName, vip string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.mounts[svmName]; ok {
		notMount, err := m.mounter.IsLikelyNotMountPoint(existing.MountPath)
		if err == nil && !notMount {
			return existing.MountPath, nil
		}
		delete(m.mounts, svmName)
	}

	return m.mountSVMLocked(svmName, vip)
}

func (m *MountManager) mountSVMLocked(svmName, vip string) (string, error) {
	mountPath := m.getMountPath(svmName)
	if err := os.MkdirAll(mountPath, 0750); err != nil {
		return "", arcaerrors.Wrap(arcaerrors.KindInternal, err, "create SVM mount point")
	}

	source := nfsExportSource(vip, svmName)
	if err := m.mounter.Mount(source, mountPath, "nfs4", defaultNFSMountOptions()); err != nil {
		return "", arcaerrors.Wrapf(arcaerrors.KindTransient, err, "mount SVM %s export from %s", svmName, source)
	}

	m.mounts[svmName] = &SVMMount{SVMName: svmName, VIP: vip, MountPath: mountPath}
	klog.V(2).Infof("mounted SVM %s export %s at %s", svmName, source, mountPath)
	return mountPath, nil
}

// ShouldUnmountSVM reports whether svmName has no staged volumes left on
// this node and its mount can be torn down.
func (m *MountManager) ShouldUnmountSVM(_ context.Context, svmName string) bool {
	return m.nodeState.CountStagedVolumesForSVM(svmName) == 0
}

// UnmountSVM tears down svmName's shared mount. Callers must have already
// confirmed via ShouldUnmountSVM that no staged volume still needs it; a
// nonzero refcount observed here under the lock aborts rather than racing
// an in-flight NodeStageVolume.
func (m *MountManager) UnmountSVM(_ context.Context, svmName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.mounts[svmName]
	if !ok {
		return nil
	}
	if count := m.nodeState.CountStagedVolumesForSVM(svmName); count > 0 {
		return arcaerrors.Wrapf(arcaerrors.KindStateMachine, nil, "SVM %s still has %d staged volumes", svmName, count)
	}

	if err := m.mounter.Unmount(existing.MountPath); err != nil {
		return arcaerrors.Wrapf(arcaerrors.KindTransient, err, "unmount SVM %s", svmName)
	}
	if err := os.Remove(existing.MountPath); err != nil && !os.IsNotExist(err) {
		klog.Warningf("failed to remove SVM mount point %s: %v", existing.MountPath, err)
	}
	delete(m.mounts, svmName)
	klog.V(2).Infof("unmounted SVM %s", svmName)
	return nil
}

// GetMountPath returns the mount path currently tracked for svmName, if any.
func (m *MountManager) GetMountPath(svmName string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mnt, ok := m.mounts[svmName]
	if !ok {
		return "", false
	}
	return mnt.MountPath, true
}

func (m *MountManager) getMountPath(svmName string) string {
	return filepath.Join(m.baseMountPath, svmName)
}
