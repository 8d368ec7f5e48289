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

// Package mount is the CSI node's shared per-SVM NFS mount manager: one
// mount per SVM backing many staged volumes, refcounted off the crash-safe
// NodeState that is this node's single source of truth for volume->SVM
// bindings.
package mount

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"k8s.io/klog/v2"

	"github.com/arca-storage/arca/pkg/arcaerrors"
	"github.com/arca-storage/arca/pkg/atomicfile"
)

// VolumeStaging is one volume's staging record: which SVM it is served
// from and every target path it is currently bind-mounted to.
type VolumeStaging struct {
	VolumeID       string   `json:"volume_id"`
	SVMName        string   `json:"svm_name"`
	VIP            string   `json:"vip"`
	StagingPath    string   `json:"staging_path"`
	PublishedPaths []string `json:"published_paths"`
}

// NodeStateData is the on-disk shape of NodeState.
type NodeStateData struct {
	Volumes map[string]*VolumeStaging `json:"volumes"`
}

// NodeState is the crash-safe, atomically-persisted record of every
// volume staged on this node, keyed by volume ID. It is the only place
// the CSI node service learns which SVM a staged or published volume
// belongs to after a kubelet/plugin restart.
type NodeState struct {
	stateFilePath string
	mu            sync.RWMutex
	data          *NodeStateData
}

// NewNodeState loads stateFilePath, or starts empty if it does not exist.
// A corrupt file is quarantined alongside the original rather than losing
// the whole node's staging state to one bad write.
func NewNodeState(stateFilePath string) (*NodeState, error) {
	ns := &NodeState{
		stateFilePath: stateFilePath,
		data:          &NodeStateData{Volumes: make(map[string]*VolumeStaging)},
	}

	if err := os.MkdirAll(filepath.Dir(stateFilePath), 0750); err != nil {
		return nil, arcaerrors.Wrap(arcaerrors.KindInternal, err, "create node state directory")
	}

	if err := ns.load(); err != nil {
		if os.IsNotExist(err) {
			klog.Infof("no existing node state file at %s, starting empty", stateFilePath)
		} else {
			klog.Warningf("node state file %s is corrupt, quarantining: %v", stateFilePath, err)
			if qerr := ns.quarantineCorruptState(); qerr != nil {
				klog.Warningf("failed to quarantine corrupt node state: %v", qerr)
			}
		}
	}

	return ns, nil
}

// RecordVolumeStaging records that volumeID is staged against svmName/vip
// at stagingPath, overwriting any previous record for the same volume.
func (ns *NodeState) RecordVolumeStaging(volumeID, svmName, vip, stagingPath string) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	ns.data.Volumes[volumeID] = &VolumeStaging{
		VolumeID:    volumeID,
		SVMName:     svmName,
		VIP:         vip,
		StagingPath: stagingPath,
	}
	return ns.persistLocked()
}

// RemoveVolumeStaging drops volumeID's staging record. Absence is success.
func (ns *NodeState) RemoveVolumeStaging(volumeID string) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	delete(ns.data.Volumes, volumeID)
	return ns.persistLocked()
}

// GetSVMForVolume returns the SVM name volumeID is staged against.
func (ns *NodeState) GetSVMForVolume(volumeID string) (string, error) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()

	staging, ok := ns.data.Volumes[volumeID]
	if !ok {
		return "", arcaerrors.New(arcaerrors.KindNotFound, "volume "+volumeID+" not staged on this node")
	}
	return staging.SVMName, nil
}

// GetVIPForVolume returns the VIP volumeID is staged against.
func (ns *NodeState) GetVIPForVolume(volumeID string) (string, error) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()

	staging, ok := ns.data.Volumes[volumeID]
	if !ok {
		return "", arcaerrors.New(arcaerrors.KindNotFound, "volume "+volumeID+" not staged on this node")
	}
	return staging.VIP, nil
}

// CountStagedVolumesForSVM is the refcount behind per-SVM mount lifecycle:
// the SVM mount is kept while this is nonzero.
func (ns *NodeState) CountStagedVolumesForSVM(svmName string) int {
	ns.mu.RLock()
	defer ns.mu.RUnlock()

	count := 0
	for _, staging := range ns.data.Volumes {
		if staging.SVMName == svmName {
			count++
		}
	}
	return count
}

// GetStagedVolumes returns a defensive copy of every staging record.
func (ns *NodeState) GetStagedVolumes() map[string]*VolumeStaging {
	ns.mu.RLock()
	defer ns.mu.RUnlock()

	out := make(map[string]*VolumeStaging, len(ns.data.Volumes))
	for k, v := range ns.data.Volumes {
		cp := *v
		cp.PublishedPaths = append([]string(nil), v.PublishedPaths...)
		out[k] = &cp
	}
	return out
}

// GetUniqueSVMs returns the set of SVMs with at least one staged volume,
// mapped to the VIP used to reach them.
func (ns *NodeState) GetUniqueSVMs() map[string]string {
	ns.mu.RLock()
	defer ns.mu.RUnlock()

	svms := make(map[string]string)
	for _, staging := range ns.data.Volumes {
		svms[staging.SVMName] = staging.VIP
	}
	return svms
}

// RecordVolumePublish appends targetPath to volumeID's published paths.
// Already-present paths are a no-op, matching NodePublishVolume idempotency.
func (ns *NodeState) RecordVolumePublish(volumeID, targetPath string) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	staging, ok := ns.data.Volumes[volumeID]
	if !ok {
		return arcaerrors.New(arcaerrors.KindNotFound, "volume "+volumeID+" not staged on this node")
	}
	for _, p := range staging.PublishedPaths {
		if p == targetPath {
			return nil
		}
	}
	staging.PublishedPaths = append(staging.PublishedPaths, targetPath)
	return ns.persistLocked()
}

// RemoveVolumePublish drops targetPath from volumeID's published paths.
// A missing volume record is idempotent success.
func (ns *NodeState) RemoveVolumePublish(volumeID, targetPath string) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	staging, ok := ns.data.Volumes[volumeID]
	if !ok {
		return nil
	}
	kept := make([]string, 0, len(staging.PublishedPaths))
	for _, p := range staging.PublishedPaths {
		if p != targetPath {
			kept = append(kept, p)
		}
	}
	staging.PublishedPaths = kept
	return ns.persistLocked()
}

func (ns *NodeState) load() error {
	raw, err := os.ReadFile(ns.stateFilePath)
	if err != nil {
		return err
	}

	var data NodeStateData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("unmarshal node state: %w", err)
	}
	if data.Volumes == nil {
		data.Volumes = make(map[string]*VolumeStaging)
	}

	ns.data = &data
	klog.V(2).Infof("loaded node state with %d staged volumes", len(ns.data.Volumes))
	return nil
}

// persistLocked must be called with ns.mu held for writing.
func (ns *NodeState) persistLocked() error {
	raw, err := json.MarshalIndent(ns.data, "", "  ")
	if err != nil {
		return arcaerrors.Wrap(arcaerrors.KindInternal, err, "marshal node state")
	}
	if err := atomicfile.Write(ns.stateFilePath, raw, 0600); err != nil {
		return arcaerrors.Wrap(arcaerrors.KindInternal, err, "persist node state")
	}
	klog.V(4).Infof("persisted node state with %d staged volumes", len(ns.data.Volumes))
	return nil
}

func (ns *NodeState) quarantineCorruptState() error {
	backupPath := fmt.Sprintf("%s.corrupt.%d", ns.stateFilePath, syscall.Getpid())
	if err := os.Rename(ns.stateFilePath, backupPath); err != nil {
		return err
	}
	klog.Warningf("quarantined corrupt node state file to %s", backupPath)
	return nil
}
