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

// Package resourcehost implements the HA Resource Host contract: composite
// "SVM resource groups" with strict startup ordering (filesystem mount ->
// netns up -> NFS daemon up), running on exactly one node at a time. The
// control plane never restarts a single resource in isolation; it asks the
// host to ensure, remove, move, or report the status of a whole group.
package resourcehost

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/arca-storage/arca/pkg/arcaerrors"
)

// Status is the reported state of a resource group.
type Status string

const (
	StatusStarted      Status = "Started"
	StatusStopped      Status = "Stopped"
	StatusFailed       Status = "Failed"
	StatusTransitioning Status = "Transitioning"
)

// GroupSpec describes the composite resources an SVM resource group wraps.
type GroupSpec struct {
	SVMName           string
	MountPath         string
	Device            string
	Namespace         string
	NFSUnitName       string
	VLANID            int
	IP                string
	Prefix            int
	Gateway           string
	MTU               int
	ParentInterface   string
	VGName            string
	DRBDResourceName  string
	CreateFilesystem  bool
}

// ResourceHost is the contract §4.1 demands: place/move/stop a group on a
// node, and report its status. Monitoring and single-resource restart are
// the host's job, never the control plane's.
type ResourceHost interface {
	EnsureGroup(ctx context.Context, spec GroupSpec) error
	RemoveGroup(ctx context.Context, svmName string) error
	MoveGroup(ctx context.Context, svmName, targetNode string) error
	Status(ctx context.Context, svmName string) (Status, error)
}

// PCSResourceHost implements ResourceHost against a Pacemaker cluster via
// the `pcs` CLI, one concrete resource-agent-vendor choice among several
// the §4.1 contract allows.
type PCSResourceHost struct {
	raVendor string
}

// NewPCSResourceHost constructs a PCSResourceHost. raVendor names the
// resource-agent provider prefix (e.g. "heartbeat") pcs should use for the
// generic resources it creates.
func NewPCSResourceHost(raVendor string) *PCSResourceHost {
	if raVendor == "" {
		raVendor = "heartbeat"
	}
	return &PCSResourceHost{raVendor: raVendor}
}

func groupName(svmName string) string { return fmt.Sprintf("g_svm_%s", svmName) }

func runPCS(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "pcs", args...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// EnsureGroup is idempotent: if the group already exists it is left alone.
func (h *PCSResourceHost) EnsureGroup(ctx context.Context, spec GroupSpec) error {
	group := groupName(spec.SVMName)

	if _, err := runPCS(ctx, "resource", "show", group); err == nil {
		klog.V(4).Infof("resource group %s already exists", group)
		return nil
	}

	fsResource := "fs_" + spec.SVMName
	if spec.CreateFilesystem {
		out, err := runPCS(ctx, "resource", "create", fsResource,
			fmt.Sprintf("ocf:%s:Filesystem", h.raVendor),
			"device="+spec.Device,
			"directory="+spec.MountPath,
			"fstype=xfs",
			"op", "monitor", "interval=10s")
		if err != nil {
			return arcaerrors.Wrapf(arcaerrors.KindTransient, err, "failed to create Filesystem resource: %s", out)
		}
	}

	netnsResource := "netns_" + spec.SVMName
	out, err := runPCS(ctx, "resource", "create", netnsResource,
		fmt.Sprintf("ocf:%s:NetnsVlan", h.raVendor),
		"namespace="+spec.Namespace,
		fmt.Sprintf("vlan_id=%d", spec.VLANID),
		"ip="+spec.IP,
		fmt.Sprintf("prefix=%d", spec.Prefix),
		"gateway="+spec.Gateway,
		fmt.Sprintf("mtu=%d", spec.MTU),
		"parent_if="+spec.ParentInterface,
		"op", "monitor", "interval=10s")
	if err != nil {
		return arcaerrors.Wrapf(arcaerrors.KindTransient, err, "failed to create NetnsVlan resource: %s", out)
	}

	ganeshaResource := "ganesha_" + spec.SVMName
	out, err = runPCS(ctx, "resource", "create", ganeshaResource,
		"systemd:nfs-ganesha@",
		"instance="+spec.SVMName,
		"op", "monitor", "interval=10s")
	if err != nil {
		return arcaerrors.Wrapf(arcaerrors.KindTransient, err, "failed to create NFS daemon resource: %s", out)
	}

	members := []string{netnsResource, ganeshaResource}
	if spec.CreateFilesystem {
		members = append([]string{fsResource}, members...)
	}
	args := append([]string{"resource", "group", "add", group}, members...)
	if out, err := runPCS(ctx, args...); err != nil {
		return arcaerrors.Wrapf(arcaerrors.KindTransient, err, "failed to create resource group: %s", out)
	}

	klog.Infof("created resource group %s (members: %s)", group, strings.Join(members, ", "))
	return nil
}

// RemoveGroup tears a group down; absence is success.
func (h *PCSResourceHost) RemoveGroup(ctx context.Context, svmName string) error {
	group := groupName(svmName)

	if _, err := runPCS(ctx, "resource", "show", group); err != nil {
		klog.V(4).Infof("resource group %s does not exist, nothing to remove", group)
		return nil
	}

	if _, err := runPCS(ctx, "resource", "disable", group); err != nil {
		klog.Warningf("failed to disable resource group %s before delete: %v", group, err)
	}

	out, err := runPCS(ctx, "resource", "delete", group)
	if err != nil {
		return arcaerrors.Wrapf(arcaerrors.KindTransient, err, "failed to delete resource group %s: %s", group, out)
	}
	return nil
}

// MoveGroup asks Pacemaker to relocate a group to targetNode.
func (h *PCSResourceHost) MoveGroup(ctx context.Context, svmName, targetNode string) error {
	group := groupName(svmName)
	out, err := runPCS(ctx, "resource", "move", group, targetNode)
	if err != nil {
		return arcaerrors.Wrapf(arcaerrors.KindTransient, err, "failed to move resource group %s to %s: %s", group, targetNode, out)
	}
	return nil
}

// Status reports the current state of the group, mapped from pcs output.
func (h *PCSResourceHost) Status(ctx context.Context, svmName string) (Status, error) {
	group := groupName(svmName)
	out, err := runPCS(ctx, "resource", "status", group)
	if err != nil {
		return StatusFailed, errors.Wrapf(err, "failed to query status of %s", group)
	}
	switch {
	case strings.Contains(out, "Started"):
		return StatusStarted, nil
	case strings.Contains(out, "Stopped"):
		return StatusStopped, nil
	case strings.Contains(out, "FAILED"):
		return StatusFailed, nil
	default:
		return StatusTransitioning, nil
	}
}
