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

package arca

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"k8s.io/klog/v2"

	"github.com/arca-storage/arca/pkg/arcaerrors"
	"github.com/arca-storage/arca/pkg/netns"
	"github.com/arca-storage/arca/pkg/resourcehost"
)

func svmNamespace(name string) string { return "svm-" + name }

// CreateSVM implements POST /v1/svms: allocate a VLAN interface name,
// bring the tenant network up, format and mount the shared filesystem,
// register the composite for HA supervision, and render an empty export
// table. A failure of the resource group registration or of the initial
// export render is recorded as a Degraded SVM rather than failing the
// create. A failure of the network or filesystem steps returns the error
// with no record persisted, and the steps already done are not torn down;
// a retried create runs those idempotent steps again (§4.6).
func (s *Server) CreateSVM(ctx context.Context, req CreateSVMRequest) (SVM, bool, error) {
	if req.Name == "" {
		return SVM{}, false, arcaerrors.New(arcaerrors.KindValidation, "name is required")
	}
	if err := netns.Validate(netns.Params{VLANID: req.VLANID, IPCIDR: req.IPCIDR, Gateway: req.Gateway}); err != nil {
		return SVM{}, false, err
	}

	unlock := s.locks.Lock("svm:" + req.Name)
	defer unlock()

	s.mu.RLock()
	existing, ok := s.svms[req.Name]
	s.mu.RUnlock()
	if ok {
		if existing.VLANID == req.VLANID && existing.IPCIDR == req.IPCIDR {
			return *existing, false, nil
		}
		return SVM{}, false, arcaerrors.New(arcaerrors.KindAlreadyExists,
			fmt.Sprintf("svm %s already exists with different network parameters", req.Name))
	}

	for _, other := range s.snapshotSVMs() {
		if other.Name == req.Name {
			continue
		}
		if other.VLANID == req.VLANID {
			return SVM{}, false, arcaerrors.New(arcaerrors.KindNetworkConflict,
				fmt.Sprintf("vlan_id %d already in use by svm %s", req.VLANID, other.Name))
		}
	}

	gateway := req.Gateway
	if gateway == "" {
		derived, err := netns.InferGateway(req.IPCIDR)
		if err != nil {
			return SVM{}, false, err
		}
		gateway = derived
	}

	ifname, err := netns.AllocateVLANInterfaceName(ctx, req.Name, req.VLANID)
	if err != nil {
		return SVM{}, false, arcaerrors.Wrap(arcaerrors.KindTransient, err, "allocate vlan interface name")
	}

	namespace := svmNamespace(req.Name)
	params := netns.Params{
		Namespace:       namespace,
		ParentInterface: s.config.ParentInterface,
		VLANID:          req.VLANID,
		IPCIDR:          req.IPCIDR,
		Gateway:         gateway,
		MTU:             req.MTU,
		IfName:          ifname,
	}
	if err := netns.Start(ctx, params); err != nil {
		return SVM{}, false, err
	}

	mountPath := s.mountPath(req.Name)
	device, err := s.stack.EnsureSVMFilesystem(ctx, req.Name, mountPath, defaultSVMFilesystemBytes)
	if err != nil {
		return SVM{}, false, err
	}

	ip, ipNet, _ := net.ParseCIDR(req.IPCIDR)
	prefix, _ := ipNet.Mask.Size()

	state := SVMStateReady
	if err := s.host.EnsureGroup(ctx, resourcehost.GroupSpec{
		SVMName:          req.Name,
		MountPath:        mountPath,
		Device:           device,
		Namespace:        namespace,
		NFSUnitName:      fmt.Sprintf("nfs-ganesha@%s", req.Name),
		VLANID:           req.VLANID,
		IP:               ip.String(),
		Prefix:           prefix,
		Gateway:          gateway,
		MTU:              req.MTU,
		ParentInterface:  s.config.ParentInterface,
		VGName:           s.config.VGName,
		DRBDResourceName: s.config.DRBDResource,
		CreateFilesystem: false,
	}); err != nil {
		klog.Warningf("svm %s: resource group registration failed, marking degraded: %v", req.Name, err)
		state = SVMStateDegraded
	}

	if _, _, err := s.export.Render(req.Name, s.config.GaneshaProtocols, s.config.GaneshaMountdPort, s.config.GaneshaNLMPort, nil); err != nil {
		klog.Warningf("svm %s: initial export render failed, marking degraded: %v", req.Name, err)
		state = SVMStateDegraded
	}

	svm := SVM{
		Name:      req.Name,
		VLANID:    req.VLANID,
		IPCIDR:    req.IPCIDR,
		VIP:       ip.String(),
		Gateway:   gateway,
		MTU:       req.MTU,
		State:     state,
		Namespace: namespace,
		IfName:    ifname,
		MountPath: mountPath,
		Device:    device,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.svms[req.Name] = &svm
	perr := s.persistSVMsLocked()
	s.mu.Unlock()
	if perr != nil {
		return SVM{}, false, perr
	}

	return svm, true, nil
}

func (s *Server) snapshotSVMs() []*SVM {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*SVM, 0, len(s.svms))
	for _, v := range s.svms {
		out = append(out, v)
	}
	return out
}

// GetSVM implements GET /v1/svms/{name}.
func (s *Server) GetSVM(name string) (SVM, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svm, ok := s.svms[name]
	if !ok {
		return SVM{}, arcaerrors.New(arcaerrors.KindNotFound, "svm "+name+" not found")
	}
	return *svm, nil
}

// ListSVMs implements GET /v1/svms.
func (s *Server) ListSVMs() []SVM {
	svms := s.snapshotSVMs()
	out := make([]SVM, 0, len(svms))
	for _, v := range svms {
		out = append(out, *v)
	}
	return out
}

// GetSVMCapacity implements GET /v1/svms/{name}/capacity, reading actual
// filesystem occupancy off the SVM's mount rather than summing per-volume
// quota caps (§4.6: used_bytes comes from XFS usage accounting, not from
// quota accounting).
func (s *Server) GetSVMCapacity(ctx context.Context, name string) (CapacityInfo, error) {
	svm, err := s.GetSVM(name)
	if err != nil {
		return CapacityInfo{}, err
	}

	used, total, available, err := s.stack.GetFilesystemUsage(svm.MountPath)
	if err != nil {
		return CapacityInfo{}, err
	}

	return CapacityInfo{
		TotalBytes:     total,
		UsedBytes:      used,
		AvailableBytes: available,
	}, nil
}

// DeleteSVM implements DELETE /v1/svms/{name}: reverse order of create.
// Absence is success (§4.6).
func (s *Server) DeleteSVM(ctx context.Context, name string) error {
	unlock := s.locks.Lock("svm:" + name)
	defer unlock()

	s.mu.RLock()
	svm, ok := s.svms[name]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	if err := s.host.RemoveGroup(ctx, name); err != nil {
		return err
	}
	if err := s.stack.RemoveSVMFilesystem(ctx, name, svm.MountPath); err != nil {
		return err
	}
	if err := netns.Stop(ctx, svm.Namespace); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.svms, name)
	for k, v := range s.volumes {
		if v.SVMName == name {
			delete(s.volumes, k)
		}
	}
	for k, d := range s.directories {
		if d.SVMName == name {
			delete(s.directories, k)
		}
	}
	delete(s.exports, name)
	for k, sn := range s.snapshots {
		if sn.SVMName == name {
			delete(s.snapshots, k)
		}
	}
	err := s.persistSVMsLocked()
	if err == nil {
		err = s.persistVolumesLocked()
	}
	if err == nil {
		err = s.persistDirectoriesLocked()
	}
	if err == nil {
		err = s.persistExportsLocked()
	}
	if err == nil {
		err = s.persistSnapshotsLocked()
	}
	s.mu.Unlock()

	return err
}

func (s *HTTPServer) handleSVMsCollection(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	switch req.Method {
	case http.MethodPost:
		var body CreateSVMRequest
		if err := decodeBody(req, &body); err != nil {
			return nil, err
		}
		svm, wasCreated, err := s.arca.CreateSVM(req.Context(), body)
		if err != nil {
			return nil, err
		}
		if wasCreated {
			return created{svm}, nil
		}
		return svm, nil
	case http.MethodGet:
		return s.arca.ListSVMs(), nil
	default:
		return nil, arcaerrors.New(arcaerrors.KindValidation, "method not allowed")
	}
}

func (s *HTTPServer) handleSVMsItem(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	tail := pathTail(req, "/v1/svms/")
	if tail == "" {
		return nil, arcaerrors.New(arcaerrors.KindValidation, "missing svm name")
	}

	name := tail
	wantCapacity := false
	for i := 0; i < len(tail); i++ {
		if tail[i] == '/' {
			name = tail[:i]
			if tail[i+1:] == "capacity" {
				wantCapacity = true
			}
			break
		}
	}

	switch {
	case wantCapacity && req.Method == http.MethodGet:
		return s.arca.GetSVMCapacity(req.Context(), name)
	case req.Method == http.MethodGet:
		return s.arca.GetSVM(name)
	case req.Method == http.MethodDelete:
		return nil, s.arca.DeleteSVM(req.Context(), name)
	default:
		return nil, arcaerrors.New(arcaerrors.KindValidation, "method not allowed")
	}
}
