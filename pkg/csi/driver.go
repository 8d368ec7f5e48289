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

// Package csi implements the CSI Identity, Controller and Node gRPC
// services backing the ARCA storage control plane: Controller drives
// pkg/arcaclient to provision SVMs/directories/quotas and records
// resulting volumes in pkg/metastore, Node bind-mounts volumes out of the
// shared per-SVM NFS mount tracked by pkg/mount.
package csi

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"google.golang.org/grpc"
	"k8s.io/klog/v2"

	"github.com/arca-storage/arca/pkg/arcaclient"
	"github.com/arca-storage/arca/pkg/idempotency"
	"github.com/arca-storage/arca/pkg/ipalloc"
	"github.com/arca-storage/arca/pkg/lock"
	"github.com/arca-storage/arca/pkg/metastore"
	"github.com/arca-storage/arca/pkg/mount"
)

const (
	// DriverName is the CSI driver name advertised to kubelet/external-provisioner.
	DriverName = "csi.arca-storage.io"
	// DriverVersion is the CSI driver's own version, independent of the control plane's.
	DriverVersion = "v0.1.0"
	// DefaultStateFilePath is where a node plugin persists its staging records.
	DefaultStateFilePath = "/var/lib/csi-arca-storage/node-volumes.json"
)

// Driver implements csi.IdentityServer, csi.ControllerServer and
// csi.NodeServer. Which of the latter two are actually registered depends
// on Mode; both embed on every Driver value so a single binary can be
// built for either role without a type switch at the RPC layer.
type Driver struct {
	name    string
	version string
	mode    string // "controller" or "node"
	nodeID  string
	ready   bool

	srv      *grpc.Server
	endpoint string

	arcaClient *arcaclient.Client
	svmManager *arcaclient.SVMManager
	allocator  *ipalloc.Allocator
	lockMgr    *lock.Manager
	store      metastore.Store

	mountManager *mount.MountManager
	nodeState    *mount.NodeState

	volumeIDGen   *idempotency.VolumeIDGenerator
	snapshotIDGen *idempotency.SnapshotIDGenerator

	csi.UnimplementedIdentityServer
	csi.UnimplementedControllerServer
	csi.UnimplementedNodeServer
}

// DriverConfig configures NewDriver. Only the fields the requested Mode
// needs must be set: a controller never touches StateFilePath/BaseMountPath,
// a node never touches ArcaClient/SVMManager/Allocator/LockManager/Store.
type DriverConfig struct {
	Name    string
	Version string
	Mode    string
	NodeID  string

	Endpoint string

	ArcaClient  *arcaclient.Client
	SVMManager  *arcaclient.SVMManager
	Allocator   *ipalloc.Allocator
	LockManager *lock.Manager
	Store       metastore.Store

	StateFilePath string
	BaseMountPath string
}

// NewDriver builds a Driver for the role named by cfg.Mode.
func NewDriver(cfg *DriverConfig) (*Driver, error) {
	name := cfg.Name
	if name == "" {
		name = DriverName
	}
	version := cfg.Version
	if version == "" {
		version = DriverVersion
	}

	storeInstance := cfg.Store
	if storeInstance == nil {
		storeInstance = metastore.NewMemoryStore()
	}

	d := &Driver{
		name:          name,
		version:       version,
		mode:          cfg.Mode,
		nodeID:        cfg.NodeID,
		endpoint:      cfg.Endpoint,
		arcaClient:    cfg.ArcaClient,
		svmManager:    cfg.SVMManager,
		allocator:     cfg.Allocator,
		lockMgr:       cfg.LockManager,
		store:         storeInstance,
		volumeIDGen:   idempotency.NewVolumeIDGenerator(),
		snapshotIDGen: idempotency.NewSnapshotIDGenerator(),
	}

	if cfg.Mode == "node" {
		stateFilePath := cfg.StateFilePath
		if stateFilePath == "" {
			stateFilePath = DefaultStateFilePath
		}
		nodeState, err := mount.NewNodeState(stateFilePath)
		if err != nil {
			return nil, fmt.Errorf("initialize node state: %w", err)
		}
		d.nodeState = nodeState

		mountManager, err := mount.NewMountManager(nodeState, cfg.BaseMountPath)
		if err != nil {
			return nil, fmt.Errorf("initialize mount manager: %w", err)
		}
		d.mountManager = mountManager

		klog.Infof("node plugin initialized with state file %s", stateFilePath)
	}

	return d, nil
}

// Run listens on Endpoint (a unix:// or tcp:// URL) and serves until ctx
// is cancelled.
func (d *Driver) Run(ctx context.Context) error {
	u, err := url.Parse(d.endpoint)
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}

	var addr string
	switch u.Scheme {
	case "unix":
		addr = u.Path
		if err := os.Remove(addr); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove existing socket: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(addr), 0750); err != nil {
			return fmt.Errorf("create socket directory: %w", err)
		}
	case "tcp":
		addr = u.Host
	default:
		return fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}

	d.srv = grpc.NewServer(grpc.UnaryInterceptor(d.logGRPC))

	csi.RegisterIdentityServer(d.srv, d)
	switch d.mode {
	case "controller":
		csi.RegisterControllerServer(d.srv, d)
		klog.Info("registered identity and controller services")
	case "node":
		csi.RegisterNodeServer(d.srv, d)
		klog.Info("registered identity and node services")
	default:
		return fmt.Errorf("unknown driver mode %q", d.mode)
	}

	listener, err := net.Listen(u.Scheme, addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", d.endpoint, err)
	}

	klog.Infof("CSI driver %s (%s) listening on %s", d.name, d.version, d.endpoint)
	d.ready = true

	errCh := make(chan error, 1)
	go func() { errCh <- d.srv.Serve(listener) }()

	select {
	case <-ctx.Done():
		klog.Info("shutting down CSI driver")
		d.srv.GracefulStop()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (d *Driver) logGRPC(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	klog.V(3).Infof("gRPC call: %s", info.FullMethod)
	resp, err := handler(ctx, req)
	if err != nil {
		klog.Warningf("gRPC call %s failed: %v", info.FullMethod, err)
	}
	return resp, err
}
