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
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"k8s.io/klog/v2"

	"github.com/arca-storage/arca/pkg/config"
	"github.com/arca-storage/arca/pkg/exporter"
	"github.com/arca-storage/arca/pkg/resourcehost"
	"github.com/arca-storage/arca/pkg/server/arca/statestore"
	"github.com/arca-storage/arca/pkg/storagestack"
)

// defaultSVMFilesystemBytes is the virtual size given to a new SVM's thin
// filesystem. Capacity is thin-provisioned (§4.3, GLOSSARY): the value
// bounds how large the shared filesystem can eventually grow to, not how
// much of the pool is committed up front.
const defaultSVMFilesystemBytes = 1 << 40 // 1 TiB

// Server holds the ARCA control plane's full in-memory record set plus the
// resource contracts (§4.1-§4.5) it orchestrates on every mutation. State
// is persisted to statestore after every successful side effect, never
// before, so a crash mid-operation always leaves a fixable, honestly
// reported record rather than a lie.
type Server struct {
	config *config.Config
	stack  *storagestack.Stack
	host   resourcehost.ResourceHost
	export *exporter.Exporter
	store  *statestore.Store
	locks  *KeyLock
	logger *log.Logger

	mu          sync.RWMutex
	svms        map[string]*SVM
	volumes     map[string]*Volume            // key: svm+"/"+name
	directories map[string]*Directory         // key: svm+"/"+path
	exports     map[string]map[int]*Export    // key: svm -> export_id
	snapshots   map[string]*Snapshot          // key: svm+"/"+snapshot_path
}

// NewServer wires the control-plane resource contracts together and loads
// any previously persisted records from disk.
func NewServer(cfg config.Config, host resourcehost.ResourceHost) (*Server, error) {
	stateDir := config.StateDir(cfg)
	store, err := statestore.New(filepath.Join(stateDir, "arca"))
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.GaneshaConfigDir, 0o755); err != nil {
		klog.Warningf("failed to pre-create ganesha config dir %s: %v", cfg.GaneshaConfigDir, err)
	}
	snapshotDir := filepath.Join(stateDir, "exporter-snapshots")

	s := &Server{
		config:      &cfg,
		stack:       storagestack.New(cfg.VGName, cfg.ThinpoolName),
		host:        host,
		export:      exporter.NewExporter(cfg.GaneshaConfigDir, snapshotDir, exporter.SystemdReloader{}),
		store:       store,
		locks:       NewKeyLock(),
		logger:      log.New(os.Stderr, "", log.LstdFlags),
		svms:        map[string]*SVM{},
		volumes:     map[string]*Volume{},
		directories: map[string]*Directory{},
		exports:     map[string]map[int]*Export{},
		snapshots:   map[string]*Snapshot{},
	}

	if err := s.loadState(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) loadState() error {
	var svms []*SVM
	if err := s.store.Load("svms", &svms); err != nil {
		return err
	}
	for _, svm := range svms {
		s.svms[svm.Name] = svm
	}

	var volumes []*Volume
	if err := s.store.Load("volumes", &volumes); err != nil {
		return err
	}
	for _, v := range volumes {
		s.volumes[v.SVMName+"/"+v.Name] = v
	}

	var directories []*Directory
	if err := s.store.Load("directories", &directories); err != nil {
		return err
	}
	for _, d := range directories {
		s.directories[d.SVMName+"/"+d.Path] = d
	}

	var exports []*Export
	if err := s.store.Load("exports", &exports); err != nil {
		return err
	}
	for _, e := range exports {
		if s.exports[e.SVMName] == nil {
			s.exports[e.SVMName] = map[int]*Export{}
		}
		s.exports[e.SVMName][e.ExportID] = e
	}

	var snapshots []*Snapshot
	if err := s.store.Load("snapshots", &snapshots); err != nil {
		return err
	}
	for _, sn := range snapshots {
		s.snapshots[sn.SVMName+"/"+sn.SnapshotPath] = sn
	}

	klog.Infof("loaded state: %d svms, %d volumes, %d directories, %d exports, %d snapshots",
		len(s.svms), len(s.volumes), len(s.directories), len(s.exports), len(s.snapshots))
	return nil
}

// persistSVMs, persistVolumes etc. must be called with s.mu held (read or
// write) by the caller; each rewrites its whole collection file, matching
// the original state store's coarse whole-collection persistence model.

func (s *Server) persistSVMsLocked() error {
	out := make([]*SVM, 0, len(s.svms))
	for _, v := range s.svms {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return s.store.Save("svms", out)
}

func (s *Server) persistVolumesLocked() error {
	out := make([]*Volume, 0, len(s.volumes))
	for _, v := range s.volumes {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SVMName != out[j].SVMName {
			return out[i].SVMName < out[j].SVMName
		}
		return out[i].Name < out[j].Name
	})
	return s.store.Save("volumes", out)
}

func (s *Server) persistDirectoriesLocked() error {
	out := make([]*Directory, 0, len(s.directories))
	for _, d := range s.directories {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SVMName != out[j].SVMName {
			return out[i].SVMName < out[j].SVMName
		}
		return out[i].Path < out[j].Path
	})
	return s.store.Save("directories", out)
}

func (s *Server) persistExportsLocked() error {
	var out []*Export
	for _, bySVM := range s.exports {
		for _, e := range bySVM {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SVMName != out[j].SVMName {
			return out[i].SVMName < out[j].SVMName
		}
		return out[i].ExportID < out[j].ExportID
	})
	return s.store.Save("exports", out)
}

func (s *Server) persistSnapshotsLocked() error {
	out := make([]*Snapshot, 0, len(s.snapshots))
	for _, sn := range s.snapshots {
		out = append(out, sn)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SVMName != out[j].SVMName {
			return out[i].SVMName < out[j].SVMName
		}
		return out[i].SnapshotPath < out[j].SnapshotPath
	})
	return s.store.Save("snapshots", out)
}

func (s *Server) mountPath(svmName string) string {
	return filepath.Join(s.config.ExportDir, svmName)
}

// exportsForLocked converts an SVM's export table into the shape
// pkg/exporter needs. The slice is in map order; pkg/exporter sorts it
// before rendering.
func (s *Server) exportsForLocked(svmName string) []exporter.Export {
	var out []exporter.Export
	for _, e := range s.exports[svmName] {
		out = append(out, exporter.Export{
			ExportID:   e.ExportID,
			Path:       e.Path,
			Pseudo:     e.Path,
			ClientCIDR: e.ClientCIDR,
			Access:     e.Access,
			Squash:     e.Squash,
			Sec:        e.Sec,
		})
	}
	return out
}
