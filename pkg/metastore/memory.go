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

package metastore

import (
	"context"
	"sort"
	"sync"

	v1alpha1 "github.com/arca-storage/arca/pkg/apis/storage/v1alpha1"
	"github.com/arca-storage/arca/pkg/arcaerrors"
)

// MemoryStore is an in-process Store implementation, the default backing
// store until an operator wires a CRD-backed one.
type MemoryStore struct {
	mu        sync.RWMutex
	volumes   map[string]*v1alpha1.ArcaVolume
	snapshots map[string]*v1alpha1.ArcaSnapshot
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		volumes:   make(map[string]*v1alpha1.ArcaVolume),
		snapshots: make(map[string]*v1alpha1.ArcaSnapshot),
	}
}

func (s *MemoryStore) GetVolume(_ context.Context, volumeID string) (*v1alpha1.ArcaVolume, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.volumes[volumeID]
	if !ok {
		return nil, arcaerrors.New(arcaerrors.KindNotFound, "volume "+volumeID+" not found")
	}
	return v.DeepCopy(), nil
}

func (s *MemoryStore) CreateVolume(_ context.Context, v *v1alpha1.ArcaVolume) (*v1alpha1.ArcaVolume, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.volumes[v.Spec.VolumeID]; exists {
		return nil, arcaerrors.New(arcaerrors.KindAlreadyExists, "volume "+v.Spec.VolumeID+" already exists")
	}
	s.volumes[v.Spec.VolumeID] = v.DeepCopy()
	return v.DeepCopy(), nil
}

func (s *MemoryStore) UpdateVolume(_ context.Context, v *v1alpha1.ArcaVolume) (*v1alpha1.ArcaVolume, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.volumes[v.Spec.VolumeID]; !exists {
		return nil, arcaerrors.New(arcaerrors.KindNotFound, "volume "+v.Spec.VolumeID+" not found")
	}
	s.volumes[v.Spec.VolumeID] = v.DeepCopy()
	return v.DeepCopy(), nil
}

func (s *MemoryStore) DeleteVolume(_ context.Context, volumeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.volumes, volumeID)
	return nil
}

func (s *MemoryStore) ListVolumes(_ context.Context, limit int, continueToken string) (ListResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*v1alpha1.ArcaVolume, 0, len(s.volumes))
	for id, v := range s.volumes {
		if continueToken != "" && id <= continueToken {
			continue
		}
		out = append(out, v.DeepCopy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Spec.VolumeID < out[j].Spec.VolumeID })
	next := ""
	if limit > 0 && len(out) > limit {
		out = out[:limit]
		next = out[limit-1].Spec.VolumeID
	}
	return ListResult{Volumes: out, ContinueToken: next}, nil
}

func (s *MemoryStore) GetSnapshot(_ context.Context, snapshotID string) (*v1alpha1.ArcaSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.snapshots[snapshotID]
	if !ok {
		return nil, arcaerrors.New(arcaerrors.KindNotFound, "snapshot "+snapshotID+" not found")
	}
	return v.DeepCopy(), nil
}

func (s *MemoryStore) CreateSnapshot(_ context.Context, v *v1alpha1.ArcaSnapshot) (*v1alpha1.ArcaSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.snapshots[v.Spec.SnapshotID]; exists {
		return nil, arcaerrors.New(arcaerrors.KindAlreadyExists, "snapshot "+v.Spec.SnapshotID+" already exists")
	}
	s.snapshots[v.Spec.SnapshotID] = v.DeepCopy()
	return v.DeepCopy(), nil
}

func (s *MemoryStore) UpdateSnapshot(_ context.Context, v *v1alpha1.ArcaSnapshot) (*v1alpha1.ArcaSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.snapshots[v.Spec.SnapshotID]; !exists {
		return nil, arcaerrors.New(arcaerrors.KindNotFound, "snapshot "+v.Spec.SnapshotID+" not found")
	}
	s.snapshots[v.Spec.SnapshotID] = v.DeepCopy()
	return v.DeepCopy(), nil
}

func (s *MemoryStore) DeleteSnapshot(_ context.Context, snapshotID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, snapshotID)
	return nil
}

func (s *MemoryStore) ListSnapshots(_ context.Context, limit int, continueToken string) (ListResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*v1alpha1.ArcaSnapshot, 0, len(s.snapshots))
	for id, v := range s.snapshots {
		if continueToken != "" && id <= continueToken {
			continue
		}
		out = append(out, v.DeepCopy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Spec.SnapshotID < out[j].Spec.SnapshotID })
	next := ""
	if limit > 0 && len(out) > limit {
		out = out[:limit]
		next = out[limit-1].Spec.SnapshotID
	}
	return ListResult{Snapshots: out, ContinueToken: next}, nil
}
