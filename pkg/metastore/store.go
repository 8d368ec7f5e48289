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

// Package metastore is the CSI controller's cluster-scoped metadata store
// for ArcaVolume/ArcaSnapshot records: typed errors, an LRU read cache with
// deep-copy-on-read and write-invalidates-key semantics, and a pluggable
// backing Store interface. The only implementation in this package is the
// in-process MemoryStore; there is no CRD-backed Store, so records are not
// persisted outside the controller process.
package metastore

import (
	"context"

	v1alpha1 "github.com/arca-storage/arca/pkg/apis/storage/v1alpha1"
)

// ListResult is a page of records plus a continuation token, honored by
// the backing store and never served from cache.
type ListResult struct {
	Volumes        []*v1alpha1.ArcaVolume
	Snapshots      []*v1alpha1.ArcaSnapshot
	ContinueToken string
}

// Store is the backing persistence contract for ArcaVolume/ArcaSnapshot records.
type Store interface {
	GetVolume(ctx context.Context, volumeID string) (*v1alpha1.ArcaVolume, error)
	CreateVolume(ctx context.Context, v *v1alpha1.ArcaVolume) (*v1alpha1.ArcaVolume, error)
	UpdateVolume(ctx context.Context, v *v1alpha1.ArcaVolume) (*v1alpha1.ArcaVolume, error)
	DeleteVolume(ctx context.Context, volumeID string) error
	ListVolumes(ctx context.Context, limit int, continueToken string) (ListResult, error)

	GetSnapshot(ctx context.Context, snapshotID string) (*v1alpha1.ArcaSnapshot, error)
	CreateSnapshot(ctx context.Context, s *v1alpha1.ArcaSnapshot) (*v1alpha1.ArcaSnapshot, error)
	UpdateSnapshot(ctx context.Context, s *v1alpha1.ArcaSnapshot) (*v1alpha1.ArcaSnapshot, error)
	DeleteSnapshot(ctx context.Context, snapshotID string) error
	ListSnapshots(ctx context.Context, limit int, continueToken string) (ListResult, error)
}
