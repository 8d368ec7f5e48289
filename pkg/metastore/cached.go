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
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"k8s.io/klog/v2"

	v1alpha1 "github.com/arca-storage/arca/pkg/apis/storage/v1alpha1"
)

const (
	defaultCacheSize = 1024
	defaultCacheTTL  = 5 * time.Second
)

type cacheEntry struct {
	volume    *v1alpha1.ArcaVolume
	snapshot  *v1alpha1.ArcaSnapshot
	expiresAt time.Time
}

// CachedStore wraps a backing Store with a short-TTL LRU read cache. Writes
// always go straight to the backing store and invalidate the written key;
// cached values are deep copies so callers can never mutate shared state.
// List operations always bypass the cache to honor the backing store's
// continuation token.
type CachedStore struct {
	backing Store
	cache   *lru.Cache[string, *cacheEntry]
	ttl     time.Duration
	mu      sync.Mutex
}

// NewCachedStore wraps backing with an LRU cache of the given size and TTL.
// A size or ttl of zero selects the defaults.
func NewCachedStore(backing Store, size int, ttl time.Duration) (*CachedStore, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	cache, err := lru.New[string, *cacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &CachedStore{backing: backing, cache: cache, ttl: ttl}, nil
}

func volumeKey(id string) string   { return "volume/" + id }
func snapshotKey(id string) string { return "snapshot/" + id }

func (c *CachedStore) GetVolume(ctx context.Context, volumeID string) (*v1alpha1.ArcaVolume, error) {
	key := volumeKey(volumeID)
	c.mu.Lock()
	if entry, ok := c.cache.Get(key); ok && time.Now().Before(entry.expiresAt) {
		c.mu.Unlock()
		klog.V(4).Infof("metastore cache hit for %s", key)
		return entry.volume.DeepCopy(), nil
	}
	c.mu.Unlock()

	v, err := c.backing.GetVolume(ctx, volumeID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.cache.Add(key, &cacheEntry{volume: v.DeepCopy(), expiresAt: time.Now().Add(c.ttl)})
	c.mu.Unlock()
	return v, nil
}

func (c *CachedStore) CreateVolume(ctx context.Context, v *v1alpha1.ArcaVolume) (*v1alpha1.ArcaVolume, error) {
	out, err := c.backing.CreateVolume(ctx, v)
	c.invalidate(volumeKey(v.Spec.VolumeID))
	return out, err
}

func (c *CachedStore) UpdateVolume(ctx context.Context, v *v1alpha1.ArcaVolume) (*v1alpha1.ArcaVolume, error) {
	out, err := c.backing.UpdateVolume(ctx, v)
	c.invalidate(volumeKey(v.Spec.VolumeID))
	return out, err
}

func (c *CachedStore) DeleteVolume(ctx context.Context, volumeID string) error {
	err := c.backing.DeleteVolume(ctx, volumeID)
	c.invalidate(volumeKey(volumeID))
	return err
}

func (c *CachedStore) ListVolumes(ctx context.Context, limit int, continueToken string) (ListResult, error) {
	return c.backing.ListVolumes(ctx, limit, continueToken)
}

func (c *CachedStore) GetSnapshot(ctx context.Context, snapshotID string) (*v1alpha1.ArcaSnapshot, error) {
	key := snapshotKey(snapshotID)
	c.mu.Lock()
	if entry, ok := c.cache.Get(key); ok && time.Now().Before(entry.expiresAt) {
		c.mu.Unlock()
		klog.V(4).Infof("metastore cache hit for %s", key)
		return entry.snapshot.DeepCopy(), nil
	}
	c.mu.Unlock()

	v, err := c.backing.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.cache.Add(key, &cacheEntry{snapshot: v.DeepCopy(), expiresAt: time.Now().Add(c.ttl)})
	c.mu.Unlock()
	return v, nil
}

func (c *CachedStore) CreateSnapshot(ctx context.Context, s *v1alpha1.ArcaSnapshot) (*v1alpha1.ArcaSnapshot, error) {
	out, err := c.backing.CreateSnapshot(ctx, s)
	c.invalidate(snapshotKey(s.Spec.SnapshotID))
	return out, err
}

func (c *CachedStore) UpdateSnapshot(ctx context.Context, s *v1alpha1.ArcaSnapshot) (*v1alpha1.ArcaSnapshot, error) {
	out, err := c.backing.UpdateSnapshot(ctx, s)
	c.invalidate(snapshotKey(s.Spec.SnapshotID))
	return out, err
}

func (c *CachedStore) DeleteSnapshot(ctx context.Context, snapshotID string) error {
	err := c.backing.DeleteSnapshot(ctx, snapshotID)
	c.invalidate(snapshotKey(snapshotID))
	return err
}

func (c *CachedStore) ListSnapshots(ctx context.Context, limit int, continueToken string) (ListResult, error) {
	return c.backing.ListSnapshots(ctx, limit, continueToken)
}

func (c *CachedStore) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Remove(key)
}
