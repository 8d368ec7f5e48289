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

// Package lock implements the CSI controller's distributed lock: a named
// Kubernetes coordination.k8s.io/v1 Lease per resource, held by this
// process's identity, renewed at one third of its TTL, taken over from a
// holder whose lease has expired.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	coordinationv1 "k8s.io/api/coordination/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	coordinationclient "k8s.io/client-go/kubernetes/typed/coordination/v1"
	"k8s.io/klog/v2"
)

// ErrBusy is returned when a lease is held by another, still-live identity.
var ErrBusy = errors.New("lock held by another identity")

// Manager acquires and releases leases in a single namespace on behalf of one identity.
type Manager struct {
	leases   coordinationclient.LeaseInterface
	identity string
	mu       sync.Mutex
}

// NewManager constructs a lock Manager using identity as the lease holder
// (POD_NAME for controller pods, the node id for node pods — never empty).
func NewManager(leases coordinationclient.LeaseInterface, identity string) *Manager {
	return &Manager{leases: leases, identity: identity}
}

// Handle represents a held lock; call Release to give it up.
type Handle struct {
	name     string
	mgr      *Manager
	cancel   context.CancelFunc
	done     chan struct{}
	lostOnce sync.Once
	lost     chan struct{}
}

// Lost returns a channel that is closed if lease renewal ever fails.
func (h *Handle) Lost() <-chan struct{} { return h.lost }

// AcquireLock acquires (or takes over an expired) lease named name for ttl,
// starting a background renewal loop at ttl/3.
func (m *Manager) AcquireLock(ctx context.Context, name string, ttl time.Duration) (*Handle, error) {
	if err := m.tryAcquireOrTakeover(ctx, name, ttl); err != nil {
		return nil, err
	}

	renewCtx, cancel := context.WithCancel(context.Background())
	h := &Handle{name: name, mgr: m, cancel: cancel, done: make(chan struct{}), lost: make(chan struct{})}

	go m.renewLoop(renewCtx, h, ttl)

	return h, nil
}

func (m *Manager) tryAcquireOrTakeover(ctx context.Context, name string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := metav1.NewMicroTime(time.Now())
	durSec := int32(ttl.Seconds())

	existing, err := m.leases.Get(ctx, name, metav1.GetOptions{})
	if k8serrors.IsNotFound(err) {
		_, createErr := m.leases.Create(ctx, &coordinationv1.Lease{
			ObjectMeta: metav1.ObjectMeta{Name: name},
			Spec: coordinationv1.LeaseSpec{
				HolderIdentity:       &m.identity,
				LeaseDurationSeconds: &durSec,
				RenewTime:            &now,
			},
		}, metav1.CreateOptions{})
		if k8serrors.IsAlreadyExists(createErr) {
			return ErrBusy
		}
		return createErr
	}
	if err != nil {
		return errors.Wrapf(err, "failed to get lease %s", name)
	}

	if !leaseExpired(existing) && existing.Spec.HolderIdentity != nil && *existing.Spec.HolderIdentity != m.identity {
		return ErrBusy
	}

	existing.Spec.HolderIdentity = &m.identity
	existing.Spec.LeaseDurationSeconds = &durSec
	existing.Spec.RenewTime = &now
	_, err = m.leases.Update(ctx, existing, metav1.UpdateOptions{})
	if k8serrors.IsConflict(err) {
		return ErrBusy
	}
	return err
}

func leaseExpired(l *coordinationv1.Lease) bool {
	if l.Spec.RenewTime == nil || l.Spec.LeaseDurationSeconds == nil {
		return true
	}
	deadline := l.Spec.RenewTime.Add(time.Duration(*l.Spec.LeaseDurationSeconds) * time.Second)
	return time.Now().After(deadline)
}

func (m *Manager) renewLoop(ctx context.Context, h *Handle, ttl time.Duration) {
	defer close(h.done)
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.renew(ctx, h.name, ttl); err != nil {
				klog.Warningf("failed to renew lease %s: %v", h.name, err)
				h.lostOnce.Do(func() { close(h.lost) })
				return
			}
		}
	}
}

func (m *Manager) renew(ctx context.Context, name string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lease, err := m.leases.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return err
	}
	if lease.Spec.HolderIdentity == nil || *lease.Spec.HolderIdentity != m.identity {
		return fmt.Errorf("lease %s no longer held by %s", name, m.identity)
	}
	now := metav1.NewMicroTime(time.Now())
	durSec := int32(ttl.Seconds())
	lease.Spec.RenewTime = &now
	lease.Spec.LeaseDurationSeconds = &durSec
	_, err = m.leases.Update(ctx, lease, metav1.UpdateOptions{})
	return err
}

// Release stops renewal and deletes the lease if still held by this identity.
func (h *Handle) Release(ctx context.Context) error {
	h.cancel()
	<-h.done

	h.mgr.mu.Lock()
	defer h.mgr.mu.Unlock()

	lease, err := h.mgr.leases.Get(ctx, h.name, metav1.GetOptions{})
	if k8serrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if lease.Spec.HolderIdentity != nil && *lease.Spec.HolderIdentity != h.mgr.identity {
		// Someone else already took it over; nothing to release.
		return nil
	}
	err = h.mgr.leases.Delete(ctx, h.name, metav1.DeleteOptions{})
	if k8serrors.IsNotFound(err) {
		return nil
	}
	return err
}
