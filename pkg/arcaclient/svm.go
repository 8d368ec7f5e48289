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

package arcaclient

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/arca-storage/arca/pkg/arcaerrors"
	"github.com/arca-storage/arca/pkg/ipalloc"
	"github.com/arca-storage/arca/pkg/lock"
)

const (
	lockTTL     = 30 * time.Second
	maxAttempts = 5
)

// SVMManager provisions one SVM per Kubernetes namespace on demand, the
// CSI controller's half of the create-then-advertise pattern the REST
// server itself uses for a single request.
type SVMManager struct {
	client    *Client
	allocator *ipalloc.Allocator
	lockMgr   *lock.Manager
	mtu       int
}

// NewSVMManager constructs an SVMManager. mtu of 0 defaults to 1500.
func NewSVMManager(client *Client, allocator *ipalloc.Allocator, lockMgr *lock.Manager, mtu int) *SVMManager {
	if mtu == 0 {
		mtu = 1500
	}
	return &SVMManager{client: client, allocator: allocator, lockMgr: lockMgr, mtu: mtu}
}

func svmNameForNamespace(namespace string) string {
	return fmt.Sprintf("k8s-%s", namespace)
}

// EnsureSVM returns the SVM backing namespace, creating it under a
// distributed lock if this is the first volume provisioned there.
func (m *SVMManager) EnsureSVM(ctx context.Context, namespace string) (*SVM, error) {
	svmName := svmNameForNamespace(namespace)

	svm, err := m.client.GetSVM(ctx, svmName)
	if err == nil {
		klog.V(4).Infof("SVM %s already exists (VIP: %s)", svmName, svm.VIP)
		return svm, nil
	}
	if !arcaerrors.IsNotFound(err) {
		return nil, errors.Wrap(err, "failed to check existing SVM")
	}

	return m.createSVMWithLock(ctx, namespace, svmName)
}

func (m *SVMManager) createSVMWithLock(ctx context.Context, namespace, svmName string) (*SVM, error) {
	lockCtx, cancel := context.WithTimeout(ctx, lockTTL)
	defer cancel()

	lockHandle, err := m.lockMgr.AcquireLock(lockCtx, namespace, lockTTL)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to acquire lock for namespace %s", namespace)
	}
	defer func() {
		if err := lockHandle.Release(ctx); err != nil {
			klog.Warningf("failed to release lock for namespace %s: %v", namespace, err)
		}
	}()

	svm, err := m.client.GetSVM(ctx, svmName)
	if err == nil {
		klog.V(4).Infof("SVM %s was created by another controller", svmName)
		return svm, nil
	}
	if !arcaerrors.IsNotFound(err) {
		return nil, errors.Wrap(err, "failed to check existing SVM after lock")
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			klog.V(4).Infof("retrying SVM creation for namespace %s (attempt %d/%d)", namespace, attempt+1, maxAttempts)
		}

		netAlloc, err := m.allocator.Allocate(ctx, namespace, attempt)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to allocate network for namespace %s", namespace)
		}

		req := &CreateSVMRequest{
			Name:    svmName,
			VLANID:  netAlloc.VLANID,
			IPCIDR:  netAlloc.IPCIDR,
			Gateway: netAlloc.Gateway,
			MTU:     m.mtu,
		}

		svm, err = m.client.CreateSVM(ctx, req)
		if err == nil {
			klog.Infof("created SVM %s for namespace %s (VIP: %s, VLAN: %d)", svmName, namespace, svm.VIP, svm.VLANID)
			return svm, nil
		}

		if !arcaerrors.IsNetworkConflict(err) {
			return nil, errors.Wrap(err, "failed to create SVM")
		}

		klog.V(4).Infof("network conflict for namespace %s, retrying with a different IP", namespace)
		backoff := time.Duration(1<<uint(attempt)) * time.Second
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, errors.Errorf("failed to create SVM for namespace %s after %d attempts", namespace, maxAttempts)
}

// DeleteSVM deletes an SVM; absence is success.
func (m *SVMManager) DeleteSVM(ctx context.Context, svmName string) error {
	if err := m.client.DeleteSVM(ctx, svmName); err != nil {
		return errors.Wrapf(err, "failed to delete SVM %s", svmName)
	}
	klog.Infof("deleted SVM %s", svmName)
	return nil
}

// GetSVM retrieves SVM information.
func (m *SVMManager) GetSVM(ctx context.Context, svmName string) (*SVM, error) {
	return m.client.GetSVM(ctx, svmName)
}

// GetSVMForNamespace retrieves the SVM backing namespace, if any.
func (m *SVMManager) GetSVMForNamespace(ctx context.Context, namespace string) (*SVM, error) {
	return m.client.GetSVM(ctx, svmNameForNamespace(namespace))
}
