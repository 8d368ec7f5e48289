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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, func()) {
	srv := httptest.NewServer(handler)
	c, err := NewClient(&ClientConfig{BaseURL: srv.URL, RetryCount: 0})
	require.NoError(t, err)
	return c, srv.Close
}

func TestCreateSVMFetchesExistingOnConflict(t *testing.T) {
	getCalled := false
	client, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/svms":
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(envelope{Error: "AlreadyExists", Message: "svm exists with different parameters"})
		case r.Method == http.MethodGet && r.URL.Path == "/v1/svms/tenant-a":
			getCalled = true
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(envelope{Data: SVM{Name: "tenant-a", VIP: "10.0.0.5"}})
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})
	defer closeFn()

	svm, err := client.CreateSVM(context.Background(), &CreateSVMRequest{Name: "tenant-a"})
	require.NoError(t, err)
	require.True(t, getCalled)
	require.Equal(t, "10.0.0.5", svm.VIP)
}

func TestDeleteSVMIsIdempotent(t *testing.T) {
	client, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(envelope{Error: "NotFound", Message: "no such svm"})
	})
	defer closeFn()

	require.NoError(t, client.DeleteSVM(context.Background(), "gone"))
}

func TestGetSVMCapacityDecodesData(t *testing.T) {
	client, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/svms/tenant-a/capacity", r.URL.Path)
		json.NewEncoder(w).Encode(envelope{Data: CapacityInfo{TotalBytes: 100, UsedBytes: 40, AvailableBytes: 60}})
	})
	defer closeFn()

	info, err := client.GetSVMCapacity(context.Background(), "tenant-a")
	require.NoError(t, err)
	require.Equal(t, int64(60), info.AvailableBytes)
}

func TestUsedIPsInVLANFiltersByVLAN(t *testing.T) {
	client, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(envelope{Data: []SVM{
			{Name: "a", VLANID: 10, VIP: "10.0.0.1"},
			{Name: "b", VLANID: 20, VIP: "10.0.1.1"},
			{Name: "c", VLANID: 10, VIP: "10.0.0.2"},
		}})
	})
	defer closeFn()

	used, err := client.UsedIPsInVLAN(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, map[string]bool{"10.0.0.1": true, "10.0.0.2": true}, used)
}
