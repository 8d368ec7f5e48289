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

package csi

import (
	"context"
	"testing"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestValidateVolumePath(t *testing.T) {
	require.NoError(t, validateVolumePath("pvc-abc123"))
	require.NoError(t, validateVolumePath("a/b/c"))

	cases := []string{"", "/abs/path", "..", "../escape", "a/../../escape"}
	for _, c := range cases {
		require.Error(t, validateVolumePath(c), "expected error for %q", c)
	}
}

func TestValidateVIP(t *testing.T) {
	require.NoError(t, validateVIP("10.0.0.5"))
	require.Error(t, validateVIP(""))
	require.Error(t, validateVIP("not-an-ip"))
}

func TestNodeRPCsRejectedWhenNotConfigured(t *testing.T) {
	d, err := NewDriver(&DriverConfig{Mode: "controller"})
	require.NoError(t, err)

	_, err = d.NodeStageVolume(context.Background(), &csi.NodeStageVolumeRequest{})
	st, ok := status.FromError(err)
	require.True(t, ok)
	require.Equal(t, codes.FailedPrecondition, st.Code())
}

func TestNodeGetInfoReturnsNodeID(t *testing.T) {
	d, err := NewDriver(&DriverConfig{Mode: "node", NodeID: "node-1", StateFilePath: t.TempDir() + "/state.json", BaseMountPath: t.TempDir()})
	require.NoError(t, err)

	resp, err := d.NodeGetInfo(context.Background(), &csi.NodeGetInfoRequest{})
	require.NoError(t, err)
	require.Equal(t, "node-1", resp.NodeId)
}
