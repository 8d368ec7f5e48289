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

package netns

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInferGatewayFirstHostAddress(t *testing.T) {
	gw, err := InferGateway("192.168.10.5/24")
	require.NoError(t, err)
	require.Equal(t, "192.168.10.1", gw)
}

func TestInferGatewaySkipsInterfaceAddress(t *testing.T) {
	gw, err := InferGateway("192.168.10.1/24")
	require.NoError(t, err)
	require.Equal(t, "192.168.10.2", gw)
}

func TestInferGatewayRejectsPointToPointPrefixes(t *testing.T) {
	_, err := InferGateway("10.0.0.1/31")
	require.Error(t, err)
	_, err = InferGateway("10.0.0.1/32")
	require.Error(t, err)
}

func TestInferGatewayRejectsInvalidCIDR(t *testing.T) {
	_, err := InferGateway("not-a-cidr")
	require.Error(t, err)
}
