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
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arca-storage/arca/pkg/arcaerrors"
)

func TestMapResponseErrorUsesEnvelopeKind(t *testing.T) {
	err := mapResponseError(http.StatusConflict, envelope{Error: "NetworkConflict", Message: "vlan collision"})
	require.True(t, arcaerrors.IsNetworkConflict(err))
	require.Contains(t, err.Error(), "vlan collision")
}

func TestMapResponseErrorFallsBackToStatusCode(t *testing.T) {
	err := mapResponseError(http.StatusNotFound, envelope{})
	require.True(t, arcaerrors.IsNotFound(err))
}

func TestMapResponseErrorUnknownKindFallsBackToStatus(t *testing.T) {
	err := mapResponseError(http.StatusServiceUnavailable, envelope{Error: "bogus"})
	require.True(t, arcaerrors.IsTransient(err))
}
