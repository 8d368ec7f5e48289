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
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/arca-storage/arca/pkg/arcaerrors"
)

func TestGrpcErrorMapsKindToCode(t *testing.T) {
	cases := []struct {
		kind arcaerrors.Kind
		code codes.Code
	}{
		{arcaerrors.KindValidation, codes.InvalidArgument},
		{arcaerrors.KindNotFound, codes.NotFound},
		{arcaerrors.KindAlreadyExists, codes.AlreadyExists},
		{arcaerrors.KindCapacity, codes.ResourceExhausted},
		{arcaerrors.KindTransient, codes.Unavailable},
		{arcaerrors.KindStateMachine, codes.FailedPrecondition},
		{arcaerrors.KindNetworkConflict, codes.Aborted},
		{arcaerrors.KindInternal, codes.Internal},
		{arcaerrors.KindCorruption, codes.Internal},
	}

	for _, tc := range cases {
		err := arcaerrors.New(tc.kind, "boom")
		got := grpcError(err, "doing thing %s", "x")
		st, ok := status.FromError(got)
		require.True(t, ok)
		require.Equal(t, tc.code, st.Code())
		require.Contains(t, st.Message(), "doing thing x")
		require.Contains(t, st.Message(), "boom")
	}
}
