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
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/arca-storage/arca/pkg/arcaerrors"
)

// grpcError maps an arcaerrors.Kind to the gRPC status the CSI spec expects
// for it, the same closed-enum switch the REST server uses for HTTP status.
// format/args describe the operation being attempted; err's own message is
// appended.
func grpcError(err error, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...) + ": " + err.Error()
	switch arcaerrors.KindOf(err) {
	case arcaerrors.KindValidation:
		return status.Error(codes.InvalidArgument, msg)
	case arcaerrors.KindNotFound:
		return status.Error(codes.NotFound, msg)
	case arcaerrors.KindAlreadyExists:
		return status.Error(codes.AlreadyExists, msg)
	case arcaerrors.KindCapacity:
		return status.Error(codes.ResourceExhausted, msg)
	case arcaerrors.KindTransient:
		return status.Error(codes.Unavailable, msg)
	case arcaerrors.KindStateMachine:
		return status.Error(codes.FailedPrecondition, msg)
	case arcaerrors.KindNetworkConflict:
		return status.Error(codes.Aborted, msg)
	default:
		return status.Error(codes.Internal, msg)
	}
}
