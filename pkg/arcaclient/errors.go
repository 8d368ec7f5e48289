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

	"github.com/arca-storage/arca/pkg/arcaerrors"
)

var kindByName = map[string]arcaerrors.Kind{
	arcaerrors.KindValidation.String():      arcaerrors.KindValidation,
	arcaerrors.KindNotFound.String():        arcaerrors.KindNotFound,
	arcaerrors.KindAlreadyExists.String():   arcaerrors.KindAlreadyExists,
	arcaerrors.KindNetworkConflict.String(): arcaerrors.KindNetworkConflict,
	arcaerrors.KindCapacity.String():        arcaerrors.KindCapacity,
	arcaerrors.KindTransient.String():       arcaerrors.KindTransient,
	arcaerrors.KindStateMachine.String():    arcaerrors.KindStateMachine,
	arcaerrors.KindCorruption.String():      arcaerrors.KindCorruption,
}

// mapResponseError reconstructs the server's classification of a failed
// request. The server always answers with its Kind's name in the error
// field (§6), so unlike a client fronting an opaque REST API there is no
// need to infer the kind from the HTTP status code or sniff the message
// for substrings: the wire format already carries it.
func mapResponseError(statusCode int, env envelope) error {
	if kind, ok := kindByName[env.Error]; ok {
		return arcaerrors.New(kind, env.Message)
	}
	return arcaerrors.New(statusKind(statusCode), env.Message)
}

// statusKind is the fallback classifier for responses that failed before
// reaching the envelope encoder (proxies, load balancers, malformed body).
func statusKind(statusCode int) arcaerrors.Kind {
	switch statusCode {
	case http.StatusBadRequest:
		return arcaerrors.KindValidation
	case http.StatusNotFound:
		return arcaerrors.KindNotFound
	case http.StatusConflict:
		return arcaerrors.KindAlreadyExists
	case http.StatusInsufficientStorage:
		return arcaerrors.KindCapacity
	case http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusBadGateway:
		return arcaerrors.KindTransient
	default:
		return arcaerrors.KindInternal
	}
}
