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

package arca

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	"github.com/ugorji/go/codec"
	"k8s.io/klog/v2"

	"github.com/arca-storage/arca/pkg/arcaerrors"
	"github.com/arca-storage/arca/pkg/server"
)

var (
	jsonHandle       = &codec.JsonHandle{}
	jsonHandlePretty = &codec.JsonHandle{Indent: 4}
)

// Envelope is the {data, error, message} response shape every endpoint
// returns (§6): data on success, error+message on failure.
type Envelope struct {
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// HTTPServer exposes a Server over HTTP+JSON.
type HTTPServer struct {
	arca     *Server
	mux      *http.ServeMux
	listener net.Listener
	addr     string
	cfg      *server.Config
}

// NewHTTPServer starts listening and registers every §6 route.
func NewHTTPServer(a *Server, cfg *server.Config) (*HTTPServer, error) {
	if cfg == nil {
		return nil, errors.New("failed to instantiate http server: nil config")
	}
	lnAddr, err := net.ResolveTCPAddr("tcp", cfg.NormalizedAddrs.HTTP)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to instantiate http server")
	}
	listener, err := cfg.Listener("tcp", lnAddr.IP.String(), lnAddr.Port)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to instantiate http server")
	}

	srv := &HTTPServer{
		arca:     a,
		mux:      http.NewServeMux(),
		listener: listener,
		addr:     listener.Addr().String(),
		cfg:      cfg,
	}
	klog.Infof("starting ARCA REST server on %s", srv.addr)
	srv.registerHandlers()
	go http.Serve(listener, srv.mux)
	return srv, nil
}

// Shutdown stops accepting new connections.
func (s *HTTPServer) Shutdown() {
	if s != nil && s.listener != nil {
		s.listener.Close()
	}
}

// wrap curries a handler with request logging, error-to-status mapping,
// and JSON envelope encoding, mirroring the teacher's CVC http wrapper.
func (s *HTTPServer) wrap(handler func(resp http.ResponseWriter, req *http.Request) (interface{}, error)) func(http.ResponseWriter, *http.Request) {
	return func(resp http.ResponseWriter, req *http.Request) {
		setHeaders(resp, s.cfg.HTTPAPIResponseHeaders)
		reqURL := req.URL.String()
		start := time.Now()
		defer func() {
			klog.V(4).Infof("http: %s %s (%v)", req.Method, reqURL, time.Since(start))
		}()

		data, err := handler(resp, req)
		if err != nil {
			status, kind := statusForError(err)
			klog.Errorf("http: %s %s: %v", req.Method, reqURL, err)
			writeJSON(resp, req, status, Envelope{Error: kind.String(), Message: err.Error()})
			return
		}
		status := http.StatusOK
		if v, ok := data.(created); ok {
			status = http.StatusCreated
			data = v.value
		}
		writeJSON(resp, req, status, Envelope{Data: data})
	}
}

// created marks a handler's result as the outcome of a brand-new resource
// so wrap() answers 201 rather than 200; idempotent re-affirmation of an
// already-existing resource returns the bare value instead (§6: 200).
type created struct{ value interface{} }

func statusForError(err error) (int, arcaerrors.Kind) {
	kind := arcaerrors.KindOf(err)
	switch kind {
	case arcaerrors.KindValidation:
		return http.StatusBadRequest, kind
	case arcaerrors.KindNotFound:
		return http.StatusNotFound, kind
	case arcaerrors.KindAlreadyExists, arcaerrors.KindNetworkConflict, arcaerrors.KindStateMachine:
		return http.StatusConflict, kind
	case arcaerrors.KindCapacity:
		return http.StatusInsufficientStorage, kind
	case arcaerrors.KindTransient:
		return http.StatusServiceUnavailable, kind
	default:
		return http.StatusInternalServerError, kind
	}
}

func writeJSON(resp http.ResponseWriter, req *http.Request, status int, env Envelope) {
	pretty := false
	if v, ok := req.URL.Query()["pretty"]; ok && (len(v) == 0 || v[0] != "0") {
		pretty = true
	}

	var buf bytes.Buffer
	handle := jsonHandle
	if pretty {
		handle = jsonHandlePretty
	}
	if err := codec.NewEncoder(&buf, handle).Encode(env); err != nil {
		resp.WriteHeader(http.StatusInternalServerError)
		resp.Write([]byte(err.Error()))
		return
	}
	resp.Header().Set("Content-Type", "application/json")
	resp.WriteHeader(status)
	resp.Write(buf.Bytes())
}

func setHeaders(resp http.ResponseWriter, headers map[string]string) {
	for field, value := range headers {
		resp.Header().Set(http.CanonicalHeaderKey(field), value)
	}
}

func decodeBody(req *http.Request, out interface{}) error {
	cType := req.Header.Get("Content-Type")
	if strings.Contains(cType, "yaml") {
		b, err := ioutil.ReadAll(req.Body)
		if err != nil {
			return arcaerrors.Wrap(arcaerrors.KindValidation, err, "read request body")
		}
		if err := yaml.Unmarshal(b, out); err != nil {
			return arcaerrors.Wrap(arcaerrors.KindValidation, err, "parse yaml request body")
		}
		return nil
	}
	if err := json.NewDecoder(req.Body).Decode(out); err != nil {
		return arcaerrors.Wrap(arcaerrors.KindValidation, err, "parse json request body")
	}
	return nil
}

func queryParam(req *http.Request, name string) string {
	return req.URL.Query().Get(name)
}

func requireQueryParam(req *http.Request, name string) (string, error) {
	v := queryParam(req, name)
	if v == "" {
		return "", arcaerrors.New(arcaerrors.KindValidation, fmt.Sprintf("missing required query parameter %q", name))
	}
	return v, nil
}

func pathTail(req *http.Request, prefix string) string {
	return strings.Trim(strings.TrimPrefix(req.URL.Path, prefix), "/")
}
