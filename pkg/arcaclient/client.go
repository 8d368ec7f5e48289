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
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/arca-storage/arca/pkg/arcaerrors"
)

// TLSConfig configures mutual TLS between a CSI plugin and the REST server.
type TLSConfig struct {
	CACertPath     string
	ClientCertPath string
	ClientKeyPath  string
	InsecureSkip   bool
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
	TLSConfig  *TLSConfig
}

// Client is an ARCA REST API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retryCount int
}

// NewClient constructs a Client, applying defaults for an unset timeout
// and retry count.
func NewClient(cfg *ClientConfig) (*Client, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	retryCount := cfg.RetryCount
	if retryCount == 0 {
		retryCount = 3
	}

	httpClient := &http.Client{Timeout: timeout}
	if cfg.TLSConfig != nil {
		tlsConfig, err := buildTLSConfig(cfg.TLSConfig)
		if err != nil {
			return nil, errors.Wrap(err, "failed to build TLS config")
		}
		httpClient.Transport = &http.Transport{TLSClientConfig: tlsConfig}
	}

	return &Client{baseURL: cfg.BaseURL, httpClient: httpClient, retryCount: retryCount}, nil
}

func buildTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{InsecureSkipVerify: cfg.InsecureSkip}

	if cfg.CACertPath != "" {
		caCert, err := os.ReadFile(cfg.CACertPath)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read CA cert")
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, errors.New("failed to parse CA cert")
		}
		tlsConfig.RootCAs = pool
	}

	if cfg.ClientCertPath != "" && cfg.ClientKeyPath != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCertPath, cfg.ClientKeyPath)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load client cert/key")
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// doRequest performs an HTTP request with exponential backoff, retrying
// only on errors the server (or transport) classified as transient.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, queryParams ...url.Values) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			klog.V(4).Infof("retrying request (attempt %d/%d) after %v", attempt+1, c.retryCount+1, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := c.doRequestOnce(ctx, method, path, body, queryParams...)
		if err == nil {
			return resp, nil
		}

		lastErr = err
		if !arcaerrors.IsTransient(err) {
			klog.V(4).Infof("non-retryable error: %v", err)
			break
		}
		klog.V(4).Infof("request failed (attempt %d/%d): %v", attempt+1, c.retryCount+1, err)
	}

	return nil, lastErr
}

func (c *Client) doRequestOnce(ctx context.Context, method, path string, body interface{}, queryParams ...url.Values) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(queryParams) > 0 && queryParams[0] != nil {
		reqURL += "?" + queryParams[0].Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, arcaerrors.Wrap(arcaerrors.KindInternal, err, "failed to marshal request body")
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, arcaerrors.Wrap(arcaerrors.KindInternal, err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, arcaerrors.Wrap(arcaerrors.KindTransient, err, "http request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, arcaerrors.Wrap(arcaerrors.KindTransient, err, "failed to read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var env envelope
		_ = json.Unmarshal(respBody, &env)
		return nil, mapResponseError(resp.StatusCode, env)
	}

	return respBody, nil
}

func decodeData(respBody []byte, out interface{}) error {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(respBody, &env); err != nil {
		return arcaerrors.Wrap(arcaerrors.KindInternal, err, "failed to unmarshal response envelope")
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return arcaerrors.Wrap(arcaerrors.KindInternal, err, "failed to unmarshal response data")
	}
	return nil
}

// GetSVM retrieves SVM information.
func (c *Client) GetSVM(ctx context.Context, name string) (*SVM, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/v1/svms/%s", name), nil)
	if err != nil {
		return nil, err
	}
	var svm SVM
	if err := decodeData(respBody, &svm); err != nil {
		return nil, err
	}
	return &svm, nil
}

// CreateSVM creates a new SVM, transparently fetching the existing record
// if another caller created it first (§6: 201/200 idempotency).
func (c *Client) CreateSVM(ctx context.Context, req *CreateSVMRequest) (*SVM, error) {
	respBody, err := c.doRequest(ctx, http.MethodPost, "/v1/svms", req)
	if err != nil {
		if arcaerrors.IsAlreadyExists(err) {
			return c.GetSVM(ctx, req.Name)
		}
		return nil, err
	}
	var svm SVM
	if err := decodeData(respBody, &svm); err != nil {
		return nil, err
	}
	return &svm, nil
}

// DeleteSVM deletes an SVM; absence is success.
func (c *Client) DeleteSVM(ctx context.Context, name string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, fmt.Sprintf("/v1/svms/%s", name), nil)
	if err != nil && !arcaerrors.IsNotFound(err) {
		return err
	}
	return nil
}

// ListSVMs lists all SVMs.
func (c *Client) ListSVMs(ctx context.Context) ([]SVM, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "/v1/svms", nil)
	if err != nil {
		return nil, err
	}
	var svms []SVM
	if err := decodeData(respBody, &svms); err != nil {
		return nil, err
	}
	return svms, nil
}

// GetSVMCapacity retrieves SVM capacity information.
func (c *Client) GetSVMCapacity(ctx context.Context, svmName string) (*CapacityInfo, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/v1/svms/%s/capacity", svmName), nil)
	if err != nil {
		return nil, err
	}
	var info CapacityInfo
	if err := decodeData(respBody, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// UsedIPsInVLAN implements ipalloc.UsedIPLister by deriving the current
// occupancy of vlanID from the live SVM list; the REST server is the sole
// source of truth for allocated VIPs.
func (c *Client) UsedIPsInVLAN(ctx context.Context, vlanID int) (map[string]bool, error) {
	svms, err := c.ListSVMs(ctx)
	if err != nil {
		return nil, err
	}
	used := make(map[string]bool)
	for _, svm := range svms {
		if svm.VLANID == vlanID && svm.VIP != "" {
			used[svm.VIP] = true
		}
	}
	return used, nil
}

// CreateDirectory creates a quota-bearing directory, treating a matching
// already-existing record as idempotent success.
func (c *Client) CreateDirectory(ctx context.Context, req *CreateDirectoryRequest) (*Directory, error) {
	respBody, err := c.doRequest(ctx, http.MethodPost, "/v1/directories", req)
	if err != nil {
		return nil, err
	}
	var dir Directory
	if err := decodeData(respBody, &dir); err != nil {
		return nil, err
	}
	return &dir, nil
}

// DeleteDirectory deletes a directory; absence is success.
func (c *Client) DeleteDirectory(ctx context.Context, svmName, path string) error {
	q := url.Values{"path": {path}}
	_, err := c.doRequest(ctx, http.MethodDelete, fmt.Sprintf("/v1/directories/%s", svmName), nil, q)
	if err != nil && !arcaerrors.IsNotFound(err) {
		return err
	}
	return nil
}

// CreateSnapshot creates a reflink snapshot of an existing path.
func (c *Client) CreateSnapshot(ctx context.Context, req *CreateSnapshotRequest) (*Snapshot, error) {
	respBody, err := c.doRequest(ctx, http.MethodPost, "/v1/snapshots", req)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := decodeData(respBody, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// RestoreSnapshot restores a snapshot onto targetPath.
func (c *Client) RestoreSnapshot(ctx context.Context, req *RestoreSnapshotRequest) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/v1/snapshots/restore", req)
	return err
}

// DeleteSnapshot deletes a snapshot; absence is success.
func (c *Client) DeleteSnapshot(ctx context.Context, svmName, snapshotPath string) error {
	q := url.Values{"path": {snapshotPath}}
	_, err := c.doRequest(ctx, http.MethodDelete, fmt.Sprintf("/v1/snapshots/%s", svmName), nil, q)
	if err != nil && !arcaerrors.IsNotFound(err) {
		return err
	}
	return nil
}

// SetQuota sets a directory's quota.
func (c *Client) SetQuota(ctx context.Context, req *SetQuotaRequest) (*QuotaInfo, error) {
	respBody, err := c.doRequest(ctx, http.MethodPost, "/v1/quotas", req)
	if err != nil {
		return nil, err
	}
	var info QuotaInfo
	if err := decodeData(respBody, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetQuota reads a directory's current quota and usage.
func (c *Client) GetQuota(ctx context.Context, svmName, path string) (*QuotaInfo, error) {
	q := url.Values{"path": {path}}
	respBody, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/v1/quotas/%s", svmName), nil, q)
	if err != nil {
		return nil, err
	}
	var info QuotaInfo
	if err := decodeData(respBody, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ExpandQuota grows a directory's quota; the server rejects a shrink.
func (c *Client) ExpandQuota(ctx context.Context, req *ExpandQuotaRequest) (*QuotaInfo, error) {
	respBody, err := c.doRequest(ctx, http.MethodPatch, "/v1/quotas", req)
	if err != nil {
		return nil, err
	}
	var info QuotaInfo
	if err := decodeData(respBody, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
