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

// Package ipalloc implements the CSI controller's IP pool allocator: a
// round-robin selection across configured static pools with live
// collision detection against the SVMs the REST server currently reports.
package ipalloc

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/arca-storage/arca/pkg/arcaerrors"
)

// ErrAllPoolsExhausted is returned when every configured pool is fully allocated.
var ErrAllPoolsExhausted = arcaerrors.New(arcaerrors.KindCapacity, "all IP pools exhausted")

// PoolConfig is one configured IP pool.
type PoolConfig struct {
	CIDR    string `yaml:"cidr"`
	Range   string `yaml:"range"`
	VLANID  int    `yaml:"vlan"`
	Gateway string `yaml:"gateway"`
}

// Allocation is a concrete (vlan, ip/prefix, gateway) tuple handed to an SVM create call.
type Allocation struct {
	VLANID  int
	IPCIDR  string
	Gateway string
}

// UsedIPLister reports which VIPs are already in use within a VLAN, the
// live collision source of truth (normally backed by the REST client's
// ListSVMs call).
type UsedIPLister interface {
	UsedIPsInVLAN(ctx context.Context, vlanID int) (map[string]bool, error)
}

type pool struct {
	network   *net.IPNet
	vlanID    int
	gateway   string
	firstHost net.IP
	lastHost  net.IP
	numHosts  int
}

// Allocator allocates IPv4 addresses from a fixed set of pools.
type Allocator struct {
	pools       []pool
	poolCounter int32
	lister      UsedIPLister
	mu          sync.Mutex
}

// New constructs an Allocator from the configured pools.
func New(pools []PoolConfig, lister UsedIPLister) (*Allocator, error) {
	if len(pools) == 0 {
		return nil, errors.New("no IP pools configured")
	}

	parsed := make([]pool, 0, len(pools))
	for i, cfg := range pools {
		p, err := parsePoolConfig(cfg)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse pool %d", i)
		}
		parsed = append(parsed, p)
		klog.V(2).Infof("loaded IP pool: VLAN %d, network %s, %d hosts", p.vlanID, p.network, p.numHosts)
	}

	return &Allocator{pools: parsed, lister: lister}, nil
}

func parsePoolConfig(cfg PoolConfig) (pool, error) {
	_, network, err := net.ParseCIDR(cfg.CIDR)
	if err != nil {
		return pool{}, errors.Wrapf(err, "invalid CIDR %s", cfg.CIDR)
	}

	p := pool{network: network, vlanID: cfg.VLANID, gateway: cfg.Gateway}

	if cfg.Range != "" {
		first, last, err := parseIPRange(cfg.Range)
		if err != nil {
			return pool{}, errors.Wrapf(err, "invalid range %s", cfg.Range)
		}
		p.firstHost, p.lastHost = first, last
	} else {
		p.firstHost = incrementIP(network.IP, 1)
		p.lastHost = lastIPInNetwork(network)
	}

	p.numHosts = ipDiff(p.lastHost, p.firstHost) + 1
	if p.numHosts <= 0 {
		return pool{}, errors.New("invalid range: first IP must be <= last IP")
	}
	return p, nil
}

func parseIPRange(rangeStr string) (net.IP, net.IP, error) {
	idx := -1
	for i := 0; i < len(rangeStr); i++ {
		if rangeStr[i] == '-' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, nil, errors.New("invalid range format, expected 'IP1-IP2'")
	}
	firstIP := net.ParseIP(rangeStr[:idx]).To4()
	lastIP := net.ParseIP(rangeStr[idx+1:]).To4()
	if firstIP == nil || lastIP == nil {
		return nil, nil, errors.New("invalid IP in range")
	}
	return firstIP, lastIP, nil
}

// Allocate picks an IP from the pools, round-robin across pools per call,
// applying a random scan offset on retry attempts to spread collisions.
func (a *Allocator) Allocate(ctx context.Context, owner string, attempt int) (*Allocation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	startIdx := int(atomic.LoadInt32(&a.poolCounter)) % len(a.pools)
	atomic.AddInt32(&a.poolCounter, 1)

	for i := 0; i < len(a.pools); i++ {
		p := a.pools[(startIdx+i)%len(a.pools)]

		used, err := a.lister.UsedIPsInVLAN(ctx, p.vlanID)
		if err != nil {
			klog.Warningf("failed to get used IPs for VLAN %d: %v", p.vlanID, err)
			continue
		}

		offset := 0
		if attempt > 0 {
			offset = rand.Intn(p.numHosts)
		}

		for j := 0; j < p.numHosts; j++ {
			ip := incrementIP(p.firstHost, (offset+j)%p.numHosts)
			if !used[ip.String()] {
				ones, _ := p.network.Mask.Size()
				klog.V(2).Infof("allocated IP %s from VLAN %d for %s", ip, p.vlanID, owner)
				return &Allocation{
					VLANID:  p.vlanID,
					IPCIDR:  fmt.Sprintf("%s/%d", ip, ones),
					Gateway: p.gateway,
				}, nil
			}
		}
	}

	return nil, ErrAllPoolsExhausted
}

func incrementIP(ip net.IP, n int) net.IP {
	result := make(net.IP, 4)
	copy(result, ip.To4())
	v := uint32(result[0])<<24 | uint32(result[1])<<16 | uint32(result[2])<<8 | uint32(result[3])
	v += uint32(n)
	result[0] = byte(v >> 24)
	result[1] = byte(v >> 16)
	result[2] = byte(v >> 8)
	result[3] = byte(v)
	return result
}

func ipDiff(a, b net.IP) int {
	av := uint32(a[0])<<24 | uint32(a[1])<<16 | uint32(a[2])<<8 | uint32(a[3])
	bv := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	return int(av) - int(bv)
}

func lastIPInNetwork(network *net.IPNet) net.IP {
	broadcast := make(net.IP, len(network.IP))
	for i := range network.IP {
		broadcast[i] = network.IP[i] | ^network.Mask[i]
	}
	return incrementIP(broadcast, -1)
}
