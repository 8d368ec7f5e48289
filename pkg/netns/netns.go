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

// Package netns implements the Tenant Network Isolator resource contract
// (§4.2): one Linux network namespace per SVM, a VLAN sub-interface of a
// bonded parent, a VIP, and a default route.
package netns

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/arca-storage/arca/pkg/arcaerrors"
	"github.com/arca-storage/arca/pkg/util/hash"
)

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// Params are the tenant network parameters the resource contract is keyed by.
type Params struct {
	Namespace       string
	ParentInterface string
	VLANID          int
	IPCIDR          string
	Gateway         string
	MTU             int
	IfName          string
}

// Validate checks parameter legality per §4.2: 1 <= vlan_id <= 4094, ip
// parses as IPv4, prefix in [0,32].
func Validate(p Params) error {
	if p.VLANID < 1 || p.VLANID > 4094 {
		return arcaerrors.New(arcaerrors.KindValidation, fmt.Sprintf("vlan_id %d out of range [1,4094]", p.VLANID))
	}
	ip, ipNet, err := net.ParseCIDR(p.IPCIDR)
	if err != nil || ip.To4() == nil {
		return arcaerrors.New(arcaerrors.KindValidation, "ip_cidr must be a valid IPv4 CIDR")
	}
	ones, _ := ipNet.Mask.Size()
	if ones < 0 || ones > 32 {
		return arcaerrors.New(arcaerrors.KindValidation, "prefix out of range [0,32]")
	}
	if p.Gateway != "" && net.ParseIP(p.Gateway).To4() == nil {
		return arcaerrors.New(arcaerrors.KindValidation, "gateway must be a valid IPv4 address")
	}
	return nil
}

// InferGateway picks the first host address of ipCIDR's subnet that is not
// the interface address itself, e.g. 192.168.10.5/24 -> 192.168.10.1 and
// 192.168.10.1/24 -> 192.168.10.2. /31 and /32 have no such convention and
// must be given an explicit gateway.
func InferGateway(ipCIDR string) (string, error) {
	ip, ipNet, err := net.ParseCIDR(ipCIDR)
	if err != nil || ip.To4() == nil {
		return "", arcaerrors.New(arcaerrors.KindValidation, "ip_cidr must be a valid IPv4 CIDR")
	}
	ones, bits := ipNet.Mask.Size()
	if ones >= 31 {
		return "", arcaerrors.New(arcaerrors.KindValidation, "gateway cannot be inferred for /31 or /32; specify gateway explicitly")
	}

	base := ip.Mask(ipNet.Mask).To4()
	numHosts := uint32(1) << uint(bits-ones)
	for i := uint32(1); i < numHosts-1; i++ {
		candidate := make(net.IP, 4)
		binary.BigEndian.PutUint32(candidate, binary.BigEndian.Uint32(base)+i)
		if !candidate.Equal(ip.To4()) {
			return candidate.String(), nil
		}
	}
	return "", arcaerrors.New(arcaerrors.KindValidation, "gateway could not be inferred from ip_cidr; specify gateway explicitly")
}

func run(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "ip", args...).CombinedOutput()
	return string(out), err
}

func runInNS(ctx context.Context, namespace string, args ...string) (string, error) {
	full := append([]string{"netns", "exec", namespace, "ip"}, args...)
	return run(ctx, full...)
}

// AllocateVLANInterfaceName picks a collision-free VLAN interface name in
// the root namespace for svmName/vlanID, matching the original Python
// implementation's base62-SHA256-suffixed, IFNAMSIZ-aware scheme.
func AllocateVLANInterfaceName(ctx context.Context, svmName string, vlanID int) (string, error) {
	const maxAttempts = 256
	for attempt := 0; attempt < maxAttempts; attempt++ {
		candidate := makeVLANIfName(svmName, vlanID, attempt)
		if !ifnameExistsInRoot(ctx, candidate) {
			return candidate, nil
		}
	}
	return "", errors.New("failed to allocate a unique VLAN interface name (too many collisions)")
}

func makeVLANIfName(svmName string, vlanID, attempt int) string {
	const maxLen = 15
	prefix := fmt.Sprintf("v%d-", vlanID)
	safe := strings.ToLower(nonAlnum.ReplaceAllString(svmName, ""))
	if safe == "" {
		safe = "svm"
	}
	digest := hash.Base62Pair(fmt.Sprintf("%s:%d", svmName, attempt))

	if len(prefix) > maxLen-len(digest) {
		prefix = prefix[:maxLen-len(digest)]
	}
	coreLen := maxLen - len(prefix) - len(digest)
	if coreLen < 0 {
		coreLen = 0
	}
	if coreLen > len(safe) {
		coreLen = len(safe)
	}
	name := prefix + safe[:coreLen] + digest
	if len(name) > maxLen {
		name = name[:maxLen]
	}
	return name
}

func ifnameExistsInRoot(ctx context.Context, ifname string) bool {
	_, err := run(ctx, "link", "show", ifname)
	return err == nil
}

// Start is idempotent: ensures the namespace, VLAN interface, VIP and
// default route all exist, succeeding immediately if they already do.
func Start(ctx context.Context, p Params) error {
	if err := Validate(p); err != nil {
		return err
	}

	ifname := p.IfName
	if ifname == "" {
		ifname = p.ParentInterface + "." + strconv.Itoa(p.VLANID)
	}

	if out, err := run(ctx, "netns", "list"); err != nil {
		return arcaerrors.Wrapf(arcaerrors.KindTransient, err, "failed to list namespaces: %s", out)
	} else if !strings.Contains(out, p.Namespace) {
		if out, err := run(ctx, "netns", "add", p.Namespace); err != nil {
			return arcaerrors.Wrapf(arcaerrors.KindTransient, err, "failed to create namespace %s: %s", p.Namespace, out)
		}
	}

	if _, err := runInNS(ctx, p.Namespace, "link", "show", ifname); err != nil {
		if _, err := run(ctx, "link", "show", ifname); err == nil {
			if out, err := run(ctx, "link", "set", ifname, "netns", p.Namespace); err != nil {
				return arcaerrors.Wrapf(arcaerrors.KindTransient, err, "failed to move %s into namespace: %s", ifname, out)
			}
		} else {
			if out, err := run(ctx, "link", "add", "link", p.ParentInterface, "name", ifname, "type", "vlan", "id", strconv.Itoa(p.VLANID)); err != nil {
				return arcaerrors.Wrapf(arcaerrors.KindTransient, err, "failed to create VLAN interface %s: %s", ifname, out)
			}
			if out, err := run(ctx, "link", "set", ifname, "netns", p.Namespace); err != nil {
				return arcaerrors.Wrapf(arcaerrors.KindTransient, err, "failed to move %s into namespace: %s", ifname, out)
			}
		}
	}

	return configureIP(ctx, p, ifname)
}

func configureIP(ctx context.Context, p Params, ifname string) error {
	mtu := p.MTU
	if mtu == 0 {
		mtu = 1500
	}
	if mtu != 1500 {
		if out, err := runInNS(ctx, p.Namespace, "link", "set", ifname, "mtu", strconv.Itoa(mtu)); err != nil {
			return arcaerrors.Wrapf(arcaerrors.KindTransient, err, "failed to set MTU: %s", out)
		}
	}

	out, err := runInNS(ctx, p.Namespace, "addr", "show", ifname)
	if err != nil {
		return arcaerrors.Wrapf(arcaerrors.KindTransient, err, "failed to inspect %s addresses: %s", ifname, out)
	}
	if !strings.Contains(out, p.IPCIDR) {
		if out, err := runInNS(ctx, p.Namespace, "addr", "add", p.IPCIDR, "dev", ifname); err != nil {
			return arcaerrors.Wrapf(arcaerrors.KindTransient, err, "failed to add address %s: %s", p.IPCIDR, out)
		}
	}

	if out, err := runInNS(ctx, p.Namespace, "link", "set", ifname, "up"); err != nil {
		return arcaerrors.Wrapf(arcaerrors.KindTransient, err, "failed to bring up %s: %s", ifname, out)
	}

	if p.Gateway != "" {
		_, _ = runInNS(ctx, p.Namespace, "route", "del", "default")
		if out, err := runInNS(ctx, p.Namespace, "route", "add", "default", "via", p.Gateway); err != nil {
			return arcaerrors.Wrapf(arcaerrors.KindTransient, err, "failed to add default route via %s: %s", p.Gateway, out)
		}
	}

	klog.Infof("netns %s: %s up with %s via %s", p.Namespace, ifname, p.IPCIDR, p.Gateway)
	return nil
}

// Stop tears the namespace down in reverse order; absence is success.
func Stop(ctx context.Context, namespace string) error {
	out, err := run(ctx, "netns", "list")
	if err != nil {
		return arcaerrors.Wrapf(arcaerrors.KindTransient, err, "failed to list namespaces: %s", out)
	}
	if !strings.Contains(out, namespace) {
		klog.V(4).Infof("namespace %s does not exist, nothing to stop", namespace)
		return nil
	}
	if out, err := run(ctx, "netns", "del", namespace); err != nil {
		return arcaerrors.Wrapf(arcaerrors.KindTransient, err, "failed to delete namespace %s: %s", namespace, out)
	}
	return nil
}

// Monitor checks that the namespace exists, the interface is present and
// up, the VIP is assigned, and a default route exists.
func Monitor(ctx context.Context, p Params, ifname string) error {
	out, err := run(ctx, "netns", "list")
	if err != nil || !strings.Contains(out, p.Namespace) {
		return arcaerrors.New(arcaerrors.KindStateMachine, "namespace "+p.Namespace+" not present")
	}
	addrOut, err := runInNS(ctx, p.Namespace, "addr", "show", ifname)
	if err != nil || !strings.Contains(addrOut, "UP") || !strings.Contains(addrOut, p.IPCIDR) {
		return arcaerrors.New(arcaerrors.KindStateMachine, "interface "+ifname+" missing VIP or not up")
	}
	routeOut, err := runInNS(ctx, p.Namespace, "route", "show", "default")
	if err != nil || strings.TrimSpace(routeOut) == "" {
		return arcaerrors.New(arcaerrors.KindStateMachine, "no default route in namespace "+p.Namespace)
	}
	return nil
}
