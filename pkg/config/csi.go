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

package config

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/arca-storage/arca/pkg/ipalloc"
)

const (
	envCSIConfigPath    = "ARCA_CSI_CONFIG_PATH"
	defaultCSIConfigPath = "/etc/arca-storage/csi-driver.yaml"
)

// CSIConfig configures the CSI controller plugin: how it reaches the REST
// API, which IP pools it may hand out as SVM VIPs, and the lock namespace
// its distributed lease lives in. Node plugins never load this file; they
// only need mount-local state.
type CSIConfig struct {
	ARCABaseURL   string             `yaml:"arca_base_url"`
	ARCATimeout   int                `yaml:"arca_timeout_seconds"`
	ARCARetries   int                `yaml:"arca_retry_count"`
	LockNamespace string             `yaml:"lock_namespace"`
	MTU           int                `yaml:"mtu"`
	IPPools       []ipalloc.PoolConfig `yaml:"ip_pools"`
}

func defaultCSIConfig() CSIConfig {
	return CSIConfig{
		ARCABaseURL:   "https://127.0.0.1:8080",
		ARCATimeout:   30,
		ARCARetries:   3,
		LockNamespace: "kube-system",
		MTU:           1500,
	}
}

// LoadCSIConfig reads the CSI controller configuration named by path, or
// ARCA_CSI_CONFIG_PATH / the built-in default when path is empty. A
// missing file is not an error; defaults apply.
func LoadCSIConfig(path string) (CSIConfig, error) {
	cfg := defaultCSIConfig()

	if path == "" {
		path = pathFromEnv(envCSIConfigPath, defaultCSIConfigPath)
	}
	if err := loadYAMLInto(path, &cfg); err != nil {
		return cfg, err
	}

	if len(cfg.IPPools) == 0 {
		return cfg, errors.Errorf("csi config %s declares no ip_pools", path)
	}

	klog.V(2).Infof("loaded CSI config: path=%s arca_base_url=%s pools=%d", path, cfg.ARCABaseURL, len(cfg.IPPools))
	return cfg, nil
}
