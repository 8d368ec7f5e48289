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

// Package config loads ARCA's layered configuration: a stable bootstrap
// file (VG name, parent interface, DRBD resource) and a runtime file
// (export root, exporter config dir, API bind address). Missing files are
// not an error; defaults apply.
package config

import (
	"os"
	"strconv"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
	"k8s.io/klog/v2"
)

const (
	envBootstrapPath = "ARCA_BOOTSTRAP_CONFIG_PATH"
	envRuntimePath    = "ARCA_RUNTIME_CONFIG_PATH"
	envStateDir       = "ARCA_STATE_DIR"

	defaultBootstrapPath = "/etc/arca-storage/storage-bootstrap.yaml"
	defaultRuntimePath   = "/etc/arca-storage/storage-runtime.yaml"
)

// Bootstrap holds settings that are fixed once the cluster is built and
// should never vary between a node's restarts.
type Bootstrap struct {
	VGName            string `yaml:"vg_name"`
	ThinpoolName      string `yaml:"thinpool_name"`
	ParentInterface   string `yaml:"parent_if"`
	DRBDResource      string `yaml:"drbd_resource"`
	PacemakerRAVendor string `yaml:"pacemaker_ra_vendor"`
}

// Runtime holds settings that operators may adjust without reprovisioning.
type Runtime struct {
	StateDir          string `yaml:"state_dir"`
	ExportDir         string `yaml:"export_dir"`
	GaneshaConfigDir  string `yaml:"ganesha_config_dir"`
	GaneshaProtocols  string `yaml:"ganesha_protocols"`
	GaneshaMountdPort int    `yaml:"ganesha_mountd_port"`
	GaneshaNLMPort    int    `yaml:"ganesha_nlm_port"`
	APIHost           string `yaml:"api_host"`
	APIPort           int    `yaml:"api_port"`
}

// Config is the merged bootstrap+runtime configuration.
type Config struct {
	Bootstrap
	Runtime
}

func defaultConfig() Config {
	return Config{
		Bootstrap: Bootstrap{
			VGName:            "vg_pool_01",
			ThinpoolName:      "pool",
			ParentInterface:   "bond0",
			DRBDResource:      "r0",
			PacemakerRAVendor: "local",
		},
		Runtime: Runtime{
			ExportDir:         "/exports",
			GaneshaConfigDir:  "/etc/ganesha",
			GaneshaProtocols:  "4",
			GaneshaMountdPort: 20048,
			GaneshaNLMPort:    32768,
			APIHost:           "127.0.0.1",
			APIPort:           8080,
		},
	}
}

func pathFromEnv(envVar, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}

func loadYAMLInto(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "failed to read config file %s", path)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return errors.Wrapf(err, "failed to parse config file %s", path)
	}
	return nil
}

// Load reads the bootstrap and runtime configuration files named by
// ARCA_BOOTSTRAP_CONFIG_PATH / ARCA_RUNTIME_CONFIG_PATH (or their defaults),
// falling back to built-in defaults for anything unset.
func Load() (Config, error) {
	cfg := defaultConfig()

	bootstrapPath := pathFromEnv(envBootstrapPath, defaultBootstrapPath)
	if err := loadYAMLInto(bootstrapPath, &cfg.Bootstrap); err != nil {
		return cfg, err
	}

	runtimePath := pathFromEnv(envRuntimePath, defaultRuntimePath)
	if err := loadYAMLInto(runtimePath, &cfg.Runtime); err != nil {
		return cfg, err
	}

	cfg.Runtime.GaneshaProtocols = normalizeProtocols(cfg.Runtime.GaneshaProtocols)

	klog.V(2).Infof("loaded config: bootstrap=%s runtime=%s vg=%s export_dir=%s",
		bootstrapPath, runtimePath, cfg.VGName, cfg.ExportDir)

	return cfg, nil
}

// StateDir resolves the directory used for persistent local state,
// preferring ARCA_STATE_DIR, then the runtime config, then /var/lib/arca.
func StateDir(cfg Config) string {
	if v := os.Getenv(envStateDir); v != "" {
		return v
	}
	if cfg.StateDir != "" {
		return cfg.StateDir
	}
	return "/var/lib/arca"
}

// normalizeProtocols mirrors the original Python config loader: keep only
// {3,4}, always include 4, sort and dedupe.
func normalizeProtocols(raw string) string {
	if raw == "" {
		return "4"
	}
	seen := map[int]bool{}
	cur := 0
	started := false
	flush := func() {
		if started {
			if cur == 3 || cur == 4 {
				seen[cur] = true
			}
			cur = 0
			started = false
		}
	}
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			cur = cur*10 + int(r-'0')
			started = true
			continue
		}
		flush()
	}
	flush()
	seen[4] = true

	out := ""
	for _, n := range []int{3, 4} {
		if seen[n] {
			if out != "" {
				out += ","
			}
			out += strconv.Itoa(n)
		}
	}
	return out
}
