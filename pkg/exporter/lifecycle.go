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

package exporter

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"k8s.io/klog/v2"

	"github.com/arca-storage/arca/pkg/arcaerrors"
	"github.com/arca-storage/arca/pkg/atomicfile"
)

// Reloader asks the running per-SVM NFS daemon to re-read its config file.
type Reloader interface {
	Reload(ctx context.Context, svmName string) error
}

// SystemdReloader reloads the per-SVM daemon unit via systemctl, matching
// the "nfs-ganesha@<svm>" instantiated-unit convention.
type SystemdReloader struct{}

// Reload runs "systemctl reload nfs-ganesha@<svm>".
func (SystemdReloader) Reload(ctx context.Context, svmName string) error {
	cmd := exec.CommandContext(ctx, "systemctl", "reload", fmt.Sprintf("nfs-ganesha@%s", svmName))
	out, err := cmd.CombinedOutput()
	if err != nil {
		return arcaerrors.Wrapf(arcaerrors.KindTransient, err, "reload nfs-ganesha@%s: %s", svmName, strings.TrimSpace(string(out)))
	}
	return nil
}

// SnapshotInfo describes one saved config-file snapshot for an SVM.
type SnapshotInfo struct {
	ConfigVersion string
	Path          string
	ModTime       int64
}

// Exporter owns the config-rendering and daemon-reload lifecycle for every
// SVM's per-tenant NFS exporter. Rendered files live in configDir; every
// render is also preserved in snapshotDir so an operator can list and roll
// back to a previous config_version.
type Exporter struct {
	configDir   string
	snapshotDir string
	reload      Reloader
}

// NewExporter constructs an Exporter. reload is typically a SystemdReloader;
// tests supply a stub.
func NewExporter(configDir, snapshotDir string, reload Reloader) *Exporter {
	return &Exporter{configDir: configDir, snapshotDir: snapshotDir, reload: reload}
}

func configPath(dir, svmName string) string {
	return filepath.Join(dir, configFileName(svmName))
}

func snapshotPath(dir, svmName, version string) string {
	return filepath.Join(dir, fmt.Sprintf("exporter.%s.%s.conf", svmName, version))
}

func latestSnapshotPath(dir, svmName string) string {
	return filepath.Join(dir, fmt.Sprintf("exporter.%s.latest.conf", svmName))
}

// Render renders svmName's exports to its config file, preserves the
// rendered body as a snapshot (both content-addressed and as "latest"),
// and returns the file path and the config_version it was rendered with.
// It does not reload the daemon; callers that want a live effect call Sync
// or Reload separately, matching §4.5's separation of render from reload.
func (e *Exporter) Render(svmName, protocols string, mountdPort, nlmPort int, exports []Export) (string, string, error) {
	body, version, err := render(protocols, mountdPort, nlmPort, exports)
	if err != nil {
		return "", "", err
	}

	path := configPath(e.configDir, svmName)
	if err := atomicfile.Write(path, []byte(body), 0644); err != nil {
		return "", "", arcaerrors.Wrap(arcaerrors.KindInternal, err, "write exporter config")
	}

	if e.snapshotDir != "" {
		if err := atomicfile.Write(snapshotPath(e.snapshotDir, svmName, version), []byte(body), 0644); err != nil {
			klog.Warningf("failed to persist config snapshot for SVM %s version %s: %v", svmName, version, err)
		}
		if err := atomicfile.Write(latestSnapshotPath(e.snapshotDir, svmName), []byte(body), 0644); err != nil {
			klog.Warningf("failed to persist latest config snapshot for SVM %s: %v", svmName, err)
		}
	}

	klog.V(2).Infof("rendered exporter config for SVM %s at version %s", svmName, version)
	return path, version, nil
}

// Sync re-renders svmName's config from the given export set and reloads
// the daemon, for use after a runtime knob (e.g. enabling NFSv3) changes.
func (e *Exporter) Sync(ctx context.Context, svmName, protocols string, mountdPort, nlmPort int, exports []Export) (string, string, error) {
	path, version, err := e.Render(svmName, protocols, mountdPort, nlmPort, exports)
	if err != nil {
		return "", "", err
	}
	if err := e.reload.Reload(ctx, svmName); err != nil {
		return "", "", err
	}
	return path, version, nil
}

// Reload asks the daemon to re-read its current config file without
// re-rendering it.
func (e *Exporter) Reload(ctx context.Context, svmName string) error {
	return e.reload.Reload(ctx, svmName)
}

// ListSnapshots lists svmName's saved config snapshots, newest first. The
// "latest" pointer file is excluded since it duplicates the newest
// content-addressed snapshot.
func (e *Exporter) ListSnapshots(svmName string) ([]SnapshotInfo, error) {
	if e.snapshotDir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(e.snapshotDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, arcaerrors.Wrap(arcaerrors.KindInternal, err, "list config snapshots")
	}

	prefix := fmt.Sprintf("exporter.%s.", svmName)
	const suffix = ".conf"
	latestName := fmt.Sprintf("exporter.%s.latest.conf", svmName)

	var out []SnapshotInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == latestName || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		version := strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix)
		info, err := entry.Info()
		var modTime int64
		if err == nil {
			modTime = info.ModTime().Unix()
		}
		out = append(out, SnapshotInfo{
			ConfigVersion: version,
			Path:          filepath.Join(e.snapshotDir, name),
			ModTime:       modTime,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ModTime > out[j].ModTime })
	return out, nil
}

// Rollback restores svmName's config file from a saved snapshot
// (configVersion, or "latest") and reloads the daemon.
func (e *Exporter) Rollback(ctx context.Context, svmName, configVersion string) (string, error) {
	if e.snapshotDir == "" {
		return "", arcaerrors.New(arcaerrors.KindNotFound, "no snapshot directory configured")
	}

	var snap string
	if configVersion == "latest" {
		snap = latestSnapshotPath(e.snapshotDir, svmName)
	} else {
		snap = snapshotPath(e.snapshotDir, svmName, configVersion)
	}

	body, err := os.ReadFile(snap)
	if err != nil {
		if os.IsNotExist(err) {
			return "", arcaerrors.Wrapf(arcaerrors.KindNotFound, err, "snapshot %s not found for SVM %s", configVersion, svmName)
		}
		return "", arcaerrors.Wrap(arcaerrors.KindInternal, err, "read config snapshot")
	}

	path := configPath(e.configDir, svmName)
	if err := atomicfile.Write(path, body, 0644); err != nil {
		return "", arcaerrors.Wrap(arcaerrors.KindInternal, err, "restore exporter config from snapshot")
	}

	if err := e.reload.Reload(ctx, svmName); err != nil {
		return "", err
	}

	klog.Infof("rolled back exporter config for SVM %s to version %s", svmName, configVersion)
	return path, nil
}
