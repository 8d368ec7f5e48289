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

// Command arca-csi-node runs the CSI Node and Identity services on a
// kubelet host: bind-mounting volumes out of per-SVM NFS mounts it
// establishes and refcounts locally.
package main

import (
	"context"
	goflag "flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	arcacsi "github.com/arca-storage/arca/pkg/csi"
	"github.com/arca-storage/arca/pkg/version"
)

var (
	nodeID        string
	endpoint      string
	stateFilePath string
	baseMountPath string
)

func main() {
	klog.InitFlags(nil)

	cmd := &cobra.Command{
		Use:     "arca-csi-node",
		Short:   "ARCA CSI node plugin",
		Version: version.GetVersion(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}

	cmd.Flags().StringVar(&nodeID, "node-id", "", "node ID reported to CSI callers (required)")
	cmd.Flags().StringVar(&endpoint, "endpoint", "unix:///var/lib/csi/sockets/pluginproxy/csi.sock", "CSI gRPC endpoint")
	cmd.Flags().StringVar(&stateFilePath, "state-file", "", "path to the node's staging/publish state file")
	cmd.Flags().StringVar(&baseMountPath, "base-mount-path", "", "base directory for per-SVM NFS mounts")
	cmd.Flags().AddGoFlagSet(goflag.CommandLine)

	if err := cmd.Execute(); err != nil {
		klog.Fatalf("arca-csi-node exited: %v", err)
	}
}

func run() error {
	if envEndpoint := os.Getenv("CSI_ENDPOINT"); envEndpoint != "" {
		endpoint = envEndpoint
	}
	if nodeID == "" {
		nodeID = os.Getenv("NODE_ID")
	}
	if nodeID == "" {
		klog.Fatal("--node-id (or NODE_ID) is required for the node plugin")
	}

	driver, err := arcacsi.NewDriver(&arcacsi.DriverConfig{
		Mode:          "node",
		NodeID:        nodeID,
		Endpoint:      endpoint,
		StateFilePath: stateFilePath,
		BaseMountPath: baseMountPath,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		klog.Infof("received signal %v, shutting down", sig)
		cancel()
	}()

	if err := driver.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	klog.Info("arca-csi-node stopped")
	return nil
}
