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

// Command arca-csi-controller runs the CSI Controller and Identity
// services: volume/snapshot lifecycle against the ARCA REST API, SVM
// provisioning via a distributed lease, and IP pool allocation for VIPs.
package main

import (
	"context"
	goflag "flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/klog/v2"

	"github.com/arca-storage/arca/pkg/arcaclient"
	"github.com/arca-storage/arca/pkg/config"
	arcacsi "github.com/arca-storage/arca/pkg/csi"
	"github.com/arca-storage/arca/pkg/ipalloc"
	"github.com/arca-storage/arca/pkg/lock"
	"github.com/arca-storage/arca/pkg/metastore"
	"github.com/arca-storage/arca/pkg/version"
)

var (
	configPath    string
	endpoint      string
	kubeconfig    string
	cacheSize     int
	cacheTTLSecs  int
)

func main() {
	klog.InitFlags(nil)

	cmd := &cobra.Command{
		Use:     "arca-csi-controller",
		Short:   "ARCA CSI controller plugin",
		Version: version.GetVersion(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to the CSI controller config file")
	cmd.Flags().StringVar(&endpoint, "endpoint", "unix:///var/lib/csi/sockets/pluginproxy/csi.sock", "CSI gRPC endpoint")
	cmd.Flags().StringVar(&kubeconfig, "kubeconfig", "", "path to kubeconfig (defaults to in-cluster config)")
	cmd.Flags().IntVar(&cacheSize, "cache-size", 1024, "metadata store LRU cache entries")
	cmd.Flags().IntVar(&cacheTTLSecs, "cache-ttl-seconds", 5, "metadata store LRU cache TTL in seconds")
	cmd.Flags().AddGoFlagSet(goflag.CommandLine)

	if err := cmd.Execute(); err != nil {
		klog.Fatalf("arca-csi-controller exited: %v", err)
	}
}

func run() error {
	if envEndpoint := os.Getenv("CSI_ENDPOINT"); envEndpoint != "" {
		endpoint = envEndpoint
	}

	csiCfg, err := config.LoadCSIConfig(configPath)
	if err != nil {
		return err
	}

	k8sClient, err := buildKubernetesClient(kubeconfig)
	if err != nil {
		return err
	}

	arcaClient, err := arcaclient.NewClient(&arcaclient.ClientConfig{
		BaseURL:    csiCfg.ARCABaseURL,
		Timeout:    time.Duration(csiCfg.ARCATimeout) * time.Second,
		RetryCount: csiCfg.ARCARetries,
	})
	if err != nil {
		return err
	}

	allocator, err := ipalloc.New(csiCfg.IPPools, arcaClient)
	if err != nil {
		return err
	}

	lockIdentity := os.Getenv("POD_NAME")
	if lockIdentity == "" {
		lockIdentity, err = os.Hostname()
		if err != nil {
			return err
		}
	}
	lockMgr := lock.NewManager(k8sClient.CoordinationV1().Leases(csiCfg.LockNamespace), lockIdentity)

	svmManager := arcaclient.NewSVMManager(arcaClient, allocator, lockMgr, csiCfg.MTU)

	backing := metastore.NewMemoryStore()
	store, err := metastore.NewCachedStore(backing, cacheSize, time.Duration(cacheTTLSecs)*time.Second)
	if err != nil {
		return err
	}

	driver, err := arcacsi.NewDriver(&arcacsi.DriverConfig{
		Mode:       "controller",
		Endpoint:   endpoint,
		ArcaClient: arcaClient,
		SVMManager: svmManager,
		Allocator:  allocator,
		Store:      store,
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
	klog.Info("arca-csi-controller stopped")
	return nil
}

func buildKubernetesClient(kubeconfigPath string) (*kubernetes.Clientset, error) {
	var restCfg *rest.Config
	var err error
	if kubeconfigPath != "" {
		restCfg, err = clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	} else {
		restCfg, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, err
	}
	return kubernetes.NewForConfig(restCfg)
}
