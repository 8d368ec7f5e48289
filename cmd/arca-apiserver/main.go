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

// Command arca-apiserver runs the ARCA REST control plane: SVM, volume,
// directory, export, snapshot and quota management backed by a resource
// host that places composite resource groups on the active cluster node.
package main

import (
	"context"
	goflag "flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/arca-storage/arca/pkg/config"
	"github.com/arca-storage/arca/pkg/resourcehost"
	"github.com/arca-storage/arca/pkg/server"
	"github.com/arca-storage/arca/pkg/server/arca"
	"github.com/arca-storage/arca/pkg/version"
)

var (
	bindAddr string
	port     int
)

func main() {
	klog.InitFlags(nil)

	cmd := &cobra.Command{
		Use:     "arca-apiserver",
		Short:   "ARCA storage control plane REST API server",
		Version: version.GetVersion(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}

	cmd.Flags().StringVar(&bindAddr, "bind-addr", "127.0.0.1", "address the REST API binds to")
	cmd.Flags().IntVar(&port, "port", 0, "port the REST API listens on (0 uses the runtime config's api_port)")
	cmd.Flags().AddGoFlagSet(goflag.CommandLine)

	if err := cmd.Execute(); err != nil {
		klog.Fatalf("arca-apiserver exited: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if port == 0 {
		port = cfg.Runtime.APIPort
	}
	if bindAddr == "127.0.0.1" && cfg.Runtime.APIHost != "" {
		bindAddr = cfg.Runtime.APIHost
	}

	host := resourcehost.NewPCSResourceHost(cfg.Bootstrap.PacemakerRAVendor)

	arcaServer, err := arca.NewServer(cfg, host)
	if err != nil {
		return err
	}

	serverCfg := server.DefaultServerConfig()
	serverCfg.BindAddr = bindAddr
	serverCfg.Port = &port
	if err := serverCfg.NormalizeAddrs(); err != nil {
		return err
	}

	httpServer, err := arca.NewHTTPServer(arcaServer, serverCfg)
	if err != nil {
		return err
	}

	klog.Infof("arca-apiserver listening on %s", serverCfg.NormalizedAddrs.HTTP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		klog.Infof("received signal %v, shutting down", sig)
		httpServer.Shutdown()
		cancel()
	}()

	<-ctx.Done()
	return nil
}
