// Copyright 2025 The scopefs Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/containerd/log"
	"github.com/coreos/go-systemd/v22/daemon"
	metrics "github.com/docker/go-metrics"
	"github.com/google/subcommands"
	"github.com/moby/sys/capability"
	"github.com/moby/sys/mountinfo"
	"golang.org/x/sys/unix"

	"scopefs.dev/scopefs/pkg/cgmanager"
	"scopefs.dev/scopefs/pkg/cgroupfs"
	"scopefs.dev/scopefs/pkg/fsys"
	"scopefs.dev/scopefs/pkg/procfs"
	"scopefs.dev/scopefs/scopefsd/config"
)

// Mount implements subcommands.Command for the "mount" command.
type Mount struct{}

// Name implements subcommands.Command.Name.
func (*Mount) Name() string {
	return "mount"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Mount) Synopsis() string {
	return "mount the scoped view of /proc and the cgroup hierarchies and serve it"
}

// Usage implements subcommands.Command.Usage.
func (*Mount) Usage() string {
	return `mount <mountpoint>

Connects to the cgroup manager, discovers the mounted controllers, and
serves the scoped filesystem at <mountpoint> until SIGINT or SIGTERM
arrives or the mountpoint is unmounted externally. Container runtimes
bind-mount files and subtrees of <mountpoint> over a container's /proc
and /sys/fs/cgroup before starting the workload.

`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Mount) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Mount) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	mountpoint := f.Arg(0)
	conf := args[0].(*config.Config)

	if err := checkPrivileges(); err != nil {
		Fatalf("%v", err)
	}
	if mounted, err := mountinfo.Mounted(mountpoint); err != nil {
		Fatalf("checking mountpoint %s: %v", mountpoint, err)
	} else if mounted {
		Fatalf("%s is already a mountpoint; unmount it first", mountpoint)
	}

	if conf.PidFile != "" {
		lock, err := acquirePidFile(conf.PidFile, os.Getpid())
		if err != nil {
			Fatalf("%v", err)
		}
		defer func() {
			if err := releasePidFile(lock); err != nil {
				log.L.WithError(err).Warn("releasing pid file")
			}
		}()
	}

	client, err := connect(ctx, conf)
	if err != nil {
		Fatalf("connecting to cgroup manager at %s: %v", conf.Socket, err)
	}
	defer client.Close()

	controllers, err := discoverControllers(ctx, client, conf)
	if err != nil {
		Fatalf("%v", err)
	}
	log.L.WithField("controllers", controllers).Info("discovered cgroup controllers")

	if conf.MetricsAddr != "" {
		defer serveMetrics(conf.MetricsAddr)()
	}

	fsim := fsys.New(procfs.NewAt(client, conf.ProcRoot), cgroupfs.New(client), controllers)
	server, err := fsys.Mount(fsim, mountpoint, conf.Debug)
	if err != nil {
		Fatalf("%v", err)
	}
	log.L.WithField("mountpoint", mountpoint).Info("filesystem mounted")
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.L.WithError(err).Warn("notifying service manager")
	}

	done := make(chan struct{})
	go func() {
		server.Wait()
		close(done)
	}()

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, unix.SIGINT, unix.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case sig := <-sigs:
		log.L.WithField("signal", sig).Info("shutting down")
		daemon.SdNotify(false, daemon.SdNotifyStopping)
		if err := server.Unmount(); err != nil {
			// Likely busy. Do not wait for a mount that will not go
			// away; report the failure and let the operator retry.
			log.L.WithError(err).Error("unmounting")
			return subcommands.ExitFailure
		}
		<-done
	case <-done:
		log.L.Info("mountpoint was unmounted externally")
	}
	return subcommands.ExitSuccess
}

// checkPrivileges verifies the process can actually mount: the fuse mount
// and its allow_other option both need CAP_SYS_ADMIN.
func checkPrivileges() error {
	caps, err := capability.NewPid2(0)
	if err != nil {
		return fmt.Errorf("reading capabilities: %w", err)
	}
	if err := caps.Load(); err != nil {
		return fmt.Errorf("loading capabilities: %w", err)
	}
	if !caps.Get(capability.EFFECTIVE, capability.CAP_SYS_ADMIN) {
		return errors.New("scopefsd requires CAP_SYS_ADMIN to mount")
	}
	return nil
}

// connect dials the manager, retrying with exponential backoff until the
// configured deadline. At boot the manager may come up after us.
func connect(ctx context.Context, conf *config.Config) (*cgmanager.Manager, error) {
	var client *cgmanager.Manager
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = conf.DialTimeout
	err := backoff.Retry(func() error {
		m, err := cgmanager.Dial(conf.Socket)
		if err != nil {
			log.L.WithError(err).Debug("cgroup manager not reachable yet")
			return err
		}
		if err := m.Ping(ctx); err != nil {
			m.Close()
			log.L.WithError(err).Debug("cgroup manager not answering yet")
			return err
		}
		client = m
		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return nil, err
	}
	return client, nil
}

// discoverControllers fetches the controller set once; it stays fixed for
// the daemon lifetime. An allowlist restricts it but keeps discovery
// order; asking for a controller the manager does not have is a startup
// error, not a silently empty directory.
func discoverControllers(ctx context.Context, client cgmanager.Client, conf *config.Config) ([]string, error) {
	discovered, err := client.ListControllers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing controllers: %w", err)
	}
	if len(discovered) == 0 {
		return nil, errors.New("cgroup manager reports no controllers")
	}
	allow := conf.ControllerList()
	if allow == nil {
		return discovered, nil
	}
	have := make(map[string]bool, len(discovered))
	for _, c := range discovered {
		have[c] = true
	}
	for _, c := range allow {
		if !have[c] {
			return nil, fmt.Errorf("controller %q is not mounted (manager has %v)", c, discovered)
		}
	}
	want := make(map[string]bool, len(allow))
	for _, c := range allow {
		want[c] = true
	}
	var keep []string
	for _, c := range discovered {
		if want[c] {
			keep = append(keep, c)
		}
	}
	return keep, nil
}

// serveMetrics exposes the Prometheus registry over HTTP. Serving trouble
// is logged, never fatal; metrics are an aid, not a dependency.
func serveMetrics(addr string) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.L.WithField("addr", addr).Info("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.L.WithError(err).Error("metrics server failed")
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}
}
