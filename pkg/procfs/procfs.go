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

// Package procfs synthesizes the virtualized /proc files.
//
// Each file's content is a pure function of the caller's pid: the caller's
// cgroup memberships are resolved from the real /proc/<pid>/cgroup, the
// relevant limits are fetched from the cgroup manager, and the real kernel
// file is rewritten accordingly. Nothing is cached between calls, so a
// Rewriter is trivially safe for concurrent use and the output can never
// be stale.
//
// # Files
//
//   - cpuinfo: records filtered to the caller's cpuset and densely
//     renumbered from processor 0.
//   - meminfo: MemTotal, MemFree, MemAvailable, Cached, Buffers and
//     SwapCached recomputed from the caller's memory cgroup.
//   - stat: per-cpu lines filtered and renumbered like cpuinfo; the
//     aggregate "cpu" line and all other lines pass through untouched.
//   - uptime: elapsed time since the oldest task in the caller's cpuset
//     cgroup appeared; the idle field passes through.
package procfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/containerd/errdefs"

	"scopefs.dev/scopefs/pkg/cgmanager"
)

// File enumerates the synthesized proc files. The set is closed: dispatch
// happens over an exhaustive switch, so growing it is a compile-time
// checked change.
type File int

const (
	// CPUInfo is /proc/cpuinfo.
	CPUInfo File = iota
	// MemInfo is /proc/meminfo.
	MemInfo
	// Stat is /proc/stat.
	Stat
	// Uptime is /proc/uptime.
	Uptime
)

// Files returns all synthesized files in listing order.
func Files() []File {
	return []File{CPUInfo, MemInfo, Stat, Uptime}
}

// Name returns the file's name within the proc directory.
func (f File) Name() string {
	switch f {
	case CPUInfo:
		return "cpuinfo"
	case MemInfo:
		return "meminfo"
	case Stat:
		return "stat"
	case Uptime:
		return "uptime"
	}
	return fmt.Sprintf("procfs.File(%d)", f)
}

// FileByName maps a proc directory entry name back to its File.
func FileByName(name string) (File, bool) {
	for _, f := range Files() {
		if f.Name() == name {
			return f, true
		}
	}
	return 0, false
}

// Controllers consulted while rewriting.
const (
	cpusetController = "cpuset"
	memoryController = "memory"
)

// Rewriter regenerates the virtualized proc files. It holds only immutable
// configuration; all per-call state lives on the stack.
type Rewriter struct {
	client cgmanager.Client

	// procRoot is the real proc mount, normally "/proc". Tests point it
	// at a fixture tree.
	procRoot string

	// now stands in for time.Now so uptime tests can pin the clock.
	now func() time.Time
}

// New returns a Rewriter reading kernel sources from /proc and cgroup
// facts from client.
func New(client cgmanager.Client) *Rewriter {
	return NewAt(client, "/proc")
}

// NewAt is New with an alternate proc mount, for tests and embedders that
// see the kernel's proc elsewhere.
func NewAt(client cgmanager.Client, procRoot string) *Rewriter {
	return &Rewriter{
		client:   client,
		procRoot: procRoot,
		now:      time.Now,
	}
}

// Generate materializes the full content of f as seen by the calling pid.
// The returned buffer is freshly allocated on every call; no partial
// content is ever returned alongside an error.
func (r *Rewriter) Generate(ctx context.Context, f File, pid int32) ([]byte, error) {
	switch f {
	case CPUInfo:
		return r.cpuinfo(ctx, pid)
	case MemInfo:
		return r.meminfo(ctx, pid)
	case Stat:
		return r.stat(ctx, pid)
	case Uptime:
		return r.uptime(ctx, pid)
	}
	return nil, fmt.Errorf("procfs: no generator for %q: %w", f.Name(), errdefs.ErrNotFound)
}

// readSource reads one of the real kernel's proc files.
func (r *Rewriter) readSource(name string) ([]byte, error) {
	b, err := os.ReadFile(filepath.Join(r.procRoot, name))
	if err != nil {
		return nil, fmt.Errorf("procfs: read source %s: %v: %w", name, err, errdefs.ErrInternal)
	}
	return b, nil
}

// callerCpuset resolves the caller's cpuset cgroup and expands its
// cpuset.cpus value into the ordered cpu id list.
func (r *Rewriter) callerCpuset(ctx context.Context, pid int32) ([]int, error) {
	cg, err := r.cgroupOf(pid, cpusetController)
	if err != nil {
		return nil, err
	}
	v, err := r.client.GetValue(ctx, cpusetController, cg, "cpuset.cpus")
	if err != nil {
		return nil, err
	}
	cpus, err := expandCpuset(strings.TrimSpace(v))
	if err != nil {
		return nil, fmt.Errorf("procfs: cpuset.cpus of %q: %v: %w", cg, err, errdefs.ErrUnavailable)
	}
	return cpus, nil
}
