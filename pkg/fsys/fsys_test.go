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

package fsys

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"

	"scopefs.dev/scopefs/pkg/cgmanager"
	"scopefs.dev/scopefs/pkg/cgmanager/cgmanagertest"
	"scopefs.dev/scopefs/pkg/cgroupfs"
	"scopefs.dev/scopefs/pkg/procfs"
)

const testCPUInfo = `processor	: 0
model name	: test model
cpu MHz		: 2600.000

processor	: 1
model name	: test model
cpu MHz		: 2600.001
`

func writeSource(t *testing.T, procRoot, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(procRoot, name), []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s fixture: %v", name, err)
	}
}

func fakeCaller(t *testing.T, procRoot string, pid int32, cgroups string) {
	t.Helper()
	dir := filepath.Join(procRoot, strconv.Itoa(int(pid)))
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("creating fake caller %d: %v", pid, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "cgroup"), []byte(cgroups), 0o644); err != nil {
		t.Fatalf("writing fake caller %d cgroup: %v", pid, err)
	}
}

// newTestFilesystem builds a Filesystem over a fixture proc root and a
// scripted manager with controllers cpuset and memory.
func newTestFilesystem(t *testing.T, client cgmanager.Client) (*Filesystem, string) {
	t.Helper()
	dir := t.TempDir()
	return New(procfs.NewAt(client, dir), cgroupfs.New(client), []string{"cpuset", "memory"}), dir
}

func testClient() *cgmanagertest.Client {
	return &cgmanagertest.Client{
		Controllers: []string{"cpuset", "memory"},
		Keys: map[string][]cgmanager.Key{
			"memory": {
				{Name: "memory.limit_in_bytes", UID: 0, GID: 0, Mode: 0o644},
			},
			"memory/box": {
				{Name: "memory.limit_in_bytes", UID: 7, GID: 8, Mode: 0o644},
				{Name: "cgroup.event_control", UID: 0, GID: 0, Mode: 0o200},
			},
		},
		Children: map[string][]string{
			"memory":     {"box"},
			"memory/box": {"sub"},
		},
		Values: map[string]string{
			"memory/box/memory.limit_in_bytes": "512000",
			"cpuset/box/cpuset.cpus":           "1",
		},
	}
}

func TestGetAttributesDirs(t *testing.T) {
	f, _ := newTestFilesystem(t, testClient())
	ctx := context.Background()
	want := Attr{IsDir: true, Mode: 0o755, Nlink: 2}
	for _, p := range []string{"", "/", "proc", "cgroup", "cgroup/memory", "cgroup/memory/box", "cgroup/memory/box/sub"} {
		t.Run("path="+p, func(t *testing.T) {
			got, err := f.GetAttributes(ctx, Caller{}, p)
			if err != nil {
				t.Fatalf("GetAttributes(%q) failed: %v", p, err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("GetAttributes(%q) returned diff (-want +got):\n%s", p, diff)
			}
		})
	}
}

func TestGetAttributesProcFile(t *testing.T) {
	client := testClient()
	f, dir := newTestFilesystem(t, client)
	writeSource(t, dir, "cpuinfo", testCPUInfo)
	fakeCaller(t, dir, 100, "5:cpuset:/box\n")
	ctx := context.Background()
	caller := Caller{PID: 100}

	attr, err := f.GetAttributes(ctx, caller, "proc/cpuinfo")
	if err != nil {
		t.Fatalf("GetAttributes(proc/cpuinfo) failed: %v", err)
	}
	content, err := f.Read(ctx, caller, "proc/cpuinfo", 1<<20, 0)
	if err != nil {
		t.Fatalf("Read(proc/cpuinfo) failed: %v", err)
	}
	want := Attr{Mode: 0o444, Size: int64(len(content)), Nlink: 1}
	if diff := cmp.Diff(want, attr); diff != "" {
		t.Errorf("GetAttributes(proc/cpuinfo) returned diff (-want +got):\n%s", diff)
	}
	if attr.Size == 0 {
		t.Error("GetAttributes(proc/cpuinfo) reported size 0 for non-empty content")
	}
}

func TestGetAttributesCgroupKey(t *testing.T) {
	f, _ := newTestFilesystem(t, testClient())
	got, err := f.GetAttributes(context.Background(), Caller{}, "cgroup/memory/box/memory.limit_in_bytes")
	if err != nil {
		t.Fatalf("GetAttributes failed: %v", err)
	}
	// Size counts the trailing newline appended on read.
	want := Attr{Mode: 0o644, UID: 7, GID: 8, Size: int64(len("512000")) + 1, Nlink: 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GetAttributes returned diff (-want +got):\n%s", diff)
	}
}

func TestGetAttributesNotFound(t *testing.T) {
	f, _ := newTestFilesystem(t, testClient())
	ctx := context.Background()
	for _, p := range []string{
		"nope",
		"proc/nope",
		"proc/cpuinfo/deeper",
		"cgroup/blkio",         // not in the discovered set
		"cgroup/memory/box/no", // neither key nor child
		"../../../etc/passwd",
	} {
		t.Run("path="+p, func(t *testing.T) {
			if _, err := f.GetAttributes(ctx, Caller{}, p); err == nil {
				t.Fatalf("GetAttributes(%q) should have failed", p)
			} else if !errdefs.IsNotFound(err) {
				t.Errorf("GetAttributes(%q) returned %v, want not-found class", p, err)
			}
		})
	}
}

func TestListDirectory(t *testing.T) {
	f, _ := newTestFilesystem(t, testClient())
	ctx := context.Background()
	for _, tc := range []struct {
		path string
		want []string
	}{
		{path: "", want: []string{".", "..", "proc", "cgroup"}},
		{path: "proc", want: []string{".", "..", "cpuinfo", "meminfo", "stat", "uptime"}},
		{path: "cgroup", want: []string{".", "..", "cpuset", "memory"}},
		{path: "cgroup/memory", want: []string{".", "..", "memory.limit_in_bytes", "box"}},
		{path: "cgroup/memory/box", want: []string{".", "..", "memory.limit_in_bytes", "cgroup.event_control", "sub"}},
		// A cgroup with no keys and no children still lists the dots.
		{path: "cgroup/memory/box/sub", want: []string{".", ".."}},
	} {
		t.Run("path="+tc.path, func(t *testing.T) {
			got, err := f.ListDirectory(ctx, tc.path)
			if err != nil {
				t.Fatalf("ListDirectory(%q) failed: %v", tc.path, err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("ListDirectory(%q) returned diff (-want +got):\n%s", tc.path, diff)
			}
		})
	}
}

func TestListDirectoryOnFile(t *testing.T) {
	f, _ := newTestFilesystem(t, testClient())
	if _, err := f.ListDirectory(context.Background(), "proc/cpuinfo"); err == nil {
		t.Fatal("ListDirectory on a file should have failed")
	} else if !errdefs.IsNotFound(err) {
		t.Errorf("ListDirectory on a file returned %v, want not-found class", err)
	}
}

func TestReadCgroupKey(t *testing.T) {
	f, _ := newTestFilesystem(t, testClient())
	ctx := context.Background()
	const p = "cgroup/memory/box/memory.limit_in_bytes"

	for _, tc := range []struct {
		name   string
		size   int64
		offset int64
		want   string
	}{
		{name: "whole file", size: 4096, offset: 0, want: "512000\n"},
		{name: "window", size: 3, offset: 2, want: "200"},
		{name: "tail", size: 100, offset: 6, want: "\n"},
		{name: "offset at end", size: 100, offset: 7, want: ""},
		{name: "offset past end", size: 100, offset: 4096, want: ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := f.Read(ctx, Caller{}, p, tc.size, tc.offset)
			if err != nil {
				t.Fatalf("Read(%q, %d, %d) failed: %v", p, tc.size, tc.offset, err)
			}
			if string(got) != tc.want {
				t.Errorf("Read(%q, %d, %d) got: %q, want: %q", p, tc.size, tc.offset, got, tc.want)
			}
		})
	}
}

func TestReadDirectoryFails(t *testing.T) {
	f, _ := newTestFilesystem(t, testClient())
	ctx := context.Background()
	for _, p := range []string{"", "proc", "cgroup", "cgroup/memory"} {
		if _, err := f.Read(ctx, Caller{}, p, 4096, 0); err == nil {
			t.Errorf("Read(%q) should have failed", p)
		} else if !errdefs.IsNotFound(err) {
			t.Errorf("Read(%q) returned %v, want not-found class", p, err)
		}
	}
}

func TestReadServiceFailurePassthrough(t *testing.T) {
	client := testClient()
	client.Err = fmt.Errorf("scripted failure: %w", errdefs.ErrUnavailable)
	f, dir := newTestFilesystem(t, client)
	fakeCaller(t, dir, 100, "5:cpuset:/box\n")

	if _, err := f.Read(context.Background(), Caller{PID: 100}, "proc/cpuinfo", 4096, 0); err == nil {
		t.Fatal("Read with a failing manager should have failed")
	} else if !errdefs.IsUnavailable(err) {
		t.Errorf("Read with a failing manager returned %v, want unavailable class", err)
	}
}

func TestWindow(t *testing.T) {
	for _, tc := range []struct {
		size   int64
		offset int64
		want   string
	}{
		{size: 5, offset: 0, want: "hello"},
		{size: 2, offset: 1, want: "el"},
		{size: 10, offset: 3, want: "lo"},
		{size: 0, offset: 0, want: ""},
		{size: 1, offset: 5, want: ""},
		{size: 1, offset: 50, want: ""},
		{size: 1, offset: -1, want: ""},
		{size: math.MaxInt64, offset: 1, want: "ello"},
		{size: math.MaxInt64, offset: 0, want: "hello"},
		{size: -1, offset: 0, want: ""},
		{size: math.MinInt64, offset: 2, want: ""},
	} {
		if got := string(window([]byte("hello"), tc.size, tc.offset)); got != tc.want {
			t.Errorf("window(hello, %d, %d) got: %q, want: %q", tc.size, tc.offset, got, tc.want)
		}
	}
}

// Two callers in different cgroups hammering the same path must each see
// exactly their own content.
func TestReadConcurrentCallers(t *testing.T) {
	client := testClient()
	client.Values["cpuset/wide/cpuset.cpus"] = "0-1"
	f, dir := newTestFilesystem(t, client)
	writeSource(t, dir, "cpuinfo", testCPUInfo)
	fakeCaller(t, dir, 100, "5:cpuset:/box\n")
	fakeCaller(t, dir, 200, "5:cpuset:/wide\n")
	ctx := context.Background()

	wantNarrow, err := f.Read(ctx, Caller{PID: 100}, "proc/cpuinfo", 1<<20, 0)
	if err != nil {
		t.Fatalf("Read(pid 100) failed: %v", err)
	}
	wantWide, err := f.Read(ctx, Caller{PID: 200}, "proc/cpuinfo", 1<<20, 0)
	if err != nil {
		t.Fatalf("Read(pid 200) failed: %v", err)
	}
	if bytes.Equal(wantNarrow, wantWide) {
		t.Fatal("fixture views are identical, test proves nothing")
	}

	var g errgroup.Group
	for i := 0; i < 25; i++ {
		g.Go(func() error {
			got, err := f.Read(ctx, Caller{PID: 100}, "proc/cpuinfo", 1<<20, 0)
			if err != nil {
				return err
			}
			if !bytes.Equal(got, wantNarrow) {
				return fmt.Errorf("pid 100 saw a foreign view:\n%s", got)
			}
			return nil
		})
		g.Go(func() error {
			got, err := f.Read(ctx, Caller{PID: 200}, "proc/cpuinfo", 1<<20, 0)
			if err != nil {
				return err
			}
			if !bytes.Equal(got, wantWide) {
				return fmt.Errorf("pid 200 saw a foreign view:\n%s", got)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}
