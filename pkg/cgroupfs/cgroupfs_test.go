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

package cgroupfs

import (
	"context"
	"strings"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/google/go-cmp/cmp"

	"scopefs.dev/scopefs/pkg/cgmanager"
	"scopefs.dev/scopefs/pkg/cgmanager/cgmanagertest"
)

func TestListEntries(t *testing.T) {
	client := &cgmanagertest.Client{
		Keys: map[string][]cgmanager.Key{
			"memory/lxc/web": {
				{Name: "memory.limit_in_bytes", UID: 0, GID: 0, Mode: 0o644},
				{Name: "memory.usage_in_bytes", UID: 1000, GID: 1000, Mode: 0o444},
			},
		},
		Children: map[string][]string{
			"memory/lxc/web": {"child-a", "child-b"},
		},
	}
	got, err := New(client).ListEntries(context.Background(), "memory", "lxc/web")
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	want := []Entry{
		{Name: ".", Kind: KindDir, Mode: 0o755},
		{Name: "..", Kind: KindDir, Mode: 0o755},
		{Name: "memory.limit_in_bytes", Kind: KindFile, Mode: 0o644},
		{Name: "memory.usage_in_bytes", Kind: KindFile, UID: 1000, GID: 1000, Mode: 0o444},
		{Name: "child-a", Kind: KindDir, Mode: 0o755},
		{Name: "child-b", Kind: KindDir, Mode: 0o755},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ListEntries returned diff (-want +got):\n%s", diff)
	}
}

func TestListEntriesEmptyCgroup(t *testing.T) {
	client := &cgmanagertest.Client{}
	got, err := New(client).ListEntries(context.Background(), "memory", "empty")
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	want := []Entry{
		{Name: ".", Kind: KindDir, Mode: 0o755},
		{Name: "..", Kind: KindDir, Mode: 0o755},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ListEntries of an empty cgroup returned diff (-want +got):\n%s", diff)
	}
}

func TestLookup(t *testing.T) {
	client := &cgmanagertest.Client{
		Keys: map[string][]cgmanager.Key{
			"memory/box": {
				{Name: "memory.limit_in_bytes", UID: 7, GID: 8, Mode: 0o644},
				{Name: "cgroup.event_control", UID: 0, GID: 0, Mode: 0o200},
			},
		},
		Children: map[string][]string{
			"memory/box": {"sub"},
		},
		Values: map[string]string{
			"memory/box/memory.limit_in_bytes": "512000",
		},
	}
	v := New(client)
	ctx := context.Background()

	t.Run("key", func(t *testing.T) {
		got, err := v.Lookup(ctx, "memory", "box", "memory.limit_in_bytes")
		if err != nil {
			t.Fatalf("Lookup failed: %v", err)
		}
		// Size counts the value plus the newline ReadKey appends.
		want := Entry{Name: "memory.limit_in_bytes", Kind: KindFile, UID: 7, GID: 8, Mode: 0o644, Size: 7}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Lookup returned diff (-want +got):\n%s", diff)
		}
	})

	t.Run("child", func(t *testing.T) {
		got, err := v.Lookup(ctx, "memory", "box", "sub")
		if err != nil {
			t.Fatalf("Lookup failed: %v", err)
		}
		want := Entry{Name: "sub", Kind: KindDir, Mode: 0o755}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Lookup returned diff (-want +got):\n%s", diff)
		}
	})

	t.Run("missing", func(t *testing.T) {
		if _, err := v.Lookup(ctx, "memory", "box", "nope"); err == nil {
			t.Fatal("Lookup of a missing entry should have failed")
		} else if !errdefs.IsNotFound(err) {
			t.Errorf("Lookup of a missing entry returned %v, want not-found class", err)
		}
	})
}

// Lookup of cgroup.event_control must report size 0 and must not fetch the
// value; reading it through the manager is not supported.
func TestLookupEventControl(t *testing.T) {
	client := &cgmanagertest.Client{
		Keys: map[string][]cgmanager.Key{
			"memory/box": {
				{Name: "cgroup.event_control", UID: 0, GID: 0, Mode: 0o200},
			},
		},
	}
	got, err := New(client).Lookup(context.Background(), "memory", "box", "cgroup.event_control")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	want := Entry{Name: "cgroup.event_control", Kind: KindFile, Mode: 0o200, Size: 0}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Lookup returned diff (-want +got):\n%s", diff)
	}
	for _, call := range client.Calls() {
		if strings.HasPrefix(call, "GetValue") {
			t.Errorf("Lookup of cgroup.event_control fetched a value: %q", call)
		}
	}
}

func TestReadKey(t *testing.T) {
	client := &cgmanagertest.Client{
		Values: map[string]string{
			"memory/box/memory.limit_in_bytes": "512000",
		},
	}
	v := New(client)
	got, err := v.ReadKey(context.Background(), "memory", "box", "memory.limit_in_bytes")
	if err != nil {
		t.Fatalf("ReadKey failed: %v", err)
	}
	if want := "512000\n"; string(got) != want {
		t.Errorf("ReadKey got: %q, want: %q", got, want)
	}

	if _, err := v.ReadKey(context.Background(), "memory", "box", "memory.nope"); err == nil {
		t.Fatal("ReadKey of an unknown key should have failed")
	} else if !errdefs.IsUnavailable(err) {
		t.Errorf("ReadKey of an unknown key returned %v, want unavailable class", err)
	}
}
