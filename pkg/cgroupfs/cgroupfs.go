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

// Package cgroupfs projects a controller's cgroup hierarchy as a read-only
// directory tree: one directory per cgroup, one file per tunable key.
//
// The projection is a pass-through, not a transformation. Key ownership and
// permission bits come verbatim from the cgroup manager, which is the
// authority on them; directories are synthesized root-owned 0755. Every
// call queries the manager afresh, so a View carries no state and is safe
// for concurrent use.
package cgroupfs

import (
	"context"
	"fmt"
	"path"

	"github.com/containerd/errdefs"

	"scopefs.dev/scopefs/pkg/cgmanager"
)

// EntryKind distinguishes the two things a cgroup directory can hold.
type EntryKind int

const (
	// KindFile is a tunable key.
	KindFile EntryKind = iota
	// KindDir is a child cgroup.
	KindDir
)

// Entry describes one directory entry of the projected tree. It exists only
// for the duration of a single listing or lookup.
type Entry struct {
	Name string
	Kind EntryKind
	Mode uint32
	UID  uint32
	GID  uint32

	// Size is the content length a stat should report. Only meaningful
	// for KindFile.
	Size int64
}

// dirEntry synthesizes directory metadata; cgroup directories are always
// presented root-owned 0755.
func dirEntry(name string) Entry {
	return Entry{Name: name, Kind: KindDir, Mode: 0o755}
}

// eventControlKey cannot be read through this projection: its size is
// reported as zero and no value fetch is attempted for it.
const eventControlKey = "cgroup.event_control"

// View projects the hierarchies of all controllers of one manager.
type View struct {
	client cgmanager.Client
}

// New returns a View backed by client.
func New(client cgmanager.Client) *View {
	return &View{client: client}
}

// ListEntries returns the entries of the cgroup directory at cgPath under
// controller: ".", "..", one file per key, one directory per child cgroup,
// in the order the manager reports them.
func (v *View) ListEntries(ctx context.Context, controller, cgPath string) ([]Entry, error) {
	keys, err := v.client.ListKeys(ctx, controller, cgPath)
	if err != nil {
		return nil, err
	}
	children, err := v.client.ListChildren(ctx, controller, cgPath)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, 2+len(keys)+len(children))
	entries = append(entries, dirEntry("."), dirEntry(".."))
	for _, k := range keys {
		entries = append(entries, Entry{
			Name: k.Name,
			Kind: KindFile,
			Mode: k.Mode,
			UID:  k.UID,
			GID:  k.GID,
		})
	}
	for _, c := range children {
		entries = append(entries, dirEntry(c))
	}
	return entries, nil
}

// Lookup resolves name within the cgroup directory at cgPath. File sizes
// are computed from a fresh value fetch (value length plus the trailing
// newline ReadKey appends), except eventControlKey which reports size zero
// without touching the value.
func (v *View) Lookup(ctx context.Context, controller, cgPath, name string) (Entry, error) {
	keys, err := v.client.ListKeys(ctx, controller, cgPath)
	if err != nil {
		return Entry{}, err
	}
	for _, k := range keys {
		if k.Name != name {
			continue
		}
		e := Entry{
			Name: k.Name,
			Kind: KindFile,
			Mode: k.Mode,
			UID:  k.UID,
			GID:  k.GID,
		}
		if k.Name == eventControlKey {
			return e, nil
		}
		val, err := v.client.GetValue(ctx, controller, cgPath, name)
		if err != nil {
			return Entry{}, err
		}
		e.Size = int64(len(val)) + 1
		return e, nil
	}
	children, err := v.client.ListChildren(ctx, controller, cgPath)
	if err != nil {
		return Entry{}, err
	}
	for _, c := range children {
		if c == name {
			return dirEntry(c), nil
		}
	}
	return Entry{}, fmt.Errorf("cgroupfs: %s has no entry %q: %w", path.Join(controller, cgPath), name, errdefs.ErrNotFound)
}

// ReadKey returns the value of key at cgPath with a trailing newline.
func (v *View) ReadKey(ctx context.Context, controller, cgPath, key string) ([]byte, error) {
	val, err := v.client.GetValue(ctx, controller, cgPath, key)
	if err != nil {
		return nil, err
	}
	return append([]byte(val), '\n'), nil
}
