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

// Package fsys dispatches filesystem calls to the proc rewriter and the
// cgroup tree view.
//
// The Filesystem is the read-only call surface mounted over a container's
// /proc and /sys/fs/cgroup:
//
//	/proc/{cpuinfo,meminfo,stat,uptime}    synthesized per caller
//	/cgroup/<controller>/<hierarchy>...    projected manager hierarchy
//
// Every call is a pure function of the startup-discovered controller set,
// the caller identity, and fresh reads of the kernel and the manager; there
// is no cache, no retry and no shared mutable state, so calls from a
// concurrent serving loop need no coordination.
//
// # Errors
//
// Internally the packages distinguish not-found, manager failure and
// missing kernel sources (errdefs classes). At the mount boundary all of
// them collapse to "no such entry"; the distinction is logged, not exposed.
package fsys

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/containerd/errdefs"

	"scopefs.dev/scopefs/pkg/cgroupfs"
	"scopefs.dev/scopefs/pkg/procfs"
)

// Caller identifies the process issuing the current filesystem call, as
// annotated by the host environment. Resolved per call, never cached.
type Caller struct {
	UID uint32
	GID uint32
	PID int32
}

// Attr is the metadata of one entry, POSIX-shaped.
type Attr struct {
	IsDir bool
	Mode  uint32 // permission bits only
	UID   uint32
	GID   uint32
	Size  int64
	Nlink uint32
}

func dirAttr(mode uint32) Attr {
	return Attr{IsDir: true, Mode: mode, Nlink: 2}
}

// Filesystem routes calls by path namespace. The controller set is fixed
// at construction and never mutated afterwards, which is what makes the
// zero-lock concurrency story hold.
type Filesystem struct {
	rewriter    *procfs.Rewriter
	view        *cgroupfs.View
	controllers []string
}

// New returns a Filesystem exposing the given controllers. The slice is
// copied; later mutation by the caller does not reach the Filesystem.
func New(rewriter *procfs.Rewriter, view *cgroupfs.View, controllers []string) *Filesystem {
	return &Filesystem{
		rewriter:    rewriter,
		view:        view,
		controllers: append([]string(nil), controllers...),
	}
}

// Controllers returns the controller set the filesystem serves.
func (f *Filesystem) Controllers() []string {
	return append([]string(nil), f.controllers...)
}

// GetAttributes resolves the metadata of the entry at p as seen by caller.
// Proc file sizes are the length of freshly generated content, so the same
// path can legitimately report different sizes to different callers.
func (f *Filesystem) GetAttributes(ctx context.Context, caller Caller, p string) (_ Attr, err error) {
	defer func() { observe(opAttr, err) }()

	t, err := f.classify(p)
	if err != nil {
		return Attr{}, err
	}
	switch t.kind {
	case targetRoot, targetProcDir, targetCgroupRoot:
		return dirAttr(0o755), nil
	case targetProcFile:
		content, err := f.rewriter.Generate(ctx, t.file, caller.PID)
		if err != nil {
			return Attr{}, err
		}
		return Attr{Mode: 0o444, Size: int64(len(content)), Nlink: 1}, nil
	case targetCgroupPath:
		if t.cgroup == "" {
			return dirAttr(0o755), nil
		}
		parent, name := splitEntry(t.cgroup)
		e, err := f.view.Lookup(ctx, t.controller, parent, name)
		if err != nil {
			return Attr{}, err
		}
		if e.Kind == cgroupfs.KindDir {
			return dirAttr(e.Mode), nil
		}
		return Attr{Mode: e.Mode, UID: e.UID, GID: e.GID, Size: e.Size, Nlink: 1}, nil
	}
	return Attr{}, notFound(p)
}

// ListDirectory returns the names in the directory at p, dots included,
// in presentation order.
func (f *Filesystem) ListDirectory(ctx context.Context, p string) (_ []string, err error) {
	defer func() { observe(opList, err) }()

	t, err := f.classify(p)
	if err != nil {
		return nil, err
	}
	switch t.kind {
	case targetRoot:
		return []string{".", "..", "proc", "cgroup"}, nil
	case targetProcDir:
		names := []string{".", ".."}
		for _, pf := range procfs.Files() {
			names = append(names, pf.Name())
		}
		return names, nil
	case targetCgroupRoot:
		return append([]string{".", ".."}, f.controllers...), nil
	case targetCgroupPath:
		entries, err := f.view.ListEntries(ctx, t.controller, t.cgroup)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name)
		}
		return names, nil
	}
	return nil, notFound(p)
}

// Read materializes the full content of the file at p as seen by caller,
// then returns the window [offset, offset+size) clipped to the content.
// An offset at or past the end is a valid empty read, not an error.
func (f *Filesystem) Read(ctx context.Context, caller Caller, p string, size, offset int64) (_ []byte, err error) {
	defer func() { observe(opRead, err) }()

	t, err := f.classify(p)
	if err != nil {
		return nil, err
	}
	var content []byte
	switch t.kind {
	case targetProcFile:
		content, err = f.rewriter.Generate(ctx, t.file, caller.PID)
	case targetCgroupPath:
		if t.cgroup == "" {
			return nil, notFound(p)
		}
		parent, name := splitEntry(t.cgroup)
		content, err = f.view.ReadKey(ctx, t.controller, parent, name)
	default:
		return nil, notFound(p)
	}
	if err != nil {
		return nil, err
	}
	return window(content, size, offset), nil
}

// window applies the read byte range. Full content is always materialized
// first; there is no streaming or partial generation.
func window(content []byte, size, offset int64) []byte {
	if size <= 0 || offset < 0 || offset >= int64(len(content)) {
		return nil
	}
	// offset+size may wrap around for huge sizes; a wrapped end is always
	// past the content.
	end := offset + size
	if end < offset || end > int64(len(content)) {
		end = int64(len(content))
	}
	return content[offset:end]
}

// splitEntry splits a non-empty cgroup-relative path into the containing
// cgroup and the final entry name.
func splitEntry(cgPath string) (parent, name string) {
	if i := strings.LastIndexByte(cgPath, '/'); i >= 0 {
		return cgPath[:i], cgPath[i+1:]
	}
	return "", cgPath
}

func (f *Filesystem) hasController(name string) bool {
	for _, c := range f.controllers {
		if c == name {
			return true
		}
	}
	return false
}

func notFound(p string) error {
	return fmt.Errorf("fsys: no entry at %q: %w", path.Join("/", p), errdefs.ErrNotFound)
}
