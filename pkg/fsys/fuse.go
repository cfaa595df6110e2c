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
	"context"
	"fmt"
	"path"
	"syscall"

	"github.com/containerd/log"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"
)

// node adapts one path of the dispatcher to a kernel FUSE node. Nodes hold
// nothing but their path: every operation re-resolves through the
// Filesystem with the identity of the process behind the current request,
// and no attr or entry timeouts are handed to the kernel, so stale views
// cannot form.
type node struct {
	fs.Inode
	fsys *Filesystem
	path string
}

var (
	_ fs.NodeGetattrer = (*node)(nil)
	_ fs.NodeLookuper  = (*node)(nil)
	_ fs.NodeReaddirer = (*node)(nil)
	_ fs.NodeOpener    = (*node)(nil)
	_ fs.NodeReader    = (*node)(nil)
)

// callerFrom recovers the calling process identity the kernel annotated
// the request with.
func callerFrom(ctx context.Context) Caller {
	c, ok := fuse.FromContext(ctx)
	if !ok {
		return Caller{}
	}
	return Caller{UID: c.Uid, GID: c.Gid, PID: int32(c.Pid)}
}

// fail logs the detailed cause and collapses it to the only outcome the
// mount exposes: no such entry.
func (n *node) fail(ctx context.Context, op string, err error) syscall.Errno {
	log.G(ctx).WithError(err).WithFields(log.Fields{
		"op":   op,
		"path": path.Join("/", n.path),
	}).Debug("request failed")
	return syscall.ENOENT
}

func fillAttr(a Attr, out *fuse.Attr) {
	out.Mode = a.Mode | syscall.S_IFREG
	if a.IsDir {
		out.Mode = a.Mode | syscall.S_IFDIR
	}
	out.Size = uint64(a.Size)
	out.Nlink = a.Nlink
	out.Uid = a.UID
	out.Gid = a.GID
}

// Getattr implements fs.NodeGetattrer.
func (n *node) Getattr(ctx context.Context, _ fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	attr, err := n.fsys.GetAttributes(ctx, callerFrom(ctx), n.path)
	if err != nil {
		return n.fail(ctx, "getattr", err)
	}
	fillAttr(attr, &out.Attr)
	return 0
}

// Lookup implements fs.NodeLookuper.
func (n *node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	child := path.Join(n.path, name)
	attr, err := n.fsys.GetAttributes(ctx, callerFrom(ctx), child)
	if err != nil {
		return nil, n.fail(ctx, "lookup", err)
	}
	fillAttr(attr, &out.Attr)
	mode := uint32(syscall.S_IFREG)
	if attr.IsDir {
		mode = syscall.S_IFDIR
	}
	return n.NewInode(ctx, &node{fsys: n.fsys, path: child}, fs.StableAttr{Mode: mode}), 0
}

// Readdir implements fs.NodeReaddirer. Entry types are left unknown; a
// listing never pays for per-entry resolution, stats do.
func (n *node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	names, err := n.fsys.ListDirectory(ctx, n.path)
	if err != nil {
		return nil, n.fail(ctx, "readdir", err)
	}
	entries := make([]fuse.DirEntry, 0, len(names))
	for _, name := range names {
		entries = append(entries, fuse.DirEntry{Name: name})
	}
	return fs.NewListDirStream(entries), 0
}

// Open implements fs.NodeOpener. Direct IO is mandatory: content and size
// depend on the caller, so the page cache must never serve one process's
// bytes to another.
func (n *node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	return nil, fuse.FOPEN_DIRECT_IO, 0
}

// Read implements fs.NodeReader.
func (n *node) Read(ctx context.Context, _ fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	data, err := n.fsys.Read(ctx, callerFrom(ctx), n.path, int64(len(dest)), off)
	if err != nil {
		return nil, n.fail(ctx, "read", err)
	}
	return fuse.ReadResultData(data), 0
}

// Mount exposes f at mountpoint read-only and begins serving. On success
// the mount is established; the returned server's Wait blocks until it is
// unmounted.
func Mount(f *Filesystem, mountpoint string, debug bool) (*fuse.Server, error) {
	rawFS := fs.NewNodeFS(&node{fsys: f}, &fs.Options{NullPermissions: true})
	opts := &fuse.MountOptions{
		DirectMount: true,
		AllowOther:  true,
		Debug:       debug,
		FsName:      "scopefs",
		Name:        "scopefs",
		Options:     []string{"ro", "default_permissions"},
	}
	server, err := fuse.NewServer(rawFS, mountpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("fsys: mount %s: %w", mountpoint, err)
	}
	// Clear umask so that it doesn't affect the mode bits twice.
	unix.Umask(0)

	go server.Serve()
	if err := server.WaitMount(); err != nil {
		// The serve loop exits on its own when the mount never
		// establishes.
		return nil, fmt.Errorf("fsys: mount %s: %w", mountpoint, err)
	}
	return server, nil
}
