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

// Package cgmanager provides a client for the cgroup manager service, the
// external authority over the host's cgroup hierarchies.
//
// The manager is queried over a private DBus connection, one synchronous
// request/response exchange per call. The client holds no state besides the
// connection itself: controller lists, key values, children and task lists
// are fetched fresh on every call, so concurrent callers never observe each
// other's results.
package cgmanager

import (
	"context"
)

// Key describes one tunable key of a cgroup, as reported by the manager.
// Ownership and mode are passed through exactly as the service reports
// them; the manager is the authority on these values.
type Key struct {
	Name string
	UID  uint32
	GID  uint32
	Mode uint32
}

// Client is the interface to the cgroup manager consumed by the filesystem.
//
// All methods are safe for concurrent use. Errors carry an errdefs class:
// a failed or malformed exchange wraps errdefs.ErrUnavailable.
type Client interface {
	// ListControllers returns the names of the mounted cgroup controllers.
	ListControllers(ctx context.Context) ([]string, error)

	// GetValue returns the value of key under cgroup (a slash-delimited
	// path relative to the controller root, "" for the root itself).
	GetValue(ctx context.Context, controller, cgroup, key string) (string, error)

	// ListKeys returns the tunable keys of cgroup with their ownership
	// and mode, in the order the manager reports them.
	ListKeys(ctx context.Context, controller, cgroup string) ([]Key, error)

	// ListChildren returns the names of cgroup's immediate children.
	ListChildren(ctx context.Context, controller, cgroup string) ([]string, error)

	// GetTasks returns the pids of the tasks currently in cgroup.
	GetTasks(ctx context.Context, controller, cgroup string) ([]int32, error)
}
