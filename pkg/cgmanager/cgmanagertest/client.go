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

// Package cgmanagertest provides an in-memory cgmanager.Client for tests.
package cgmanagertest

import (
	"context"
	"fmt"
	"path"
	"sync"

	"github.com/containerd/errdefs"

	"scopefs.dev/scopefs/pkg/cgmanager"
)

// Client is a scriptable cgmanager.Client backed by maps. Map keys are
// path.Join(controller, cgroup) for listings and tasks, with the key name
// appended for values. The zero value is an empty manager.
//
// Methods record their invocations in Calls, which tests may inspect to
// assert that an exchange did or did not happen.
type Client struct {
	// Controllers is returned by ListControllers.
	Controllers []string

	// Values maps controller/cgroup/key to the value GetValue returns.
	// A lookup miss fails the call the way the real manager does.
	Values map[string]string

	// Keys maps controller/cgroup to the keys ListKeys returns.
	Keys map[string][]cgmanager.Key

	// Children maps controller/cgroup to the names ListChildren returns.
	Children map[string][]string

	// Tasks maps controller/cgroup to the pids GetTasks returns.
	Tasks map[string][]int32

	// Err, when set, fails every call.
	Err error

	mu    sync.Mutex
	calls []string
}

var _ cgmanager.Client = (*Client)(nil)

func (c *Client) record(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, fmt.Sprintf(format, args...))
}

// Calls returns the calls made so far, oldest first, formatted as
// "Method controller/cgroup[/key]".
func (c *Client) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// ListControllers implements cgmanager.Client.ListControllers.
func (c *Client) ListControllers(ctx context.Context) ([]string, error) {
	c.record("ListControllers")
	if c.Err != nil {
		return nil, c.Err
	}
	return append([]string(nil), c.Controllers...), nil
}

// GetValue implements cgmanager.Client.GetValue.
func (c *Client) GetValue(ctx context.Context, controller, cgroup, key string) (string, error) {
	c.record("GetValue %s", path.Join(controller, cgroup, key))
	if c.Err != nil {
		return "", c.Err
	}
	v, ok := c.Values[path.Join(controller, cgroup, key)]
	if !ok {
		return "", fmt.Errorf("cgmanagertest: no value for %s: %w", path.Join(controller, cgroup, key), errdefs.ErrUnavailable)
	}
	return v, nil
}

// ListKeys implements cgmanager.Client.ListKeys.
func (c *Client) ListKeys(ctx context.Context, controller, cgroup string) ([]cgmanager.Key, error) {
	c.record("ListKeys %s", path.Join(controller, cgroup))
	if c.Err != nil {
		return nil, c.Err
	}
	return append([]cgmanager.Key(nil), c.Keys[path.Join(controller, cgroup)]...), nil
}

// ListChildren implements cgmanager.Client.ListChildren.
func (c *Client) ListChildren(ctx context.Context, controller, cgroup string) ([]string, error) {
	c.record("ListChildren %s", path.Join(controller, cgroup))
	if c.Err != nil {
		return nil, c.Err
	}
	return append([]string(nil), c.Children[path.Join(controller, cgroup)]...), nil
}

// GetTasks implements cgmanager.Client.GetTasks.
func (c *Client) GetTasks(ctx context.Context, controller, cgroup string) ([]int32, error) {
	c.record("GetTasks %s", path.Join(controller, cgroup))
	if c.Err != nil {
		return nil, c.Err
	}
	return append([]int32(nil), c.Tasks[path.Join(controller, cgroup)]...), nil
}
