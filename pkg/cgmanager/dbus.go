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

package cgmanager

import (
	"context"
	"fmt"

	"github.com/containerd/errdefs"
	"github.com/godbus/dbus/v5"
)

// DefaultSocket is the path the cgroup manager listens on.
const DefaultSocket = "/sys/fs/cgroup/cgmanager/sock"

const (
	busName    = "org.linuxcontainers.cgmanager"
	objectPath = dbus.ObjectPath("/org/linuxcontainers/cgmanager")
	iface      = "org.linuxcontainers.cgmanager0_0"
)

// Manager talks to the cgroup manager over its private DBus socket.
//
// The connection is peer-to-peer, not routed through a bus daemon, so no
// Hello handshake is performed. godbus serializes writes and demultiplexes
// replies internally, which makes a single Manager safe to share across
// goroutines.
type Manager struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

var _ Client = (*Manager)(nil)

// Dial connects to the cgroup manager at socket and authenticates. It does
// not verify that the peer actually speaks the manager protocol; call Ping
// for that.
func Dial(socket string) (*Manager, error) {
	conn, err := dbus.Dial("unix:path=" + socket)
	if err != nil {
		return nil, fmt.Errorf("cgmanager: dial %s: %v: %w", socket, err, errdefs.ErrUnavailable)
	}
	if err := conn.Auth(nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cgmanager: auth %s: %v: %w", socket, err, errdefs.ErrUnavailable)
	}
	return &Manager{
		conn: conn,
		obj:  conn.Object(busName, objectPath),
	}, nil
}

// Close tears down the connection. In-flight calls fail.
func (m *Manager) Close() error {
	return m.conn.Close()
}

// Ping performs a round trip to the manager.
func (m *Manager) Ping(ctx context.Context) error {
	if err := m.obj.CallWithContext(ctx, iface+".Ping", 0, int32(0)).Store(); err != nil {
		return serviceError("Ping", err)
	}
	return nil
}

// ListControllers implements Client.ListControllers.
func (m *Manager) ListControllers(ctx context.Context) ([]string, error) {
	var out []string
	if err := m.obj.CallWithContext(ctx, iface+".ListControllers", 0).Store(&out); err != nil {
		return nil, serviceError("ListControllers", err)
	}
	return out, nil
}

// GetValue implements Client.GetValue.
func (m *Manager) GetValue(ctx context.Context, controller, cgroup, key string) (string, error) {
	var out string
	if err := m.obj.CallWithContext(ctx, iface+".GetValue", 0, controller, cgroup, key).Store(&out); err != nil {
		return "", serviceError("GetValue", err)
	}
	return out, nil
}

// ListKeys implements Client.ListKeys.
func (m *Manager) ListKeys(ctx context.Context, controller, cgroup string) ([]Key, error) {
	var out []Key
	if err := m.obj.CallWithContext(ctx, iface+".ListKeys", 0, controller, cgroup).Store(&out); err != nil {
		return nil, serviceError("ListKeys", err)
	}
	return out, nil
}

// ListChildren implements Client.ListChildren.
func (m *Manager) ListChildren(ctx context.Context, controller, cgroup string) ([]string, error) {
	var out []string
	if err := m.obj.CallWithContext(ctx, iface+".ListChildren", 0, controller, cgroup).Store(&out); err != nil {
		return nil, serviceError("ListChildren", err)
	}
	return out, nil
}

// GetTasks implements Client.GetTasks.
func (m *Manager) GetTasks(ctx context.Context, controller, cgroup string) ([]int32, error) {
	var out []int32
	if err := m.obj.CallWithContext(ctx, iface+".GetTasks", 0, controller, cgroup).Store(&out); err != nil {
		return nil, serviceError("GetTasks", err)
	}
	return out, nil
}

// serviceError classifies a failed manager exchange. Transport errors,
// DBus-level errors from the manager and malformed reply bodies all land
// here; callers only ever need to distinguish "the manager could not
// answer" from structural absence, which is decided above this layer.
func serviceError(method string, err error) error {
	return fmt.Errorf("cgmanager: %s: %v: %w", method, err, errdefs.ErrUnavailable)
}
