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

package procfs

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/containerd/errdefs"
)

// uptime generates the caller's view of /proc/uptime: the first field
// becomes the age of the oldest task in the caller's cpuset cgroup, the
// idle field passes through.
//
// Task age is approximated by the metadata change time of /proc/<pid>.
// The approximation drifts after metadata-changing operations on the
// entry, but it is the established behavior and is kept as is.
func (r *Rewriter) uptime(ctx context.Context, pid int32) ([]byte, error) {
	cg, err := r.cgroupOf(pid, cpusetController)
	if err != nil {
		return nil, err
	}
	pids, err := r.client.GetTasks(ctx, cpusetController, cg)
	if err != nil {
		return nil, err
	}

	// Tasks may exit between the listing and the stat; those are skipped.
	var oldest time.Time
	found := false
	for _, p := range pids {
		ct, err := statCtime(filepath.Join(r.procRoot, strconv.Itoa(int(p))))
		if err != nil {
			continue
		}
		if !found || ct.Before(oldest) {
			oldest = ct
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("procfs: no live task in cpuset cgroup %q: %w", cg, errdefs.ErrInternal)
	}

	src, err := r.readSource("uptime")
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(string(src))
	if len(fields) < 2 {
		return nil, fmt.Errorf("procfs: invalid uptime source %q: %w", string(src), errdefs.ErrInternal)
	}
	fields[0] = strconv.FormatFloat(r.now().Sub(oldest).Seconds(), 'f', 2, 64)
	return []byte(strings.Join(fields, " ") + "\n"), nil
}
