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
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/containerd/errdefs"
)

// cgroupOf returns pid's cgroup path for controller, relative to the
// controller root, from the caller's real /proc/<pid>/cgroup. Lines there
// look like:
//
//	8:cpuset:/lxc/web
//	3:cpu,cpuacct:/lxc/web
//	1:name=systemd:/user.slice/user-0.slice
//
// Named hierarchies are matched with their "name=" prefix stripped.
func (r *Rewriter) cgroupOf(pid int32, controller string) (string, error) {
	name := filepath.Join(r.procRoot, strconv.Itoa(int(pid)), "cgroup")
	f, err := os.Open(name)
	if err != nil {
		return "", fmt.Errorf("procfs: open %s: %v: %w", name, err, errdefs.ErrInternal)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		text := scanner.Text()
		if text == "" {
			continue
		}
		tokens := strings.SplitN(text, ":", 3)
		if len(tokens) != 3 {
			return "", fmt.Errorf("procfs: invalid cgroup file %s, line: %q: %w", name, text, errdefs.ErrInternal)
		}
		for _, ctrl := range strings.Split(tokens[1], ",") {
			if strings.TrimPrefix(ctrl, "name=") == controller {
				return strings.TrimPrefix(tokens[2], "/"), nil
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("procfs: read %s: %v: %w", name, err, errdefs.ErrInternal)
	}
	return "", fmt.Errorf("procfs: pid %d is in no %q cgroup: %w", pid, controller, errdefs.ErrInternal)
}
