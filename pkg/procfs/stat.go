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
	"bytes"
	"context"
	"strconv"
	"strings"
)

// stat generates the caller's view of /proc/stat. Per-cpu lines ("cpuN ...")
// are kept only for members of the caller's cpuset and renumbered densely;
// the aggregate "cpu " line and everything else pass through byte-identical,
// in source order.
func (r *Rewriter) stat(ctx context.Context, pid int32) ([]byte, error) {
	cpus, err := r.callerCpuset(ctx, pid)
	if err != nil {
		return nil, err
	}
	src, err := r.readSource("stat")
	if err != nil {
		return nil, err
	}

	virt := renumberCpuset(cpus)
	var buf bytes.Buffer
	for _, line := range strings.SplitAfter(string(src), "\n") {
		if line == "" {
			continue
		}
		cpu, rest, ok := splitCPULine(line)
		if !ok {
			buf.WriteString(line)
			continue
		}
		v, member := virt[cpu]
		if !member {
			continue
		}
		buf.WriteString("cpu")
		buf.WriteString(strconv.Itoa(v))
		buf.WriteString(rest)
	}
	return buf.Bytes(), nil
}

// splitCPULine splits a per-cpu stat line into its cpu index and the
// remainder (starting at the byte after the index). The aggregate line
// "cpu ..." has no index and does not match.
func splitCPULine(line string) (cpu int, rest string, ok bool) {
	if !strings.HasPrefix(line, "cpu") {
		return 0, "", false
	}
	i := 3
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == 3 {
		return 0, "", false
	}
	cpu, err := strconv.Atoi(line[3:i])
	if err != nil {
		return 0, "", false
	}
	return cpu, line[i:], true
}
