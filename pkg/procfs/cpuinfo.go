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
	"fmt"
	"strconv"
	"strings"
)

// cpuinfo generates the caller's view of /proc/cpuinfo: one record per
// entry of its cpuset, in cpuset order, with the processor field densely
// renumbered from 0 and every other field untouched.
func (r *Rewriter) cpuinfo(ctx context.Context, pid int32) ([]byte, error) {
	cpus, err := r.callerCpuset(ctx, pid)
	if err != nil {
		return nil, err
	}
	src, err := r.readSource("cpuinfo")
	if err != nil {
		return nil, err
	}

	// Records are blank-line delimited blocks keyed by their processor
	// field. Ids the kernel has no record for (offlined since the cpuset
	// was written) are silently skipped.
	byID := make(map[int]string)
	for _, rec := range strings.Split(strings.TrimRight(string(src), "\n"), "\n\n") {
		if id, ok := processorID(rec); ok {
			byID[id] = rec
		}
	}

	var buf bytes.Buffer
	virt := 0
	for _, cpu := range cpus {
		rec, ok := byID[cpu]
		if !ok {
			continue
		}
		if virt > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(relabelProcessor(rec, virt))
		virt++
	}
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

// processorID extracts the processor field of one cpuinfo record.
func processorID(rec string) (int, bool) {
	for _, line := range strings.Split(rec, "\n") {
		key, val, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(key) != "processor" {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0, false
		}
		return id, true
	}
	return 0, false
}

// relabelProcessor rewrites rec's processor line to the virtual id.
func relabelProcessor(rec string, virt int) string {
	lines := strings.Split(rec, "\n")
	for i, line := range lines {
		if key, _, ok := strings.Cut(line, ":"); ok && strings.TrimSpace(key) == "processor" {
			lines[i] = fmt.Sprintf("processor\t: %d", virt)
			break
		}
	}
	return strings.Join(lines, "\n")
}
