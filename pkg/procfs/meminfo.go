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

	"github.com/containerd/errdefs"
)

// memField is one meminfo line: "MemTotal:       16384256 kB". A few
// counters (HugePages_*) carry no unit.
type memField struct {
	key  string
	val  int64
	unit string
}

// meminfo generates the caller's view of /proc/meminfo. The memory
// accounting fields are recomputed from the caller's memory cgroup in a
// fixed dependency order; every other line passes through with its
// original value. All divisions truncate, matching kernel integer
// arithmetic.
func (r *Rewriter) meminfo(ctx context.Context, pid int32) ([]byte, error) {
	cg, err := r.cgroupOf(pid, memoryController)
	if err != nil {
		return nil, err
	}
	limit, err := r.memoryValue(ctx, cg, "memory.limit_in_bytes")
	if err != nil {
		return nil, err
	}
	usage, err := r.memoryValue(ctx, cg, "memory.usage_in_bytes")
	if err != nil {
		return nil, err
	}
	stat, err := r.client.GetValue(ctx, memoryController, cg, "memory.stat")
	if err != nil {
		return nil, err
	}
	cache := parseMemoryStat(stat)["total_cache"]

	src, err := r.readSource("meminfo")
	if err != nil {
		return nil, err
	}
	fields, err := parseMeminfo(string(src))
	if err != nil {
		return nil, fmt.Errorf("procfs: %v: %w", err, errdefs.ErrInternal)
	}

	memTotal := int64(-1)
	for _, f := range fields {
		if f.key == "MemTotal" {
			memTotal = f.val
			break
		}
	}
	if memTotal < 0 {
		return nil, fmt.Errorf("procfs: meminfo source has no MemTotal: %w", errdefs.ErrInternal)
	}
	if l := limit / 1024; l < memTotal {
		memTotal = l
	}
	memFree := memTotal - usage/1024

	var buf bytes.Buffer
	for _, f := range fields {
		switch f.key {
		case "MemTotal":
			f.val = memTotal
		case "MemFree", "MemAvailable":
			f.val = memFree
		case "Cached":
			f.val = cache / 1024
		case "Buffers", "SwapCached":
			f.val = 0
		}
		if f.unit != "" {
			fmt.Fprintf(&buf, "%-15s %8d %s\n", f.key+":", f.val, f.unit)
		} else {
			fmt.Fprintf(&buf, "%-15s %8d\n", f.key+":", f.val)
		}
	}
	return buf.Bytes(), nil
}

// memoryValue fetches one integer-valued key of the caller's memory cgroup.
func (r *Rewriter) memoryValue(ctx context.Context, cgroup, key string) (int64, error) {
	v, err := r.client.GetValue(ctx, memoryController, cgroup, key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("procfs: %s of %q: %v: %w", key, cgroup, err, errdefs.ErrUnavailable)
	}
	return n, nil
}

func parseMeminfo(src string) ([]memField, error) {
	var fields []memField
	for _, line := range strings.Split(strings.TrimRight(src, "\n"), "\n") {
		key, rest, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("invalid meminfo line: %q", line)
		}
		toks := strings.Fields(rest)
		if len(toks) == 0 || len(toks) > 2 {
			return nil, fmt.Errorf("invalid meminfo line: %q", line)
		}
		val, err := strconv.ParseInt(toks[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid meminfo line: %q", line)
		}
		f := memField{key: key, val: val}
		if len(toks) == 2 {
			f.unit = toks[1]
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// parseMemoryStat parses the newline-separated "key value" pairs of
// memory.stat. Lines that do not parse are skipped; a missing counter
// reads as zero.
func parseMemoryStat(v string) map[string]int64 {
	stats := make(map[string]int64)
	for _, line := range strings.Split(v, "\n") {
		key, val, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			continue
		}
		stats[key] = n
	}
	return stats
}
