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
	"fmt"
	"strconv"
	"strings"
)

// expandCpuset expands a cpuset descriptor like "0,2-4,7" into the listed
// cpu ids. Order and duplicates are preserved exactly as given; the kernel
// writes sets in canonical form but the result must mirror whatever the
// manager reported.
func expandCpuset(cpuset string) ([]int, error) {
	var cpus []int
	for _, p := range strings.Split(cpuset, ",") {
		interval := strings.Split(p, "-")
		switch len(interval) {
		case 1:
			cpu, err := strconv.Atoi(interval[0])
			if err != nil {
				return nil, fmt.Errorf("invalid cpuset: %q", p)
			}
			cpus = append(cpus, cpu)
		case 2:
			start, err := strconv.Atoi(interval[0])
			if err != nil {
				return nil, fmt.Errorf("invalid cpuset: %q", p)
			}
			end, err := strconv.Atoi(interval[1])
			if err != nil {
				return nil, fmt.Errorf("invalid cpuset: %q", p)
			}
			if start < 0 || end < 0 || start > end {
				return nil, fmt.Errorf("invalid cpuset: %q", p)
			}
			for cpu := start; cpu <= end; cpu++ {
				cpus = append(cpus, cpu)
			}
		default:
			return nil, fmt.Errorf("invalid cpuset: %q", p)
		}
	}
	return cpus, nil
}

// renumberCpuset builds the dense renumbering map for a cpuset: the k-th
// distinct id by order of appearance maps to virtual cpu k.
func renumberCpuset(cpus []int) map[int]int {
	virt := make(map[int]int, len(cpus))
	for _, cpu := range cpus {
		if _, ok := virt[cpu]; !ok {
			virt[cpu] = len(virt)
		}
	}
	return virt
}
