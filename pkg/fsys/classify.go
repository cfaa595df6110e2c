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
	"path"
	"strings"

	"scopefs.dev/scopefs/pkg/procfs"
)

// targetKind closes over every namespace a path can land in. Dispatch is
// an exhaustive switch over it, so a new namespace is a compile-visible
// change, not a new map entry.
type targetKind int

const (
	// targetRoot is the mount root.
	targetRoot targetKind = iota
	// targetProcDir is the /proc directory stub.
	targetProcDir
	// targetProcFile is one of the synthesized proc files.
	targetProcFile
	// targetCgroupRoot is the /cgroup directory stub.
	targetCgroupRoot
	// targetCgroupPath is anything at or below /cgroup/<controller>;
	// cgroup holds the controller-relative remainder ("" for the
	// hierarchy root).
	targetCgroupPath
)

// target is the classification of one path.
type target struct {
	kind       targetKind
	file       procfs.File // kind == targetProcFile
	controller string      // kind == targetCgroupPath
	cgroup     string      // kind == targetCgroupPath
}

// classify resolves p into its namespace. Paths are cleaned first, so "."
// and ".." segments cannot escape the tree. Anything that matches no
// namespace, including unknown controllers, is not found.
func (f *Filesystem) classify(p string) (target, error) {
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if p == "" {
		return target{kind: targetRoot}, nil
	}
	first, rest, _ := strings.Cut(p, "/")
	switch first {
	case "proc":
		if rest == "" {
			return target{kind: targetProcDir}, nil
		}
		if pf, ok := procfs.FileByName(rest); ok {
			return target{kind: targetProcFile, file: pf}, nil
		}
	case "cgroup":
		if rest == "" {
			return target{kind: targetCgroupRoot}, nil
		}
		controller, cgPath, _ := strings.Cut(rest, "/")
		if f.hasController(controller) {
			return target{kind: targetCgroupPath, controller: controller, cgroup: cgPath}, nil
		}
	}
	return target{}, notFound(p)
}
