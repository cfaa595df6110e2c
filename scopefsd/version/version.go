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

// Package version holds the release version of the scopefsd binary.
package version

// version is stamped by the linker:
//
//	-ldflags "-X scopefs.dev/scopefs/scopefsd/version.version=$(git describe)"
var version = "VERSION_MISSING"

// Version returns the stamped version string.
func Version() string {
	return version
}
