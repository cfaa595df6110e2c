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

// Package cmd implements the subcommands of scopefsd.
package cmd

import (
	"fmt"
	"os"

	"github.com/containerd/log"
)

// Fatalf logs to stderr and exits with a failure status code. The message
// also goes to the configured logger, since under a service manager stderr
// may be going nowhere useful.
func Fatalf(format string, args ...any) {
	log.L.Errorf("FATAL ERROR: "+format, args...)
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(128)
}
