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
	"github.com/containerd/errdefs"
	metrics "github.com/docker/go-metrics"
)

const (
	opAttr = "attr"
	opList = "list"
	opRead = "read"
)

var operations metrics.LabeledCounter

func init() {
	ns := metrics.NewNamespace("scopefs", "", nil)
	operations = ns.NewLabeledCounter("fs_operations",
		"Filesystem operations handled, by operation and outcome", "op", "status")
	metrics.Register(ns)
}

// observe counts one finished operation. Outcomes mirror the error
// taxonomy the boundary collapses: absent, manager or source failure, ok.
func observe(op string, err error) {
	status := "ok"
	switch {
	case err == nil:
	case errdefs.IsNotFound(err):
		status = "notfound"
	default:
		status = "failure"
	}
	operations.WithValues(op, status).Inc()
}
