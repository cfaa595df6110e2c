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

package cmd

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"scopefs.dev/scopefs/scopefsd/config"
)

// Controllers implements subcommands.Command for the "controllers" command.
type Controllers struct{}

// Name implements subcommands.Command.Name.
func (*Controllers) Name() string {
	return "controllers"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Controllers) Synopsis() string {
	return "list the cgroup controllers the manager exposes"
}

// Usage implements subcommands.Command.Usage.
func (*Controllers) Usage() string {
	return `controllers

Connects to the cgroup manager and prints the available controllers with
the keys of each hierarchy root. Useful to check connectivity and the
--controllers flag before mounting.

`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Controllers) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Controllers) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	client, err := connect(ctx, conf)
	if err != nil {
		Fatalf("connecting to cgroup manager at %s: %v", conf.Socket, err)
	}
	defer client.Close()

	controllers, err := discoverControllers(ctx, client, conf)
	if err != nil {
		Fatalf("%v", err)
	}
	for _, c := range controllers {
		fmt.Println(c)
		keys, err := client.ListKeys(ctx, c, "")
		if err != nil {
			Fatalf("listing root keys of %s: %v", c, err)
		}
		for _, k := range keys {
			fmt.Printf("\t%s\n", k.Name)
		}
	}
	return subcommands.ExitSuccess
}
