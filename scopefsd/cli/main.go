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

// Package cli is the main entrypoint for scopefsd.
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/containerd/log"
	"github.com/google/subcommands"

	"scopefs.dev/scopefs/scopefsd/cmd"
	"scopefs.dev/scopefs/scopefsd/config"
	"scopefs.dev/scopefs/scopefsd/version"
)

// versionFlagName is the name of a flag that triggers printing the version.
// Kept as a flag in addition to the version subcommand because service
// managers and packaging scripts probe it.
const versionFlagName = "version"

// Main is the main entrypoint.
func Main() {
	// Register all commands.
	forEachCmd(subcommands.Register)

	// Register with the main command line.
	config.RegisterFlags(flag.CommandLine)

	// Register version flag if it is not already defined.
	if flag.Lookup(versionFlagName) == nil {
		flag.Bool(versionFlagName, false, "show version and exit.")
	}

	// All subcommands must be registered before flag parsing.
	flag.Parse()

	// Are we showing the version?
	if flag.Lookup(versionFlagName).Value.(flag.Getter).Get().(bool) {
		fmt.Fprintf(os.Stdout, "scopefsd version %s\n", version.Version())
		os.Exit(0)
	}

	// Create a new Config from the flags.
	conf, err := config.NewFromFlags(flag.CommandLine)
	if err != nil {
		cmd.Fatalf("%v", err)
	}

	// Set up logging before anything else touches the logger. Stderr is
	// ours: unlike an OCI runtime, nothing multiplexes application output
	// through this process.
	level := conf.LogLevel
	if conf.Debug {
		level = "debug"
	}
	if err := log.SetLevel(level); err != nil {
		cmd.Fatalf("%v", err)
	}
	if err := log.SetFormat(log.OutputFormat(conf.LogFormat)); err != nil {
		cmd.Fatalf("%v", err)
	}

	const delimString = `**************** scopefsd ****************`
	log.L.Infof(delimString)
	log.L.Infof("Version %s, %s, %s, %d CPUs, %s, PID %d", version.Version(), runtime.Version(), runtime.GOARCH, runtime.NumCPU(), runtime.GOOS, os.Getpid())
	log.L.Debugf("Args: %v", os.Args)
	log.L.Debugf("Config: %+v", *conf)
	log.L.Infof(delimString)

	// Call the subcommand and pass in the configuration.
	subcmdCode := subcommands.Execute(context.Background(), conf)
	if subcmdCode != subcommands.ExitSuccess {
		log.L.Warnf("Failure to execute command, err: %v", subcmdCode)
	}
	os.Exit(int(subcmdCode))
}

// forEachCmd invokes the passed callback for each command supported by
// scopefsd.
func forEachCmd(cb func(cmd subcommands.Command, group string)) {
	// Help and flags commands are generated automatically.
	cb(subcommands.HelpCommand(), "")
	cb(subcommands.FlagsCommand(), "")

	// User-facing commands.
	cb(new(cmd.Mount), "")
	cb(new(cmd.Controllers), "")
	cb(new(cmd.Version), "")
}
