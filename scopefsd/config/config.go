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

// Package config holds the daemon configuration.
//
// Flags are the primary interface. A YAML file with the same keys may be
// passed via --config; explicitly set flags win over the file, the file
// wins over defaults.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/containerd/log"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"scopefs.dev/scopefs/pkg/cgmanager"
)

// Config is the daemon configuration, immutable once built.
type Config struct {
	// Socket is the cgroup manager socket path.
	Socket string

	// ProcRoot is the real proc mount the rewriters read kernel sources
	// from. Containers see the rewritten files; this is where the
	// originals come from.
	ProcRoot string

	// PidFile, if set, is written with the daemon pid and held under an
	// exclusive lock for the daemon lifetime.
	PidFile string

	// Controllers restricts the exposed controllers to this
	// comma-separated list. Empty exposes everything the manager
	// reports.
	Controllers string

	// Debug forces debug-level logging.
	Debug bool

	// LogLevel is the logrus level name used when Debug is unset.
	LogLevel string

	// LogFormat is "text" or "json".
	LogFormat string

	// MetricsAddr, if set, serves Prometheus metrics over HTTP on this
	// address.
	MetricsAddr string

	// DialTimeout bounds the retried connect to the manager at startup.
	DialTimeout time.Duration
}

func defaultConfig() *Config {
	return &Config{
		Socket:      cgmanager.DefaultSocket,
		ProcRoot:    "/proc",
		LogLevel:    "info",
		LogFormat:   string(log.TextFormat),
		DialTimeout: 10 * time.Second,
	}
}

// RegisterFlags declares the daemon flags on fs. Defaults here and in
// defaultConfig must agree; NewFromFlags only transfers flags that were
// explicitly set.
func RegisterFlags(fs *flag.FlagSet) {
	def := defaultConfig()
	fs.String("socket", def.Socket, "path of the cgroup manager socket.")
	fs.String("proc", def.ProcRoot, "path of the real proc mount to read kernel sources from.")
	fs.String("pidfile", "", "write the daemon pid to this file and hold it locked.")
	fs.String("controllers", "", "comma-separated controllers to expose; empty exposes all discovered ones.")
	fs.Bool("debug", false, "enable debug logging.")
	fs.String("log-level", def.LogLevel, "log level: trace, debug, info, warn, error.")
	fs.String("log-format", def.LogFormat, "log format: text or json.")
	fs.String("metrics-addr", "", "serve Prometheus metrics on this address; empty disables.")
	fs.Duration("dial-timeout", def.DialTimeout, "give up connecting to the cgroup manager after this long.")
	fs.String("config", "", "YAML file with the same keys as the flags; explicit flags win.")
}

// NewFromFlags builds a Config from a parsed flag set, overlaying the
// optional config file, and validates it.
func NewFromFlags(fs *flag.FlagSet) (*Config, error) {
	conf := defaultConfig()
	if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
		if err := conf.loadFile(f.Value.String()); err != nil {
			return nil, err
		}
	}
	fs.Visit(conf.applyFlag)
	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Config) applyFlag(f *flag.Flag) {
	get := func() any { return f.Value.(flag.Getter).Get() }
	switch f.Name {
	case "socket":
		c.Socket = get().(string)
	case "proc":
		c.ProcRoot = get().(string)
	case "pidfile":
		c.PidFile = get().(string)
	case "controllers":
		c.Controllers = get().(string)
	case "debug":
		c.Debug = get().(bool)
	case "log-level":
		c.LogLevel = get().(string)
	case "log-format":
		c.LogFormat = get().(string)
	case "metrics-addr":
		c.MetricsAddr = get().(string)
	case "dial-timeout":
		c.DialTimeout = get().(time.Duration)
	}
}

// fileConfig mirrors Config for YAML. Pointer fields distinguish "absent"
// from an explicit zero; durations are strings so "10s" works.
type fileConfig struct {
	Socket      *string `yaml:"socket"`
	ProcRoot    *string `yaml:"proc"`
	PidFile     *string `yaml:"pidfile"`
	Controllers *string `yaml:"controllers"`
	Debug       *bool   `yaml:"debug"`
	LogLevel    *string `yaml:"log-level"`
	LogFormat   *string `yaml:"log-format"`
	MetricsAddr *string `yaml:"metrics-addr"`
	DialTimeout *string `yaml:"dial-timeout"`
}

func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if fc.Socket != nil {
		c.Socket = *fc.Socket
	}
	if fc.ProcRoot != nil {
		c.ProcRoot = *fc.ProcRoot
	}
	if fc.PidFile != nil {
		c.PidFile = *fc.PidFile
	}
	if fc.Controllers != nil {
		c.Controllers = *fc.Controllers
	}
	if fc.Debug != nil {
		c.Debug = *fc.Debug
	}
	if fc.LogLevel != nil {
		c.LogLevel = *fc.LogLevel
	}
	if fc.LogFormat != nil {
		c.LogFormat = *fc.LogFormat
	}
	if fc.MetricsAddr != nil {
		c.MetricsAddr = *fc.MetricsAddr
	}
	if fc.DialTimeout != nil {
		d, err := time.ParseDuration(*fc.DialTimeout)
		if err != nil {
			return fmt.Errorf("config: dial-timeout in %s: %w", path, err)
		}
		c.DialTimeout = d
	}
	return nil
}

func (c *Config) validate() error {
	if c.Socket == "" {
		return fmt.Errorf("config: socket must not be empty")
	}
	if c.ProcRoot == "" {
		return fmt.Errorf("config: proc must not be empty")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: invalid log-level %q", c.LogLevel)
	}
	switch c.LogFormat {
	case string(log.TextFormat), string(log.JSONFormat):
	default:
		return fmt.Errorf("config: invalid log-format %q", c.LogFormat)
	}
	if c.DialTimeout <= 0 {
		return fmt.Errorf("config: dial-timeout must be positive, got %v", c.DialTimeout)
	}
	for _, ctrl := range c.ControllerList() {
		if ctrl == "" {
			return fmt.Errorf("config: empty controller name in %q", c.Controllers)
		}
	}
	return nil
}

// ControllerList returns the parsed controller allowlist, nil when
// unrestricted.
func (c *Config) ControllerList() []string {
	if c.Controllers == "" {
		return nil
	}
	parts := strings.Split(c.Controllers, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
