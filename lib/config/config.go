// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package config loads the YAML description of a lab bench: the GPIB
// controller, the instruments on it, what to poll and where readings go.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log         LogConfig          `yaml:"log"`
	Metrics     MetricsConfig      `yaml:"metrics"`
	Controller  ControllerConfig   `yaml:"controller"`
	Instruments []InstrumentConfig `yaml:"instruments"`
	Probes      []ProbeConfig      `yaml:"probes"`
	Sinks       SinksConfig        `yaml:"sinks"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
	// Trace logs every exchange through lib/cmdlog.
	Trace bool `yaml:"trace"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// ControllerConfig describes the Prologix (or AR488) GPIB bridge.
type ControllerConfig struct {
	Port        string        `yaml:"port"`
	Backend     string        `yaml:"backend"`
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	WriteDelay  time.Duration `yaml:"write_delay"`
	AR488       bool          `yaml:"ar488"`
}

// Instrument kinds.
const (
	KindK2400      = "k2400"
	KindSR830      = "sr830"
	KindLS332      = "ls332"
	KindITC503     = "itc503"
	KindIPS120     = "ips120"
	KindMercuryIPS = "mercury-ips"
	KindTriton     = "triton"
	KindDAQ        = "daq"
)

// Kinds lists the instrument kinds a configuration may name.
var Kinds = []string{
	KindK2400, KindSR830, KindLS332, KindITC503, KindIPS120,
	KindMercuryIPS, KindTriton, KindDAQ,
}

// IsTCP reports whether instruments of kind are reached over TCP rather
// than GPIB.
func IsTCP(kind string) bool { return kind == KindMercuryIPS || kind == KindTriton }

type InstrumentConfig struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
	// Address is "GPIB::pad[::sad]" for GPIB kinds, host:port for TCP kinds
	// and the device name (Dev1) for a DAQ.
	Address   string        `yaml:"address"`
	Timeout   time.Duration `yaml:"timeout"`
	ReadLimit int           `yaml:"read_limit"`
	// Channel is the Triton thermometer channel.
	Channel int `yaml:"channel"`
	// Axis is the Mercury iPS axis polled by default (x, y or z).
	Axis string `yaml:"axis"`
}

type ProbeConfig struct {
	Instrument string        `yaml:"instrument"`
	Params     []string      `yaml:"params"`
	Interval   time.Duration `yaml:"interval"`
}

type SinksConfig struct {
	CSV    CSVConfig    `yaml:"csv"`
	SQLite SQLiteConfig `yaml:"sqlite"`
	Redis  RedisConfig  `yaml:"redis"`
}

type CSVConfig struct {
	Dir  string `yaml:"dir"`
	Mode string `yaml:"mode"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Channel  string `yaml:"channel"`
	History  int    `yaml:"history"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{Listen: ":9090"},
		Controller: ControllerConfig{
			Port:        "/dev/ttyUSB0",
			Backend:     "bugst",
			Baud:        115200,
			ReadTimeout: 3 * time.Second,
		},
		Sinks: SinksConfig{
			CSV: CSVConfig{Dir: "data", Mode: "increment"},
			Redis: RedisConfig{
				PoolSize: 10,
				Channel:  "labdrivers:readings",
				History:  1000,
			},
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks instrument kinds, names and probe references.
func (c *Config) Validate() error {
	seen := make(map[string]bool)
	for i, in := range c.Instruments {
		if in.Name == "" {
			return errors.Errorf("instrument %d has no name", i+1)
		}
		if seen[strings.ToLower(in.Name)] {
			return errors.Errorf("instrument %s defined twice", in.Name)
		}
		seen[strings.ToLower(in.Name)] = true
		if !knownKind(in.Kind) {
			return errors.Errorf("instrument %s: unknown kind %q (want one of %s)",
				in.Name, in.Kind, strings.Join(Kinds, ", "))
		}
		if in.Address == "" && in.Kind != KindDAQ {
			return errors.Errorf("instrument %s has no address", in.Name)
		}
		if in.Timeout < 0 {
			return errors.Errorf("instrument %s: negative timeout", in.Name)
		}
	}
	for _, p := range c.Probes {
		if !seen[strings.ToLower(p.Instrument)] {
			return errors.Errorf("probe names unknown instrument %q", p.Instrument)
		}
		if len(p.Params) == 0 {
			return errors.Errorf("probe of %s has no params", p.Instrument)
		}
		if p.Interval < 0 {
			return errors.Errorf("probe of %s: negative interval", p.Instrument)
		}
	}
	return nil
}

func knownKind(k string) bool {
	for _, kk := range Kinds {
		if k == kk {
			return true
		}
	}
	return false
}

// Instrument returns the named instrument.
func (c *Config) Instrument(name string) (InstrumentConfig, bool) {
	for _, in := range c.Instruments {
		if strings.EqualFold(in.Name, name) {
			return in, true
		}
	}
	return InstrumentConfig{}, false
}

// UsesGPIB reports whether any instrument needs the GPIB controller.
func (c *Config) UsesGPIB() bool {
	for _, in := range c.Instruments {
		if !IsTCP(in.Kind) && in.Kind != KindDAQ {
			return true
		}
	}
	return false
}
