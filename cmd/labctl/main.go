// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Command labctl drives the instruments described by a lab configuration
// file.
//
//	labctl -config lab.yaml [-sim] [-v] <command> [args]
//
// Commands:
//
//	idn <inst>                        identify an instrument
//	params <inst>                     list its parameters
//	get <inst> <param>                read a parameter
//	set <inst> <param> <value>        write a parameter
//	ramp [flags] <inst> <param> <to>  step a parameter to a value
//	acquire [flags] <inst>            buffered acquisition to CSV/SQLite
//	watch                             terminal monitor of the probes
//	serve                             poll probes, serve /ws and /metrics
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/gotmc/labdrivers"
	"github.com/gotmc/labdrivers/lib/cmdlog"
	"github.com/gotmc/labdrivers/lib/config"
	"github.com/gotmc/labdrivers/lib/metrics"
)

var errUsage = errors.New("usage")

// env is what a command runs against.
type env struct {
	lab     *lab
	log     *logrus.Logger
	out     io.Writer
	metrics *metrics.Collector
	reg     *prometheus.Registry
}

type command struct {
	usage string
	run   func(ctx context.Context, e *env, args []string) error
}

var commands map[string]command

// init fills commands; a package-level initializer would form a cycle
// through subcommand, which looks up usage strings in commands.
func init() {
	commands = map[string]command{
		"idn":     {"idn <inst>", cmdIdn},
		"params":  {"params <inst>", cmdParams},
		"get":     {"get <inst> <param>", cmdGet},
		"set":     {"set <inst> <param> <value>", cmdSet},
		"ramp":    {"ramp [-steps n | -step s] [-delay d] [-from v] <inst> <param> <target>", cmdRamp},
		"acquire": {"acquire [-n points] [-for d] [-out name] <inst>", cmdAcquire},
		"watch":   {"watch", cmdWatch},
		"serve":   {"serve", cmdServe},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "labctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) (err error) {
	fs := flag.NewFlagSet("labctl", flag.ContinueOnError)
	cfgPath := fs.String("config", "lab.yaml", "lab configuration file")
	simulate := fs.Bool("sim", false, "use simulated instruments")
	verbose := fs.Bool("v", false, "log every exchange at debug level")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: labctl [flags] <command> [args]")
		fs.PrintDefaults()
		names := make([]string, 0, len(commands))
		for n := range commands {
			names = append(names, n)
		}
		sort.Strings(names)
		fmt.Fprintln(fs.Output(), "commands:")
		for _, n := range names {
			fmt.Fprintln(fs.Output(), "  "+commands[n].usage)
		}
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}
	cmd, ok := commands[fs.Arg(0)]
	if !ok {
		fs.Usage()
		return errors.Wrapf(errUsage, "unknown command %q", fs.Arg(0))
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	log := config.SetupLogger(cfg.Log)
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	e := &env{log: log, out: out}
	var obs []labdrivers.Observer
	if cfg.Log.Trace {
		obs = append(obs, cmdlog.New(log))
	}
	if fs.Arg(0) == "serve" {
		e.reg = prometheus.NewRegistry()
		if e.metrics, err = metrics.New(e.reg); err != nil {
			return err
		}
		obs = append(obs, e.metrics)
	}

	e.lab, err = openLab(cfg, log, *simulate, obs...)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, e.lab.Close()) }()
	return cmd.run(ctx, e, fs.Args()[1:])
}
