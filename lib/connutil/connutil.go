// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package connutil wires command line flags to a GPIB controller on a
// virtual COM port, for the example programs.
package connutil

import (
	"flag"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/gotmc/labdrivers/driver/vcp"
	"github.com/gotmc/labdrivers/lib/find"
	"github.com/gotmc/labdrivers/prologix"
)

// NoSecondary disables the secondary address.
const NoSecondary = 0xff

type Conn struct {
	SerialPort string
	GpibPAD    int
	GpibSAD    int
	Delay      time.Duration
	Backend    string
	AR488      bool
	Diag       bool
	Log        *logrus.Logger

	tty     string
	finderr error
	finder  find.Finder
}

// AddFlags is to be called before fs.Parse. A nil fs means
// flag.CommandLine.
func (c *Conn) AddFlags(fs *flag.FlagSet) {
	if fs == nil {
		fs = flag.CommandLine
	}
	c.tty, c.finderr = c.finder.Find(find.AnyFilter(find.PrologixFilter, find.ArduinoFilter))
	if c.finderr != nil {
		c.tty = "ttyUSB0"
	}

	// Get Virtual COM Port (VCP) serial port for Prologix.
	fs.StringVar(
		&c.SerialPort,
		"port",
		"/dev/"+c.tty,
		"Serial port for Prologix VCP GPIB controller",
	)
	if c.GpibPAD == 0 {
		c.GpibPAD = 23
	}
	if c.GpibSAD == 0 {
		c.GpibSAD = NoSecondary
	}
	if c.Backend == "" {
		c.Backend = string(vcp.BackendBugST)
	}

	fs.IntVar(&c.GpibPAD, "pad", c.GpibPAD, "GPIB primary address for the device")
	fs.IntVar(&c.GpibSAD, "sad", c.GpibSAD, "GPIB secondary address for the device (255 for none)")
	fs.DurationVar(&c.Delay, "delay", c.Delay, "delay between writes")
	fs.StringVar(&c.Backend, "serial", c.Backend, "serial library, bugst or tarm")
	fs.BoolVar(&c.AR488, "ar488", c.AR488, "controller is an Arduino AR488")
	fs.BoolVar(&c.Diag, "diag", c.Diag, "xdiag and exit")
}

// Address returns the instrument address for prologix.Controller.Open.
func (c *Conn) Address() string {
	if c.GpibSAD == NoSecondary {
		return fmt.Sprintf("GPIB::%d", c.GpibPAD)
	}
	return fmt.Sprintf("GPIB::%d::%d", c.GpibPAD, c.GpibSAD)
}

func (c *Conn) log() *logrus.Logger {
	if c.Log == nil {
		return logrus.StandardLogger()
	}
	return c.Log
}

// Setup is to be called after both AddFlags and flag.Parse. cleanup returns
// the instrument to front panel control and closes the controller and port. With -diag the
// controller has already run its diagnostic when Setup returns.
func (c *Conn) Setup(opts ...prologix.ControllerOption) (gpib *prologix.Controller, cleanup func() error, err error) {
	nocleanup := func() error { return nil }

	if c.finderr != nil && c.SerialPort == "/dev/"+c.tty {
		// only print this if the port isn't overridden via flag
		c.log().Warnf("locating serial port failed, guessing %s: %s", c.SerialPort, c.finderr)
	}
	c.log().Infof("Serial port = %s", c.SerialPort)

	port, err := vcp.NewVCP(c.SerialPort, vcp.WithBackend(vcp.Backend(c.Backend)))
	if err != nil {
		return nil, nocleanup, err
	}

	opts = append(opts, prologix.WithLogger(c.log()))
	if c.Delay > 0 {
		opts = append(opts, prologix.WithWriteDelay(c.Delay))
	}
	if c.GpibSAD != NoSecondary {
		opts = append(opts, prologix.WithSecondaryAddress(c.GpibSAD))
	}
	if c.AR488 {
		opts = append(opts, prologix.WithAR488())
	}

	gpib, err = prologix.NewController(port, c.GpibPAD, false, opts...)
	if err != nil {
		return nil, nocleanup, multierr.Append(err, port.Close())
	}

	cleanup = func() error {
		// Return local control to the front panel, discard any unread data
		// and close.
		return multierr.Combine(
			gpib.FrontPanel(true),
			port.Flush(),
			gpib.Close(),
		)
	}
	if c.Diag {
		c.log().Info("diag starting...")
		if err := gpib.Diagnose(); err != nil {
			return gpib, cleanup, err
		}
	}
	return gpib, cleanup, nil
}
