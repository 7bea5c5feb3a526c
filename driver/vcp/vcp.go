// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package vcp opens the virtual COM port of a USB GPIB controller.
//
// A port is opened through an Opener, one per serial library, with a Mode
// describing the line:
//
//	port, err := vcp.Bugst{}.OpenPort("/dev/ttyUSB0", vcp.Mode{BaudRate: 115200})
//
// NewVCP picks the Opener from a Backend name and adds Flush.
package vcp

import (
	"io"
	"time"

	"github.com/pkg/errors"
	tarm "github.com/tarm/serial"
	"go.bug.st/serial"
	"go.uber.org/multierr"
)

// Backend selects the serial library used to open the port.
type Backend string

// Available backends.
const (
	BackendBugST Backend = "bugst"
	BackendTarm  Backend = "tarm"
)

// Mode is the line setting of a port. Zero DataBits means 8. The port is
// always no parity, one stop bit.
type Mode struct {
	BaudRate    int
	DataBits    int
	ReadTimeout time.Duration
}

// Opener opens a serial port with one serial library.
type Opener interface {
	OpenPort(name string, mode Mode) (io.ReadWriteCloser, error)
}

// Bugst opens ports with go.bug.st/serial.
type Bugst struct{}

// OpenPort implements Opener.
func (Bugst) OpenPort(name string, mode Mode) (io.ReadWriteCloser, error) {
	p, err := serial.Open(name, &serial.Mode{
		BaudRate: mode.BaudRate,
		DataBits: dataBits(mode),
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", name)
	}
	if mode.ReadTimeout > 0 {
		if err := p.SetReadTimeout(mode.ReadTimeout); err != nil {
			return nil, multierr.Append(errors.Wrapf(err, "setting read timeout on %s", name), p.Close())
		}
	}
	return p, nil
}

// Tarm opens ports with github.com/tarm/serial.
type Tarm struct{}

// OpenPort implements Opener.
func (Tarm) OpenPort(name string, mode Mode) (io.ReadWriteCloser, error) {
	p, err := tarm.OpenPort(&tarm.Config{
		Name:        name,
		Baud:        mode.BaudRate,
		Size:        byte(dataBits(mode)),
		ReadTimeout: mode.ReadTimeout,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", name)
	}
	return p, nil
}

func dataBits(m Mode) int {
	if m.DataBits == 0 {
		return 8
	}
	return m.DataBits
}

// OpenerFor returns the Opener of backend b. An empty backend is BackendBugST.
func OpenerFor(b Backend) (Opener, error) {
	switch b {
	case BackendBugST, "":
		return Bugst{}, nil
	case BackendTarm:
		return Tarm{}, nil
	}
	return nil, errors.Errorf("unknown serial backend %q", b)
}

// VCP is an open virtual COM port.
type VCP struct {
	name  string
	port  io.ReadWriteCloser
	flush func() error
}

type options struct {
	mode    Mode
	backend Backend
}

// Option configures NewVCP.
type Option func(*options)

// WithBaud sets the baud rate. The Prologix ignores it but AR488 boards do
// not.
func WithBaud(baud int) Option { return func(o *options) { o.mode.BaudRate = baud } }

// WithReadTimeout sets the port's own read timeout. Keep it short; the GPIB
// controller enforces the overall response deadline.
func WithReadTimeout(d time.Duration) Option { return func(o *options) { o.mode.ReadTimeout = d } }

// WithBackend selects the serial library.
func WithBackend(b Backend) Option { return func(o *options) { o.backend = b } }

// NewVCP opens the serial port at name, e.g. /dev/ttyUSB0, 115200 8N1.
func NewVCP(name string, opts ...Option) (*VCP, error) {
	o := options{
		mode:    Mode{BaudRate: 115200, DataBits: 8, ReadTimeout: 100 * time.Millisecond},
		backend: BackendBugST,
	}
	for _, opt := range opts {
		opt(&o)
	}
	op, err := OpenerFor(o.backend)
	if err != nil {
		return nil, err
	}
	port, err := op.OpenPort(name, o.mode)
	if err != nil {
		return nil, err
	}
	return Wrap(name, port), nil
}

// Wrap makes a VCP of an already open port. Flush uses the port's own Flush,
// or its input and output buffer resets; without either it does nothing.
func Wrap(name string, port io.ReadWriteCloser) *VCP {
	v := &VCP{name: name, port: port, flush: func() error { return nil }}
	switch p := port.(type) {
	case interface{ Flush() error }:
		v.flush = p.Flush
	case interface {
		ResetInputBuffer() error
		ResetOutputBuffer() error
	}:
		v.flush = func() error {
			return multierr.Combine(p.ResetInputBuffer(), p.ResetOutputBuffer())
		}
	}
	return v
}

// Read reads from the port.
func (v *VCP) Read(p []byte) (int, error) { return v.port.Read(p) }

// Write writes to the port.
func (v *VCP) Write(p []byte) (int, error) { return v.port.Write(p) }

// Flush discards any unread and unsent data.
func (v *VCP) Flush() error { return v.flush() }

// Close closes the port.
func (v *VCP) Close() error { return v.port.Close() }

func (v *VCP) String() string { return v.name }
