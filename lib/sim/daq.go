// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package sim

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/gotmc/labdrivers"
)

// DAQ is a simulated analog I/O card. Inputs read back whatever was preset
// with SetInput, or the value written to a looped-back output.
type DAQ struct {
	mu       sync.Mutex
	outputs  map[string]float64
	inputs   map[string]float64
	loopback map[string]string
	closed   bool
}

// NewDAQ returns a simulated DAQ with all channels at zero.
func NewDAQ() *DAQ {
	return &DAQ{
		outputs:  make(map[string]float64),
		inputs:   make(map[string]float64),
		loopback: make(map[string]string),
	}
}

// Loop makes reads of input return the last value written to output.
func (d *DAQ) Loop(output, input string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loopback[input] = output
}

// SetInput presets the value read from channel.
func (d *DAQ) SetInput(channel string, v float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inputs[channel] = v
}

// Output returns the last value written to channel.
func (d *DAQ) Output(channel string) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.outputs[channel]
}

// WriteScalar implements labdrivers.AnalogIO.
func (d *DAQ) WriteScalar(channel string, v float64, r labdrivers.Range) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return labdrivers.Connection("daq", errors.New("task closed"))
	}
	if !r.Contains(v) {
		return labdrivers.Protocol(channel, errors.Errorf("%g outside %s", v, r))
	}
	d.outputs[channel] = v
	return nil
}

// ReadScalar implements labdrivers.AnalogIO.
func (d *DAQ) ReadScalar(channel string, r labdrivers.Range) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, labdrivers.Connection("daq", errors.New("task closed"))
	}
	v := d.inputs[channel]
	if out, ok := d.loopback[channel]; ok {
		v = d.outputs[out]
	}
	if !r.Contains(v) {
		return 0, labdrivers.Protocol(channel, errors.Errorf("reading %g outside %s", v, r))
	}
	return v, nil
}

// Close implements labdrivers.AnalogIO.
func (d *DAQ) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
