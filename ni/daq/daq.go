// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package daq drives the analog channels of a National Instruments DAQ card
// through a labdrivers.AnalogIO backend. The vendor runtime stays behind that
// interface.
package daq

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gotmc/labdrivers"
)

// Channel counts of the supported cards.
const (
	Outputs = 2
	Inputs  = 8
)

// Resetter is implemented by backends that can reset the whole device.
type Resetter interface {
	Reset() error
}

// Device is a DAQ card. Calls are serialized.
type Device struct {
	mu   sync.Mutex
	name string
	io   labdrivers.AnalogIO
	log  *logrus.Entry
}

// New returns a device called name (e.g. "Dev1") backed by io.
func New(name string, io labdrivers.AnalogIO, log *logrus.Logger) *Device {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Device{name: name, io: io, log: log.WithField("device", name)}
}

// Name returns the device name.
func (d *Device) Name() string { return d.name }

// physical returns "/Dev1/ao0" for ("ao", "ao0").
func (d *Device) physical(kind, channel string, count int) (string, error) {
	ch := strings.ToLower(strings.TrimSpace(channel))
	n, err := strconv.Atoi(strings.TrimPrefix(ch, kind))
	if !strings.HasPrefix(ch, kind) || err != nil || n < 0 || n >= count {
		return "", d.invalid("channel", strconv.Quote(channel), fmt.Sprintf("must be %s0-%s%d", kind, kind, count-1))
	}
	return fmt.Sprintf("/%s/%s%d", d.name, kind, n), nil
}

func (d *Device) invalid(setting, value, bound string) error {
	return &labdrivers.CommandError{
		Instrument: d.name,
		Command:    setting,
		Err:        &labdrivers.ValidationError{Setting: setting, Value: value, Bound: bound},
	}
}

func (d *Device) checkRange(r labdrivers.Range) error {
	if r.Min >= r.Max || !labdrivers.DefaultRange.Contains(r.Min) || !labdrivers.DefaultRange.Contains(r.Max) {
		return d.invalid("range", r.String(), "must be an interval within ±10")
	}
	return nil
}

func (d *Device) write(channel string, v float64, unit labdrivers.Unit) error {
	phys, err := d.physical("ao", channel, Outputs)
	if err != nil {
		return err
	}
	r := labdrivers.Range{Min: -10, Max: 10, Unit: unit}
	if !r.Contains(v) {
		return d.invalid(phys, strconv.FormatFloat(v, 'g', -1, 64), "outside "+r.String())
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.io.WriteScalar(phys, v, r); err != nil {
		return &labdrivers.CommandError{Instrument: d.name, Command: "write " + phys, Err: err}
	}
	d.log.WithFields(logrus.Fields{"channel": phys, "value": v, "unit": unit}).Debug("write")
	return nil
}

func (d *Device) read(channel string, r labdrivers.Range) (float64, error) {
	phys, err := d.physical("ai", channel, Inputs)
	if err != nil {
		return 0, err
	}
	if err := d.checkRange(r); err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	v, err := d.io.ReadScalar(phys, r)
	if err != nil {
		return 0, &labdrivers.CommandError{Instrument: d.name, Command: "read " + phys, Err: err}
	}
	return v, nil
}

// OutputVoltage drives output channel ("ao0" or "ao1") to v volts.
func (d *Device) OutputVoltage(channel string, v float64) error {
	return d.write(channel, v, labdrivers.Volts)
}

// OutputCurrent drives output channel to i amps.
func (d *Device) OutputCurrent(channel string, i float64) error {
	return d.write(channel, i, labdrivers.Amps)
}

// ReadVoltage reads input channel ("ai0" to "ai7"). A narrow r gives better
// resolution.
func (d *Device) ReadVoltage(channel string, r labdrivers.Range) (float64, error) {
	r.Unit = labdrivers.Volts
	return d.read(channel, r)
}

// ReadCurrent reads input channel in amps.
func (d *Device) ReadCurrent(channel string, r labdrivers.Range) (float64, error) {
	r.Unit = labdrivers.Amps
	return d.read(channel, r)
}

// RampOutput steps output channel from volts from to volts to in steps
// increments.
func (d *Device) RampOutput(ctx context.Context, channel string, from, to float64, steps int, delay time.Duration) error {
	for _, v := range []float64{from, to} {
		if !labdrivers.DefaultRange.Contains(v) {
			return d.invalid("ramp", strconv.FormatFloat(v, 'g', -1, 64), "outside "+labdrivers.DefaultRange.String())
		}
	}
	return labdrivers.Ramp(ctx, labdrivers.RampPoints(from, to, steps), delay, func(v float64) error {
		return d.OutputVoltage(channel, v)
	})
}

// Reset resets the device if the backend supports it and otherwise zeroes
// every output.
func (d *Device) Reset() error {
	if r, ok := d.io.(Resetter); ok {
		d.mu.Lock()
		defer d.mu.Unlock()
		return r.Reset()
	}
	for i := 0; i < Outputs; i++ {
		if err := d.OutputVoltage(fmt.Sprintf("ao%d", i), 0); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the backend.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.io.Close()
}
