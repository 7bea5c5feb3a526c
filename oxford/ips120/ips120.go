// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package ips120 controls an Oxford Instruments IPS 120-10 superconducting
// magnet power supply.
package ips120

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/gotmc/labdrivers"
)

// MaxField is the magnitude limit of the field setpoint in tesla.
const MaxField = 8.0

var (
	controlStates = labdrivers.NewEnum(
		labdrivers.EnumValue{Code: "0", Name: "local locked"},
		labdrivers.EnumValue{Code: "1", Name: "remote locked"},
		labdrivers.EnumValue{Code: "2", Name: "local unlocked"},
		labdrivers.EnumValue{Code: "3", Name: "remote unlocked", Aliases: []string{"remote"}},
	)
	activities = labdrivers.NewEnum(
		labdrivers.EnumValue{Code: "0", Name: "hold"},
		labdrivers.EnumValue{Code: "1", Name: "to set point", Aliases: []string{"to setpoint", "rtos"}},
		labdrivers.EnumValue{Code: "2", Name: "to zero", Aliases: []string{"rtoz"}},
		labdrivers.EnumValue{Code: "4", Name: "clamp"},
	)
	heaterStates = labdrivers.NewEnum(
		labdrivers.EnumValue{Code: "0", Name: "off"},
		labdrivers.EnumValue{Code: "1", Name: "on", Aliases: []string{"on if matched"}},
		labdrivers.EnumValue{Code: "2", Name: "on forced", Aliases: []string{"force"}},
	)
	displays = labdrivers.NewEnum(
		labdrivers.EnumValue{Code: "8", Name: "amps", Aliases: []string{"a"}},
		labdrivers.EnumValue{Code: "9", Name: "tesla", Aliases: []string{"t"}},
	)
	reading = labdrivers.Float{Min: -100, Max: 100, Prefix: "R"}
)

// Settings of the IPS 120. Writes produce no reply; Field, FieldSetpoint
// and SweepRate read back with R7, R8 and R9.
var (
	ControlState = labdrivers.Setting[string]{
		Name: "control state", SetCmd: "$C%s", Codec: controlStates,
	}
	Activity = labdrivers.Setting[string]{
		Name: "activity", SetCmd: "$A%s", Codec: activities,
	}
	SwitchHeater = labdrivers.Setting[string]{
		Name: "switch heater", SetCmd: "$H%s", Codec: heaterStates,
	}
	FieldSetpoint = labdrivers.Setting[float64]{
		Name: "field setpoint", Unit: "T", SetCmd: "$J%s", GetCmd: "R8",
		Codec: readBack{labdrivers.Float{Min: -MaxField, Max: MaxField, Exclusive: true}},
	}
	SweepRate = labdrivers.Setting[float64]{
		Name: "sweep rate", Unit: "T/min", SetCmd: "$T%s", GetCmd: "R9",
		Codec: readBack{labdrivers.Float{Min: 0, Max: 10, Exclusive: true}},
	}
	Display = labdrivers.Setting[string]{
		Name: "display", SetCmd: "$M%s", Codec: displays,
	}
	Field = labdrivers.Setting[float64]{
		Name: "field", Unit: "T", GetCmd: "R7", Codec: reading,
	}
)

// readBack validates writes with its own bounds and decodes R replies.
type readBack struct{ labdrivers.Float }

func (r readBack) Decode(resp string) (float64, error) { return reading.Decode(resp) }

// Params lists the settings addressable by name.
func Params() []labdrivers.Param {
	return []labdrivers.Param{ControlState, Activity, SwitchHeater, FieldSetpoint, SweepRate, Display, Field}
}

// Supply is an IPS 120 client.
type Supply struct {
	*labdrivers.Conn
}

// New returns a client for the IPS 120 at address. Call Open before use.
func New(op labdrivers.Opener, address string, opts ...labdrivers.Option) *Supply {
	return &Supply{Conn: labdrivers.NewConn(op, address, opts...)}
}

// Open connects and switches the display to tesla.
func (s *Supply) Open() error {
	if err := s.Conn.Open(); err != nil {
		return err
	}
	if err := labdrivers.Set(s, Display, "tesla"); err != nil {
		return multierr.Append(err, s.Conn.Close())
	}
	return nil
}

// Field reads the present field in tesla.
func (s *Supply) Field() (float64, error) { return labdrivers.Get(s, Field) }

// WaitForField polls every poll until the field is within margin of the
// setpoint, defaulting to once a second. It gives up with ctx's error;
// commands are never retried.
func (s *Supply) WaitForField(ctx context.Context, margin float64, poll time.Duration) error {
	if !(margin > 0) {
		return &labdrivers.CommandError{
			Instrument: s.Name(), Command: "wait for field",
			Err: &labdrivers.ValidationError{Setting: "margin", Value: strconv.FormatFloat(margin, 'g', -1, 64), Bound: "must be positive"},
		}
	}
	if poll <= 0 {
		poll = time.Second
	}
	t := time.NewTicker(poll)
	defer t.Stop()
	for {
		field, err := labdrivers.Get(s, Field)
		if err != nil {
			return err
		}
		target, err := labdrivers.Get(s, FieldSetpoint)
		if err != nil {
			return err
		}
		if math.Abs(field-target) < margin {
			return nil
		}
		s.Logger().Debugf("field %.4f T, setpoint %.4f T", field, target)
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "field %.4f T short of %.4f T", field, target)
		case <-t.C:
		}
	}
}
