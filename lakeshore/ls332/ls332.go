// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package ls332 controls a Lake Shore 332 temperature controller.
package ls332

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gotmc/labdrivers"
)

var (
	channels = labdrivers.NewEnum(
		labdrivers.EnumValue{Code: "A", Name: "A"},
		labdrivers.EnumValue{Code: "B", Name: "B"},
	)
	heaterRanges = labdrivers.NewEnum(
		labdrivers.EnumValue{Code: "0", Name: "off"},
		labdrivers.EnumValue{Code: "1", Name: "low", Aliases: []string{"lo"}},
		labdrivers.EnumValue{Code: "2", Name: "medium", Aliases: []string{"med"}},
		labdrivers.EnumValue{Code: "3", Name: "high", Aliases: []string{"hi"}},
	)
	kelvin   = labdrivers.Between(0, 1500)
	rampRate = labdrivers.Between(0.1, 100)
)

// Settings of the LS332.
var (
	HeaterRange = labdrivers.Setting[string]{
		Name: "heater range", SetCmd: "RANGE %s", GetCmd: "RANGE?", Codec: heaterRanges,
	}
	HeaterOutput = labdrivers.Setting[float64]{
		Name: "heater output", Unit: "%", GetCmd: "HTR?", Codec: labdrivers.Between(0, 100),
	}
	Setpoint1 = setpoint(1)
	Setpoint2 = setpoint(2)
)

func setpoint(loop int) labdrivers.Setting[float64] {
	return labdrivers.Setting[float64]{
		Name:   fmt.Sprintf("setpoint %d", loop),
		Unit:   "K",
		SetCmd: fmt.Sprintf("SETP %d,%%s", loop),
		GetCmd: fmt.Sprintf("SETP? %d", loop),
		Codec:  kelvin,
	}
}

// Params lists the settings addressable by name.
func Params() []labdrivers.Param {
	return []labdrivers.Param{HeaterRange, HeaterOutput, Setpoint1, Setpoint2}
}

// Controller is an LS332 client.
type Controller struct {
	*labdrivers.Conn
}

// New returns a client for the LS332 at address. Call Open before use.
func New(op labdrivers.Opener, address string, opts ...labdrivers.Option) *Controller {
	return &Controller{Conn: labdrivers.NewConn(op, address, opts...)}
}

// Reset restores the power-up settings.
func (c *Controller) Reset() error { return c.Command("*RST") }

func (c *Controller) invalid(setting, value, bound string) error {
	return &labdrivers.CommandError{
		Instrument: c.Name(),
		Command:    setting,
		Err:        &labdrivers.ValidationError{Setting: setting, Value: value, Bound: bound},
	}
}

func (c *Controller) loop(n int) (labdrivers.Setting[float64], error) {
	switch n {
	case 1:
		return Setpoint1, nil
	case 2:
		return Setpoint2, nil
	}
	return labdrivers.Setting[float64]{}, c.invalid("loop", strconv.Itoa(n), "must be 1 or 2")
}

// Temperature reads input channel "A" or "B" in kelvin.
func (c *Controller) Temperature(channel string) (float64, error) {
	code, err := channels.Encode(channel)
	if err != nil {
		return 0, c.invalid("channel", strconv.Quote(channel), "must be A or B")
	}
	cmd := "KRDG? " + code
	resp, err := c.Query(cmd)
	if err != nil {
		return 0, err
	}
	v, err := labdrivers.Unbounded().Decode(resp)
	if err != nil {
		return 0, &labdrivers.CommandError{Instrument: c.Name(), Command: cmd, Err: err}
	}
	return v, nil
}

// SetSetpoint sets the control loop setpoint in kelvin.
func (c *Controller) SetSetpoint(loop int, k float64) error {
	s, err := c.loop(loop)
	if err != nil {
		return err
	}
	return labdrivers.Set(c, s, k)
}

// Setpoint reads the control loop setpoint.
func (c *Controller) Setpoint(loop int) (float64, error) {
	s, err := c.loop(loop)
	if err != nil {
		return 0, err
	}
	return labdrivers.Get(c, s)
}

// SetRamp enables or disables setpoint ramping on loop at rate K/min.
func (c *Controller) SetRamp(loop int, on bool, rate float64) error {
	if _, err := c.loop(loop); err != nil {
		return err
	}
	tok, err := rampRate.Encode(rate)
	if err != nil {
		return c.invalid("ramp rate", strconv.FormatFloat(rate, 'g', -1, 64), "must be 0.1-100 K/min")
	}
	onOff, _ := labdrivers.OneZero.Encode(on)
	return c.Command(fmt.Sprintf("RAMP %d,%s,%s", loop, onOff, tok))
}

// Ramp reads whether ramping is enabled on loop and its rate.
func (c *Controller) Ramp(loop int) (on bool, rate float64, err error) {
	if _, err := c.loop(loop); err != nil {
		return false, 0, err
	}
	cmd := fmt.Sprintf("RAMP? %d", loop)
	resp, err := c.Query(cmd)
	if err != nil {
		return false, 0, err
	}
	state, r, ok := strings.Cut(resp, ",")
	if ok {
		on, err = labdrivers.OneZero.Decode(state)
	}
	if ok && err == nil {
		rate, err = labdrivers.Unbounded().Decode(r)
	}
	if !ok || err != nil {
		return false, 0, &labdrivers.CommandError{
			Instrument: c.Name(), Command: cmd,
			Err: &labdrivers.ParseError{Setting: "ramp", Response: resp, Reason: "want state,rate"},
		}
	}
	return on, rate, nil
}

// Ramping reports whether loop's setpoint is still moving.
func (c *Controller) Ramping(loop int) (bool, error) {
	if _, err := c.loop(loop); err != nil {
		return false, err
	}
	cmd := fmt.Sprintf("RAMPST? %d", loop)
	resp, err := c.Query(cmd)
	if err != nil {
		return false, err
	}
	b, err := labdrivers.OneZero.Decode(resp)
	if err != nil {
		return false, &labdrivers.CommandError{Instrument: c.Name(), Command: cmd, Err: err}
	}
	return b, nil
}
