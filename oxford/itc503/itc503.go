// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package itc503 controls an Oxford Instruments ITC 503 temperature
// controller over its ISOBUS/GPIB command set. Commands starting with '$'
// produce no reply; R<n> reads reply with "R" and a signed value.
package itc503

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/gotmc/labdrivers"
)

// Variable indexes a value readable with Read.
type Variable int

// Readable variables.
const (
	SetTemperature Variable = iota
	Sensor1
	Sensor2
	Sensor3
	TemperatureError
	HeaterPercent
	HeaterVolts
	GasFlow
	ProportionalBand
	IntegralTime
	DerivativeTime
)

var variableNames = [...]string{
	"set temperature", "sensor 1", "sensor 2", "sensor 3", "temperature error",
	"heater %", "heater V", "gas flow", "proportional band", "integral time", "derivative time",
}

func (v Variable) String() string {
	if v < SetTemperature || v > DerivativeTime {
		return fmt.Sprintf("Variable(%d)", int(v))
	}
	return variableNames[v]
}

var (
	controlStates = labdrivers.NewEnum(
		labdrivers.EnumValue{Code: "0", Name: "local locked"},
		labdrivers.EnumValue{Code: "1", Name: "remote locked"},
		labdrivers.EnumValue{Code: "2", Name: "local unlocked"},
		labdrivers.EnumValue{Code: "3", Name: "remote unlocked", Aliases: []string{"remote"}},
	)
	autoModes = labdrivers.NewEnum(
		labdrivers.EnumValue{Code: "0", Name: "manual", Aliases: []string{"heater manual gas manual"}},
		labdrivers.EnumValue{Code: "1", Name: "heater auto", Aliases: []string{"heater auto gas manual"}},
		labdrivers.EnumValue{Code: "2", Name: "gas auto", Aliases: []string{"heater manual gas auto"}},
		labdrivers.EnumValue{Code: "3", Name: "auto", Aliases: []string{"heater auto gas auto"}},
	)
	reading = labdrivers.Float{Min: -1e9, Max: 1e9, Prefix: "R"}
)

func millikelvin(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }

// Settings of the ITC 503. All are write-only.
var (
	ControlState = labdrivers.Setting[string]{
		Name: "control state", SetCmd: "$C%s", Codec: controlStates,
	}
	Setpoint = labdrivers.Setting[float64]{
		Name: "setpoint", Unit: "K", SetCmd: "$T%s",
		Codec: labdrivers.Float{Min: 0, Max: 1000, Format: millikelvin},
	}
	Proportional = labdrivers.Setting[float64]{
		Name: "proportional band", Unit: "K", SetCmd: "$P%s", Codec: labdrivers.Between(0, 1000),
	}
	Integral = labdrivers.Setting[float64]{
		Name: "integral time", Unit: "min", SetCmd: "$I%s", Codec: labdrivers.Between(0, 140),
	}
	Derivative = labdrivers.Setting[float64]{
		Name: "derivative time", Unit: "min", SetCmd: "$D%s", Codec: labdrivers.Between(0, 273),
	}
	HeaterSensor = labdrivers.Setting[int]{
		Name: "heater sensor", SetCmd: "$H%s", Codec: labdrivers.Int{Min: 1, Max: 3},
	}
	HeaterOutput = labdrivers.Setting[int]{
		Name: "heater output", Unit: "0.1%", SetCmd: "$O%s", Codec: labdrivers.Int{Min: 0, Max: 999},
	}
	GasOutput = labdrivers.Setting[int]{
		Name: "gas output", Unit: "0.1%", SetCmd: "$G%s", Codec: labdrivers.Int{Min: 0, Max: 999},
	}
	AutoControl = labdrivers.Setting[string]{
		Name: "auto control", SetCmd: "$A%s", Codec: autoModes,
	}
)

// Params lists the settings addressable by name.
func Params() []labdrivers.Param {
	return []labdrivers.Param{
		ControlState, Setpoint, Proportional, Integral, Derivative,
		HeaterSensor, HeaterOutput, GasOutput, AutoControl,
	}
}

// SweepSteps is the number of steps in the sweep table.
const SweepSteps = 16

// SweepStep is one row of the sweep table.
type SweepStep struct {
	Setpoint  float64 // K
	SweepTime float64 // min
	HoldTime  float64 // min
}

// Controller is an ITC 503 client.
type Controller struct {
	*labdrivers.Conn
}

// New returns a client for the ITC 503 at address. Call Open before use.
func New(op labdrivers.Opener, address string, opts ...labdrivers.Option) *Controller {
	return &Controller{Conn: labdrivers.NewConn(op, address, opts...)}
}

// Read returns the value of variable v.
func (c *Controller) Read(v Variable) (float64, error) {
	if v < SetTemperature || v > DerivativeTime {
		return 0, &labdrivers.CommandError{
			Instrument: c.Name(), Command: "read",
			Err: &labdrivers.ValidationError{Setting: "variable", Value: strconv.Itoa(int(v)), Bound: "must be 0-10"},
		}
	}
	cmd := fmt.Sprintf("R%d", v)
	resp, err := c.Query(cmd)
	if err != nil {
		return 0, err
	}
	f, err := reading.Decode(resp)
	if err != nil {
		return 0, &labdrivers.CommandError{Instrument: c.Name(), Command: cmd, Err: err}
	}
	return f, nil
}

// Temperature reads sensor 1, 2 or 3.
func (c *Controller) Temperature(sensor int) (float64, error) {
	if sensor < 1 || sensor > 3 {
		return 0, &labdrivers.CommandError{
			Instrument: c.Name(), Command: "temperature",
			Err: &labdrivers.ValidationError{Setting: "sensor", Value: strconv.Itoa(sensor), Bound: "must be 1-3"},
		}
	}
	return c.Read(Sensor1 + Variable(sensor-1))
}

// SetSweeps writes the whole sweep table. Steps are keyed 1 to SweepSteps;
// missing steps are written as zeros. The table pointers are returned to
// zero afterwards so stray writes cannot alter the table.
func (c *Controller) SetSweeps(steps map[int]SweepStep) error {
	keys := make([]int, 0, len(steps))
	for k := range steps {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		if k < 1 || k > SweepSteps {
			return &labdrivers.CommandError{
				Instrument: c.Name(), Command: "sweep table",
				Err: &labdrivers.ValidationError{Setting: "sweep step", Value: strconv.Itoa(k), Bound: "must be 1-16"},
			}
		}
	}
	return c.Do(func(tx *labdrivers.Tx) error {
		for n := 1; n <= SweepSteps; n++ {
			if err := writeStep(tx, n, steps[n]); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeStep(tx *labdrivers.Tx, n int, s SweepStep) error {
	cmds := []string{
		fmt.Sprintf("$x%d", n),
		"$y1", "$s" + millikelvin(s.Setpoint),
		"$y2", "$s" + strconv.FormatFloat(s.SweepTime, 'g', -1, 64),
		"$y3", "$s" + strconv.FormatFloat(s.HoldTime, 'g', -1, 64),
		"$x0", "$y0",
	}
	for _, cmd := range cmds {
		if err := tx.Command(cmd); err != nil {
			return err
		}
	}
	return nil
}
