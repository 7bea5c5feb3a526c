// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package mercury

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/gotmc/labdrivers"
)

// Triton temperature channels.
const (
	RuO2   = 5
	Cernox = 6
)

// heaterRanges pairs the setpoint thresholds, in kelvin, with the heater
// current range, in mA, used above them.
var heaterRanges = []struct {
	above float64
	mA    string
}{
	{0, "0.316"},
	{0.030, "1"},
	{0.050, "3.16"},
	{0.300, "10"},
	{1.000, "31.6"},
	{1.500, "100"},
}

// HeaterRange returns the heater current range in mA suited to setpoint k.
func HeaterRange(k float64) string {
	r := heaterRanges[0].mA
	for _, h := range heaterRanges[1:] {
		if k > h.above {
			r = h.mA
		}
	}
	return r
}

// TurboWarning is the setpoint above which changes are logged as a warning,
// since warming the mixing chamber loads the turbo pump.
const TurboWarning = 10.0

var setpointLimit = labdrivers.Between(0, 300)

// Triton is a Triton 200 client. Temperature commands address the selected
// channel.
type Triton struct {
	*labdrivers.Conn

	mu      sync.Mutex
	channel int
	heater  int
	turbo   int
}

// NewTriton returns a client for the Triton at address with the RuO2 channel
// selected. Call Open before use.
func NewTriton(op labdrivers.Opener, address string, opts ...labdrivers.Option) *Triton {
	return &Triton{
		Conn:    labdrivers.NewConn(op, address, opts...),
		channel: RuO2,
		heater:  1,
		turbo:   1,
	}
}

// SetChannel selects RuO2 or Cernox.
func (t *Triton) SetChannel(ch int) error {
	if ch != RuO2 && ch != Cernox {
		return &labdrivers.CommandError{
			Instrument: t.Name(), Command: "channel",
			Err: &labdrivers.ValidationError{Setting: "temperature channel", Value: strconv.Itoa(ch), Bound: "must be 5 (RuO2) or 6 (Cernox)"},
		}
	}
	t.mu.Lock()
	t.channel = ch
	t.mu.Unlock()
	return nil
}

// Channel returns the selected temperature channel.
func (t *Triton) Channel() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.channel
}

func (t *Triton) noun(suffix string) string {
	return fmt.Sprintf("DEV:T%d:TEMP:%s", t.Channel(), suffix)
}

func (t *Triton) temperature() labdrivers.Setting[float64] {
	return newSignal("temperature", t.noun("SIG:TEMP"), "K", nil, nil)
}

// Temperature reads the selected channel in kelvin.
func (t *Triton) Temperature() (float64, error) {
	return labdrivers.Get(t, t.temperature())
}

// Params returns the temperature and setpoint of the channel selected at the
// time of the call.
func (t *Triton) Params() []labdrivers.Param {
	return []labdrivers.Param{t.temperature(), t.setpoint()}
}

func (t *Triton) setpoint() labdrivers.Setting[float64] {
	return newSignal("temperature setpoint", t.noun("LOOP:TSET"), "K", &setpointLimit, Answered)
}

// SetTemperatureSetpoint sets the control loop setpoint of the selected
// channel. Call UpdateHeater afterwards to match the heater range.
func (t *Triton) SetTemperatureSetpoint(k float64) error {
	if err := labdrivers.Set(t, t.setpoint(), k); err != nil {
		return err
	}
	if k >= TurboWarning {
		t.Logger().Warnf("setpoint %g K: watch the turbo pump while ramping", k)
	}
	return nil
}

// TemperatureSetpoint reads the control loop setpoint.
func (t *Triton) TemperatureSetpoint() (float64, error) {
	return labdrivers.Get(t, t.setpoint())
}

// UpdateHeater assigns the heater to the selected channel and sets its range
// for the present setpoint.
func (t *Triton) UpdateHeater() error {
	return t.Do(func(tx *labdrivers.Tx) error {
		k, err := labdrivers.Get(tx, t.setpoint())
		if err != nil {
			return err
		}
		cmd := fmt.Sprintf("SET:%s:H%d", t.noun("LOOP:HTR"), t.heater)
		if err := confirm(tx, t.Name(), cmd, Answered); err != nil {
			return err
		}
		r := HeaterRange(k)
		tx.Logger().Infof("heater range %s mA for %g K", r, k)
		return confirm(tx, t.Name(), fmt.Sprintf("SET:%s:%s", t.noun("LOOP:RANGE"), r), Answered)
	})
}

// SetRamp enables or disables the controlled temperature ramp.
func (t *Triton) SetRamp(on bool) error {
	v, _ := labdrivers.OnOff.Encode(on)
	return confirm(t, t.Name(), fmt.Sprintf("SET:%s:%s", t.noun("LOOP:RAMP:ENAB"), v), Answered)
}

// SetTurbo switches the turbo pump.
func (t *Triton) SetTurbo(on bool) error {
	v, _ := labdrivers.OnOff.Encode(on)
	if on {
		t.Logger().Warn("starting turbo pump")
	}
	return confirm(t, t.Name(), fmt.Sprintf("SET:DEV:TURB%d:PUMP:SIG:STATE:%s", t.turbo, v), Answered)
}
