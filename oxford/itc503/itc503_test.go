// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package itc503

import (
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/gotmc/labdrivers"
	"github.com/gotmc/labdrivers/lib/sim"
)

func newController(t *testing.T) (*Controller, *sim.Instrument) {
	t.Helper()
	in := sim.New("itc503")
	Simulate(in)
	bench := sim.NewBench()
	bench.Add("GPIB::24", in)
	c := New(bench, "GPIB::24", labdrivers.WithName("itc"))
	if err := c.Open(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	in.ClearLog()
	return c, in
}

func isValidation(err error) bool {
	var verr *labdrivers.ValidationError
	return errors.As(err, &verr)
}

func Test_writes(t *testing.T) {
	c, in := newController(t)
	steps := []struct {
		set  func() error
		want string
	}{
		{func() error { return labdrivers.Set(c, ControlState, "remote unlocked") }, "$C3"},
		{func() error { return labdrivers.Set(c, Setpoint, 0.010) }, "$T0.010"},
		{func() error { return labdrivers.Set(c, Setpoint, 1.5) }, "$T1.500"},
		{func() error { return labdrivers.Set(c, Proportional, 0.5) }, "$P0.5"},
		{func() error { return labdrivers.Set(c, Integral, 2) }, "$I2"},
		{func() error { return labdrivers.Set(c, Derivative, 0) }, "$D0"},
		{func() error { return labdrivers.Set(c, HeaterSensor, 2) }, "$H2"},
		{func() error { return labdrivers.Set(c, HeaterOutput, 250) }, "$O250"},
		{func() error { return labdrivers.Set(c, GasOutput, 999) }, "$G999"},
		{func() error { return labdrivers.Set(c, AutoControl, "heater auto") }, "$A1"},
	}
	for _, s := range steps {
		if err := s.set(); err != nil {
			t.Fatalf("%s: %s", s.want, err)
		}
	}
	got := in.Commands()
	for i, s := range steps {
		if got[i] != s.want {
			t.Errorf("command %d = %q, want %q", i, got[i], s.want)
		}
	}
}

func Test_validation(t *testing.T) {
	c, in := newController(t)
	tests := []error{
		labdrivers.Set(c, HeaterSensor, 4),
		labdrivers.Set(c, HeaterSensor, 0),
		labdrivers.Set(c, HeaterOutput, 1000),
		labdrivers.Set(c, GasOutput, -1),
		labdrivers.Set(c, AutoControl, "4"),
		labdrivers.Set(c, Setpoint, -1),
		labdrivers.Set(c, ControlState, "remote-ish"),
	}
	for i, err := range tests {
		if !isValidation(err) {
			t.Errorf("case %d: got %v, want validation error", i, err)
		}
	}
	if _, err := c.Read(11); !isValidation(err) {
		t.Errorf("Read(11): %v", err)
	}
	if _, err := c.Temperature(4); !isValidation(err) {
		t.Errorf("Temperature(4): %v", err)
	}
	if len(in.Commands()) != 0 {
		t.Errorf("invalid values reached the instrument: %q", in.Commands())
	}
	if _, err := labdrivers.Get(c, Setpoint); !errors.Is(err, labdrivers.ErrWriteOnly) {
		t.Errorf("reading a $ setting: %v", err)
	}
}

func Test_Read(t *testing.T) {
	c, in := newController(t)
	if err := labdrivers.Set(c, Setpoint, 1.5); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		v    Variable
		want float64
	}{
		{SetTemperature, 1.5},
		{Sensor1, 1.5},
		{Sensor2, 4.2},
	}
	for _, tc := range tests {
		got, err := c.Read(tc.v)
		if err != nil || got != tc.want {
			t.Errorf("Read(%s) = %g, %v, want %g", tc.v, got, err, tc.want)
		}
	}
	if got, err := c.Temperature(3); err != nil || got != 4.3 {
		t.Errorf("Temperature(3) = %g, %v", got, err)
	}
	if cmds := in.Commands(); cmds[len(cmds)-1] != "R3" {
		t.Errorf("last command %q", cmds[len(cmds)-1])
	}
}

func Test_SetSweeps(t *testing.T) {
	c, in := newController(t)
	err := c.SetSweeps(map[int]SweepStep{
		2: {Setpoint: 1.5, SweepTime: 10, HoldTime: 5},
	})
	if err != nil {
		t.Fatal(err)
	}
	got := in.Commands()
	if len(got) != SweepSteps*9 {
		t.Fatalf("sent %d commands", len(got))
	}
	step1 := strings.Join(got[:9], " ")
	if step1 != "$x1 $y1 $s0.000 $y2 $s0 $y3 $s0 $x0 $y0" {
		t.Errorf("step 1: %s", step1)
	}
	step2 := strings.Join(got[9:18], " ")
	if step2 != "$x2 $y1 $s1.500 $y2 $s10 $y3 $s5 $x0 $y0" {
		t.Errorf("step 2: %s", step2)
	}
	if got[len(got)-9] != "$x16" {
		t.Errorf("last step starts with %q", got[len(got)-9])
	}

	in.ClearLog()
	if err := c.SetSweeps(map[int]SweepStep{17: {}}); !isValidation(err) {
		t.Errorf("step 17: %v", err)
	}
	if len(in.Commands()) != 0 {
		t.Error("invalid table was written")
	}
}
