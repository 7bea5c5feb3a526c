// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package k2400

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/gotmc/labdrivers"
	"github.com/gotmc/labdrivers/lib/sim"
)

func newSMU(t *testing.T) (*SMU, *sim.Instrument) {
	t.Helper()
	in := sim.New("k2400")
	Simulate(in)
	bench := sim.NewBench()
	bench.Add("GPIB::23", in)
	k := New(bench, "GPIB::23", labdrivers.WithName("smu"))
	if err := k.Open(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { k.Close() })
	in.ClearLog()
	return k, in
}

func count(cmds []string, cmd string) int {
	n := 0
	for _, c := range cmds {
		if c == cmd {
			n++
		}
	}
	return n
}

func Test_compliance(t *testing.T) {
	k, in := newSMU(t)
	if err := labdrivers.Set(k, VoltageCompliance, 5.0); err != nil {
		t.Fatal(err)
	}
	if got := in.Commands(); len(got) != 1 || got[0] != "SENS:VOLT:PROT:LEV 5" {
		t.Errorf("sent %q", got)
	}
	v, err := labdrivers.Get(k, VoltageCompliance)
	if err != nil || v != 5 {
		t.Errorf("read back %g, %v", v, err)
	}

	in.ClearLog()
	tests := []struct {
		s labdrivers.Setting[float64]
		v float64
	}{
		{VoltageCompliance, 250},
		{VoltageCompliance, 100e-6},
		{CurrentCompliance, 1e-10},
		{CurrentCompliance, 2},
		{SourceVoltage, -211},
		{SourceCurrent, 1.1},
	}
	for _, tc := range tests {
		err := labdrivers.Set(k, tc.s, tc.v)
		var verr *labdrivers.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("%s = %g: got %v, want validation error", tc.s.Name, tc.v, err)
		}
	}
	if got := in.Commands(); len(got) != 0 {
		t.Errorf("invalid values reached the instrument: %q", got)
	}
}

func Test_integerLimits(t *testing.T) {
	k, in := newSMU(t)
	for _, n := range []int{0, 2501} {
		if err := labdrivers.Set(k, TriggerCount, n); err == nil {
			t.Errorf("trigger count %d accepted", n)
		}
		if err := labdrivers.Set(k, TracePoints, n); err == nil {
			t.Errorf("trace points %d accepted", n)
		}
	}
	if err := labdrivers.Set(k, TriggerCount, 2500); err != nil {
		t.Error(err)
	}
	if got := in.Commands(); len(got) != 1 || got[0] != "TRIG:COUN 2500" {
		t.Errorf("sent %q", got)
	}
}

func Test_armSources(t *testing.T) {
	k, _ := newSMU(t)
	for _, src := range []string{"IMM", "TLIN", "TIM", "MAN", "BUS", "NST", "PST", "BST"} {
		if err := labdrivers.Set(k, ArmSource, src); err != nil {
			t.Errorf("arm source %s: %s", src, err)
		}
	}
	if err := labdrivers.Set(k, ArmSource, "sometimes"); err == nil {
		t.Error("unknown arm source accepted")
	}
	if err := labdrivers.Set(k, TriggerSource, "BUS"); err == nil {
		t.Error("trigger layer accepted BUS")
	}
}

func Test_measureType(t *testing.T) {
	k, in := newSMU(t)
	if err := labdrivers.Set(k, MeasureType, "voltage"); err != nil {
		t.Fatal(err)
	}
	if got := in.Commands(); got[0] != `SENS:FUNC:ON "VOLT:DC"` {
		t.Errorf("sent %q", got[0])
	}
	in.Preset("SENS:FUNC:ON", `"VOLT:DC","CURR:DC"`)
	v, err := labdrivers.Get(k, MeasureType)
	if err != nil || v != "current" {
		t.Errorf("got %q, %v", v, err)
	}
}

func Test_SetSourceLevel(t *testing.T) {
	k, in := newSMU(t)
	if err := k.SetSourceLevel(-2); err != nil {
		t.Fatal(err)
	}
	want := []string{"SOUR:FUNC:MODE?", "SOUR:VOLT:MODE FIX", "SOUR:VOLT:RANG 2", "SOUR:VOLT:LEV -2"}
	if got := in.Commands(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("sent %q, want %q", got, want)
	}

	in.ClearLog()
	if err := labdrivers.Set(k, SourceType, "current"); err != nil {
		t.Fatal(err)
	}
	if err := k.SetSourceLevel(2); err == nil {
		t.Fatal("2 A accepted")
	}
	for _, c := range in.Commands() {
		if strings.HasPrefix(c, "SOUR:CURR") {
			t.Errorf("sent %q for an invalid level", c)
		}
	}
	lvl, err := k.SourceLevel()
	if err != nil || lvl != 0 {
		t.Errorf("SourceLevel = %g, %v", lvl, err)
	}
}

func Test_RampSource(t *testing.T) {
	k, in := newSMU(t)
	if err := k.RampSource(context.Background(), 1, 4, 0); err != nil {
		t.Fatal(err)
	}
	var levels []string
	for _, c := range in.Commands() {
		if v, ok := strings.CutPrefix(c, "SOUR:VOLT:LEV "); ok {
			levels = append(levels, v)
		}
	}
	want := []string{"0", "0.25", "0.5", "0.75", "1"}
	if strings.Join(levels, " ") != strings.Join(want, " ") {
		t.Errorf("levels %q, want %q", levels, want)
	}

	in.ClearLog()
	if err := k.RampSource(context.Background(), 1, 10, 0); err != nil {
		t.Fatal(err)
	}
	if n := count(in.Commands(), "SOUR:VOLT:LEV 1"); n != 1 {
		t.Errorf("ramp to the present level wrote %d setpoints", n)
	}

	if err := k.RampSource(context.Background(), 500, 10, 0); err == nil {
		t.Error("ramp beyond the voltage limit accepted")
	}
}

func Test_bufferDrain(t *testing.T) {
	k, in := newSMU(t)
	if err := k.SetSourceLevel(1); err != nil {
		t.Fatal(err)
	}
	if err := k.ConfigureBuffer(3); err != nil {
		t.Fatal(err)
	}
	if err := k.StartAcquisition(); err != nil {
		t.Fatal(err)
	}
	if k.State() != labdrivers.Acquiring {
		t.Errorf("state = %s", k.State())
	}

	in.ClearLog()
	cols, err := k.Drain()
	if err != nil {
		t.Fatal(err)
	}
	if len(cols) != 4 {
		t.Fatalf("%d sequences, want 4", len(cols))
	}
	for j, c := range cols {
		if len(c) != 3 {
			t.Errorf("%s has %d values, want 3", Elements[j], len(c))
		}
	}
	if cols[0][0] != 1 || cols[1][0] != 0.001 || cols[2][0] != SimLoad {
		t.Errorf("first reading V=%g I=%g R=%g", cols[0][0], cols[1][0], cols[2][0])
	}
	if n := count(in.Commands(), "TRAC:DATA?"); n != 1 {
		t.Errorf("%d bulk transfers, want 1", n)
	}
	if k.State() != labdrivers.Configured {
		t.Errorf("state after drain = %s", k.State())
	}
	if k.Data().Len() != 3 {
		t.Errorf("dataset has %d rows", k.Data().Len())
	}

	in.ClearLog()
	cols, err = k.Drain()
	if err != nil || cols != nil {
		t.Errorf("empty drain = %v, %v", cols, err)
	}
	if n := count(in.Commands(), "TRAC:DATA?"); n != 0 {
		t.Error("bulk transfer issued for an empty buffer")
	}
	if k.Data().Len() != 3 {
		t.Errorf("empty drain changed the dataset: %d rows", k.Data().Len())
	}
}

func Test_failedClearKeepsNothing(t *testing.T) {
	k, in := newSMU(t)
	if err := k.ConfigureBuffer(3); err != nil {
		t.Fatal(err)
	}
	if err := k.StartAcquisition(); err != nil {
		t.Fatal(err)
	}
	in.FailOn("TRAC:CLE", labdrivers.Protocol("TRAC:CLE", errors.New("bus fault")))
	if _, err := k.Drain(); !errors.Is(err, labdrivers.ErrProtocol) {
		t.Fatalf("drain with failing clear: %v", err)
	}
	if n := k.Data().Len(); n != 0 {
		t.Errorf("samples still on the instrument were kept: %d rows", n)
	}

	if _, err := k.Drain(); err != nil {
		t.Fatal(err)
	}
	if n := k.Data().Len(); n != 3 {
		t.Errorf("after retry the dataset has %d rows, want 3", n)
	}
}

func Test_fullBufferDrainedBeforeStart(t *testing.T) {
	k, in := newSMU(t)
	if err := k.ConfigureBuffer(2); err != nil {
		t.Fatal(err)
	}
	if err := k.StartAcquisition(); err != nil {
		t.Fatal(err)
	}
	if err := k.StartAcquisition(); err != nil {
		t.Fatal(err)
	}
	if k.Data().Len() != 2 {
		t.Errorf("full buffer not drained: dataset has %d rows", k.Data().Len())
	}
	if n, _ := labdrivers.Get(k, PointsStored); n != 2 {
		t.Errorf("second acquisition stored %d points", n)
	}
	cmds := in.Commands()
	if count(cmds, "TRAC:DATA?") != 1 || count(cmds, "INIT") != 2 {
		t.Errorf("sent %q", cmds)
	}

	k.ClearData()
	if k.Data().Len() != 0 {
		t.Error("ClearData kept rows")
	}
}

func Test_ReadPoint(t *testing.T) {
	k, _ := newSMU(t)
	if err := k.SetSourceLevel(2); err != nil {
		t.Fatal(err)
	}
	s, err := k.ReadPoint()
	if err != nil {
		t.Fatal(err)
	}
	if s.Voltage != 2 || s.Current != 0.002 || s.Resistance != SimLoad {
		t.Errorf("got %+v", s)
	}
}

func Test_compliancePredicates(t *testing.T) {
	k, in := newSMU(t)
	ok, err := k.WithinVoltageCompliance()
	if err != nil || !ok {
		t.Errorf("got %t, %v", ok, err)
	}
	in.Preset("SENS:CURR:PROT:TRIP", "1")
	ok, err = k.WithinCurrentCompliance()
	if err != nil || ok {
		t.Errorf("got %t, %v", ok, err)
	}
}

func Test_params(t *testing.T) {
	k, in := newSMU(t)
	p, ok := labdrivers.FindParam(Params(), "voltage_compliance")
	if !ok {
		t.Fatal("voltage_compliance not found")
	}
	if err := p.SetText(k, "10"); err != nil {
		t.Fatal(err)
	}
	if got := in.Commands(); got[0] != "SENS:VOLT:PROT:LEV 10" {
		t.Errorf("sent %q", got)
	}
	p, _ = labdrivers.FindParam(Params(), "output-off-mode")
	if err := p.SetText(k, "guard"); err != nil {
		t.Fatal(err)
	}
	s, err := p.GetText(k)
	if err != nil || s != "guard" {
		t.Errorf("got %q, %v", s, err)
	}
}

func Test_closed(t *testing.T) {
	k, in := newSMU(t)
	if err := k.Close(); err != nil {
		t.Fatal(err)
	}
	if !in.Closed() {
		t.Error("session still open")
	}
	if _, err := k.Drain(); !errors.Is(err, labdrivers.ErrInvalidState) {
		t.Errorf("drain after close: %v", err)
	}
}
