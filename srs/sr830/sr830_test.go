// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package sr830

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/gotmc/labdrivers"
	"github.com/gotmc/labdrivers/lib/sim"
)

func newLockIn(t *testing.T) (*LockIn, *sim.Instrument) {
	t.Helper()
	in := sim.New("sr830")
	Simulate(in)
	bench := sim.NewBench()
	bench.Add("GPIB::8", in)
	l := New(bench, "GPIB::8", labdrivers.WithName("lockin"))
	if err := l.Open(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	in.ClearLog()
	return l, in
}

func isValidation(err error) bool {
	var verr *labdrivers.ValidationError
	return errors.As(err, &verr)
}

func Test_enumSettings(t *testing.T) {
	l, in := newLockIn(t)
	tests := []struct {
		s    labdrivers.Setting[string]
		in   string
		cmd  string
		name string
	}{
		{Reserve, "hi", "RMOD 0", "high reserve"},
		{Reserve, "high", "RMOD 0", "high reserve"},
		{Reserve, "high reserve", "RMOD 0", "high reserve"},
		{Reserve, "0", "RMOD 0", "high reserve"},
		{Reserve, "normal", "RMOD 1", "normal"},
		{Reserve, "1", "RMOD 1", "normal"},
		{Reserve, "lo", "RMOD 2", "low noise"},
		{Reserve, "low", "RMOD 2", "low noise"},
		{Reserve, "low noise", "RMOD 2", "low noise"},
		{Reserve, "2", "RMOD 2", "low noise"},
		{LowPassSlope, "6", "OFSL 0", "6 dB/oct"},
		{LowPassSlope, "12", "OFSL 1", "12 dB/oct"},
		{LowPassSlope, "18", "OFSL 2", "18 dB/oct"},
		{LowPassSlope, "24", "OFSL 3", "24 dB/oct"},
		{Input, "a", "ISRC 0", "A"},
		{Input, "a-b", "ISRC 1", "A-B"},
		{Input, "differential", "ISRC 1", "A-B"},
		{Input, "i1", "ISRC 2", "I (1 MOhm)"},
		{Input, "i1m", "ISRC 2", "I (1 MOhm)"},
		{Input, "i1mohm", "ISRC 2", "I (1 MOhm)"},
		{Input, "i100", "ISRC 3", "I (100 MOhm)"},
		{Input, "i100m", "ISRC 3", "I (100 MOhm)"},
		{Input, "i100mohm", "ISRC 3", "I (100 MOhm)"},
		{TimeConstant, "100 ms", "OFLT 8", "100 ms"},
		{TimeConstant, "10us", "OFLT 0", "10 us"},
		{TimeConstant, "30 ks", "OFLT 19", "30 ks"},
		{Sensitivity, "1 V/uA", "SENS 26", "1 V/uA"},
		{Sensitivity, "2nV/fA", "SENS 0", "2 nV/fA"},
	}
	for _, tc := range tests {
		in.ClearLog()
		if err := labdrivers.Set(l, tc.s, tc.in); err != nil {
			t.Errorf("%s = %q: %s", tc.s.Name, tc.in, err)
			continue
		}
		if got := in.Commands(); len(got) != 1 || got[0] != tc.cmd {
			t.Errorf("%s = %q sent %q, want %q", tc.s.Name, tc.in, got, tc.cmd)
		}
		name, err := labdrivers.Get(l, tc.s)
		if err != nil || name != tc.name {
			t.Errorf("%s read back %q, %v, want %q", tc.s.Name, name, err, tc.name)
		}
	}

	in.ClearLog()
	if err := labdrivers.Set(l, Reserve, "eggs"); !isValidation(err) {
		t.Errorf("reserve eggs: %v", err)
	}
	if err := labdrivers.Set(l, LowPassSlope, "3"); err != nil {
		t.Errorf("slope code 3: %v", err)
	}
	if err := labdrivers.Set(l, LowPassSlope, "36"); !isValidation(err) {
		t.Errorf("slope 36: %v", err)
	}
	if len(TimeConstants()) != 20 || len(Sensitivities()) != 27 {
		t.Error("wrong number of time constants or sensitivities")
	}
}

func Test_numericSettings(t *testing.T) {
	l, in := newLockIn(t)
	valid := []struct {
		s labdrivers.Setting[float64]
		v float64
	}{
		{Frequency, 0.001}, {Frequency, 1000}, {Frequency, 102000},
		{Phase, 128}, {Phase, -360}, {Phase, 729.99},
		{Amplitude, 0.004}, {Amplitude, 5},
	}
	for _, tc := range valid {
		if err := labdrivers.Set(l, tc.s, tc.v); err != nil {
			t.Errorf("%s = %g: %s", tc.s.Name, tc.v, err)
		}
	}
	in.ClearLog()
	invalid := []struct {
		s labdrivers.Setting[float64]
		v float64
	}{
		{Frequency, 0}, {Frequency, -1}, {Frequency, 200000},
		{Phase, -720}, {Phase, 730},
		{Amplitude, 5.002}, {Amplitude, 0},
	}
	for _, tc := range invalid {
		if err := labdrivers.Set(l, tc.s, tc.v); !isValidation(err) {
			t.Errorf("%s = %g: got %v, want validation error", tc.s.Name, tc.v, err)
		}
	}
	if got := in.Commands(); len(got) != 0 {
		t.Errorf("invalid values reached the instrument: %q", got)
	}

	if err := labdrivers.Set(l, SyncFilter, true); err != nil {
		t.Fatal(err)
	}
	on, err := labdrivers.Get(l, SyncFilter)
	if err != nil || !on {
		t.Errorf("sync filter = %t, %v", on, err)
	}
	if err := labdrivers.Set(l, Harmonic, 0); !isValidation(err) {
		t.Errorf("harmonic 0: %v", err)
	}
}

func Test_outputs(t *testing.T) {
	l, in := newLockIn(t)
	x, err := l.Output(X)
	if err != nil || x != 0.001 {
		t.Errorf("X = %g, %v", x, err)
	}
	if got := in.Commands(); got[0] != "OUTP? 1" {
		t.Errorf("sent %q", got)
	}
	if _, err := l.Output(CH1); !isValidation(err) {
		t.Errorf("Output(CH1): %v", err)
	}

	vals, err := l.Snapshot(X, Y, RefFrequency)
	if err != nil {
		t.Fatal(err)
	}
	if len(vals) != 3 || vals[0] != 0.001 || vals[2] != 1000 {
		t.Errorf("snapshot %v", vals)
	}
	if _, err := l.Snapshot(X); !isValidation(err) {
		t.Errorf("one-quantity snapshot: %v", err)
	}
	if _, err := l.Snapshot(X, Y, R, Theta, Aux1, Aux2, Aux3); !isValidation(err) {
		t.Errorf("seven-quantity snapshot: %v", err)
	}

	q, err := ParseQuantity("Theta")
	if err != nil || q != Theta {
		t.Errorf("ParseQuantity = %v, %v", q, err)
	}
}

func Test_display(t *testing.T) {
	l, _ := newLockIn(t)
	if err := l.SetDisplay(1, 1, 0); err != nil {
		t.Fatal(err)
	}
	d, r, err := l.Display(1)
	if err != nil || d != 1 || r != 0 {
		t.Errorf("Display(1) = %d, %d, %v", d, r, err)
	}
	if err := l.SetDisplay(3, 0, 0); !isValidation(err) {
		t.Errorf("channel 3: %v", err)
	}
	if err := l.SetDisplay(2, 5, 0); !isValidation(err) {
		t.Errorf("display 5: %v", err)
	}
}

func Test_RampAmplitude(t *testing.T) {
	l, in := newLockIn(t)
	if err := l.RampAmplitude(context.Background(), 1.5, 0.25, 0); err != nil {
		t.Fatal(err)
	}
	var sent []string
	for _, c := range in.Commands() {
		if strings.HasPrefix(c, "SLVL ") {
			sent = append(sent, c)
		}
	}
	want := "SLVL 1|SLVL 1.25|SLVL 1.5"
	if strings.Join(sent, "|") != want {
		t.Errorf("sent %q, want %s", sent, want)
	}
	if err := l.RampAmplitude(context.Background(), 6, 0.25, 0); !isValidation(err) {
		t.Errorf("ramp to 6 V: %v", err)
	}
}

func Test_Configuration(t *testing.T) {
	l, _ := newLockIn(t)
	c, err := l.Configuration()
	if err != nil {
		t.Fatal(err)
	}
	if c.Frequency != 1000 || c.TimeConstant != "100 ms" || c.Reserve != "normal" || c.Sensitivity != "50 mV/nA" {
		t.Errorf("got %s", c)
	}
}

func Test_bufferDrain(t *testing.T) {
	l, in := newLockIn(t)
	if err := l.StartAcquisition(); err != nil {
		t.Fatal(err)
	}
	if l.State() != labdrivers.Acquiring {
		t.Errorf("state = %s", l.State())
	}
	cols, err := l.Drain()
	if err != nil {
		t.Fatal(err)
	}
	if len(cols) != 2 || len(cols[0]) != SimPointsPerStart || len(cols[1]) != SimPointsPerStart {
		t.Fatalf("drained %v", cols)
	}
	if cols[0][0] != 0.001 {
		t.Errorf("CH1[0] = %g", cols[0][0])
	}
	if l.State() != labdrivers.Configured {
		t.Errorf("state after drain = %s", l.State())
	}
	if l.Data().Len() != SimPointsPerStart {
		t.Errorf("dataset has %d rows", l.Data().Len())
	}

	in.ClearLog()
	cols, err = l.Drain()
	if err != nil || cols != nil {
		t.Errorf("empty drain = %v, %v", cols, err)
	}
	for _, c := range in.Commands() {
		if strings.HasPrefix(c, "TRCA?") {
			t.Error("transfer issued for an empty buffer")
		}
	}
}

func Test_failedResetKeepsNothing(t *testing.T) {
	l, in := newLockIn(t)
	if err := l.StartAcquisition(); err != nil {
		t.Fatal(err)
	}
	in.FailOn("REST", labdrivers.Protocol("REST", errors.New("bus fault")))
	if _, err := l.Drain(); !errors.Is(err, labdrivers.ErrProtocol) {
		t.Fatalf("drain with failing reset: %v", err)
	}
	if n := l.Data().Len(); n != 0 {
		t.Errorf("points still on the instrument were kept: %d rows", n)
	}

	if _, err := l.Drain(); err != nil {
		t.Fatal(err)
	}
	if n := l.Data().Len(); n != SimPointsPerStart {
		t.Errorf("after retry the dataset has %d rows, want %d", n, SimPointsPerStart)
	}
}
