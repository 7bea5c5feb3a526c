// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package sim

import (
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/gotmc/labdrivers"
)

func Test_storeKey(t *testing.T) {
	tests := []struct{ in, want string }{
		{"SLVL?", "SLVL"},
		{"slvl 1.5", "SLVL 1.5"},
		{":SOUR:VOLT:LEV?", "SOUR:VOLT:LEV"},
		{"KRDG? A", "KRDG A"},
		{"DDEF 1", "DDEF 1"},
	}
	for _, tc := range tests {
		if got := storeKey(tc.in); got != tc.want {
			t.Errorf("storeKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func Test_Instrument(t *testing.T) {
	in := New("box")
	if _, err := in.Exchange("FREQ 10", false); err != nil {
		t.Fatal(err)
	}
	resp, err := in.Exchange("FREQ?", true)
	if err != nil || resp != "10" {
		t.Errorf("FREQ? = %q, %v", resp, err)
	}
	if _, err := in.Exchange("PHAS?", true); !labdrivers.IsTimeout(err) {
		t.Errorf("unset query: %v", err)
	}

	in.Preset("KRDG? A", "4.2")
	if resp, _ := in.Exchange("KRDG? A", true); resp != "4.2" {
		t.Errorf("KRDG? A = %q", resp)
	}

	in.Handle("*IDN?", func(string) (string, error) { return "sim", nil })
	if resp, _ := in.Exchange("*idn?", true); resp != "sim" {
		t.Errorf("*IDN? = %q", resp)
	}
	in.Handle("QUIET?", func(string) (string, error) { return "", nil })
	if _, err := in.Exchange("QUIET?", true); !labdrivers.IsTimeout(err) {
		t.Errorf("empty handler reply: %v", err)
	}

	var got string
	in.HandlePrefix("$T", func(cmd string) (string, error) {
		got = cmd
		return "", nil
	})
	in.HandlePrefix("$", func(string) (string, error) { return "", errors.New("short prefix won") })
	if _, err := in.Exchange("$T1.500", false); err != nil || got != "$T1.500" {
		t.Errorf("prefix handler got %q, %v", got, err)
	}

	boom := errors.New("boom")
	in.FailNext(boom)
	if _, err := in.Exchange("FREQ?", true); errors.Cause(err) != boom {
		t.Errorf("FailNext: %v", err)
	}
	if _, err := in.Exchange("FREQ?", true); err != nil {
		t.Errorf("failure repeated: %v", err)
	}

	if n := len(in.Commands()); n != 9 {
		t.Errorf("logged %d commands: %q", n, in.Commands())
	}
	in.ClearLog()
	if len(in.Commands()) != 0 {
		t.Error("log not cleared")
	}
}

func Test_Bench(t *testing.T) {
	b := NewBench()
	in := New("dmm")
	b.Add("GPIB::22", in)
	if _, err := b.Open("GPIB::9"); !errors.Is(err, labdrivers.ErrConnection) {
		t.Errorf("missing address: %v", err)
	}
	s, err := b.Open("GPIB::22")
	if err != nil {
		t.Fatal(err)
	}
	s.Close()
	if !in.Closed() {
		t.Error("not closed")
	}
	if _, err := s.Exchange("X?", true); !errors.Is(err, labdrivers.ErrConnection) {
		t.Errorf("exchange after close: %v", err)
	}
	if _, err := b.Open("GPIB::22"); err != nil || in.Closed() {
		t.Errorf("reopen: %v", err)
	}
	if b.Instrument("GPIB::22") != in {
		t.Error("wrong instrument")
	}
}

func Test_DAQ(t *testing.T) {
	d := NewDAQ()
	d.Loop("ao0", "ai0")
	if err := d.WriteScalar("ao0", 2.5, labdrivers.DefaultRange); err != nil {
		t.Fatal(err)
	}
	if v, err := d.ReadScalar("ai0", labdrivers.DefaultRange); err != nil || v != 2.5 {
		t.Errorf("loopback read %g, %v", v, err)
	}
	if err := d.WriteScalar("ao1", 11, labdrivers.DefaultRange); !errors.Is(err, labdrivers.ErrProtocol) {
		t.Errorf("out of range write: %v", err)
	}
	d.SetInput("ai3", 20)
	_, err := d.ReadScalar("ai3", labdrivers.DefaultRange)
	if err == nil || !strings.Contains(err.Error(), "outside") {
		t.Errorf("out of range read: %v", err)
	}
	d.Close()
	if err := d.WriteScalar("ao0", 1, labdrivers.DefaultRange); !errors.Is(err, labdrivers.ErrConnection) {
		t.Errorf("write after close: %v", err)
	}
}
