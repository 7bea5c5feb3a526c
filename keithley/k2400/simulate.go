// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package k2400

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/gotmc/labdrivers/lib/sim"
)

// SimLoad is the resistance of the load seen by Simulate's instrument.
const SimLoad = 1000.0

// Simulate makes in behave like a 2400 sourcing into a SimLoad ohm resistor:
// it answers *IDN?, produces readings for :READ? and fills the trace buffer
// on INIT.
func Simulate(in *sim.Instrument) {
	for hdr, v := range map[string]string{
		"*IDN":                 "KEITHLEY INSTRUMENTS INC.,MODEL 2400,0000000,C32 (simulated)",
		"SOUR:FUNC:MODE":       "VOLT",
		"SENS:FUNC:ON":         `"CURR:DC"`,
		"SOUR:VOLT:LEV":        "0",
		"SOUR:CURR:LEV":        "0",
		"SENS:VOLT:PROT:LEV":   "21",
		"SENS:CURR:PROT:LEV":   "1.05E-4",
		"SENS:VOLT:PROT:TRIP":  "0",
		"SENS:CURR:PROT:TRIP":  "0",
		"OUTP:STAT":            "0",
		"TRIG:COUN":            "1",
		"TRAC:POIN":            "100",
		"TRAC:FEED":            "SENS",
		"TRAC:FEED:CONT":       "NEV",
	} {
		in.Preset(hdr, v)
	}

	var (
		mu  sync.Mutex
		buf []string
		t   float64
	)
	value := func(hdr string) float64 {
		s, _ := in.Value(hdr)
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	reading := func() []string {
		t += 0.01
		v, i := value("SOUR:VOLT:LEV"), 0.0
		if s, _ := in.Value("SOUR:FUNC:MODE"); strings.HasPrefix(strings.ToUpper(s), "CURR") {
			i = value("SOUR:CURR:LEV")
			v = i * SimLoad
		} else {
			i = v / SimLoad
		}
		f := func(x float64) string { return fmt.Sprintf("%+.6E", x) }
		return []string{f(v), f(i), f(SimLoad), f(t)}
	}

	in.Handle("READ?", func(string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		return strings.Join(append(reading(), "+0.000000E+00"), ","), nil
	})
	in.Handle("INIT", func(string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if s, _ := in.Value("TRAC:FEED:CONT"); !strings.EqualFold(s, "NEXT") {
			return "", nil
		}
		capacity := int(value("TRAC:POIN"))
		for n := int(value("TRIG:COUN")); n > 0 && len(buf)/len(Elements) < capacity; n-- {
			buf = append(buf, reading()...)
		}
		return "", nil
	})
	in.Handle("TRAC:POIN:ACT?", func(string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		return strconv.Itoa(len(buf) / len(Elements)), nil
	})
	in.Handle("TRAC:DATA?", func(string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		return strings.Join(buf, ","), nil
	})
	in.Handle("TRAC:CLE", func(string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		buf = nil
		return "", nil
	})
}
