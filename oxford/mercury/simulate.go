// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package mercury

import (
	"strings"
	"sync"

	"github.com/gotmc/labdrivers/lib/sim"
)

var simUnits = map[string]string{
	"FSET": "T", "FLD": "T", "RFST": "T/m",
	"CSET": "A", "RCST": "A/m",
	"TEMP": "K", "TSET": "K",
}

// Simulate makes in answer Mercury READ and SET commands from a value table.
// Magnet actions complete instantly: RTOS copies the field setpoint to the
// field and RTOZ zeroes it. SET on a noun never written or preset is
// INVALID.
func Simulate(in *sim.Instrument) {
	var mu sync.Mutex
	values := map[string]string{
		"DEV:T5:TEMP:SIG:TEMP":  "0.0200",
		"DEV:T6:TEMP:SIG:TEMP":  "4.0000",
		"DEV:T5:TEMP:LOOP:TSET": "0",
		"DEV:T6:TEMP:LOOP:TSET": "0",
	}
	for _, a := range []Axis{X, Y, Z} {
		for _, s := range []string{"FSET", "RFST", "CSET", "RCST", "FLD"} {
			values["DEV:"+string(a)+":PSU:SIG:"+s] = "0.0000"
		}
	}
	settable := func(noun string) bool {
		_, ok := values[noun]
		return ok || strings.Contains(noun, ":ACTN") || strings.Contains(noun, ":LOOP:") ||
			strings.Contains(noun, ":PUMP:")
	}
	in.Preset("*IDN", "IDN:OXFORD INSTRUMENTS:MERCURY (simulated)")

	in.HandlePrefix("READ:", func(cmd string) (string, error) {
		noun := strings.TrimPrefix(cmd, "READ:")
		mu.Lock()
		defer mu.Unlock()
		v, ok := values[noun]
		if !ok {
			return "STAT:" + noun + ":INVALID", nil
		}
		return "STAT:" + noun + ":" + v + simUnits[noun[strings.LastIndex(noun, ":")+1:]], nil
	})
	in.HandlePrefix("SET:", func(cmd string) (string, error) {
		body := strings.TrimPrefix(cmd, "SET:")
		i := strings.LastIndex(body, ":")
		if i < 0 {
			return "STAT:" + cmd + ":INVALID", nil
		}
		noun, v := body[:i], body[i+1:]
		mu.Lock()
		defer mu.Unlock()
		if !settable(noun) {
			return "STAT:" + cmd + ":INVALID", nil
		}
		values[noun] = v
		if strings.HasSuffix(noun, ":PSU:ACTN") {
			fld := strings.TrimSuffix(noun, "ACTN") + "SIG:FLD"
			switch v {
			case "RTOS":
				values[fld] = values[strings.TrimSuffix(noun, "ACTN")+"SIG:FSET"]
			case "RTOZ":
				values[fld] = "0.0000"
			}
		}
		return "STAT:" + cmd + ":VALID", nil
	})
}
