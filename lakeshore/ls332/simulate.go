// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package ls332

import (
	"strings"

	"github.com/gotmc/labdrivers/lib/sim"
)

// Simulate makes in behave like an LS332 with channel A at 4.2 K and channel
// B at 77 K. Setpoint ramps complete instantly.
func Simulate(in *sim.Instrument) {
	for hdr, v := range map[string]string{
		"*IDN":     "LSCI,MODEL332S,0,1.0 (simulated)",
		"KRDG? A":  "+4.2000",
		"KRDG? B":  "+77.000",
		"SETP? 1":  "+0.0000",
		"SETP? 2":  "+0.0000",
		"RAMP? 1":  "0,+10.0",
		"RAMP? 2":  "0,+10.0",
		"RAMPST 1": "0",
		"RAMPST 2": "0",
		"RANGE":    "0",
		"HTR":      "+0.0",
	} {
		in.Preset(hdr, v)
	}
	// Per-loop writes carry the loop before the first comma.
	perLoop := func(query string) sim.Handler {
		return func(args string) (string, error) {
			loop, rest, _ := strings.Cut(args, ",")
			in.Preset(query+" "+strings.TrimSpace(loop), rest)
			return "", nil
		}
	}
	in.Handle("SETP", perLoop("SETP?"))
	in.Handle("RAMP", perLoop("RAMP?"))
}
