// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package sr830

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/gotmc/labdrivers/lib/sim"
)

// SimPointsPerStart is how many buffer points Simulate's instrument records
// for each STRT.
const SimPointsPerStart = 5

// Simulate makes in behave like an SR830 measuring a signal whose X
// component is one thousandth of the reference amplitude.
func Simulate(in *sim.Instrument) {
	for hdr, v := range map[string]string{
		"*IDN": "Stanford_Research_Systems,SR830,s/n00000,ver1.07 (simulated)",
		"FREQ": "1000",
		"PHAS": "0",
		"SLVL": "1",
		"HARM": "1",
		"ISRC": "0",
		"RMOD": "1",
		"SYNC": "0",
		"OFSL": "1",
		"OFLT": "8",
		"SENS": "22",
		"FMOD": "1",
		"ICPL": "0",
		"IGND": "0",
		"ILIN": "0",
		"SRAT": "4",
		"SEND": "1",
		"DDEF 1": "0,0",
		"DDEF 2": "0,0",
	} {
		in.Preset(hdr, v)
	}

	var (
		mu       sync.Mutex
		ch1, ch2 []float64
	)
	xy := func() (float64, float64) {
		s, _ := in.Value("SLVL")
		a, _ := strconv.ParseFloat(s, 64)
		return a / 1000, 0
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'E', 6, 64) }

	in.Handle("OUTP?", func(args string) (string, error) {
		x, y := xy()
		switch strings.TrimSpace(args) {
		case "1", "3":
			return f(x), nil
		case "2", "4":
			return f(y), nil
		}
		return "", nil
	})
	in.Handle("SNAP?", func(args string) (string, error) {
		x, y := xy()
		var out []string
		for _, a := range strings.Split(args, ",") {
			switch strings.TrimSpace(a) {
			case "1", "3", "10":
				out = append(out, f(x))
			case "9":
				s, _ := in.Value("FREQ")
				out = append(out, s)
			default:
				out = append(out, f(y))
			}
		}
		return strings.Join(out, ","), nil
	})
	in.Handle("DDEF", func(args string) (string, error) {
		ch, rest, _ := strings.Cut(args, ",")
		in.Preset("DDEF? "+ch, rest)
		return "", nil
	})
	in.Handle("STRT", func(string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		x, y := xy()
		for i := 0; i < SimPointsPerStart && len(ch1) < BufferSize; i++ {
			ch1 = append(ch1, x)
			ch2 = append(ch2, y)
		}
		return "", nil
	})
	in.Handle("SPTS?", func(string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		return strconv.Itoa(len(ch1)), nil
	})
	in.Handle("TRCA?", func(args string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		var ch, start, n int
		if _, err := fmt.Sscanf(args, "%d,%d,%d", &ch, &start, &n); err != nil {
			return "", nil
		}
		buf := ch1
		if ch == 2 {
			buf = ch2
		}
		if start < 0 || start+n > len(buf) {
			return "", nil
		}
		var sb strings.Builder
		for _, v := range buf[start : start+n] {
			sb.WriteString(f(v))
			sb.WriteByte(',')
		}
		return sb.String(), nil
	})
	in.Handle("REST", func(string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		ch1, ch2 = nil, nil
		return "", nil
	})
}
