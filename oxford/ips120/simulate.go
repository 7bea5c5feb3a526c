// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package ips120

import (
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/gotmc/labdrivers/lib/sim"
)

// SimStep is how far, in tesla, Simulate's supply moves the field towards its
// target on each field read.
const SimStep = 0.5

// Simulate makes in behave like an IPS 120 driving a magnet. While the
// activity is "to set point" or "to zero" the field moves by SimStep each
// time it is read.
func Simulate(in *sim.Instrument) {
	var (
		mu                    sync.Mutex
		field, setpoint, rate float64
		activity              = "0"
	)
	rate = 0.1
	in.Preset("*IDN", "IPS120-10 Version 3.07 (simulated)")

	number := func(dst *float64) func(cmd string) (string, error) {
		return func(cmd string) (string, error) {
			v, err := strconv.ParseFloat(cmd[2:], 64)
			if err == nil {
				mu.Lock()
				*dst = v
				mu.Unlock()
			}
			return "", nil
		}
	}
	in.HandlePrefix("$J", number(&setpoint))
	in.HandlePrefix("$T", number(&rate))
	in.HandlePrefix("$A", func(cmd string) (string, error) {
		mu.Lock()
		activity = cmd[2:]
		mu.Unlock()
		return "", nil
	})
	in.HandlePrefix("$", func(string) (string, error) { return "", nil })
	in.HandlePrefix("R", func(cmd string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		switch cmd {
		case "R7":
			target := field
			switch activity {
			case "1":
				target = setpoint
			case "2":
				target = 0
			}
			if d := target - field; math.Abs(d) <= SimStep {
				field = target
			} else {
				field += math.Copysign(SimStep, d)
			}
			return fmt.Sprintf("R%+.4f", field), nil
		case "R8":
			return fmt.Sprintf("R%+.4f", setpoint), nil
		case "R9":
			return fmt.Sprintf("R%+.4f", rate), nil
		}
		return "?" + cmd, nil
	})
}
