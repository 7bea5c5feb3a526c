// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package itc503

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/gotmc/labdrivers/lib/sim"
)

// Simulate makes in behave like an ITC 503 whose sensor 1 settles on the
// setpoint immediately. Sensors 2 and 3 read 4.2 K and 4.3 K.
func Simulate(in *sim.Instrument) {
	var mu sync.Mutex
	vars := map[Variable]float64{
		SetTemperature: 0.010,
		Sensor1:        0.010,
		Sensor2:        4.2,
		Sensor3:        4.3,
	}
	in.Preset("*IDN", "ITC503 Version 1.10 (simulated)")

	set := func(targets ...Variable) func(cmd string) (string, error) {
		return func(cmd string) (string, error) {
			v, err := strconv.ParseFloat(cmd[2:], 64)
			if err != nil {
				return "", nil
			}
			mu.Lock()
			defer mu.Unlock()
			for _, t := range targets {
				vars[t] = v
			}
			return "", nil
		}
	}
	in.HandlePrefix("$T", set(SetTemperature, Sensor1))
	in.HandlePrefix("$P", set(ProportionalBand))
	in.HandlePrefix("$I", set(IntegralTime))
	in.HandlePrefix("$D", set(DerivativeTime))
	in.HandlePrefix("$O", func(cmd string) (string, error) {
		n, err := strconv.Atoi(cmd[2:])
		if err == nil {
			mu.Lock()
			vars[HeaterPercent] = float64(n) / 10
			mu.Unlock()
		}
		return "", nil
	})
	in.HandlePrefix("$", func(string) (string, error) { return "", nil })
	in.HandlePrefix("R", func(cmd string) (string, error) {
		n, err := strconv.Atoi(cmd[1:])
		if err != nil || n < 0 || n > int(DerivativeTime) {
			return "?" + cmd, nil
		}
		mu.Lock()
		defer mu.Unlock()
		return fmt.Sprintf("R%+.3f", vars[Variable(n)]), nil
	})
}
