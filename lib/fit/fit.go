// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package fit extracts device parameters from sweeps: resistance from an
// I-V curve and differential conductance, either numerically from a DC sweep
// or from a lock-in reading.
package fit

import (
	"fmt"
	"math"
	"strconv"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/gotmc/labdrivers"
)

// ConductanceQuantum is 2e²/h in siemens.
const ConductanceQuantum = 7.7480917310e-5

// Line is a least squares fit y = Intercept + Slope·x.
type Line struct {
	Intercept, Slope float64
	// R2 is the coefficient of determination.
	R2 float64
}

func (l Line) String() string {
	return fmt.Sprintf("y = %.6g + %.6g·x (R² = %.4f)", l.Intercept, l.Slope, l.R2)
}

// At evaluates the line.
func (l Line) At(x float64) float64 { return l.Intercept + l.Slope*x }

// Linear fits a straight line through (x, y).
func Linear(x, y []float64) (Line, error) {
	if len(x) != len(y) {
		return Line{}, errors.Errorf("fit: %d x values, %d y values", len(x), len(y))
	}
	if len(x) < 2 {
		return Line{}, &labdrivers.ValidationError{Setting: "points", Value: strconv.Itoa(len(x)), Bound: ">= 2"}
	}
	if floats.HasNaN(x) || floats.HasNaN(y) {
		return Line{}, errors.Errorf("fit: NaN in data")
	}
	if floats.Max(x) == floats.Min(x) {
		return Line{}, errors.Errorf("fit: x does not vary")
	}
	a, b := stat.LinearRegression(x, y, nil, false)
	return Line{Intercept: a, Slope: b, R2: stat.RSquared(x, y, nil, a, b)}, nil
}

// Resistance fits V against I and returns the slope in ohms.
func Resistance(volts, amps []float64) (float64, Line, error) {
	l, err := Linear(amps, volts)
	if err != nil {
		return math.NaN(), l, err
	}
	return l.Slope, l, nil
}

// DatasetResistance fits the named voltage and current columns of ds.
func DatasetResistance(ds *labdrivers.Dataset, voltCol, currCol string) (float64, Line, error) {
	v, i := ds.Column(voltCol), ds.Column(currCol)
	if v == nil || i == nil {
		return math.NaN(), Line{}, errors.Errorf("fit: dataset lacks %s or %s", voltCol, currCol)
	}
	return Resistance(v, i)
}

// DifferentialConductance returns dI/dV at every point of a DC sweep as the
// slope of a line fitted over window neighbouring points, centred where
// possible.
func DifferentialConductance(volts, amps []float64, window int) ([]float64, error) {
	if window < 2 {
		return nil, &labdrivers.ValidationError{Setting: "window", Value: strconv.Itoa(window), Bound: ">= 2"}
	}
	if len(volts) != len(amps) {
		return nil, errors.Errorf("fit: %d voltages, %d currents", len(volts), len(amps))
	}
	n := len(volts)
	if n < window {
		return nil, errors.Errorf("fit: %d points is fewer than the window of %d", n, window)
	}
	g := make([]float64, n)
	for i := range g {
		lo := i - window/2
		if lo < 0 {
			lo = 0
		}
		if lo+window > n {
			lo = n - window
		}
		l, err := Linear(volts[lo:lo+window], amps[lo:lo+window])
		if err != nil {
			return nil, errors.Wrapf(err, "fit: point %d", i)
		}
		g[i] = l.Slope
	}
	return g, nil
}

// LockInConductance converts a lock-in current reading taken behind a
// current preamplifier of gain 10^sensitivity A/V, with an AC excitation of
// amplitude volts divided by division, to a conductance in siemens.
func LockInConductance(output float64, sensitivity int, amplitude, division float64) (float64, error) {
	if amplitude <= 0 || division <= 0 {
		return math.NaN(), &labdrivers.ValidationError{
			Setting: "excitation",
			Value:   fmt.Sprintf("%g/%g", amplitude, division),
			Bound:   "amplitude and division must be positive",
		}
	}
	current := output * math.Pow10(sensitivity)
	return current / (amplitude / division), nil
}

// InQuanta scales conductances in siemens to units of 2e²/h in place.
func InQuanta(g []float64) []float64 {
	floats.Scale(1/ConductanceQuantum, g)
	return g
}
