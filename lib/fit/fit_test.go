// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package fit

import (
	"errors"
	"math"
	"testing"

	"github.com/gotmc/labdrivers"
)

func near(a, b float64) bool { return math.Abs(a-b) <= 1e-9*math.Max(1, math.Abs(b)) }

func Test_Resistance(t *testing.T) {
	ds := labdrivers.NewDataset("VOLT", "CURR")
	amps := []float64{-2e-3, -1e-3, 0, 1e-3, 2e-3}
	volts := make([]float64, len(amps))
	for i, a := range amps {
		volts[i] = 0.01 + 1000*a
	}
	if err := ds.Append([][]float64{volts, amps}); err != nil {
		t.Fatal(err)
	}
	r, l, err := DatasetResistance(ds, "volt", "curr")
	if err != nil {
		t.Fatal(err)
	}
	if !near(r, 1000) || !near(l.Intercept, 0.01) || !near(l.R2, 1) {
		t.Errorf("want 1 kΩ with 10 mV offset, got %v", l)
	}
	if !near(l.At(1e-3), 1.01) {
		t.Errorf("At: got %g", l.At(1e-3))
	}
	if _, _, err := DatasetResistance(ds, "volt", "res"); err == nil {
		t.Error("missing column should fail")
	}
}

func Test_LinearErrors(t *testing.T) {
	var verr *labdrivers.ValidationError
	if _, err := Linear([]float64{1}, []float64{1}); !errors.As(err, &verr) {
		t.Errorf("one point: want ValidationError, got %v", err)
	}
	for name, xy := range map[string][2][]float64{
		"length":   {{1, 2}, {1}},
		"constant": {{1, 1, 1}, {1, 2, 3}},
		"nan":      {{1, math.NaN()}, {1, 2}},
	} {
		if _, err := Linear(xy[0], xy[1]); err == nil {
			t.Errorf("%s: want error", name)
		}
	}
}

func Test_DifferentialConductance(t *testing.T) {
	// 0.5 S below zero bias, 2 S above
	volts := []float64{-2, -1, 0, 1, 2, 3, 4}
	amps := make([]float64, len(volts))
	for i, v := range volts {
		if v <= 0 {
			amps[i] = 0.5 * v
		} else {
			amps[i] = 2 * v
		}
	}
	g, err := DifferentialConductance(volts, amps, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(g) != len(volts) {
		t.Fatalf("want %d points, got %d", len(volts), len(g))
	}
	if !near(g[0], 0.5) || !near(g[1], 0.5) || !near(g[6], 2) {
		t.Errorf("unexpected slopes %v", g)
	}
	if _, err := DifferentialConductance(volts, amps, 1); err == nil {
		t.Error("window 1 should fail")
	}
	if _, err := DifferentialConductance(volts[:1], amps[:1], 2); err == nil {
		t.Error("too few points should fail")
	}
}

func Test_LockInConductance(t *testing.T) {
	g, err := LockInConductance(0.5, -7, 0.1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !near(g, 5e-7) {
		t.Errorf("want 5e-7 S, got %g", g)
	}
	q := InQuanta([]float64{ConductanceQuantum, 2 * ConductanceQuantum})
	if !near(q[0], 1) || !near(q[1], 2) {
		t.Errorf("InQuanta: %v", q)
	}
	if _, err := LockInConductance(1, 0, 0, 1); err == nil {
		t.Error("zero amplitude should fail")
	}
}
