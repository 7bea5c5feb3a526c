// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package labdrivers

import (
	"context"
	"math"
	"strconv"
	"time"
)

// RampPoints returns steps+1 evenly spaced setpoints from start to stop,
// both included. If start equals stop the single point stop is returned.
// steps below one is treated as one.
func RampPoints(start, stop float64, steps int) []float64 {
	if start == stop {
		return []float64{stop}
	}
	if steps < 1 {
		steps = 1
	}
	pts := make([]float64, steps+1)
	delta := (stop - start) / float64(steps)
	for i := range pts {
		pts[i] = start + float64(i)*delta
	}
	pts[steps] = stop
	return pts
}

// RampPointsBySize returns setpoints from start to stop no further apart than
// size. The last point is exactly stop.
func RampPointsBySize(start, stop, size float64) ([]float64, error) {
	if !(size > 0) || math.IsInf(size, 0) {
		return nil, &ValidationError{
			Setting: "ramp step",
			Value:   strconv.FormatFloat(size, 'g', -1, 64),
			Bound:   "must be positive",
		}
	}
	if start == stop {
		return []float64{stop}, nil
	}
	steps := int(math.Ceil(math.Abs(stop-start)/size - 1e-9))
	return RampPoints(start, stop, steps), nil
}

// Ramp applies set to each point in order, waiting delay between points. It
// stops at the first error or when ctx is done.
func Ramp(ctx context.Context, points []float64, delay time.Duration, set func(float64) error) error {
	for i, p := range points {
		if i > 0 && delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		if err := set(p); err != nil {
			return err
		}
	}
	return nil
}
