// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package k2400 controls a Keithley 2400 SourceMeter.
package k2400

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gotmc/labdrivers"
)

// Elements are the reading elements stored in the trace buffer, in order.
var Elements = []string{"VOLT", "CURR", "RES", "TIME"}

// SMU is a Keithley 2400 client.
type SMU struct {
	*labdrivers.Conn

	mu   sync.Mutex
	data *labdrivers.Dataset
}

// New returns a client for the 2400 at address. Call Open before use.
func New(op labdrivers.Opener, address string, opts ...labdrivers.Option) *SMU {
	return &SMU{
		Conn: labdrivers.NewConn(op, address, opts...),
		data: labdrivers.NewDataset(Elements...),
	}
}

// Reset restores the power-on defaults.
func (k *SMU) Reset() error { return k.Command("*RST") }

// ClearStatus clears the status registers and error queue.
func (k *SMU) ClearStatus() error { return k.Command("*CLS") }

func levelFor(sourceType string) labdrivers.Setting[float64] {
	if sourceType == "current" {
		return SourceCurrent
	}
	return SourceVoltage
}

// SourceLevel reads the output level for the present source type.
func (k *SMU) SourceLevel() (float64, error) {
	var v float64
	err := k.Do(func(tx *labdrivers.Tx) error {
		typ, err := labdrivers.Get(tx, SourceType)
		if err != nil {
			return err
		}
		v, err = labdrivers.Get(tx, levelFor(typ))
		return err
	})
	return v, err
}

// SetSourceLevel puts the source in fixed mode, picks the range for v and
// sets the level, for whichever source type is selected. Nothing is written
// if v is outside the limits of that source type.
func (k *SMU) SetSourceLevel(v float64) error {
	return k.Do(func(tx *labdrivers.Tx) error {
		typ, err := labdrivers.Get(tx, SourceType)
		if err != nil {
			return err
		}
		level := levelFor(typ)
		if _, err := level.EncodeSet(v); err != nil {
			return &labdrivers.CommandError{Instrument: k.Name(), Command: level.Name, Err: err}
		}
		mode, rng := SourceVoltageMode, SourceVoltageRange
		if typ == "current" {
			mode, rng = SourceCurrentMode, SourceCurrentRange
		}
		if err := labdrivers.Set(tx, mode, "fixed"); err != nil {
			return err
		}
		if err := labdrivers.Set(tx, rng, math.Abs(v)); err != nil {
			return err
		}
		return labdrivers.Set(tx, level, v)
	})
}

// RampSource steps the output from its present level to target in steps
// equal increments, waiting delay between them. The present level is read
// from the instrument.
func (k *SMU) RampSource(ctx context.Context, target float64, steps int, delay time.Duration) error {
	typ, err := labdrivers.Get(k, SourceType)
	if err != nil {
		return err
	}
	level := levelFor(typ)
	if _, err := level.EncodeSet(target); err != nil {
		return &labdrivers.CommandError{Instrument: k.Name(), Command: level.Name, Err: err}
	}
	from, err := labdrivers.Get(k, level)
	if err != nil {
		return err
	}
	k.Logger().Debugf("ramping %s from %g to %g in %d steps", level.Name, from, target, steps)
	return labdrivers.Ramp(ctx, labdrivers.RampPoints(from, target, steps), delay, func(v float64) error {
		return labdrivers.Set(k, level, v)
	})
}

// SetOutput turns the output on or off.
func (k *SMU) SetOutput(on bool) error { return labdrivers.Set(k, Output, on) }

// WithinVoltageCompliance reports whether the voltage limit has not tripped.
func (k *SMU) WithinVoltageCompliance() (bool, error) {
	tripped, err := labdrivers.Get(k, VoltageTripped)
	return !tripped, err
}

// WithinCurrentCompliance reports whether the current limit has not tripped.
func (k *SMU) WithinCurrentCompliance() (bool, error) {
	tripped, err := labdrivers.Get(k, CurrentTripped)
	return !tripped, err
}

// Sample is one reading.
type Sample struct {
	Voltage    float64
	Current    float64
	Resistance float64
	Time       float64
}

// ReadPoint triggers and returns a single reading.
func (k *SMU) ReadPoint() (Sample, error) {
	resp, err := k.Query(":READ?")
	if err != nil {
		return Sample{}, err
	}
	vals, err := labdrivers.ParseFloats(resp)
	if err == nil && len(vals) < len(Elements) {
		err = &labdrivers.ParseError{Setting: "reading", Response: resp, Reason: fmt.Sprintf("%d elements, want %d", len(vals), len(Elements))}
	}
	if err != nil {
		return Sample{}, &labdrivers.CommandError{Instrument: k.Name(), Command: ":READ?", Err: err}
	}
	return Sample{Voltage: vals[0], Current: vals[1], Resistance: vals[2], Time: vals[3]}, nil
}

// ConfigureBuffer sets up the trace buffer to store points readings of every
// element, one per trigger.
func (k *SMU) ConfigureBuffer(points int) error {
	for _, s := range []labdrivers.Setting[int]{TracePoints, TriggerCount} {
		if _, err := s.EncodeSet(points); err != nil {
			return &labdrivers.CommandError{Instrument: k.Name(), Command: s.Name, Err: err}
		}
	}
	return k.Do(func(tx *labdrivers.Tx) error {
		if err := tx.Command("FORM:ELEM VOLT,CURR,RES,TIME"); err != nil {
			return err
		}
		if err := tx.Command("TRAC:CLE"); err != nil {
			return err
		}
		if err := labdrivers.Set(tx, TracePoints, points); err != nil {
			return err
		}
		if err := labdrivers.Set(tx, TriggerCount, points); err != nil {
			return err
		}
		if err := labdrivers.Set(tx, TraceFeed, "sense"); err != nil {
			return err
		}
		return labdrivers.Set(tx, TraceControl, "next")
	})
}

// StartAcquisition initiates a buffered measurement. A full buffer is drained
// first so that no readings are lost.
func (k *SMU) StartAcquisition() error {
	return k.Do(func(tx *labdrivers.Tx) error {
		stored, err := labdrivers.Get(tx, PointsStored)
		if err != nil {
			return err
		}
		capacity, err := labdrivers.Get(tx, TracePoints)
		if err != nil {
			return err
		}
		if stored > 0 && stored >= capacity {
			tx.Logger().Infof("buffer full (%d points), draining before acquisition", stored)
			if _, err := k.drain(tx); err != nil {
				return err
			}
		}
		if err := tx.Command("INIT"); err != nil {
			return err
		}
		tx.SetState(labdrivers.Acquiring)
		return nil
	})
}

// Abort stops a running acquisition.
func (k *SMU) Abort() error {
	return k.Do(func(tx *labdrivers.Tx) error {
		if err := tx.Command("ABOR"); err != nil {
			return err
		}
		tx.SetState(labdrivers.Configured)
		return nil
	})
}

// Drain transfers the trace buffer to the local dataset and rearms the
// buffer. It returns the transferred readings, one sequence per element, or
// nil if the buffer was empty.
func (k *SMU) Drain() ([][]float64, error) {
	var cols [][]float64
	err := k.Do(func(tx *labdrivers.Tx) error {
		var err error
		cols, err = k.drain(tx)
		return err
	})
	return cols, err
}

func (k *SMU) drain(tx *labdrivers.Tx) ([][]float64, error) {
	n, err := labdrivers.Get(tx, PointsStored)
	if err != nil || n == 0 {
		return nil, err
	}
	if err := labdrivers.Set(tx, TraceControl, "never"); err != nil {
		return nil, err
	}
	const cmd = "TRAC:DATA?"
	resp, err := tx.Query(cmd)
	if err != nil {
		return nil, err
	}
	flat, err := labdrivers.ParseFloats(resp)
	if err != nil {
		return nil, &labdrivers.CommandError{Instrument: k.Name(), Command: cmd, Err: err}
	}
	cols, err := labdrivers.Deinterleave(flat, len(Elements))
	if err != nil {
		return nil, &labdrivers.CommandError{Instrument: k.Name(), Command: cmd, Err: err}
	}
	// kept only after the clear; on failure they stay on the instrument
	if err := tx.Command("TRAC:CLE"); err != nil {
		return nil, err
	}
	k.mu.Lock()
	err = k.data.Append(cols)
	k.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if err := labdrivers.Set(tx, TraceControl, "next"); err != nil {
		return cols, err
	}
	tx.SetState(labdrivers.Configured)
	return cols, nil
}

// Data returns a copy of every reading drained so far.
func (k *SMU) Data() *labdrivers.Dataset {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.data.Clone()
}

// ClearData forgets the drained readings.
func (k *SMU) ClearData() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.data.Reset()
}
