// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package sr830 controls a Stanford Research Systems SR830 DSP lock-in
// amplifier.
package sr830

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gotmc/labdrivers"
)

// Quantity selects a value for OUTP? and SNAP?.
type Quantity int

// Quantities. Only X through Theta can be read with Output.
const (
	X Quantity = iota + 1
	Y
	R
	Theta
	Aux1
	Aux2
	Aux3
	Aux4
	RefFrequency
	CH1
	CH2
)

var quantityNames = [...]string{"", "X", "Y", "R", "theta", "aux1", "aux2", "aux3", "aux4", "ref frequency", "CH1", "CH2"}

func (q Quantity) String() string {
	if q < X || q > CH2 {
		return fmt.Sprintf("Quantity(%d)", int(q))
	}
	return quantityNames[q]
}

// ParseQuantity looks a quantity up by name, case insensitive.
func ParseQuantity(s string) (Quantity, error) {
	for q := X; q <= CH2; q++ {
		if strings.EqualFold(s, quantityNames[q]) {
			return q, nil
		}
	}
	return 0, &labdrivers.ValidationError{Setting: "quantity", Value: strconv.Quote(s), Bound: "unknown quantity"}
}

// LockIn is an SR830 client.
type LockIn struct {
	*labdrivers.Conn

	mu   sync.Mutex
	data *labdrivers.Dataset
}

// New returns a client for the SR830 at address. Call Open before use.
func New(op labdrivers.Opener, address string, opts ...labdrivers.Option) *LockIn {
	return &LockIn{
		Conn: labdrivers.NewConn(op, address, opts...),
		data: labdrivers.NewDataset("CH1", "CH2"),
	}
}

// Reset restores the default configuration.
func (l *LockIn) Reset() error { return l.Command("*RST") }

// AutoGain runs the auto gain function.
func (l *LockIn) AutoGain() error { return l.Command("AGAN") }

// AutoPhase runs the auto phase function.
func (l *LockIn) AutoPhase() error { return l.Command("APHS") }

// AutoReserve runs the auto reserve function.
func (l *LockIn) AutoReserve() error { return l.Command("ARSV") }

func (l *LockIn) invalid(setting, value, bound string) error {
	return &labdrivers.CommandError{
		Instrument: l.Name(),
		Command:    setting,
		Err:        &labdrivers.ValidationError{Setting: setting, Value: value, Bound: bound},
	}
}

// Output reads X, Y, R or Theta.
func (l *LockIn) Output(q Quantity) (float64, error) {
	if q < X || q > Theta {
		return 0, l.invalid("output", q.String(), "must be X, Y, R or theta")
	}
	cmd := fmt.Sprintf("OUTP? %d", q)
	resp, err := l.Query(cmd)
	if err != nil {
		return 0, err
	}
	v, err := labdrivers.Unbounded().Decode(resp)
	if err != nil {
		return 0, &labdrivers.CommandError{Instrument: l.Name(), Command: cmd, Err: err}
	}
	return v, nil
}

// Snapshot reads two to six quantities at the same instant.
func (l *LockIn) Snapshot(qs ...Quantity) ([]float64, error) {
	if len(qs) < 2 || len(qs) > 6 {
		return nil, l.invalid("snapshot", strconv.Itoa(len(qs)), "takes 2 to 6 quantities")
	}
	idx := make([]string, len(qs))
	for i, q := range qs {
		if q < X || q > CH2 {
			return nil, l.invalid("snapshot", q.String(), "unknown quantity")
		}
		idx[i] = strconv.Itoa(int(q))
	}
	cmd := "SNAP? " + strings.Join(idx, ",")
	resp, err := l.Query(cmd)
	if err != nil {
		return nil, err
	}
	vals, err := labdrivers.ParseFloats(resp)
	if err == nil && len(vals) != len(qs) {
		err = &labdrivers.ParseError{Setting: "snapshot", Response: resp, Reason: fmt.Sprintf("%d values, want %d", len(vals), len(qs))}
	}
	if err != nil {
		return nil, &labdrivers.CommandError{Instrument: l.Name(), Command: cmd, Err: err}
	}
	return vals, nil
}

// SetDisplay selects what channel (1 or 2) shows. display is 0-4 (X, R, X
// noise, Aux1, Aux2 on channel 1; Y, theta, Y noise, Aux3, Aux4 on channel 2)
// and ratio is 0-2 (none, Aux1 or Aux3, Aux2 or Aux4).
func (l *LockIn) SetDisplay(channel, display, ratio int) error {
	switch {
	case channel != 1 && channel != 2:
		return l.invalid("display channel", strconv.Itoa(channel), "must be 1 or 2")
	case display < 0 || display > 4:
		return l.invalid("display", strconv.Itoa(display), "must be 0-4")
	case ratio < 0 || ratio > 2:
		return l.invalid("display ratio", strconv.Itoa(ratio), "must be 0-2")
	}
	return l.Command(fmt.Sprintf("DDEF %d,%d,%d", channel, display, ratio))
}

// Display returns the display and ratio selected for channel.
func (l *LockIn) Display(channel int) (display, ratio int, err error) {
	if channel != 1 && channel != 2 {
		return 0, 0, l.invalid("display channel", strconv.Itoa(channel), "must be 1 or 2")
	}
	cmd := fmt.Sprintf("DDEF? %d", channel)
	resp, err := l.Query(cmd)
	if err != nil {
		return 0, 0, err
	}
	if _, err := fmt.Sscanf(resp, "%d,%d", &display, &ratio); err != nil {
		return 0, 0, &labdrivers.CommandError{
			Instrument: l.Name(), Command: cmd,
			Err: &labdrivers.ParseError{Setting: "display", Response: resp, Reason: "want j,k"},
		}
	}
	return display, ratio, nil
}

// RampAmplitude steps the sine output from its present amplitude to target
// in increments of at most step volts.
func (l *LockIn) RampAmplitude(ctx context.Context, target, step float64, delay time.Duration) error {
	if _, err := Amplitude.EncodeSet(target); err != nil {
		return &labdrivers.CommandError{Instrument: l.Name(), Command: Amplitude.Name, Err: err}
	}
	from, err := labdrivers.Get(l, Amplitude)
	if err != nil {
		return err
	}
	pts, err := labdrivers.RampPointsBySize(from, target, step)
	if err != nil {
		return err
	}
	return labdrivers.Ramp(ctx, pts, delay, func(v float64) error {
		return labdrivers.Set(l, Amplitude, v)
	})
}

// Config summarizes the reference and filter configuration.
type Config struct {
	Frequency    float64
	Amplitude    float64
	Phase        float64
	TimeConstant string
	Sensitivity  string
	Reserve      string
}

func (c Config) String() string {
	return fmt.Sprintf("f=%g Hz, A=%g V, phase=%g deg, tc=%s, sens=%s, reserve=%s",
		c.Frequency, c.Amplitude, c.Phase, c.TimeConstant, c.Sensitivity, c.Reserve)
}

// Configuration reads the reference and filter configuration.
func (l *LockIn) Configuration() (Config, error) {
	var c Config
	err := l.Do(func(tx *labdrivers.Tx) error {
		var err error
		if c.Frequency, err = labdrivers.Get(tx, Frequency); err != nil {
			return err
		}
		if c.Amplitude, err = labdrivers.Get(tx, Amplitude); err != nil {
			return err
		}
		if c.Phase, err = labdrivers.Get(tx, Phase); err != nil {
			return err
		}
		if c.TimeConstant, err = labdrivers.Get(tx, TimeConstant); err != nil {
			return err
		}
		if c.Sensitivity, err = labdrivers.Get(tx, Sensitivity); err != nil {
			return err
		}
		c.Reserve, err = labdrivers.Get(tx, Reserve)
		return err
	})
	return c, err
}

// StartAcquisition starts or resumes filling the data buffers. A full buffer
// is drained first.
func (l *LockIn) StartAcquisition() error {
	return l.Do(func(tx *labdrivers.Tx) error {
		n, err := labdrivers.Get(tx, PointsStored)
		if err != nil {
			return err
		}
		if n >= BufferSize {
			tx.Logger().Infof("buffer full (%d points), draining before acquisition", n)
			if _, err := l.drain(tx); err != nil {
				return err
			}
		}
		if err := tx.Command("STRT"); err != nil {
			return err
		}
		tx.SetState(labdrivers.Acquiring)
		return nil
	})
}

// Pause stops filling the data buffers.
func (l *LockIn) Pause() error {
	return l.Do(func(tx *labdrivers.Tx) error {
		if err := tx.Command("PAUS"); err != nil {
			return err
		}
		tx.SetState(labdrivers.Configured)
		return nil
	})
}

// ResetBuffer discards the data buffers without transferring them.
func (l *LockIn) ResetBuffer() error { return l.Command("REST") }

// Drain transfers both channel buffers to the local dataset and resets them.
// It returns nil if the buffers were empty.
func (l *LockIn) Drain() ([][]float64, error) {
	var cols [][]float64
	err := l.Do(func(tx *labdrivers.Tx) error {
		var err error
		cols, err = l.drain(tx)
		return err
	})
	return cols, err
}

func (l *LockIn) drain(tx *labdrivers.Tx) ([][]float64, error) {
	n, err := labdrivers.Get(tx, PointsStored)
	if err != nil || n == 0 {
		return nil, err
	}
	if err := tx.Command("PAUS"); err != nil {
		return nil, err
	}
	cols := make([][]float64, 2)
	for ch := 1; ch <= 2; ch++ {
		cmd := fmt.Sprintf("TRCA? %d,0,%d", ch, n)
		resp, err := tx.Query(cmd)
		if err != nil {
			return nil, err
		}
		vals, err := labdrivers.ParseFloats(strings.TrimSuffix(strings.TrimSpace(resp), ","))
		if err == nil && len(vals) != n {
			err = &labdrivers.ParseError{Setting: "buffer", Reason: fmt.Sprintf("%d points, want %d", len(vals), n)}
		}
		if err != nil {
			return nil, &labdrivers.CommandError{Instrument: l.Name(), Command: cmd, Err: err}
		}
		cols[ch-1] = vals
	}
	if err := tx.Command("REST"); err != nil {
		return nil, err
	}
	l.mu.Lock()
	err = l.data.Append(cols)
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}
	tx.SetState(labdrivers.Configured)
	return cols, nil
}

// Data returns a copy of every buffer point drained so far.
func (l *LockIn) Data() *labdrivers.Dataset {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.data.Clone()
}

// ClearData forgets the drained buffer points.
func (l *LockIn) ClearData() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.data.Reset()
}
