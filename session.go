// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package labdrivers

import (
	"fmt"
	"time"
)

// Session is a live channel to one instrument. Exchange sends cmd and, when
// expectResponse is true, returns the instrument's reply with the transport
// terminator removed. A Session is not safe for concurrent use; Conn
// serializes access to it.
type Session interface {
	Exchange(cmd string, expectResponse bool) (string, error)
	Close() error
}

// Opener creates sessions for instrument addresses. The address syntax is
// owned by the Opener, e.g. "GPIB::23" for a Prologix controller or
// "10.0.0.5:7020" for a TCP instrument.
type Opener interface {
	Open(address string) (Session, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(address string) (Session, error)

// Open calls f(address).
func (f OpenerFunc) Open(address string) (Session, error) { return f(address) }

// Unit is the physical unit of an analog channel.
type Unit int

// Analog channel units.
const (
	Volts Unit = iota
	Amps
)

func (u Unit) String() string {
	switch u {
	case Volts:
		return "V"
	case Amps:
		return "A"
	}
	return fmt.Sprintf("Unit(%d)", int(u))
}

// Range is the expected span of an analog channel.
type Range struct {
	Min, Max float64
	Unit     Unit
}

// DefaultRange is the ±10 V span of most DAQ analog channels.
var DefaultRange = Range{Min: -10, Max: 10, Unit: Volts}

// Contains reports whether v lies within r.
func (r Range) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

func (r Range) String() string {
	return fmt.Sprintf("[%g, %g] %s", r.Min, r.Max, r.Unit)
}

// AnalogIO is a scalar analog input/output device such as a DAQ card. The
// vendor runtime behind it is treated as a black box.
type AnalogIO interface {
	WriteScalar(channel string, value float64, r Range) error
	ReadScalar(channel string, r Range) (float64, error)
	Close() error
}

// Observer is told about every exchange a Conn performs.
type Observer interface {
	Exchanged(instrument, cmd, resp string, elapsed time.Duration, err error)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(instrument, cmd, resp string, elapsed time.Duration, err error)

// Exchanged calls f.
func (f ObserverFunc) Exchanged(instrument, cmd, resp string, elapsed time.Duration, err error) {
	f(instrument, cmd, resp, elapsed, err)
}

type observers []Observer

func (os observers) Exchanged(instrument, cmd, resp string, elapsed time.Duration, err error) {
	for _, o := range os {
		o.Exchanged(instrument, cmd, resp, elapsed, err)
	}
}

// Reading is one polled or acquired value, shared by the sinks under lib/.
type Reading struct {
	Instrument string    `json:"instrument"`
	Param      string    `json:"param"`
	Text       string    `json:"text"`
	Value      float64   `json:"value"`
	Err        string    `json:"error,omitempty"`
	Time       time.Time `json:"time"`
}
