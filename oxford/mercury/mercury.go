// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package mercury controls Oxford Instruments Mercury-series controllers,
// the Mercury iPS magnet supply and the Triton 200 dilution refrigerator,
// which speak the SCPI-like "VERB:NOUN" protocol over TCP. A read is
// "READ:<noun>" and is answered with "STAT:<noun>:<value><unit>". A write is
// "SET:<noun>:<value>" and is answered with the command echoed behind
// "STAT:" and followed by ":VALID" or ":INVALID".
package mercury

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/gotmc/labdrivers"
)

// Default TCP ports.
const (
	IPSPort    = 7020
	TritonPort = 33576
)

// ExtractValue returns the number in a response to "READ:<noun>" with the
// "STAT:<noun>:" prefix and unit suffix removed.
func ExtractValue(resp, noun, unit string) (float64, error) {
	s := strings.TrimSpace(resp)
	prefix := "STAT:" + noun + ":"
	if !strings.HasPrefix(s, prefix) {
		return 0, &labdrivers.ParseError{Response: resp, Reason: fmt.Sprintf("want %s<value>%s", prefix, unit)}
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, prefix), unit)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &labdrivers.ParseError{Response: resp, Reason: "not a number"}
	}
	return v, nil
}

// Valid accepts replies to SET commands that end in ":VALID".
func Valid(resp string) error {
	if !strings.HasSuffix(strings.TrimSpace(resp), ":VALID") {
		return errors.Errorf("instrument replied %q", resp)
	}
	return nil
}

// Answered accepts any reply to a SET command except an empty or INVALID
// one. Triton firmware does not always append ":VALID".
func Answered(resp string) error {
	resp = strings.TrimSpace(resp)
	switch {
	case resp == "":
		return errors.New("no acknowledgement")
	case strings.HasSuffix(resp, ":INVALID"), strings.HasSuffix(resp, ":N/A"):
		return errors.Errorf("instrument replied %q", resp)
	}
	return nil
}

// signal is a numeric value under noun, written bare and read with unit.
type signal struct {
	labdrivers.Float
	noun, unit string
}

func (s signal) Decode(resp string) (float64, error) { return ExtractValue(resp, s.noun, s.unit) }

// newSignal builds a read/write Setting for noun. Nil bounds make the
// setting read-only.
func newSignal(name, noun, unit string, bounds *labdrivers.Float, ack func(string) error) labdrivers.Setting[float64] {
	s := labdrivers.Setting[float64]{
		Name:   name,
		Unit:   unit,
		GetCmd: "READ:" + noun,
		Codec:  signal{noun: noun, unit: unit},
	}
	if bounds != nil {
		s.SetCmd = "SET:" + noun + ":%s"
		s.Codec = signal{Float: *bounds, noun: noun, unit: unit}
		s.Ack = ack
	}
	return s
}

// confirm sends a SET command that carries no value and checks the reply.
func confirm(x labdrivers.Exchanger, name, cmd string, ack func(string) error) error {
	resp, err := x.Query(cmd)
	if err != nil {
		return err
	}
	if err := ack(resp); err != nil {
		return &labdrivers.CommandError{Instrument: name, Command: cmd, Err: labdrivers.Protocol(cmd, err)}
	}
	return nil
}
