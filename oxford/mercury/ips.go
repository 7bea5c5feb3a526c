// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package mercury

import (
	"fmt"
	"strings"

	"github.com/gotmc/labdrivers"
)

// Axis names a magnet group of the iPS.
type Axis string

// Magnet axes.
const (
	X Axis = "GRPX"
	Y Axis = "GRPY"
	Z Axis = "GRPZ"
)

// Soft limits applied before anything is sent. The supply enforces its own,
// usually tighter, limits from the magnet configuration.
var (
	fieldLimit   = labdrivers.Between(-20, 20)
	currentLimit = labdrivers.Between(-200, 200)
	rateLimit    = labdrivers.Between(0, 100)
)

// Magnet is one axis of a Mercury iPS. Its settings are bound to the axis.
type Magnet struct {
	ips  *IPS
	Axis Axis

	FieldSetpoint   labdrivers.Setting[float64]
	FieldRampRate   labdrivers.Setting[float64]
	CurrentSetpoint labdrivers.Setting[float64]
	CurrentRampRate labdrivers.Setting[float64]
	Field           labdrivers.Setting[float64]
}

func newMagnet(ips *IPS, axis Axis) *Magnet {
	sig := func(s string) string { return fmt.Sprintf("DEV:%s:PSU:SIG:%s", axis, s) }
	label := strings.ToLower(string(axis[len(axis)-1])) + " "
	return &Magnet{
		ips:             ips,
		Axis:            axis,
		FieldSetpoint:   newSignal(label+"field setpoint", sig("FSET"), "T", &fieldLimit, Valid),
		FieldRampRate:   newSignal(label+"field ramp rate", sig("RFST"), "T/m", &rateLimit, Valid),
		CurrentSetpoint: newSignal(label+"current setpoint", sig("CSET"), "A", &currentLimit, Valid),
		CurrentRampRate: newSignal(label+"current ramp rate", sig("RCST"), "A/m", &rateLimit, Valid),
		Field:           newSignal(label+"field", sig("FLD"), "T", nil, nil),
	}
}

// Params lists the axis settings.
func (m *Magnet) Params() []labdrivers.Param {
	return []labdrivers.Param{m.FieldSetpoint, m.FieldRampRate, m.CurrentSetpoint, m.CurrentRampRate, m.Field}
}

// ReadField reads the present field in tesla.
func (m *Magnet) ReadField() (float64, error) { return labdrivers.Get(m.ips, m.Field) }

// SetField sets the field setpoint in tesla.
func (m *Magnet) SetField(t float64) error { return labdrivers.Set(m.ips, m.FieldSetpoint, t) }

func (m *Magnet) action(a string) error {
	cmd := fmt.Sprintf("SET:DEV:%s:PSU:ACTN:%s", m.Axis, a)
	return confirm(m.ips, m.ips.Name(), cmd, Valid)
}

// RampToSetpoint starts ramping to the setpoint.
func (m *Magnet) RampToSetpoint() error { return m.action("RTOS") }

// RampToZero starts ramping to zero.
func (m *Magnet) RampToZero() error { return m.action("RTOZ") }

// Hold stops ramping and holds the present output.
func (m *Magnet) Hold() error { return m.action("HOLD") }

// Clamp clamps the output off.
func (m *Magnet) Clamp() error { return m.action("CLMP") }

// IPS is a Mercury iPS client. The three axes share its connection.
type IPS struct {
	*labdrivers.Conn
	X, Y, Z *Magnet
}

// NewIPS returns a client for the iPS at address. Call Open before use.
func NewIPS(op labdrivers.Opener, address string, opts ...labdrivers.Option) *IPS {
	ips := &IPS{Conn: labdrivers.NewConn(op, address, opts...)}
	ips.X, ips.Y, ips.Z = newMagnet(ips, X), newMagnet(ips, Y), newMagnet(ips, Z)
	return ips
}

// Magnet returns the axis named a.
func (ips *IPS) Magnet(a Axis) (*Magnet, bool) {
	switch a {
	case X:
		return ips.X, true
	case Y:
		return ips.Y, true
	case Z:
		return ips.Z, true
	}
	return nil, false
}

// Params lists the settings of every axis.
func (ips *IPS) Params() []labdrivers.Param {
	var ps []labdrivers.Param
	for _, m := range []*Magnet{ips.X, ips.Y, ips.Z} {
		ps = append(ps, m.Params()...)
	}
	return ps
}
