// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package labdrivers

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds. Every error returned by a Conn unwraps to one of these or to a
// *ValidationError or *ParseError.
var (
	ErrConnection   = errors.New("connection error")
	ErrTimeout      = errors.New("timeout")
	ErrProtocol     = errors.New("protocol error")
	ErrInvalidState = errors.New("invalid state")
	ErrReadOnly     = errors.New("setting is read-only")
	ErrWriteOnly    = errors.New("setting is write-only")
)

// ValidationError reports a value rejected before anything was sent to the
// instrument.
type ValidationError struct {
	Setting string
	Value   string
	Bound   string
}

func (e *ValidationError) Error() string {
	if e.Setting == "" {
		return fmt.Sprintf("invalid value %s: %s", e.Value, e.Bound)
	}
	return fmt.Sprintf("%s: invalid value %s: %s", e.Setting, e.Value, e.Bound)
}

// ParseError reports an instrument response that did not have the expected
// shape.
type ParseError struct {
	Setting  string
	Response string
	Reason   string
}

func (e *ParseError) Error() string {
	if e.Setting == "" {
		return fmt.Sprintf("cannot parse response %q: %s", e.Response, e.Reason)
	}
	return fmt.Sprintf("%s: cannot parse response %q: %s", e.Setting, e.Response, e.Reason)
}

// CommandError ties a failure to the instrument and the command in flight.
type CommandError struct {
	Instrument string
	Command    string
	Err        error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %q: %s", e.Instrument, e.Command, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Timeout wraps err as a timeout for cmd. The instrument state is unknown after
// a timeout and the caller decides whether to resend.
func Timeout(cmd string, err error) error {
	if err == nil {
		return errors.Wrapf(ErrTimeout, "no response to %q, instrument state unknown", cmd)
	}
	return errors.Wrapf(ErrTimeout, "no response to %q (%s), instrument state unknown", cmd, err)
}

// Protocol wraps err as a protocol failure for cmd.
func Protocol(cmd string, err error) error {
	return errors.Wrapf(ErrProtocol, "%q: %s", cmd, err)
}

// Connection wraps err as a connection failure for addr.
func Connection(addr string, err error) error {
	return errors.Wrapf(ErrConnection, "%s: %s", addr, err)
}

// IsTimeout reports whether err is, or wraps, a timeout.
func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }

// Kind names the class of err for logs and metrics labels.
func Kind(err error) string {
	var (
		verr *ValidationError
		perr *ParseError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrConnection):
		return "connection"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	case errors.Is(err, ErrInvalidState):
		return "state"
	case errors.As(err, &verr):
		return "validation"
	case errors.As(err, &perr):
		return "parse"
	}
	return "error"
}
