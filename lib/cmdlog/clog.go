// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package cmdlog renders instrument exchanges for humans. Pretty is a
// labdrivers.Observer that logs every command and its reply with colour.
package cmdlog

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"
)

func isAscii(s string) bool {
	return !strings.ContainsFunc(s, func(r rune) bool {
		switch {
		case r < 7:
			return true
		case r > 6 && r < 14:
			return false
		case r > 13 && r < 32:
			return true
		case r > 127:
			return true
		}
		return false
	})
}

var (
	CmdStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	R1Style  = lipgloss.NewStyle().Foreground(lipgloss.Color("35"))
	R2Style  = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	ErrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Reply formats an instrument reply: quoted when printable, quoted with a
// hex dump when short and binary, hex only otherwise.
func Reply(a string) string {
	a = strings.TrimSuffix(a, "\n") //appended by ar488
	if len(a) == 1 && a[0] == 0xff {
		// some instruments reply 0xff when a response is expected
		// but the last command has no result
		a = ""
	}
	switch {
	case len(a) == 0:
		return R1Style.Render("<no response>")
	case isAscii(a):
		return fmt.Sprintf("[%d] %s", len(a), R2Style.Render(fmt.Sprintf("%q", a)))
	case len(a) < 32:
		return fmt.Sprintf("[%d] %q (% 2x)", len(a), a, []byte(a))
	}
	return fmt.Sprintf("[%d] % 2x", len(a), []byte(a))
}

func isQuery(cmd string) bool {
	h, _, _ := strings.Cut(strings.TrimSpace(cmd), " ")
	return strings.HasSuffix(h, "?")
}

// Pretty logs exchanges at info level, failures at warn level.
type Pretty struct {
	Log *logrus.Logger
	// Replies to commands matching Quiet are not logged, e.g. status polls.
	Quiet func(cmd string) bool
}

// New returns a Pretty logging to l, or to the standard logger if l is nil.
func New(l *logrus.Logger) *Pretty {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &Pretty{Log: l}
}

// Exchanged implements labdrivers.Observer.
func (p *Pretty) Exchanged(instrument, cmd, resp string, elapsed time.Duration, err error) {
	if p.Quiet != nil && p.Quiet(cmd) && err == nil {
		return
	}
	e := p.Log.WithField("instrument", instrument).WithField("elapsed", elapsed.Round(time.Microsecond))
	c := CmdStyle.Render(cmd)
	switch {
	case err != nil:
		e.Warnf("%s: %s", c, ErrStyle.Render(err.Error()))
	case resp != "" || isQuery(cmd):
		e.Infof("%s: %s", c, Reply(resp))
	default:
		e.Infof("%s()", c)
	}
}
