// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package cmdlog

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/gotmc/labdrivers"
)

var _ labdrivers.Observer = (*Pretty)(nil)

func Test_isAscii(t *testing.T) {
	tests := []struct {
		s    string
		want bool
	}{
		{"+1.000000E+00,+2.0E-03\r\n", true},
		{"\tok", true},
		{"\x00\x01", false},
		{"\x1b[0m", false},
		{"µ", false},
	}
	for _, tc := range tests {
		if got := isAscii(tc.s); got != tc.want {
			t.Errorf("isAscii(%q) = %t", tc.s, got)
		}
	}
}

func Test_Reply(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", "<no response>"},
		{"\xff", "<no response>"},
		{"1.5\n", `[3] "1.5"`},
		{"\x01\x02", `[2] "\x01\x02" (01 02)`},
		{strings.Repeat("\x01", 32), "[32] 01 01"},
	}
	for _, tc := range tests {
		if got := Reply(tc.in); !strings.Contains(got, tc.want) {
			t.Errorf("Reply(%q) = %q, want it to contain %q", tc.in, got, tc.want)
		}
	}
}

func Test_Pretty(t *testing.T) {
	l, hook := test.NewNullLogger()
	p := New(l)
	p.Quiet = func(cmd string) bool { return cmd == "SPTS?" }

	p.Exchanged("lockin", "FREQ?", "1000", time.Millisecond, nil)
	p.Exchanged("lockin", "FREQ 1000", "", time.Millisecond, nil)
	p.Exchanged("lockin", "SPTS?", "5", time.Millisecond, nil)
	p.Exchanged("lockin", "OUTP? 1", "", time.Second, errors.New("timeout"))

	entries := hook.AllEntries()
	if len(entries) != 3 {
		t.Fatalf("logged %d entries", len(entries))
	}
	if !strings.Contains(entries[0].Message, `"1000"`) || entries[0].Data["instrument"] != "lockin" {
		t.Errorf("query entry %q %v", entries[0].Message, entries[0].Data)
	}
	if !strings.HasSuffix(entries[1].Message, "()") {
		t.Errorf("command entry %q", entries[1].Message)
	}
	if entries[2].Level != logrus.WarnLevel || !strings.Contains(entries[2].Message, "timeout") {
		t.Errorf("error entry %v %q", entries[2].Level, entries[2].Message)
	}
}
