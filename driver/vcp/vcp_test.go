// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package vcp

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
)

func Test_OpenerFor(t *testing.T) {
	for _, tc := range []struct {
		backend Backend
		want    Opener
	}{
		{"", Bugst{}},
		{BackendBugST, Bugst{}},
		{BackendTarm, Tarm{}},
	} {
		got, err := OpenerFor(tc.backend)
		if err != nil {
			t.Errorf("%q: %v", tc.backend, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%q: got %T, want %T", tc.backend, got, tc.want)
		}
	}
	if _, err := OpenerFor("cereal"); err == nil {
		t.Error("unknown backend accepted")
	}
}

func Test_openMissingPort(t *testing.T) {
	name := filepath.Join(t.TempDir(), "ttyUSB9")
	for _, b := range []Backend{BackendBugST, BackendTarm} {
		if _, err := NewVCP(name, WithBackend(b)); err == nil {
			t.Errorf("%s opened %s", b, name)
		}
	}
}

type plainPort struct{ bytes.Buffer }

func (*plainPort) Close() error { return nil }

type flushPort struct {
	plainPort
	flushed int
}

func (p *flushPort) Flush() error { p.flushed++; return nil }

type resetPort struct {
	plainPort
	in, out int
}

func (p *resetPort) ResetInputBuffer() error  { p.in++; return nil }
func (p *resetPort) ResetOutputBuffer() error { p.out++; return errors.New("busy") }

func Test_Flush(t *testing.T) {
	fp := &flushPort{}
	if err := Wrap("tarm", fp).Flush(); err != nil || fp.flushed != 1 {
		t.Errorf("port Flush: %v, %d calls", err, fp.flushed)
	}

	rp := &resetPort{}
	if err := Wrap("bugst", rp).Flush(); err == nil || rp.in != 1 || rp.out != 1 {
		t.Errorf("buffer resets: %v, in %d out %d", err, rp.in, rp.out)
	}

	pp := &plainPort{}
	v := Wrap("plain", pp)
	if err := v.Flush(); err != nil {
		t.Errorf("plain port: %v", err)
	}
	if _, err := v.Write([]byte("++ver\n")); err != nil || pp.String() != "++ver\n" {
		t.Errorf("write through: %q, %v", pp.String(), err)
	}
	if v.String() != "plain" {
		t.Errorf("name %q", v)
	}
}
