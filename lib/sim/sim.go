// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package sim provides in-memory instruments that satisfy the labdrivers
// session interfaces, for tests and for dry runs without hardware.
package sim

import (
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/gotmc/labdrivers"
)

// Handler answers one command. args is everything after the command header.
type Handler func(args string) (string, error)

type prefixHandler struct {
	prefix string
	fn     func(cmd string) (string, error)
}

// Instrument is a simulated instrument. Unhandled writes of the form
// "HEADER value" store value under HEADER and a later "HEADER?" returns it.
// Unhandled queries with nothing stored time out, as a real instrument that
// ignores a command would.
type Instrument struct {
	mu       sync.Mutex
	name     string
	store    map[string]string
	handlers map[string]Handler
	prefixes []prefixHandler
	log      []string
	closed   bool
	failNext error
	failOn   map[string]error
}

// New returns a simulated instrument.
func New(name string) *Instrument {
	return &Instrument{
		name:     name,
		store:    make(map[string]string),
		handlers: make(map[string]Handler),
		failOn:   make(map[string]error),
	}
}

func header(s string) string {
	return strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), ":")
}

// storeKey maps "HDR? ARGS" and "HDR ARGS" to the same key.
func storeKey(s string) string {
	h, a, _ := strings.Cut(header(s), " ")
	h = strings.TrimSuffix(h, "?")
	if a = strings.TrimSpace(a); a != "" {
		return h + " " + a
	}
	return h
}

// Handle installs h for commands whose header equals hdr, e.g. "TRAC:DATA?".
func (in *Instrument) Handle(hdr string, h Handler) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.handlers[header(hdr)] = h
}

// HandlePrefix installs fn for whole commands starting with prefix. Used for
// instruments whose values are not space separated, e.g. "$T1.500". The
// longest matching prefix wins.
func (in *Instrument) HandlePrefix(prefix string, fn func(cmd string) (string, error)) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.prefixes = append(in.prefixes, prefixHandler{strings.ToUpper(prefix), fn})
	sort.SliceStable(in.prefixes, func(i, j int) bool {
		return len(in.prefixes[i].prefix) > len(in.prefixes[j].prefix)
	})
}

// Preset stores value as the reply to hdr, e.g. "KRDG? A" or "SLVL".
func (in *Instrument) Preset(hdr, value string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.store[storeKey(hdr)] = value
}

// Value returns the value stored under hdr.
func (in *Instrument) Value(hdr string) (string, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	v, ok := in.store[storeKey(hdr)]
	return v, ok
}

// Commands returns every command received, in order.
func (in *Instrument) Commands() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]string(nil), in.log...)
}

// ClearLog forgets the received commands.
func (in *Instrument) ClearLog() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.log = nil
}

// FailNext makes the next exchange return err.
func (in *Instrument) FailNext(err error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.failNext = err
}

// FailOn makes the next exchange with header hdr return err. Other commands
// are unaffected.
func (in *Instrument) FailOn(hdr string, err error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.failOn[header(hdr)] = err
}

// Closed reports whether the session was closed.
func (in *Instrument) Closed() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.closed
}

// Exchange implements labdrivers.Session.
func (in *Instrument) Exchange(cmd string, expectResponse bool) (string, error) {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return "", labdrivers.Connection(in.name, errors.New("session closed"))
	}
	in.log = append(in.log, cmd)
	if err := in.failNext; err != nil {
		in.failNext = nil
		in.mu.Unlock()
		return "", err
	}
	hdr, args, _ := strings.Cut(strings.TrimSpace(cmd), " ")
	hdr = header(hdr)
	args = strings.TrimSpace(args)
	if err, ok := in.failOn[hdr]; ok {
		delete(in.failOn, hdr)
		in.mu.Unlock()
		return "", err
	}

	if h, ok := in.handlers[hdr]; ok {
		in.mu.Unlock()
		resp, err := h(args)
		return reply(cmd, expectResponse, resp, err)
	}
	upper := strings.ToUpper(strings.TrimSpace(cmd))
	for _, p := range in.prefixes {
		if strings.HasPrefix(upper, p.prefix) {
			in.mu.Unlock()
			resp, err := p.fn(strings.TrimSpace(cmd))
			return reply(cmd, expectResponse, resp, err)
		}
	}
	defer in.mu.Unlock()
	if strings.HasSuffix(hdr, "?") {
		if v, ok := in.store[storeKey(cmd)]; ok {
			return v, nil
		}
		return "", labdrivers.Timeout(cmd, nil)
	}
	in.store[hdr] = args
	return "", nil
}

func reply(cmd string, expectResponse bool, resp string, err error) (string, error) {
	if err != nil {
		return "", err
	}
	if expectResponse && resp == "" {
		return "", labdrivers.Timeout(cmd, nil)
	}
	return resp, nil
}

// Close implements labdrivers.Session.
func (in *Instrument) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.closed = true
	return nil
}

// Bench is an Opener over a set of simulated instruments keyed by address.
type Bench struct {
	mu    sync.Mutex
	insts map[string]*Instrument
}

// NewBench returns an empty bench.
func NewBench() *Bench { return &Bench{insts: make(map[string]*Instrument)} }

// Add places in at address.
func (b *Bench) Add(address string, in *Instrument) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.insts[address] = in
}

// Instrument returns the instrument at address.
func (b *Bench) Instrument(address string) *Instrument {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.insts[address]
}

// Open implements labdrivers.Opener.
func (b *Bench) Open(address string) (labdrivers.Session, error) {
	b.mu.Lock()
	in, ok := b.insts[address]
	b.mu.Unlock()
	if !ok {
		return nil, labdrivers.Connection(address, errors.New("no instrument at address"))
	}
	in.mu.Lock()
	in.closed = false
	in.mu.Unlock()
	return in, nil
}
