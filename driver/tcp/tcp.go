// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package tcp is a raw socket transport for instruments that speak ASCII
// over TCP, such as the Oxford Mercury iPS (port 7020) and Triton (port
// 33576). Each exchange opens its own connection.
package tcp

import (
	"bytes"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/gotmc/labdrivers"
)

// Defaults for Dialer fields left at zero.
const (
	DefaultTimeout   = 10 * time.Second
	DefaultReadLimit = 2048
)

// Dialer is a labdrivers.Opener for host:port addresses.
type Dialer struct {
	Timeout    time.Duration
	ReadLimit  int
	Terminator string // appended to commands, "\n" if empty
}

// Open checks that address accepts connections and returns a session for it.
func (d Dialer) Open(address string) (labdrivers.Session, error) {
	if _, _, err := net.SplitHostPort(address); err != nil {
		return nil, labdrivers.Connection(address, err)
	}
	s := &Session{
		addr:      address,
		timeout:   d.Timeout,
		readLimit: d.ReadLimit,
		term:      d.Terminator,
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	if s.readLimit <= 0 {
		s.readLimit = DefaultReadLimit
	}
	if s.term == "" {
		s.term = "\n"
	}
	conn, err := net.DialTimeout("tcp", address, s.timeout)
	if err != nil {
		return nil, labdrivers.Connection(address, err)
	}
	conn.Close()
	return s, nil
}

// Session exchanges one command per connection.
type Session struct {
	mu        sync.Mutex
	addr      string
	timeout   time.Duration
	readLimit int
	term      string
	closed    bool
}

// Exchange implements labdrivers.Session.
func (s *Session) Exchange(cmd string, expectResponse bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", errors.Wrapf(labdrivers.ErrInvalidState, "%s: session closed", s.addr)
	}
	conn, err := net.DialTimeout("tcp", s.addr, s.timeout)
	if err != nil {
		return "", labdrivers.Connection(s.addr, err)
	}
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(s.timeout)); err != nil {
		return "", labdrivers.Connection(s.addr, err)
	}
	if _, err := io.WriteString(conn, strings.TrimSpace(cmd)+s.term); err != nil {
		return "", classify(cmd, err)
	}
	if !expectResponse {
		return "", nil
	}
	resp, err := s.read(conn)
	if err != nil {
		return "", classify(cmd, err)
	}
	return strings.TrimRight(resp, "\r\n"), nil
}

// read returns at the first newline, at the read limit or when the peer
// closes the connection.
func (s *Session) read(conn net.Conn) (string, error) {
	buf := make([]byte, 0, 256)
	p := make([]byte, 256)
	for len(buf) < s.readLimit {
		n, err := conn.Read(p[:min(len(p), s.readLimit-len(buf))])
		buf = append(buf, p[:n]...)
		if i := bytes.IndexByte(buf, '\n'); i >= 0 {
			return string(buf[:i+1]), nil
		}
		if err == io.EOF {
			if len(buf) == 0 {
				return "", errors.New("connection closed without a reply")
			}
			return string(buf), nil
		}
		if err != nil {
			return string(buf), err
		}
	}
	return string(buf), nil
}

func classify(cmd string, err error) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return labdrivers.Timeout(cmd, err)
	}
	return labdrivers.Protocol(cmd, err)
}

// Close implements labdrivers.Session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
