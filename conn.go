// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package labdrivers

import (
	"strings"
	"sync"
	"time"

	"github.com/gotmc/query"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Conn is the command/response core shared by every instrument client. It
// owns at most one Session, serializes exchanges on it and records the last
// value written or read for each setting.
type Conn struct {
	mu     sync.Mutex
	opener Opener
	addr   string
	name   string
	sess   Session
	state  State
	cache  map[string]string
	log    *logrus.Logger
	obs    observers
}

// Option configures a Conn.
type Option func(*Conn)

// WithName sets the instrument name used in logs and errors. It defaults to
// the address.
func WithName(name string) Option { return func(c *Conn) { c.name = name } }

// WithLogger sets the logger. It defaults to the logrus standard logger.
func WithLogger(l *logrus.Logger) Option {
	return func(c *Conn) {
		if l != nil {
			c.log = l
		}
	}
}

// WithObserver adds observers notified of every exchange.
func WithObserver(o ...Observer) Option {
	return func(c *Conn) {
		for _, ob := range o {
			if ob != nil {
				c.obs = append(c.obs, ob)
			}
		}
	}
}

// NewConn returns a disconnected client core for the instrument at address.
// No session exists until Open is called.
func NewConn(op Opener, address string, opts ...Option) *Conn {
	c := &Conn{
		opener: op,
		addr:   address,
		name:   address,
		cache:  make(map[string]string),
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the instrument name.
func (c *Conn) Name() string { return c.name }

// Address returns the instrument address.
func (c *Conn) Address() string { return c.addr }

// Logger returns the logger, scoped to this instrument.
func (c *Conn) Logger() *logrus.Entry { return c.log.WithField("instrument", c.name) }

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Open creates the session (enables remote control).
func (c *Conn) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Disconnected {
		return &CommandError{c.name, "open", errors.Wrapf(ErrInvalidState, "already %s", c.state)}
	}
	if c.opener == nil {
		return &CommandError{c.name, "open", Connection(c.addr, errors.New("no opener"))}
	}
	sess, err := c.opener.Open(c.addr)
	if err != nil {
		if !errors.Is(err, ErrConnection) {
			err = Connection(c.addr, err)
		}
		return &CommandError{c.name, "open", err}
	}
	c.sess = sess
	c.setState(Connected)
	return nil
}

// Close releases the session. It is safe to call Close more than once and the
// session is dropped even if closing it fails.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return nil
	}
	err := c.sess.Close()
	c.sess = nil
	clear(c.cache)
	c.setState(Disconnected)
	if err != nil {
		return &CommandError{c.name, "close", err}
	}
	return nil
}

// Command sends cmd without reading a response.
func (c *Conn) Command(cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.exchange(cmd, false)
	return err
}

// Query sends cmd and returns the response.
func (c *Conn) Query(cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exchange(cmd, true)
}

// Identify returns the *IDN? response.
func (c *Conn) Identify() (string, error) { return query.String(c, "*IDN?") }

// Do runs fn with the session locked so that a multi-command sequence is not
// interleaved with other callers.
func (c *Conn) Do(fn func(tx *Tx) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return &CommandError{c.name, "", errors.Wrap(ErrInvalidState, "not connected")}
	}
	return fn(&Tx{c: c})
}

func (c *Conn) locked(fn func(tx *Tx) error) error { return c.Do(fn) }

// Cached returns the last command written for, or response read for, the named
// setting. It is never consulted in place of a fresh read.
func (c *Conn) Cached(setting string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.cache[setting]
	return v, ok
}

func (c *Conn) setState(s State) {
	if c.state == s {
		return
	}
	c.log.WithFields(logrus.Fields{
		"instrument": c.name,
		"from":       c.state,
		"to":         s,
	}).Debug("state")
	c.state = s
}

// exchange must be called with c.mu held.
func (c *Conn) exchange(cmd string, expectResponse bool) (string, error) {
	if c.sess == nil {
		return "", &CommandError{c.name, cmd, errors.Wrap(ErrInvalidState, "not connected")}
	}
	start := time.Now()
	resp, err := c.sess.Exchange(cmd, expectResponse)
	elapsed := time.Since(start)
	resp = strings.TrimSpace(resp)
	entry := c.log.WithFields(logrus.Fields{
		"instrument": c.name,
		"cmd":        cmd,
		"elapsed":    elapsed,
	})
	if expectResponse {
		entry = entry.WithField("resp", resp)
	}
	if err != nil {
		entry.WithError(err).Debug("exchange failed")
	} else {
		entry.Debug("exchange")
	}
	c.obs.Exchanged(c.name, cmd, resp, elapsed, err)
	if err != nil {
		return "", &CommandError{c.name, cmd, err}
	}
	return resp, nil
}

// Tx is a locked view of a Conn handed to Do.
type Tx struct {
	c *Conn
}

// Command sends cmd without reading a response.
func (tx *Tx) Command(cmd string) error {
	_, err := tx.c.exchange(cmd, false)
	return err
}

// Query sends cmd and returns the response.
func (tx *Tx) Query(cmd string) (string, error) { return tx.c.exchange(cmd, true) }

// State returns the current lifecycle state.
func (tx *Tx) State() State { return tx.c.state }

// SetState moves the client to s. Disconnected is reserved for Close.
func (tx *Tx) SetState(s State) {
	if s == Disconnected {
		return
	}
	tx.c.setState(s)
}

// Logger returns the owning Conn's logger.
func (tx *Tx) Logger() *logrus.Entry { return tx.c.Logger() }

func (tx *Tx) locked(fn func(tx *Tx) error) error { return fn(tx) }

// Exchanger is implemented by *Conn and by the *Tx passed to Conn.Do, so that
// Set and Get work both standalone and inside a locked sequence.
type Exchanger interface {
	Command(cmd string) error
	Query(cmd string) (string, error)
	locked(fn func(tx *Tx) error) error
}

// Set validates v, writes it to the instrument and records the command sent.
// An invalid value is rejected before anything is sent.
func Set[T any](x Exchanger, s Setting[T], v T) error {
	return x.locked(func(tx *Tx) error {
		c := tx.c
		cmd, err := s.EncodeSet(v)
		if err != nil {
			return &CommandError{c.name, s.Name, err}
		}
		if s.Ack != nil {
			resp, err := c.exchange(cmd, true)
			if err != nil {
				return err
			}
			if err := s.Ack(resp); err != nil {
				return &CommandError{c.name, cmd, Protocol(cmd, err)}
			}
		} else if _, err := c.exchange(cmd, false); err != nil {
			return err
		}
		c.cache[s.Name] = cmd
		if c.state == Connected {
			c.setState(Configured)
		}
		return nil
	})
}

// Get reads the setting from the instrument and decodes the response.
func Get[T any](x Exchanger, s Setting[T]) (T, error) {
	var v T
	err := x.locked(func(tx *Tx) error {
		c := tx.c
		cmd, err := s.EncodeGet()
		if err != nil {
			return &CommandError{c.name, s.Name, err}
		}
		resp, err := c.exchange(cmd, true)
		if err != nil {
			return err
		}
		v, err = s.Decode(resp)
		if err != nil {
			return &CommandError{c.name, cmd, err}
		}
		c.cache[s.Name] = resp
		return nil
	})
	return v, err
}
