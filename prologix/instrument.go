// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package prologix

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/gotmc/labdrivers"
)

// Address is a GPIB instrument address.
type Address struct {
	Primary   int
	Secondary int // zero when unused
}

func (a Address) String() string {
	if a.Secondary != 0 {
		return fmt.Sprintf("GPIB::%d::%d", a.Primary, a.Secondary)
	}
	return fmt.Sprintf("GPIB::%d", a.Primary)
}

// ParseAddress accepts "23", "GPIB::23", "GPIB0::23::INSTR" and
// "GPIB::23::96" forms.
func ParseAddress(s string) (Address, error) {
	orig := s
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, "::INSTR")
	if rest, ok := strings.CutPrefix(s, "GPIB"); ok {
		_, s, ok = strings.Cut(rest, "::")
		if !ok {
			return Address{}, errors.Errorf("bad GPIB address %q", orig)
		}
	}
	parts := strings.Split(s, "::")
	if len(parts) > 2 {
		return Address{}, errors.Errorf("bad GPIB address %q", orig)
	}
	var a Address
	var err error
	if a.Primary, err = strconv.Atoi(parts[0]); err != nil || !isPrimaryAddressValid(a.Primary) {
		return Address{}, errors.Errorf("bad GPIB address %q: primary must be 0-30", orig)
	}
	if len(parts) == 2 {
		if a.Secondary, err = strconv.Atoi(parts[1]); err != nil || !isSecondaryAddressValid(a.Secondary) {
			return Address{}, errors.Errorf("bad GPIB address %q: secondary must be 96-126", orig)
		}
	}
	return a, nil
}

// Open returns a session with the instrument at address. Sessions opened from
// one controller share its bus; each exchange readdresses the controller when
// needed.
func (c *Controller) Open(address string) (labdrivers.Session, error) {
	a, err := ParseAddress(address)
	if err != nil {
		return nil, labdrivers.Connection(address, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, labdrivers.Connection(address, errors.New("controller closed"))
	}
	return &Instrument{c: c, addr: a}, nil
}

// Instrument is a session with one GPIB instrument through a Controller.
type Instrument struct {
	c      *Controller
	addr   Address
	closed bool
}

// Address returns the instrument's GPIB address.
func (i *Instrument) Address() Address { return i.addr }

// selectAddress must be called with c.mu held.
func (c *Controller) selectAddress(a Address) error {
	hasSad := a.Secondary != 0
	if c.primaryAddr == a.Primary && c.hasSecondaryAddr == hasSad && c.secondaryAddr == a.Secondary {
		return nil
	}
	if err := c.commandController(c.addrCmd(a.Primary, a.Secondary, hasSad)); err != nil {
		return err
	}
	c.primaryAddr, c.secondaryAddr, c.hasSecondaryAddr = a.Primary, a.Secondary, hasSad
	return nil
}

// Exchange implements labdrivers.Session.
func (i *Instrument) Exchange(cmd string, expectResponse bool) (string, error) {
	c := i.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || i.closed {
		return "", errors.Wrapf(labdrivers.ErrInvalidState, "%s: session closed", i.addr)
	}
	if err := c.selectAddress(i.addr); err != nil {
		return "", labdrivers.Protocol(cmd, errors.Wrapf(err, "select %s", i.addr))
	}
	if !expectResponse {
		if err := c.command(cmd); err != nil {
			return "", labdrivers.Protocol(cmd, err)
		}
		return "", nil
	}
	s, err := c.query(cmd)
	switch {
	case errors.Is(err, errNoResponse):
		return "", labdrivers.Timeout(cmd, nil)
	case err != nil:
		return "", labdrivers.Protocol(cmd, err)
	}
	return strings.TrimRight(s, "\r\n"), nil
}

// Close returns the instrument to front panel control and ends the session.
func (i *Instrument) Close() error {
	c := i.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if i.closed || c.closed {
		i.closed = true
		return nil
	}
	i.closed = true
	if err := c.selectAddress(i.addr); err != nil {
		return err
	}
	return c.commandController("loc")
}
