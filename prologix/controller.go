// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package prologix drives a Prologix (or AR488) GPIB controller over any
// io.ReadWriter: a virtual COM port, USB direct or an Ethernet socket. The
// Controller is the Opener for the instruments on its bus.
package prologix

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/gotmc/labdrivers"
)

// Controller models a GPIB controller-in-charge.
type Controller struct {
	mu               sync.Mutex
	rw               io.ReadWriter
	primaryAddr      int
	hasSecondaryAddr bool
	secondaryAddr    int
	auto             bool
	eoi              bool
	usbTerm          byte
	eotChar          byte
	gpibTimeout      time.Duration
	readTimeout      time.Duration
	writeDelay       time.Duration
	debug            bool // log controller commands and responses. Set via WithDebug().
	ar488            bool // compatibility with Arduino AR488 - see WithAR488 documentation for details.
	log              *logrus.Logger
	closed           bool
}

// ControllerOption applies an option to the controller.
type ControllerOption func(*Controller)

// NewController creates a GPIB controller-in-charge at the given address using
// the given Prologix driver, which can either be a Virtual COM Port (VCP), USB
// direct, or Ethernet. Enable clear to send the Selected Device Clear (SDC)
// message to the GPIB address. Optionally controller configuration can be
// included using a ControllerOption.
func NewController(
	rw io.ReadWriter,
	addr int,
	clear bool,
	opts ...ControllerOption,
) (*Controller, error) {
	c := Controller{
		rw:          rw,
		primaryAddr: addr,
		auto:        false,
		eoi:         true,
		usbTerm:     '\n',
		eotChar:     '\n',
		gpibTimeout: 500 * time.Millisecond,
		readTimeout: 3 * time.Second,
		log:         logrus.StandardLogger(),
	}

	// Apply options using the functional option pattern.
	for _, opt := range opts {
		opt(&c)
	}

	if !isPrimaryAddressValid(c.primaryAddr) {
		return nil, errors.Errorf("invalid primary address %d (must by 0-30)", c.primaryAddr)
	}
	if c.hasSecondaryAddr && !isSecondaryAddressValid(c.secondaryAddr) {
		return nil, errors.Errorf("invalid secondary address %d (must be 96-126)", c.secondaryAddr)
	}

	// Configure the Prologix GPIB controller.
	cmds := []string{}
	if !c.ar488 {
		cmds = append(cmds,
			"verbose 0", // turn off verbosity if on
			"savecfg 0", // Disable saving of configuration parameters in EPROM
		)
	}
	cmds = append(cmds,
		c.addrCmd(c.primaryAddr, c.secondaryAddr, c.hasSecondaryAddr),
		"mode 1", // Switch to controller mode.
		"auto 0", // Turn off read-after-write and address instrument to listen.
		"eoi 1",  // Enable EOI assertion with last character.
		"eos 0",  // Set GPIB termination.
		fmt.Sprintf("read_tmo_ms %d", c.gpibTimeout.Milliseconds()),
		fmt.Sprintf("eot_char %d", c.eotChar),
		"eot_enable 1", // Append character when EOI detected?
	)
	if !c.ar488 {
		cmds = append(cmds,
			"savecfg 1", // Enable saving of configuration parameters in EPROM
		)
	}
	if clear {
		cmds = append(cmds, "clr")
	}
	for _, cmd := range cmds {
		if err := c.CommandController(cmd); err != nil {
			return nil, err
		}
	}

	return &c, nil
}

// WithSecondaryAddress sets a secondary address, which must be in the range of
// 96 and 126, inclusive.
func WithSecondaryAddress(addr int) ControllerOption {
	return func(c *Controller) {
		c.hasSecondaryAddr = true
		c.secondaryAddr = addr
	}
}

// WithDebug causes commands and responses to be logged.
func WithDebug() ControllerOption { return func(c *Controller) { c.debug = true } }

// WithAR488 slightly alters the init commands, for compatiblity with the
// Arduino-based AR488. Specifically, we do not emit 'verbose 0', nor do
// we toggle savecfg.
func WithAR488() ControllerOption { return func(c *Controller) { c.ar488 = true } }

// WithWriteDelay pauses before every controller (++) command. Some adapters
// drop commands that arrive back to back.
func WithWriteDelay(d time.Duration) ControllerOption {
	return func(c *Controller) { c.writeDelay = d }
}

// WithReadTimeout bounds how long the host waits for a complete response.
func WithReadTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) {
		if d > 0 {
			c.readTimeout = d
		}
	}
}

// WithGPIBTimeout sets the controller's own inter-character timeout
// (read_tmo_ms, 1-3000 ms).
func WithGPIBTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) {
		c.gpibTimeout = min(max(d, time.Millisecond), 3*time.Second)
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *logrus.Logger) ControllerOption {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// Write writes the given data to the instrument at the currently assigned GPIB
// address.
func (c *Controller) Write(p []byte) (n int, err error) {
	return c.rw.Write(p)
}

// Read reads from the instrument at the currently assigned GPIB address into
// the given byte slice.
func (c *Controller) Read(p []byte) (n int, err error) {
	return c.rw.Read(p)
}

// WriteString writes a string to the instrument at the currently assigned GPIB
// address.
func (c *Controller) WriteString(s string) (n int, err error) {
	return io.WriteString(c.rw, fmt.Sprintf("%s%c", strings.TrimSpace(s), c.usbTerm))
}

// Command formats according to a format specifier if provided and sends a
// SCPI/ASCII command to the instrument at the currently assigned GPIB address.
// All leading and trailing whitespace is removed before appending the USB
// terminator to the command sent to the Prologix.
func (c *Controller) Command(format string, a ...any) error {
	cmd := format
	if a != nil {
		cmd = fmt.Sprintf(format, a...)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.command(cmd)
}

func (c *Controller) command(cmd string) error {
	cmd = fmt.Sprintf("%s%c", strings.TrimSpace(cmd), c.usbTerm)
	if c.debug {
		c.log.Debugf("cmd %q (%x)", cmd, cmd)
	}
	_, err := io.WriteString(c.rw, cmd)
	return err
}

// Query queries the instrument at the currently assigned GPIB using the given
// SCPI/ASCII command. The cmd string does not need to include a new line
// character, since all leading and trailing whitespace is removed before
// appending the USB terminator to the command sent to the Prologix.  When data
// from host is received over USB, the Prologix controller removes all
// non-escaped LF, CR and ESC characters and appends the GPIB terminator, as
// specified by the `eos` command, before sending the data to instruments.  To
// change the GPIB terminator use the SetGPIBTermination method.
func (c *Controller) Query(cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query(cmd)
}

func (c *Controller) query(cmd string) (string, error) {
	if err := c.command(cmd); err != nil {
		return "", errors.Errorf("error writing command: %s", err)
	}
	// If read-after-write is disabled, need to tell the Prologix controller to
	// read.
	if !c.auto {
		if err := c.commandController("read eoi"); err != nil {
			return "", errors.Errorf("error sending `++read eoi` command: %s", err)
		}
	}
	s, err := c.readResponse()
	if c.debug {
		c.log.Debugf("query %q: %q", cmd, s)
	}
	return s, err
}

// QueryController sends the given command to the Prologix controller and
// returns its response as a string. To indicate this is a command for the
// Prologix controller, thereby not transmitting over GPIB, two plus signs `++`
// are prepended. Addtionally, a new line is appended to act as the USB
// termination character.
func (c *Controller) QueryController(cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queryController(cmd)
}

func (c *Controller) queryController(cmd string) (string, error) {
	if err := c.commandController(cmd); err != nil {
		return "", err
	}
	s, err := c.readResponse()
	if c.debug {
		c.log.Debugf("read data: %q", s)
	}
	return strings.TrimSpace(s), err
}

// CommandController sends the given command to the Prologix controller. To
// indicate this is a command for the Prologix controller, thereby not
// transmitting to the instrument over GPIB, two plus signs `++` are prepended.
// Addtionally, a new line is appended to act as the USB termination character.
func (c *Controller) CommandController(cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commandController(cmd)
}

func (c *Controller) commandController(cmd string) error {
	if c.writeDelay > 0 {
		time.Sleep(c.writeDelay)
	}
	cmd = fmt.Sprintf("++%s%c", strings.ToLower(strings.TrimSpace(cmd)), c.usbTerm)
	if c.debug {
		c.log.Debugf("cmd %q (%2x)", cmd, cmd)
	}
	_, err := c.rw.Write([]byte(cmd))
	return err
}

var errNoResponse = errors.New("no response before read timeout")

// readResponse reads up to and excluding the EOT character. Serial ports
// return zero bytes when their own read timeout expires, so the deadline is
// enforced here.
func (c *Controller) readResponse() (string, error) {
	deadline := time.Now().Add(c.readTimeout)
	if d, ok := c.rw.(interface{ SetReadDeadline(time.Time) error }); ok {
		_ = d.SetReadDeadline(deadline)
		defer d.SetReadDeadline(time.Time{})
	}
	var (
		buf []byte
		p   = make([]byte, 256)
	)
	for {
		n, err := c.rw.Read(p)
		buf = append(buf, p[:n]...)
		if i := bytes.IndexByte(buf, c.eotChar); i >= 0 {
			if i < len(buf)-1 {
				c.log.Warnf("prologix: discarding %d bytes after terminator: %q", len(buf)-i-1, buf[i+1:])
			}
			return string(buf[:i]), nil
		}
		var nerr net.Error
		switch {
		case err == io.EOF && len(buf) > 0:
			return string(buf), nil
		case err == io.EOF:
			return "", errNoResponse
		case errors.As(err, &nerr) && nerr.Timeout():
			return string(buf), errNoResponse
		case err != nil:
			return string(buf), err
		}
		if time.Now().After(deadline) {
			return string(buf), errNoResponse
		}
	}
}

// FrontPanel returns the instrument at the current address to local control
// when enable is true. When false, it leaves the instrument in remote.
func (c *Controller) FrontPanel(enable bool) error {
	if !enable {
		return nil
	}
	return c.CommandController("loc")
}

// ClearDevice sends the Selected Device Clear (SDC) message to the currently
// specified GPIB address.
func (c *Controller) ClearDevice() error { return c.CommandController("clr") }

// Version returns the version string of the Prologix controller.
func (c *Controller) Version() (string, error) { return c.QueryController("ver") }

// InstrumentAddress returns the primary and secondary address the controller
// is currently talking to. The secondary address is zero when unset.
func (c *Controller) InstrumentAddress() (int, int, error) {
	s, err := c.QueryController("addr")
	if err != nil {
		return 0, 0, err
	}
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, 0, errors.Errorf("empty address response")
	}
	pad, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, errors.Errorf("bad address response %q", s)
	}
	sad := 0
	if len(fields) > 1 {
		if sad, err = strconv.Atoi(fields[1]); err != nil {
			return 0, 0, errors.Errorf("bad address response %q", s)
		}
	}
	return pad, sad, nil
}

// ReadAfterWrite reports whether the controller's auto mode is enabled.
func (c *Controller) ReadAfterWrite() (bool, error) {
	s, err := c.QueryController("auto")
	if err != nil {
		return false, err
	}
	return s == "1", nil
}

// ReadTimeout returns the controller's read timeout in milliseconds.
func (c *Controller) ReadTimeout() (int, error) {
	s, err := c.QueryController("read_tmo_ms")
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(s)
}

// ServiceRequest reports whether the SRQ line is asserted.
func (c *Controller) ServiceRequest() (bool, error) {
	s, err := c.QueryController("srq")
	if err != nil {
		return false, err
	}
	return s == "1", nil
}

// GPIBTermination returns the terminator appended to instrument commands.
func (c *Controller) GPIBTermination() (GpibTerm, error) {
	s, err := c.QueryController("eos")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < int(AppendCRLF) || n > int(AppendNothing) {
		return 0, errors.Errorf("bad eos response %q", s)
	}
	return GpibTerm(n), nil
}

// SetGPIBTermination sets the terminator appended to instrument commands.
func (c *Controller) SetGPIBTermination(term GpibTerm) error {
	return c.CommandController(fmt.Sprintf("eos %d", term))
}

// Diagnose toggles the controller's data and control lines, for checking
// cabling with a logic analyzer.
func (c *Controller) Diagnose() error {
	for _, cmd := range []string{"xdiag 1 255", "xdiag 0 255", "xdiag 0 0", "xdiag 1 0"} {
		if err := c.CommandController(cmd); err != nil {
			return err
		}
		time.Sleep(100 * time.Millisecond)
	}
	return nil
}

// Close closes the underlying port if it is an io.Closer. Instruments opened
// from the controller can no longer be used afterwards.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if cl, ok := c.rw.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

func (c *Controller) addrCmd(pad, sad int, hasSad bool) string {
	if hasSad {
		return fmt.Sprintf("addr %d %d", pad, sad)
	}
	return fmt.Sprintf("addr %d", pad)
}

// GpibTerm provides the type for the available GPIB terminators.
type GpibTerm int

// Available GPIB terminators for the Prologix Controller.
const (
	AppendCRLF GpibTerm = iota
	AppendCR
	AppendLF
	AppendNothing
)

func (term GpibTerm) String() string {
	switch term {
	case AppendCRLF:
		return `Append CR+LF (\r\n) to instrument commands`
	case AppendCR:
		return `Append CR (\r) to instrument commands`
	case AppendLF:
		return `Append LF (\n) to instrument commands`
	case AppendNothing:
		return `Do not append anything to instrument commands`
	}
	return fmt.Sprintf("GpibTerm(%d)", int(term))
}

// isPrimaryAddressValid checks that the primary GPIB address is between 0 and
// 30, inclusive.
func isPrimaryAddressValid(addr int) bool {
	return addr >= 0 && addr <= 30
}

// isSecondaryAddressValid checks that the secondary GPIB address is between 96
// and 126, inclusive.
func isSecondaryAddressValid(addr int) bool {
	return addr >= 96 && addr <= 126
}

var _ labdrivers.Opener = (*Controller)(nil)
