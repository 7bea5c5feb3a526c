// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/gotmc/labdrivers"
	"github.com/gotmc/labdrivers/driver/tcp"
	"github.com/gotmc/labdrivers/driver/vcp"
	"github.com/gotmc/labdrivers/keithley/k2400"
	"github.com/gotmc/labdrivers/lakeshore/ls332"
	"github.com/gotmc/labdrivers/lib/config"
	"github.com/gotmc/labdrivers/lib/poll"
	"github.com/gotmc/labdrivers/lib/sim"
	"github.com/gotmc/labdrivers/ni/daq"
	"github.com/gotmc/labdrivers/oxford/ips120"
	"github.com/gotmc/labdrivers/oxford/itc503"
	"github.com/gotmc/labdrivers/oxford/mercury"
	"github.com/gotmc/labdrivers/prologix"
	"github.com/gotmc/labdrivers/srs/sr830"
)

// instrument is one configured instrument and the driver behind it.
type instrument struct {
	cfg    config.InstrumentConfig
	conn   *labdrivers.Conn // nil for a DAQ
	open   func() error
	params []labdrivers.Param
	driver any
}

// lab holds every configured instrument, opened.
type lab struct {
	cfg     *config.Config
	log     *logrus.Logger
	insts   map[string]*instrument
	names   []string
	closers []func() error
}

// openLab builds and opens the instruments of cfg. With simulate set every
// instrument is a lib/sim fake and no hardware is touched.
func openLab(cfg *config.Config, log *logrus.Logger, simulate bool, obs ...labdrivers.Observer) (l *lab, err error) {
	l = &lab{cfg: cfg, log: log, insts: make(map[string]*instrument)}
	defer func() {
		if err != nil {
			err = multierr.Append(err, l.Close())
			l = nil
		}
	}()

	var (
		gpib  labdrivers.Opener
		bench *sim.Bench
	)
	if simulate {
		bench = sim.NewBench()
		gpib = bench
		log.Info("simulated bench, no hardware is used")
	} else if cfg.UsesGPIB() {
		if gpib, err = l.openController(); err != nil {
			return nil, err
		}
	}

	opts := func(in config.InstrumentConfig) []labdrivers.Option {
		return []labdrivers.Option{
			labdrivers.WithName(in.Name),
			labdrivers.WithLogger(log),
			labdrivers.WithObserver(obs...),
		}
	}
	for _, ic := range cfg.Instruments {
		op := gpib
		if config.IsTCP(ic.Kind) && !simulate {
			op = tcp.Dialer{Timeout: ic.Timeout, ReadLimit: ic.ReadLimit}
		}
		if simulate && ic.Kind != config.KindDAQ {
			fake := sim.New(ic.Name)
			simulateKind(ic.Kind, fake)
			bench.Add(ic.Address, fake)
		}
		inst, err := newInstrument(ic, op, simulate, log, opts(ic)...)
		if err != nil {
			return nil, err
		}
		if err := inst.open(); err != nil {
			return nil, errors.Wrapf(err, "open %s", ic.Name)
		}
		l.insts[strings.ToLower(ic.Name)] = inst
		l.names = append(l.names, ic.Name)
		if inst.conn != nil {
			l.closers = append(l.closers, inst.conn.Close)
		} else if d, ok := inst.driver.(*daq.Device); ok {
			l.closers = append(l.closers, d.Close)
		}
	}
	return l, nil
}

func (l *lab) openController() (labdrivers.Opener, error) {
	cc := l.cfg.Controller
	vopts := []vcp.Option{vcp.WithBackend(vcp.Backend(cc.Backend))}
	if cc.Baud > 0 {
		vopts = append(vopts, vcp.WithBaud(cc.Baud))
	}
	port, err := vcp.NewVCP(cc.Port, vopts...)
	if err != nil {
		return nil, errors.Wrap(err, "open controller port")
	}
	pad := 0
	for _, ic := range l.cfg.Instruments {
		if a, err := prologix.ParseAddress(ic.Address); err == nil {
			pad = a.Primary
			break
		}
	}
	opts := []prologix.ControllerOption{
		prologix.WithLogger(l.log),
		prologix.WithReadTimeout(cc.ReadTimeout),
	}
	if cc.WriteDelay > 0 {
		opts = append(opts, prologix.WithWriteDelay(cc.WriteDelay))
	}
	if cc.AR488 {
		opts = append(opts, prologix.WithAR488())
	}
	ctrl, err := prologix.NewController(port, pad, false, opts...)
	if err != nil {
		return nil, multierr.Append(errors.Wrap(err, "controller"), port.Close())
	}
	l.log.Infof("GPIB controller on %s", cc.Port)
	l.closers = append(l.closers, func() error {
		return multierr.Combine(ctrl.FrontPanel(true), port.Flush(), ctrl.Close())
	})
	return ctrl, nil
}

func simulateKind(kind string, in *sim.Instrument) {
	switch kind {
	case config.KindK2400:
		k2400.Simulate(in)
	case config.KindSR830:
		sr830.Simulate(in)
	case config.KindLS332:
		ls332.Simulate(in)
	case config.KindITC503:
		itc503.Simulate(in)
	case config.KindIPS120:
		ips120.Simulate(in)
	case config.KindMercuryIPS, config.KindTriton:
		mercury.Simulate(in)
	}
}

func newInstrument(ic config.InstrumentConfig, op labdrivers.Opener, simulate bool, log *logrus.Logger, opts ...labdrivers.Option) (*instrument, error) {
	inst := &instrument{cfg: ic}
	switch ic.Kind {
	case config.KindK2400:
		d := k2400.New(op, ic.Address, opts...)
		inst.conn, inst.params, inst.driver = d.Conn, k2400.Params(), d
	case config.KindSR830:
		d := sr830.New(op, ic.Address, opts...)
		inst.conn, inst.params, inst.driver = d.Conn, sr830.Params(), d
	case config.KindLS332:
		d := ls332.New(op, ic.Address, opts...)
		inst.conn, inst.params, inst.driver = d.Conn, ls332.Params(), d
	case config.KindITC503:
		d := itc503.New(op, ic.Address, opts...)
		inst.conn, inst.params, inst.driver = d.Conn, itc503.Params(), d
	case config.KindIPS120:
		d := ips120.New(op, ic.Address, opts...)
		inst.conn, inst.params, inst.driver = d.Conn, ips120.Params(), d
		inst.open = d.Open
	case config.KindMercuryIPS:
		d := mercury.NewIPS(op, ic.Address, opts...)
		inst.conn, inst.params, inst.driver = d.Conn, d.Params(), d
	case config.KindTriton:
		d := mercury.NewTriton(op, ic.Address, opts...)
		if ic.Channel != 0 {
			if err := d.SetChannel(ic.Channel); err != nil {
				return nil, err
			}
		}
		inst.conn, inst.params, inst.driver = d.Conn, d.Params(), d
	case config.KindDAQ:
		if !simulate {
			return nil, errors.Errorf("%s: no NI-DAQmx backend is linked, run with -sim", ic.Name)
		}
		name := ic.Address
		if name == "" {
			name = "Dev1"
		}
		io := sim.NewDAQ()
		for ch := 0; ch < daq.Outputs; ch++ {
			io.Loop(fmt.Sprintf("/%s/ao%d", name, ch), fmt.Sprintf("/%s/ai%d", name, ch))
		}
		inst.driver = daq.New(name, io, log)
		inst.open = func() error { return nil }
	default:
		return nil, errors.Errorf("%s: unknown kind %q", ic.Name, ic.Kind)
	}
	if inst.open == nil {
		inst.open = inst.conn.Open
	}
	return inst, nil
}

func (l *lab) instrument(name string) (*instrument, error) {
	inst, ok := l.insts[strings.ToLower(name)]
	if !ok {
		return nil, errors.Errorf("no instrument %q (have %s)", name, strings.Join(l.names, ", "))
	}
	return inst, nil
}

func (inst *instrument) param(name string) (labdrivers.Param, error) {
	p, ok := labdrivers.FindParam(inst.params, name)
	if !ok {
		names := make([]string, len(inst.params))
		for i, p := range inst.params {
			names[i] = p.String()
		}
		sort.Strings(names)
		return nil, errors.Errorf("%s has no parameter %q (have %s)", inst.cfg.Name, name, strings.Join(names, ", "))
	}
	return p, nil
}

// probes resolves the configured probes.
func (l *lab) probes() ([]poll.Probe, error) {
	var out []poll.Probe
	for _, pc := range l.cfg.Probes {
		inst, err := l.instrument(pc.Instrument)
		if err != nil {
			return nil, err
		}
		if inst.conn == nil {
			return nil, errors.Errorf("%s cannot be polled", inst.cfg.Name)
		}
		pr := poll.Probe{Instrument: inst.cfg.Name, Conn: inst.conn, Interval: pc.Interval}
		for _, name := range pc.Params {
			p, err := inst.param(name)
			if err != nil {
				return nil, err
			}
			pr.Params = append(pr.Params, p)
		}
		out = append(out, pr)
	}
	return out, nil
}

// Close closes instruments in reverse order of opening, then the controller.
func (l *lab) Close() error {
	var err error
	for i := len(l.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, l.closers[i]())
	}
	l.closers = nil
	return err
}
