// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package poll reads instrument parameters periodically and hands the
// readings to sinks. Each probe runs in its own goroutine; probes on the same
// instrument are serialized by that instrument's Conn.
package poll

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/gotmc/labdrivers"
)

// DefaultInterval applies to probes without an interval.
const DefaultInterval = time.Second

// Probe is a set of parameters read from one instrument at a fixed interval.
type Probe struct {
	Instrument string
	Conn       labdrivers.Exchanger
	Params     []labdrivers.Param
	Interval   time.Duration
}

// Sink consumes readings. Write may be called from several goroutines, one
// batch at a time.
type Sink interface {
	Write(ctx context.Context, rs []labdrivers.Reading) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, rs []labdrivers.Reading) error

// Write calls f.
func (f SinkFunc) Write(ctx context.Context, rs []labdrivers.Reading) error { return f(ctx, rs) }

// Poller runs probes and fans their readings out to sinks.
type Poller struct {
	probes []Probe
	sinks  []Sink
	log    *logrus.Logger
	now    func() time.Time

	mu sync.Mutex // serializes sink writes
}

// New returns a poller over probes.
func New(log *logrus.Logger, probes ...Probe) *Poller {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Poller{probes: probes, log: log, now: time.Now}
}

// AddSink registers sinks. It must not be called while Run is active.
func (p *Poller) AddSink(s ...Sink) { p.sinks = append(p.sinks, s...) }

// Read reads every parameter of pr once. Failed reads are returned as
// readings carrying the error text.
func (p *Poller) Read(pr Probe) []labdrivers.Reading {
	rs := make([]labdrivers.Reading, 0, len(pr.Params))
	for _, prm := range pr.Params {
		r := labdrivers.Reading{Instrument: pr.Instrument, Param: prm.String()}
		text, err := prm.GetText(pr.Conn)
		r.Time = p.now()
		if err != nil {
			r.Err = err.Error()
			p.log.WithFields(logrus.Fields{
				"instrument": pr.Instrument,
				"param":      r.Param,
				"kind":       labdrivers.Kind(err),
			}).Warn(err)
		} else {
			r.Text = text
			r.Value = Value(text)
		}
		rs = append(rs, r)
	}
	return rs
}

// Value converts reading text to a number: finite numbers as themselves,
// booleans as 1 and 0, anything else (NaN and ±Inf included) as 0.
func Value(text string) float64 {
	if v, err := strconv.ParseFloat(text, 64); err == nil {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		return v
	}
	if b, err := labdrivers.ParseBool(text); err == nil && b {
		return 1
	}
	return 0
}

// Once reads all probes in parallel and delivers one batch per probe.
func (p *Poller) Once(ctx context.Context) ([]labdrivers.Reading, error) {
	batches := make([][]labdrivers.Reading, len(p.probes))
	g, ctx := errgroup.WithContext(ctx)
	for i, pr := range p.probes {
		i, pr := i, pr
		g.Go(func() error {
			batches[i] = p.Read(pr)
			p.deliver(ctx, batches[i])
			return ctx.Err()
		})
	}
	err := g.Wait()
	var all []labdrivers.Reading
	for _, b := range batches {
		all = append(all, b...)
	}
	return all, err
}

// Run polls every probe at its interval until ctx is done. It returns nil
// on cancellation.
func (p *Poller) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, pr := range p.probes {
		pr := pr
		g.Go(func() error { return p.run(ctx, pr) })
	}
	err := g.Wait()
	if err == context.Canceled || err == context.DeadlineExceeded {
		return nil
	}
	return err
}

func (p *Poller) run(ctx context.Context, pr Probe) error {
	interval := pr.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	log := p.log.WithField("instrument", pr.Instrument)
	log.WithField("interval", interval).Debug("probe started")
	defer log.Debug("probe stopped")

	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		p.deliver(ctx, p.Read(pr))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}

func (p *Poller) deliver(ctx context.Context, rs []labdrivers.Reading) {
	if len(rs) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.sinks {
		if err := s.Write(ctx, rs); err != nil {
			p.log.Warnf("sink: %v", err)
		}
	}
}
