// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package metrics exports instrument exchange counts, latencies and polled
// readings to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gotmc/labdrivers"
)

// Collector is a labdrivers.Observer that records every exchange.
type Collector struct {
	exchanges *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	readings  *prometheus.GaugeVec
	failures  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labdrivers_exchanges_total",
			Help: "Instrument exchanges by outcome.",
		}, []string{"instrument", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "labdrivers_exchange_duration_seconds",
			Help:    "Round trip time of instrument exchanges.",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 3, 10},
		}, []string{"instrument"}),
		readings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "labdrivers_reading",
			Help: "Last polled value of an instrument parameter.",
		}, []string{"instrument", "param"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labdrivers_reading_errors_total",
			Help: "Failed polls of an instrument parameter.",
		}, []string{"instrument", "param"}),
	}
	for _, col := range []prometheus.Collector{c.exchanges, c.latency, c.readings, c.failures} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Exchanged implements labdrivers.Observer.
func (c *Collector) Exchanged(instrument, cmd, resp string, elapsed time.Duration, err error) {
	c.exchanges.WithLabelValues(instrument, labdrivers.Kind(err)).Inc()
	c.latency.WithLabelValues(instrument).Observe(elapsed.Seconds())
}

// Record publishes a polled reading.
func (c *Collector) Record(r labdrivers.Reading) {
	if r.Err != "" {
		c.failures.WithLabelValues(r.Instrument, r.Param).Inc()
		return
	}
	c.readings.WithLabelValues(r.Instrument, r.Param).Set(r.Value)
}

// Write records a batch of readings; it never fails.
func (c *Collector) Write(_ context.Context, rs []labdrivers.Reading) error {
	for _, r := range rs {
		c.Record(r)
	}
	return nil
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
