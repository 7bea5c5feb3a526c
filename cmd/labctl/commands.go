// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/gotmc/labdrivers"
	"github.com/gotmc/labdrivers/keithley/k2400"
	"github.com/gotmc/labdrivers/lib/datafile"
	"github.com/gotmc/labdrivers/lib/metrics"
	"github.com/gotmc/labdrivers/lib/monitor"
	"github.com/gotmc/labdrivers/lib/poll"
	"github.com/gotmc/labdrivers/lib/store"
	"github.com/gotmc/labdrivers/lib/stream"
	"github.com/gotmc/labdrivers/ni/daq"
	"github.com/gotmc/labdrivers/srs/sr830"
)

// subcommand parses the flags of one command and checks its argument count.
func subcommand(name string, args []string, nargs int, setup func(fs *flag.FlagSet)) (*flag.FlagSet, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	if setup != nil {
		setup(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != nargs {
		return nil, errors.Wrap(errUsage, commands[name].usage)
	}
	return fs, nil
}

func connected(e *env, name string) (*instrument, error) {
	inst, err := e.lab.instrument(name)
	if err != nil {
		return nil, err
	}
	if inst.conn == nil {
		return nil, errors.Errorf("%s is not a message based instrument", inst.cfg.Name)
	}
	return inst, nil
}

func cmdIdn(_ context.Context, e *env, args []string) error {
	fs, err := subcommand("idn", args, 1, nil)
	if err != nil {
		return err
	}
	inst, err := connected(e, fs.Arg(0))
	if err != nil {
		return err
	}
	id, err := inst.conn.Identify()
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, id)
	return nil
}

func cmdParams(_ context.Context, e *env, args []string) error {
	fs, err := subcommand("params", args, 1, nil)
	if err != nil {
		return err
	}
	inst, err := e.lab.instrument(fs.Arg(0))
	if err != nil {
		return err
	}
	if _, ok := inst.driver.(*daq.Device); ok {
		fmt.Fprintf(e.out, "ao0-ao%d (V)\nai0-ai%d (V)\n", daq.Outputs-1, daq.Inputs-1)
		return nil
	}
	for _, p := range inst.params {
		fmt.Fprintln(e.out, p)
	}
	return nil
}

func cmdGet(_ context.Context, e *env, args []string) error {
	fs, err := subcommand("get", args, 2, nil)
	if err != nil {
		return err
	}
	inst, err := e.lab.instrument(fs.Arg(0))
	if err != nil {
		return err
	}
	if d, ok := inst.driver.(*daq.Device); ok {
		v, err := d.ReadVoltage(fs.Arg(1), labdrivers.DefaultRange)
		if err != nil {
			return err
		}
		fmt.Fprintln(e.out, strconv.FormatFloat(v, 'g', -1, 64))
		return nil
	}
	p, err := inst.param(fs.Arg(1))
	if err != nil {
		return err
	}
	text, err := p.GetText(inst.conn)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, text)
	return nil
}

func cmdSet(_ context.Context, e *env, args []string) error {
	fs, err := subcommand("set", args, 3, nil)
	if err != nil {
		return err
	}
	inst, err := e.lab.instrument(fs.Arg(0))
	if err != nil {
		return err
	}
	if d, ok := inst.driver.(*daq.Device); ok {
		v, err := strconv.ParseFloat(fs.Arg(2), 64)
		if err != nil {
			return errors.Wrap(err, "value")
		}
		return d.OutputVoltage(fs.Arg(1), v)
	}
	p, err := inst.param(fs.Arg(1))
	if err != nil {
		return err
	}
	return p.SetText(inst.conn, fs.Arg(2))
}

func cmdRamp(ctx context.Context, e *env, args []string) error {
	var (
		steps int
		step  float64
		delay time.Duration
		from  float64
	)
	fs, err := subcommand("ramp", args, 3, func(fs *flag.FlagSet) {
		fs.IntVar(&steps, "steps", 10, "number of steps")
		fs.Float64Var(&step, "step", 0, "step size, overrides -steps")
		fs.DurationVar(&delay, "delay", 100*time.Millisecond, "delay between steps")
		fs.Float64Var(&from, "from", 0, "start value for DAQ outputs, which cannot be read back")
	})
	if err != nil {
		return err
	}
	inst, err := e.lab.instrument(fs.Arg(0))
	if err != nil {
		return err
	}
	target, err := strconv.ParseFloat(fs.Arg(2), 64)
	if err != nil {
		return errors.Wrap(err, "target")
	}
	if d, ok := inst.driver.(*daq.Device); ok {
		if step > 0 {
			steps = int(abs(target-from)/step + 0.5)
		}
		return d.RampOutput(ctx, fs.Arg(1), from, target, steps, delay)
	}

	p, err := inst.param(fs.Arg(1))
	if err != nil {
		return err
	}
	text, err := p.GetText(inst.conn)
	if err != nil {
		return err
	}
	start, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return errors.Errorf("%s is not numeric (%q)", p, text)
	}
	points := labdrivers.RampPoints(start, target, steps)
	if step > 0 {
		if points, err = labdrivers.RampPointsBySize(start, target, step); err != nil {
			return err
		}
	}
	e.log.Infof("ramping %s %s from %g to %g in %d points", inst.cfg.Name, p, start, target, len(points))
	return labdrivers.Ramp(ctx, points, delay, func(v float64) error {
		return p.SetText(inst.conn, strconv.FormatFloat(v, 'g', -1, 64))
	})
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func cmdAcquire(ctx context.Context, e *env, args []string) error {
	var (
		points int
		window time.Duration
		out    string
		every  time.Duration
	)
	fs, err := subcommand("acquire", args, 1, func(fs *flag.FlagSet) {
		fs.IntVar(&points, "n", 100, "points to acquire (k2400)")
		fs.DurationVar(&window, "for", time.Second, "acquisition window (sr830)")
		fs.StringVar(&out, "out", "", "data file name, the instrument name if empty")
		fs.DurationVar(&every, "poll", 200*time.Millisecond, "buffer fill poll interval")
	})
	if err != nil {
		return err
	}
	inst, err := connected(e, fs.Arg(0))
	if err != nil {
		return err
	}
	if out == "" {
		out = inst.cfg.Name
	}

	var ds *labdrivers.Dataset
	switch d := inst.driver.(type) {
	case *k2400.SMU:
		ds, err = acquireK2400(ctx, d, points, every)
	case *sr830.LockIn:
		ds, err = acquireSR830(ctx, d, window)
	default:
		return errors.Errorf("%s (%s) has no acquisition buffer", inst.cfg.Name, inst.cfg.Kind)
	}
	if err != nil {
		return err
	}
	return save(ctx, e, out, ds)
}

func acquireK2400(ctx context.Context, smu *k2400.SMU, points int, every time.Duration) (*labdrivers.Dataset, error) {
	smu.ClearData()
	if err := smu.ConfigureBuffer(points); err != nil {
		return nil, err
	}
	if err := smu.StartAcquisition(); err != nil {
		return nil, err
	}
	tick := time.NewTicker(every)
	defer tick.Stop()
	for {
		n, err := labdrivers.Get(smu, k2400.PointsStored)
		if err != nil {
			return nil, err
		}
		if n >= points {
			break
		}
		select {
		case <-ctx.Done():
			return nil, multierr.Append(ctx.Err(), smu.Abort())
		case <-tick.C:
		}
	}
	if _, err := smu.Drain(); err != nil {
		return nil, err
	}
	return smu.Data(), nil
}

func acquireSR830(ctx context.Context, li *sr830.LockIn, window time.Duration) (*labdrivers.Dataset, error) {
	li.ClearData()
	if err := li.StartAcquisition(); err != nil {
		return nil, err
	}
	t := time.NewTimer(window)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return nil, multierr.Append(ctx.Err(), li.Pause())
	case <-t.C:
	}
	if _, err := li.Drain(); err != nil {
		return nil, err
	}
	return li.Data(), nil
}

// save writes ds to the configured CSV directory and, when configured, to
// the SQLite store under the CSV file's base name.
func save(ctx context.Context, e *env, name string, ds *labdrivers.Dataset) error {
	sinks := e.lab.cfg.Sinks
	mode, err := datafile.ParseMode(sinks.CSV.Mode)
	if err != nil {
		return err
	}
	path, err := datafile.Save(sinks.CSV.Dir, name, mode, ds)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "%d points -> %s\n", ds.Len(), path)
	if sinks.SQLite.Path == "" {
		return nil
	}
	s, err := store.OpenSQLite(sinks.SQLite.Path, e.log)
	if err != nil {
		return err
	}
	defer s.Close()
	run := strings.TrimSuffix(filepath.Base(path), ".csv")
	if err := s.SaveDataset(ctx, run, ds); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "%d points -> %s run %s\n", ds.Len(), sinks.SQLite.Path, run)
	return nil
}

func cmdWatch(ctx context.Context, e *env, args []string) error {
	if _, err := subcommand("watch", args, 0, nil); err != nil {
		return err
	}
	probes, err := e.lab.probes()
	if err != nil {
		return err
	}
	if len(probes) == 0 {
		return errors.New("no probes configured")
	}
	prog := tea.NewProgram(monitor.New("labctl"), tea.WithAltScreen())
	p := poll.New(e.log, probes...)
	p.AddSink(monitor.Sink(prog))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	go func() {
		<-ctx.Done()
		prog.Quit()
	}()
	_, err = prog.Run()
	cancel()
	if perr := <-done; err == nil {
		err = perr
	}
	return err
}

func cmdServe(ctx context.Context, e *env, args []string) error {
	if _, err := subcommand("serve", args, 0, nil); err != nil {
		return err
	}
	probes, err := e.lab.probes()
	if err != nil {
		return err
	}
	sinks := e.lab.cfg.Sinks
	hub := stream.NewHub(e.log)
	p := poll.New(e.log, probes...)
	p.AddSink(e.metrics, hub)

	var db *store.SQLite
	if sinks.SQLite.Path != "" {
		if db, err = store.OpenSQLite(sinks.SQLite.Path, e.log); err != nil {
			return err
		}
		defer db.Close()
		p.AddSink(db)
	}
	if sinks.Redis.Addr != "" {
		rc := sinks.Redis
		r, err := store.NewRedis(ctx, store.RedisOptions{
			Addr: rc.Addr, Password: rc.Password, DB: rc.DB, PoolSize: rc.PoolSize,
			Channel: rc.Channel, History: rc.History,
		}, e.log)
		if err != nil {
			return err
		}
		defer r.Close()
		p.AddSink(r)
	}

	srv := &http.Server{Addr: e.lab.cfg.Metrics.Listen, Handler: newMux(hub, e.reg, db)}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Run(gctx) })
	g.Go(func() error {
		e.log.Infof("serving /ws and /metrics on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// newMux routes the stream hub, metrics and, with a database, recent
// readings.
func newMux(hub *stream.Hub, g prometheus.Gatherer, db *store.SQLite) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.Handle("/metrics", metrics.Handler(g))
	if db != nil {
		mux.HandleFunc("/readings", func(w http.ResponseWriter, r *http.Request) {
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			rs, err := db.Readings(r.Context(), r.URL.Query().Get("instrument"), limit)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			writeJSON(w, rs)
		})
	}
	return mux
}

func writeJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
