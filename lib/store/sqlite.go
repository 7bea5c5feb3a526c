// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package store persists readings and acquired datasets. SQLite keeps the
// local log; Redis publishes live readings to other processes.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	_ "modernc.org/sqlite"

	"github.com/gotmc/labdrivers"
)

const schema = `
CREATE TABLE IF NOT EXISTS readings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    time TEXT NOT NULL,
    instrument TEXT NOT NULL,
    param TEXT NOT NULL,
    text TEXT,
    value REAL,
    error TEXT
);
CREATE INDEX IF NOT EXISTS readings_instrument ON readings(instrument, time);
CREATE TABLE IF NOT EXISTS samples (
    run TEXT NOT NULL,
    idx INTEGER NOT NULL,
    col INTEGER NOT NULL,
    name TEXT NOT NULL,
    value REAL,
    PRIMARY KEY (run, idx, col)
);`

const timeFormat = "2006-01-02 15:04:05.000000"

// SQLite is a reading and dataset store in a single database file.
type SQLite struct {
	db  *sql.DB
	log *logrus.Logger
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string, log *logrus.Logger) (*SQLite, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	// the driver serializes writers; one connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		return nil, multierr.Append(errors.Wrapf(err, "create tables in %s", path), db.Close())
	}
	log.WithField("path", path).Debug("sqlite store ready")
	return &SQLite{db: db, log: log}, nil
}

// Write inserts readings in one transaction.
func (s *SQLite) Write(ctx context.Context, rs []labdrivers.Reading) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO readings(time, instrument, param, text, value, error) VALUES(?, ?, ?, ?, ?, ?)")
	if err != nil {
		return multierr.Append(errors.Wrap(err, "prepare"), tx.Rollback())
	}
	defer stmt.Close()
	for _, r := range rs {
		if _, err := stmt.ExecContext(ctx, r.Time.UTC().Format(timeFormat),
			r.Instrument, r.Param, r.Text, r.Value, r.Err); err != nil {
			return multierr.Append(errors.Wrap(err, "insert reading"), tx.Rollback())
		}
	}
	return errors.Wrap(tx.Commit(), "commit")
}

// Readings returns the most recent readings of one instrument, newest first.
// An empty instrument matches all.
func (s *SQLite) Readings(ctx context.Context, instrument string, limit int) ([]labdrivers.Reading, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT time, instrument, param, text, value, error FROM readings
WHERE ? = '' OR instrument = ?
ORDER BY id DESC LIMIT ?`, instrument, instrument, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query readings")
	}
	defer rows.Close()
	var out []labdrivers.Reading
	for rows.Next() {
		var (
			r  labdrivers.Reading
			ts string
		)
		if err := rows.Scan(&ts, &r.Instrument, &r.Param, &r.Text, &r.Value, &r.Err); err != nil {
			return nil, errors.Wrap(err, "scan reading")
		}
		if r.Time, err = time.Parse(timeFormat, ts); err != nil {
			return nil, errors.Wrapf(err, "reading time %q", ts)
		}
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "readings")
}

// SaveDataset stores ds under run, replacing an earlier run of that name.
func (s *SQLite) SaveDataset(ctx context.Context, run string, ds *labdrivers.Dataset) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM samples WHERE run = ?", run); err != nil {
		return multierr.Append(errors.Wrap(err, "clear run"), tx.Rollback())
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO samples(run, idx, col, name, value) VALUES(?, ?, ?, ?, ?)")
	if err != nil {
		return multierr.Append(errors.Wrap(err, "prepare"), tx.Rollback())
	}
	defer stmt.Close()
	for i := 0; i < ds.Len(); i++ {
		for j, name := range ds.Columns {
			if _, err := stmt.ExecContext(ctx, run, i, j, name, ds.Data[j][i]); err != nil {
				return multierr.Append(errors.Wrap(err, "insert sample"), tx.Rollback())
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	s.log.WithFields(logrus.Fields{"run": run, "rows": ds.Len()}).Info("dataset saved")
	return nil
}

// Dataset loads a run saved by SaveDataset. A missing run is an error.
func (s *SQLite) Dataset(ctx context.Context, run string) (*labdrivers.Dataset, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT idx, col, name, value FROM samples WHERE run = ? ORDER BY idx, col", run)
	if err != nil {
		return nil, errors.Wrap(err, "query samples")
	}
	defer rows.Close()
	var (
		names []string
		data  [][]float64
	)
	for rows.Next() {
		var (
			idx, col int
			name     string
			v        float64
		)
		if err := rows.Scan(&idx, &col, &name, &v); err != nil {
			return nil, errors.Wrap(err, "scan sample")
		}
		if idx == 0 {
			names = append(names, name)
			data = append(data, nil)
		}
		if col >= len(data) {
			return nil, errors.Errorf("run %s: sample %d has column %d of %d", run, idx, col, len(data))
		}
		data[col] = append(data[col], v)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "samples")
	}
	if names == nil {
		return nil, errors.Errorf("run %s not found", run)
	}
	ds := labdrivers.NewDataset(names...)
	ds.Data = data
	return ds, nil
}

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }
