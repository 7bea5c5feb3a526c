// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package datafile writes sample tables to CSV files.
package datafile

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/gotmc/labdrivers"
)

// Mode selects what Create does when the file already exists.
type Mode int

const (
	// Append adds rows to name.csv, writing the header only to a new file.
	Append Mode = iota
	// Increment picks the first unused name_NNN.csv.
	Increment
)

// ParseMode accepts "append" or "increment".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "append":
		return Append, nil
	case "increment", "inc":
		return Increment, nil
	}
	return Append, &labdrivers.ValidationError{Setting: "csv mode", Value: s, Bound: "append|increment"}
}

func (m Mode) String() string {
	if m == Increment {
		return "increment"
	}
	return "append"
}

// maxIncrement bounds the search for a free name_NNN.csv.
const maxIncrement = 9999

// File is an open CSV data file with a fixed set of columns.
type File struct {
	path    string
	columns []string
	f       *os.File
	w       *csv.Writer
}

// Create opens a CSV file under dir. name may carry a .csv extension.
func Create(dir, name string, mode Mode, columns ...string) (*File, error) {
	if len(columns) == 0 {
		return nil, errors.New("datafile: no columns")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "datafile")
	}
	base := strings.TrimSuffix(name, ".csv")
	var (
		f   *os.File
		err error
	)
	switch mode {
	case Append:
		f, err = os.OpenFile(filepath.Join(dir, base+".csv"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	case Increment:
		f, err = createNext(dir, base)
	default:
		err = errors.Errorf("unknown mode %d", mode)
	}
	if err != nil {
		return nil, errors.Wrap(err, "datafile")
	}
	df := &File{path: f.Name(), columns: columns, f: f, w: csv.NewWriter(f)}
	st, err := f.Stat()
	if err != nil {
		return nil, multierr.Append(errors.Wrap(err, "datafile"), f.Close())
	}
	if st.Size() == 0 {
		if err := df.w.Write(columns); err != nil {
			return nil, multierr.Append(errors.Wrap(err, "datafile header"), f.Close())
		}
	}
	return df, nil
}

func createNext(dir, base string) (*os.File, error) {
	for i := 1; i <= maxIncrement; i++ {
		p := filepath.Join(dir, fmt.Sprintf("%s_%03d.csv", base, i))
		f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if os.IsExist(err) {
			continue
		}
		return f, err
	}
	return nil, errors.Errorf("no free file name for %s in %s", base, dir)
}

// Path returns the file's path.
func (d *File) Path() string { return d.path }

// Columns returns the header.
func (d *File) Columns() []string { return d.columns }

// WriteRow writes one row. It must have one value per column.
func (d *File) WriteRow(row []float64) error {
	if len(row) != len(d.columns) {
		return errors.Errorf("datafile: row has %d values for %d columns", len(row), len(d.columns))
	}
	rec := make([]string, len(row))
	for i, v := range row {
		rec[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return errors.Wrap(d.w.Write(rec), "datafile")
}

// WriteDataset writes every row of ds and flushes.
func (d *File) WriteDataset(ds *labdrivers.Dataset) error {
	if len(ds.Columns) != len(d.columns) {
		return errors.Errorf("datafile: dataset has %d columns, file has %d", len(ds.Columns), len(d.columns))
	}
	for i := 0; i < ds.Len(); i++ {
		if err := d.WriteRow(ds.Row(i)); err != nil {
			return err
		}
	}
	return d.Flush()
}

// Flush writes buffered rows to disk.
func (d *File) Flush() error {
	d.w.Flush()
	return errors.Wrap(d.w.Error(), "datafile")
}

// Close flushes and closes the file.
func (d *File) Close() error {
	return multierr.Combine(d.Flush(), d.f.Close())
}

// Save writes ds to a new or appended file in one call.
func Save(dir, name string, mode Mode, ds *labdrivers.Dataset) (string, error) {
	f, err := Create(dir, name, mode, ds.Columns...)
	if err != nil {
		return "", err
	}
	err = f.WriteDataset(ds)
	return f.Path(), multierr.Append(err, f.Close())
}
