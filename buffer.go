// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package labdrivers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ParseFloats splits a comma separated list of numbers.
func ParseFloats(resp string) ([]float64, error) {
	resp = strings.TrimSpace(resp)
	if resp == "" {
		return nil, nil
	}
	fields := strings.Split(resp, ",")
	vals := make([]float64, len(fields))
	for i, f := range fields {
		v, err := parseFinite(strings.TrimSpace(f))
		if err != nil {
			return nil, &ParseError{
				Response: truncate(resp, 64),
				Reason:   fmt.Sprintf("field %d (%q) is not a number", i, f),
			}
		}
		vals[i] = v
	}
	return vals, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Deinterleave splits flat into stride sequences, element i going to sequence
// i%stride. The length of flat must be a multiple of stride.
func Deinterleave(flat []float64, stride int) ([][]float64, error) {
	if stride < 1 {
		return nil, &ValidationError{Setting: "stride", Value: strconv.Itoa(stride), Bound: "must be positive"}
	}
	if len(flat)%stride != 0 {
		return nil, &ParseError{
			Reason: fmt.Sprintf("%d values do not divide into %d elements", len(flat), stride),
		}
	}
	n := len(flat) / stride
	cols := make([][]float64, stride)
	for j := range cols {
		cols[j] = make([]float64, n)
		for i := 0; i < n; i++ {
			cols[j][i] = flat[i*stride+j]
		}
	}
	return cols, nil
}

// Interleave is the inverse of Deinterleave. All columns must have the same
// length.
func Interleave(cols [][]float64) ([]float64, error) {
	if len(cols) == 0 {
		return nil, nil
	}
	n := len(cols[0])
	flat := make([]float64, 0, n*len(cols))
	for j, c := range cols {
		if len(c) != n {
			return nil, errors.Errorf("column %d has %d values, want %d", j, len(c), n)
		}
	}
	for i := 0; i < n; i++ {
		for _, c := range cols {
			flat = append(flat, c[i])
		}
	}
	return flat, nil
}

// Dataset is a growing table of named columns of samples.
type Dataset struct {
	Columns []string
	Data    [][]float64
}

// NewDataset returns an empty dataset with the given column names.
func NewDataset(columns ...string) *Dataset {
	return &Dataset{Columns: columns, Data: make([][]float64, len(columns))}
}

// Append adds one sequence per column.
func (d *Dataset) Append(cols [][]float64) error {
	if len(cols) != len(d.Columns) {
		return errors.Errorf("got %d sequences for %d columns", len(cols), len(d.Columns))
	}
	n := -1
	for j, c := range cols {
		if n >= 0 && len(c) != n {
			return errors.Errorf("column %s has %d values, want %d", d.Columns[j], len(c), n)
		}
		n = len(c)
	}
	for j, c := range cols {
		d.Data[j] = append(d.Data[j], c...)
	}
	return nil
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	if len(d.Data) == 0 {
		return 0
	}
	return len(d.Data[0])
}

// Row returns row i across all columns.
func (d *Dataset) Row(i int) []float64 {
	row := make([]float64, len(d.Data))
	for j := range d.Data {
		row[j] = d.Data[j][i]
	}
	return row
}

// Column returns the named column, or nil.
func (d *Dataset) Column(name string) []float64 {
	for j, c := range d.Columns {
		if strings.EqualFold(c, name) {
			return d.Data[j]
		}
	}
	return nil
}

// Reset drops all rows and keeps the columns.
func (d *Dataset) Reset() {
	for j := range d.Data {
		d.Data[j] = nil
	}
}

// Clone returns a deep copy.
func (d *Dataset) Clone() *Dataset {
	c := NewDataset(append([]string(nil), d.Columns...)...)
	for j := range d.Data {
		c.Data[j] = append([]float64(nil), d.Data[j]...)
	}
	return c
}
