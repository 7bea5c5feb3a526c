// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package labdrivers

import (
	"math"
	"testing"

	"github.com/pkg/errors"
)

func Test_enumEncodeDecode(t *testing.T) {
	reserve := NewEnum(
		EnumValue{Code: "0", Name: "high reserve", Aliases: []string{"hi", "high"}},
		EnumValue{Code: "1", Name: "normal"},
		EnumValue{Code: "2", Name: "low noise", Aliases: []string{"lo", "low"}},
	)
	tests := []struct {
		in   string
		code string
		name string
	}{
		{"hi", "0", "high reserve"},
		{"HIGH", "0", "high reserve"},
		{"High Reserve", "0", "high reserve"},
		{"0", "0", "high reserve"},
		{"normal", "1", "normal"},
		{" 1 ", "1", "normal"},
		{"lo", "2", "low noise"},
		{"low noise", "2", "low noise"},
	}
	for _, tc := range tests {
		code, err := reserve.Encode(tc.in)
		if err != nil {
			t.Errorf("Encode(%q): %s", tc.in, err)
			continue
		}
		if code != tc.code {
			t.Errorf("Encode(%q) = %q, want %q", tc.in, code, tc.code)
		}
		name, err := reserve.Decode(code)
		if err != nil {
			t.Errorf("Decode(%q): %s", code, err)
			continue
		}
		if name != tc.name {
			t.Errorf("Decode(%q) = %q, want %q", code, name, tc.name)
		}
	}

	_, err := reserve.Encode("eggs")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Encode(eggs) error = %v, want *ValidationError", err)
	}
	_, err = reserve.Decode("7")
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("Decode(7) error = %v, want *ParseError", err)
	}
}

func Test_enumQuoted(t *testing.T) {
	fn := NewEnum(
		EnumValue{Code: "VOLT:DC", Name: "voltage"},
		EnumValue{Code: "CURR:DC", Name: "current"},
	).Quoted()
	code, err := fn.Encode("current")
	if err != nil {
		t.Fatal(err)
	}
	if code != `"CURR:DC"` {
		t.Errorf("got %s", code)
	}
	name, err := fn.Decode(`"volt:dc"`)
	if err != nil || name != "voltage" {
		t.Errorf("Decode = %q, %v", name, err)
	}
}

func Test_enumDuplicateAliasPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	NewEnum(
		EnumValue{Code: "0", Name: "a", Aliases: []string{"x"}},
		EnumValue{Code: "1", Name: "b", Aliases: []string{"X"}},
	)
}

func Test_floatBounds(t *testing.T) {
	amp := Between(0.004, 5.0)
	for _, v := range []float64{0.004, 1, 5.0} {
		if _, err := amp.Encode(v); err != nil {
			t.Errorf("Encode(%g): %s", v, err)
		}
	}
	for _, v := range []float64{0, 0.0039, 5.002, math.NaN()} {
		if _, err := amp.Encode(v); err == nil {
			t.Errorf("Encode(%g) accepted", v)
		}
	}

	field := Float{Min: -8, Max: 8, Exclusive: true}
	if _, err := field.Encode(8); err == nil {
		t.Error("exclusive bound accepted 8")
	}
	if _, err := field.Encode(7.99); err != nil {
		t.Error(err)
	}
	if _, err := Unbounded().Encode(-1e12); err != nil {
		t.Error(err)
	}
}

func Test_floatFormat(t *testing.T) {
	f := Unbounded()
	tests := map[float64]string{
		5:      "5",
		0.0002: "0.0002",
		1e-9:   "1E-09",
		-2.5:   "-2.5",
	}
	for v, want := range tests {
		got, err := f.Encode(v)
		if err != nil || got != want {
			t.Errorf("Encode(%g) = %q, %v, want %q", v, got, err, want)
		}
	}
}

func Test_floatDecode(t *testing.T) {
	tests := []struct {
		codec Float
		resp  string
		want  float64
	}{
		{Unbounded(), "+1.000000E-03\n", 1e-3},
		{Float{Prefix: "R"}, "R+4.217", 4.217},
		{Float{Prefix: "STAT:DEV:GRPZ:PSU:SIG:FLD:", Suffix: "T"}, "STAT:DEV:GRPZ:PSU:SIG:FLD:0.1250T", 0.125},
	}
	for _, tc := range tests {
		got, err := tc.codec.Decode(tc.resp)
		if err != nil {
			t.Errorf("Decode(%q): %s", tc.resp, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Decode(%q) = %g, want %g", tc.resp, got, tc.want)
		}
	}
	if _, err := Unbounded().Decode("OVERLOAD"); err == nil {
		t.Error("non-numeric response accepted")
	}
}

func Test_nonFiniteResponses(t *testing.T) {
	for _, resp := range []string{"NaN", "nan", "Inf", "+Inf", "-inf", "infinity"} {
		var perr *ParseError
		if v, err := Unbounded().Decode(resp); !errors.As(err, &perr) {
			t.Errorf("Float.Decode(%q) = %g, %v; want a parse error", resp, v, err)
		}
		if v, err := (Int{Min: math.MinInt32, Max: math.MaxInt32}).Decode(resp); !errors.As(err, &perr) {
			t.Errorf("Int.Decode(%q) = %d, %v; want a parse error", resp, v, err)
		}
		if _, err := ParseFloats("1," + resp); !errors.As(err, &perr) {
			t.Errorf("ParseFloats with %q: %v; want a parse error", resp, err)
		}
	}
}

func Test_intCodec(t *testing.T) {
	c := Int{Min: 1, Max: 2500}
	for _, v := range []int{0, 2501} {
		if _, err := c.Encode(v); err == nil {
			t.Errorf("Encode(%d) accepted", v)
		}
	}
	for resp, want := range map[string]int{"2500": 2500, "+2.500000E+03": 2500, " 7 ": 7} {
		got, err := c.Decode(resp)
		if err != nil || got != want {
			t.Errorf("Decode(%q) = %d, %v", resp, got, err)
		}
	}
	if _, err := c.Decode("2.5"); err == nil {
		t.Error("fractional response accepted")
	}
}

func Test_boolCodec(t *testing.T) {
	tok, _ := OnOff.Encode(true)
	if tok != "ON" {
		t.Errorf("got %q", tok)
	}
	for resp, want := range map[string]bool{"1": true, "0": false, "on": true, "OFF": false} {
		got, err := OnOff.Decode(resp)
		if err != nil || got != want {
			t.Errorf("Decode(%q) = %t, %v", resp, got, err)
		}
	}
	if _, err := OneZero.Decode("2"); err == nil {
		t.Error("2 accepted as bool")
	}
}

func Test_settingNamesErrors(t *testing.T) {
	s := Setting[float64]{Name: "amplitude", SetCmd: "SLVL %s", GetCmd: "SLVL?", Codec: Between(0.004, 5)}
	cmd, err := s.EncodeSet(0.5)
	if err != nil || cmd != "SLVL 0.5" {
		t.Fatalf("EncodeSet = %q, %v", cmd, err)
	}
	_, err = s.EncodeSet(5.002)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Setting != "amplitude" {
		t.Fatalf("error %v does not name the setting", err)
	}
	_, err = s.Decode("x")
	var perr *ParseError
	if !errors.As(err, &perr) || perr.Setting != "amplitude" {
		t.Fatalf("error %v does not name the setting", err)
	}

	ro := Setting[int]{Name: "points stored", GetCmd: "SPTS?", Codec: Int{Max: 16383}}
	if _, err := ro.EncodeSet(1); !errors.Is(err, ErrReadOnly) {
		t.Errorf("got %v, want ErrReadOnly", err)
	}
}

func Test_parseText(t *testing.T) {
	if v, err := parseText[float64]("2.5"); err != nil || v != 2.5 {
		t.Errorf("float: %g, %v", v, err)
	}
	if v, err := parseText[bool]("On"); err != nil || !v {
		t.Errorf("bool: %t, %v", v, err)
	}
	if _, err := parseText[int]("x"); err == nil {
		t.Error("int accepted x")
	}
	if _, err := parseText[float64]("NaN"); err == nil {
		t.Error("float accepted NaN")
	}
}

func Test_kind(t *testing.T) {
	tests := map[string]error{
		"ok":         nil,
		"timeout":    Timeout("X?", nil),
		"protocol":   &CommandError{"dev", "X", Protocol("X", errors.New("bad"))},
		"validation": &CommandError{"dev", "X", &ValidationError{Value: "1"}},
		"parse":      &ParseError{Response: "x"},
		"state":      errors.Wrap(ErrInvalidState, "closed"),
		"connection": Connection("GPIB::1", errors.New("refused")),
	}
	for want, err := range tests {
		if got := Kind(err); got != want {
			t.Errorf("Kind(%v) = %s, want %s", err, got, want)
		}
	}
}
