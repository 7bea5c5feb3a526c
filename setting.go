// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package labdrivers

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Codec converts between Go values and instrument tokens. Encode validates and
// fails with a *ValidationError; Decode fails with a *ParseError.
type Codec[T any] interface {
	Encode(v T) (string, error)
	Decode(resp string) (T, error)
}

// Setting describes one instrument quantity. SetCmd and GetCmd are fmt
// templates; SetCmd takes the encoded value as its single %s verb. An empty
// SetCmd makes the setting read-only and an empty GetCmd write-only.
type Setting[T any] struct {
	Name   string
	Unit   string
	SetCmd string
	GetCmd string
	Codec  Codec[T]
	// Ack, if set, means writes return a reply that Ack must accept.
	Ack func(resp string) error
}

func (s Setting[T]) String() string { return s.Name }

// EncodeSet returns the command that writes v, or a *ValidationError.
func (s Setting[T]) EncodeSet(v T) (string, error) {
	if s.SetCmd == "" {
		return "", errors.Wrap(ErrReadOnly, s.Name)
	}
	tok, err := s.Codec.Encode(v)
	if err != nil {
		return "", s.named(err)
	}
	return fmt.Sprintf(s.SetCmd, tok), nil
}

// EncodeGet returns the query command.
func (s Setting[T]) EncodeGet() (string, error) {
	if s.GetCmd == "" {
		return "", errors.Wrap(ErrWriteOnly, s.Name)
	}
	return s.GetCmd, nil
}

// Decode parses a response to the query command.
func (s Setting[T]) Decode(resp string) (T, error) {
	v, err := s.Codec.Decode(resp)
	if err != nil {
		return v, s.named(err)
	}
	return v, nil
}

func (s Setting[T]) named(err error) error {
	var (
		verr *ValidationError
		perr *ParseError
	)
	switch {
	case errors.As(err, &verr) && verr.Setting == "":
		e := *verr
		e.Setting = s.Name
		return &e
	case errors.As(err, &perr) && perr.Setting == "":
		e := *perr
		e.Setting = s.Name
		return &e
	}
	return err
}

// Param is a setting addressed by name with text values, as used by command
// line tools.
type Param interface {
	String() string
	GetText(x Exchanger) (string, error)
	SetText(x Exchanger, text string) error
}

// GetText reads the setting and formats it as text.
func (s Setting[T]) GetText(x Exchanger) (string, error) {
	v, err := Get(x, s)
	if err != nil {
		return "", err
	}
	return FormatValue(v), nil
}

// SetText parses text and writes it.
func (s Setting[T]) SetText(x Exchanger, text string) error {
	v, err := parseText[T](text)
	if err != nil {
		return s.named(err)
	}
	return Set(x, s, v)
}

// FormatValue formats a decoded setting value.
func FormatValue(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		if v {
			return "on"
		}
		return "off"
	}
	return fmt.Sprint(v)
}

func parseText[T any](text string) (T, error) {
	var (
		v   T
		err error
	)
	text = strings.TrimSpace(text)
	switch p := any(&v).(type) {
	case *string:
		*p = text
	case *float64:
		*p, err = parseFinite(text)
	case *int:
		*p, err = strconv.Atoi(text)
	case *bool:
		*p, err = ParseBool(text)
	default:
		err = errors.Errorf("unsupported value type %T", v)
	}
	if err != nil {
		return v, &ValidationError{Value: strconv.Quote(text), Bound: err.Error()}
	}
	return v, nil
}

// ParseBool accepts on/off, true/false, yes/no and 1/0 in any case.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "on", "true", "yes":
		return true, nil
	case "0", "off", "false", "no":
		return false, nil
	}
	return false, errors.Errorf("%q is not on/off", s)
}

// EnumValue is one member of an Enum.
type EnumValue struct {
	Code    string
	Name    string
	Aliases []string
}

// Enum is a closed set of named instrument codes. Input matching is case
// insensitive against the name, the code and every alias. An Enum is never
// modified after NewEnum returns.
type Enum struct {
	values  []EnumValue
	byAlias map[string]int
	byCode  map[string]int
	quote   bool
}

// NewEnum builds an Enum. It panics if one alias names two members.
func NewEnum(values ...EnumValue) Enum {
	e := Enum{
		values:  values,
		byAlias: make(map[string]int),
		byCode:  make(map[string]int),
	}
	for i, v := range values {
		e.byCode[strings.ToUpper(v.Code)] = i
		for _, a := range append([]string{v.Name, v.Code}, v.Aliases...) {
			key := strings.ToLower(strings.TrimSpace(a))
			if j, ok := e.byAlias[key]; ok && j != i {
				panic(fmt.Sprintf("enum alias %q names both %q and %q", a, values[j].Name, v.Name))
			}
			e.byAlias[key] = i
		}
	}
	return e
}

// Quoted returns a copy of e that writes codes in double quotes.
func (e Enum) Quoted() Enum {
	e.quote = true
	return e
}

// Lookup finds the member matching alias.
func (e Enum) Lookup(alias string) (EnumValue, bool) {
	i, ok := e.byAlias[strings.ToLower(strings.TrimSpace(alias))]
	if !ok {
		return EnumValue{}, false
	}
	return e.values[i], true
}

// Names returns the canonical names in declaration order.
func (e Enum) Names() []string {
	names := make([]string, len(e.values))
	for i, v := range e.values {
		names[i] = v.Name
	}
	return names
}

// Encode returns the code for alias.
func (e Enum) Encode(alias string) (string, error) {
	v, ok := e.Lookup(alias)
	if !ok {
		return "", &ValidationError{
			Value: strconv.Quote(alias),
			Bound: "must be one of " + strings.Join(e.Names(), ", "),
		}
	}
	if e.quote {
		return `"` + v.Code + `"`, nil
	}
	return v.Code, nil
}

// Decode returns the canonical name for a code.
func (e Enum) Decode(resp string) (string, error) {
	code := strings.Trim(strings.TrimSpace(resp), `"'`)
	i, ok := e.byCode[strings.ToUpper(code)]
	if !ok {
		return "", &ParseError{Response: resp, Reason: "unknown code"}
	}
	return e.values[i].Name, nil
}

// Float is a real-valued codec. Bounds are inclusive unless Exclusive is set.
type Float struct {
	Min, Max  float64
	Exclusive bool
	// Prefix and Suffix are stripped from responses.
	Prefix string
	Suffix string
	// Format overrides the default shortest representation.
	Format func(float64) string
}

// Between returns a Float accepting [lo, hi].
func Between(lo, hi float64) Float { return Float{Min: lo, Max: hi} }

// Unbounded returns a Float accepting any number.
func Unbounded() Float { return Float{Min: math.Inf(-1), Max: math.Inf(1)} }

// Encode validates v against the bounds.
func (f Float) Encode(v float64) (string, error) {
	val := strconv.FormatFloat(v, 'g', -1, 64)
	switch {
	case math.IsNaN(v):
		return "", &ValidationError{Value: val, Bound: "not a number"}
	case f.Exclusive && (v <= f.Min || v >= f.Max):
		return "", &ValidationError{Value: val, Bound: fmt.Sprintf("must be within (%g, %g)", f.Min, f.Max)}
	case v < f.Min:
		return "", &ValidationError{Value: val, Bound: fmt.Sprintf("below minimum %g", f.Min)}
	case v > f.Max:
		return "", &ValidationError{Value: val, Bound: fmt.Sprintf("exceeds maximum %g", f.Max)}
	}
	if f.Format != nil {
		return f.Format(v), nil
	}
	return strconv.FormatFloat(v, 'G', -1, 64), nil
}

// Decode parses a numeric response. NaN and infinities are not numbers an
// instrument reports.
func (f Float) Decode(resp string) (float64, error) {
	s := strings.TrimSpace(resp)
	s = strings.TrimPrefix(s, f.Prefix)
	s = strings.TrimSuffix(s, f.Suffix)
	v, err := parseFinite(strings.TrimSpace(s))
	if err != nil {
		return 0, &ParseError{Response: resp, Reason: "not a number"}
	}
	return v, nil
}

// parseFinite is strconv.ParseFloat without NaN and ±Inf.
func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.Errorf("%q is not finite", s)
	}
	return v, nil
}

// Int is an integer codec with inclusive bounds.
type Int struct {
	Min, Max int
}

// Encode validates v against the bounds.
func (c Int) Encode(v int) (string, error) {
	switch {
	case v < c.Min:
		return "", &ValidationError{Value: strconv.Itoa(v), Bound: fmt.Sprintf("below minimum %d", c.Min)}
	case v > c.Max:
		return "", &ValidationError{Value: strconv.Itoa(v), Bound: fmt.Sprintf("exceeds maximum %d", c.Max)}
	}
	return strconv.Itoa(v), nil
}

// Decode accepts integers and integral reals such as +2.500000E+03.
func (c Int) Decode(resp string) (int, error) {
	s := strings.TrimSpace(resp)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := parseFinite(s)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, &ParseError{Response: resp, Reason: "not an integer"}
	}
	return int(f), nil
}

// Bool is an on/off codec. True and False are the tokens written.
type Bool struct {
	True, False string
}

// OnOff writes ON and OFF.
var OnOff = Bool{True: "ON", False: "OFF"}

// OneZero writes 1 and 0.
var OneZero = Bool{True: "1", False: "0"}

// Encode returns the token for v.
func (b Bool) Encode(v bool) (string, error) {
	if v {
		return b.True, nil
	}
	return b.False, nil
}

// Decode accepts 1/0 and ON/OFF as well as the codec's own tokens.
func (b Bool) Decode(resp string) (bool, error) {
	s := strings.ToUpper(strings.TrimSpace(resp))
	switch s {
	case "1", "ON", strings.ToUpper(b.True):
		return true, nil
	case "0", "OFF", strings.ToUpper(b.False):
		return false, nil
	}
	return false, &ParseError{Response: resp, Reason: "not a boolean"}
}

// FindParam returns the param in params whose name matches name, ignoring
// case and treating '_' and '-' as spaces.
func FindParam(params []Param, name string) (Param, bool) {
	norm := func(s string) string {
		return strings.ToLower(strings.NewReplacer("_", " ", "-", " ").Replace(strings.TrimSpace(s)))
	}
	name = norm(name)
	for _, p := range params {
		if norm(p.String()) == name {
			return p, true
		}
	}
	return nil, false
}
