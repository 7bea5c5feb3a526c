// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package sr830

import (
	"strconv"
	"strings"

	"github.com/gotmc/labdrivers"
)

type ev = labdrivers.EnumValue

// indexed builds an enum whose codes are the positions of names. Each name
// is also accepted with its spaces removed.
func indexed(names ...string) labdrivers.Enum {
	values := make([]ev, len(names))
	for i, n := range names {
		var aliases []string
		if compact := strings.ReplaceAll(n, " ", ""); compact != n {
			aliases = append(aliases, compact)
		}
		values[i] = ev{Code: strconv.Itoa(i), Name: n, Aliases: aliases}
	}
	return labdrivers.NewEnum(values...)
}

var (
	inputs = labdrivers.NewEnum(
		ev{Code: "0", Name: "A"},
		ev{Code: "1", Name: "A-B", Aliases: []string{"differential", "diff"}},
		ev{Code: "2", Name: "I (1 MOhm)", Aliases: []string{"i1", "i1m", "i1mohm"}},
		ev{Code: "3", Name: "I (100 MOhm)", Aliases: []string{"i100", "i100m", "i100mohm"}},
	)
	reserves = labdrivers.NewEnum(
		ev{Code: "0", Name: "high reserve", Aliases: []string{"hi", "high"}},
		ev{Code: "1", Name: "normal"},
		ev{Code: "2", Name: "low noise", Aliases: []string{"lo", "low"}},
	)
	slopes = labdrivers.NewEnum(
		ev{Code: "0", Name: "6 dB/oct", Aliases: []string{"6"}},
		ev{Code: "1", Name: "12 dB/oct", Aliases: []string{"12"}},
		ev{Code: "2", Name: "18 dB/oct", Aliases: []string{"18"}},
		ev{Code: "3", Name: "24 dB/oct", Aliases: []string{"24"}},
	)
	timeConstants = indexed(
		"10 us", "30 us", "100 us", "300 us",
		"1 ms", "3 ms", "10 ms", "30 ms", "100 ms", "300 ms",
		"1 s", "3 s", "10 s", "30 s", "100 s", "300 s",
		"1 ks", "3 ks", "10 ks", "30 ks",
	)
	sensitivities = indexed(
		"2 nV/fA", "5 nV/fA", "10 nV/fA", "20 nV/fA", "50 nV/fA", "100 nV/fA", "200 nV/fA", "500 nV/fA",
		"1 uV/pA", "2 uV/pA", "5 uV/pA", "10 uV/pA", "20 uV/pA", "50 uV/pA", "100 uV/pA", "200 uV/pA", "500 uV/pA",
		"1 mV/nA", "2 mV/nA", "5 mV/nA", "10 mV/nA", "20 mV/nA", "50 mV/nA", "100 mV/nA", "200 mV/nA", "500 mV/nA",
		"1 V/uA",
	)
	sampleRates = indexed(
		"62.5 mHz", "125 mHz", "250 mHz", "500 mHz",
		"1 Hz", "2 Hz", "4 Hz", "8 Hz", "16 Hz", "32 Hz", "64 Hz", "128 Hz", "256 Hz", "512 Hz",
		"trigger",
	)
	refSources  = indexed("external", "internal")
	couplings   = indexed("AC", "DC")
	grounds     = indexed("float", "ground")
	lineFilters = indexed("none", "line", "2x line", "both")
	endModes    = labdrivers.NewEnum(
		ev{Code: "0", Name: "one shot", Aliases: []string{"shot"}},
		ev{Code: "1", Name: "loop"},
	)
)

// BufferSize is the number of points each data buffer channel holds.
const BufferSize = 16383

// Settings of the SR830.
var (
	Frequency = labdrivers.Setting[float64]{
		Name: "frequency", Unit: "Hz", SetCmd: "FREQ %s", GetCmd: "FREQ?", Codec: labdrivers.Between(0.001, 102000),
	}
	Phase = labdrivers.Setting[float64]{
		Name: "phase", Unit: "deg", SetCmd: "PHAS %s", GetCmd: "PHAS?", Codec: labdrivers.Between(-360, 729.99),
	}
	Amplitude = labdrivers.Setting[float64]{
		Name: "amplitude", Unit: "V", SetCmd: "SLVL %s", GetCmd: "SLVL?", Codec: labdrivers.Between(0.004, 5.0),
	}
	Harmonic = labdrivers.Setting[int]{
		Name: "harmonic", SetCmd: "HARM %s", GetCmd: "HARM?", Codec: labdrivers.Int{Min: 1, Max: 19999},
	}
	Input = labdrivers.Setting[string]{
		Name: "input", SetCmd: "ISRC %s", GetCmd: "ISRC?", Codec: inputs,
	}
	Reserve = labdrivers.Setting[string]{
		Name: "reserve", SetCmd: "RMOD %s", GetCmd: "RMOD?", Codec: reserves,
	}
	SyncFilter = labdrivers.Setting[bool]{
		Name: "sync filter", SetCmd: "SYNC %s", GetCmd: "SYNC?", Codec: labdrivers.OneZero,
	}
	LowPassSlope = labdrivers.Setting[string]{
		Name: "low pass slope", SetCmd: "OFSL %s", GetCmd: "OFSL?", Codec: slopes,
	}
	TimeConstant = labdrivers.Setting[string]{
		Name: "time constant", SetCmd: "OFLT %s", GetCmd: "OFLT?", Codec: timeConstants,
	}
	Sensitivity = labdrivers.Setting[string]{
		Name: "sensitivity", SetCmd: "SENS %s", GetCmd: "SENS?", Codec: sensitivities,
	}
	ReferenceSource = labdrivers.Setting[string]{
		Name: "reference source", SetCmd: "FMOD %s", GetCmd: "FMOD?", Codec: refSources,
	}
	InputCoupling = labdrivers.Setting[string]{
		Name: "input coupling", SetCmd: "ICPL %s", GetCmd: "ICPL?", Codec: couplings,
	}
	InputGround = labdrivers.Setting[string]{
		Name: "input ground", SetCmd: "IGND %s", GetCmd: "IGND?", Codec: grounds,
	}
	LineFilter = labdrivers.Setting[string]{
		Name: "line filter", SetCmd: "ILIN %s", GetCmd: "ILIN?", Codec: lineFilters,
	}
	SampleRate = labdrivers.Setting[string]{
		Name: "sample rate", SetCmd: "SRAT %s", GetCmd: "SRAT?", Codec: sampleRates,
	}
	BufferMode = labdrivers.Setting[string]{
		Name: "buffer mode", SetCmd: "SEND %s", GetCmd: "SEND?", Codec: endModes,
	}
	PointsStored = labdrivers.Setting[int]{
		Name: "points stored", GetCmd: "SPTS?", Codec: labdrivers.Int{Min: 0, Max: BufferSize},
	}
)

// Params lists the settings addressable by name.
func Params() []labdrivers.Param {
	return []labdrivers.Param{
		Frequency, Phase, Amplitude, Harmonic, Input, Reserve, SyncFilter, LowPassSlope,
		TimeConstant, Sensitivity, ReferenceSource, InputCoupling, InputGround, LineFilter,
		SampleRate, BufferMode, PointsStored,
	}
}

// TimeConstants returns the time constant names in code order.
func TimeConstants() []string { return timeConstants.Names() }

// Sensitivities returns the sensitivity names in code order.
func Sensitivities() []string { return sensitivities.Names() }
