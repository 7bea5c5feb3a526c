// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package k2400

import (
	"strings"

	"github.com/gotmc/labdrivers"
)

var (
	sourceTypes = labdrivers.NewEnum(
		labdrivers.EnumValue{Code: "VOLT", Name: "voltage", Aliases: []string{"v", "volts"}},
		labdrivers.EnumValue{Code: "CURR", Name: "current", Aliases: []string{"i", "amps"}},
	)
	measureTypes = labdrivers.NewEnum(
		labdrivers.EnumValue{Code: "VOLT:DC", Name: "voltage", Aliases: []string{"v", "volt"}},
		labdrivers.EnumValue{Code: "CURR:DC", Name: "current", Aliases: []string{"i", "curr"}},
		labdrivers.EnumValue{Code: "RES", Name: "resistance", Aliases: []string{"r", "ohms"}},
	).Quoted()
	sourceModes = labdrivers.NewEnum(
		labdrivers.EnumValue{Code: "FIX", Name: "fixed"},
		labdrivers.EnumValue{Code: "LIST", Name: "list"},
		labdrivers.EnumValue{Code: "SWE", Name: "sweep"},
	)
	offModes = labdrivers.NewEnum(
		labdrivers.EnumValue{Code: "HIMP", Name: "high impedance", Aliases: []string{"himp", "hi-z"}},
		labdrivers.EnumValue{Code: "NORM", Name: "normal"},
		labdrivers.EnumValue{Code: "ZERO", Name: "zero"},
		labdrivers.EnumValue{Code: "GUAR", Name: "guard"},
	)
	resistanceModes = labdrivers.NewEnum(
		labdrivers.EnumValue{Code: "MAN", Name: "manual"},
		labdrivers.EnumValue{Code: "AUTO", Name: "auto"},
	)
	armSources = labdrivers.NewEnum(
		labdrivers.EnumValue{Code: "IMM", Name: "immediate"},
		labdrivers.EnumValue{Code: "TIM", Name: "timer"},
		labdrivers.EnumValue{Code: "MAN", Name: "manual"},
		labdrivers.EnumValue{Code: "BUS", Name: "bus"},
		labdrivers.EnumValue{Code: "TLIN", Name: "trigger link", Aliases: []string{"tlink"}},
		labdrivers.EnumValue{Code: "NST", Name: "nstest"},
		labdrivers.EnumValue{Code: "PST", Name: "pstest"},
		labdrivers.EnumValue{Code: "BST", Name: "bstest"},
	)
	triggerSources = labdrivers.NewEnum(
		labdrivers.EnumValue{Code: "IMM", Name: "immediate"},
		labdrivers.EnumValue{Code: "TLIN", Name: "trigger link", Aliases: []string{"tlink"}},
	)
	traceFeeds = labdrivers.NewEnum(
		labdrivers.EnumValue{Code: "SENS", Name: "sense", Aliases: []string{"sens1"}},
		labdrivers.EnumValue{Code: "CALC", Name: "calc", Aliases: []string{"calc1"}},
		labdrivers.EnumValue{Code: "CALC2", Name: "calc2"},
	)
	feedControls = labdrivers.NewEnum(
		labdrivers.EnumValue{Code: "NEXT", Name: "next"},
		labdrivers.EnumValue{Code: "NEV", Name: "never"},
	)
)

// functionCodec decodes SENS:FUNC:ON? replies, which list every enabled
// function; the last one listed is reported.
type functionCodec struct{ labdrivers.Enum }

func (f functionCodec) Decode(resp string) (string, error) {
	fields := strings.Split(resp, ",")
	return f.Enum.Decode(fields[len(fields)-1])
}

// Instrument limits.
const (
	MaxVoltage = 210.0
	MaxCurrent = 1.05
	MaxPoints  = 2500
)

// Settings of the 2400.
var (
	SourceType = labdrivers.Setting[string]{
		Name: "source type", SetCmd: "SOUR:FUNC:MODE %s", GetCmd: "SOUR:FUNC:MODE?", Codec: sourceTypes,
	}
	MeasureType = labdrivers.Setting[string]{
		Name: "measure type", SetCmd: "SENS:FUNC:ON %s", GetCmd: "SENS:FUNC:ON?", Codec: functionCodec{measureTypes},
	}
	ResistanceMode = labdrivers.Setting[string]{
		Name: "resistance mode", SetCmd: "SENS:RES:MODE %s", GetCmd: "SENS:RES:MODE?", Codec: resistanceModes,
	}
	ResistanceRange = labdrivers.Setting[float64]{
		Name: "resistance range", Unit: "Ohm", SetCmd: "SENS:RES:RANG %s", GetCmd: "SENS:RES:RANG?",
		Codec: labdrivers.Between(0, 210e6),
	}
	VoltageRange = labdrivers.Setting[float64]{
		Name: "voltage range", Unit: "V", SetCmd: "SENS:VOLT:RANG %s", GetCmd: "SENS:VOLT:RANG?",
		Codec: labdrivers.Between(0, MaxVoltage),
	}
	CurrentRange = labdrivers.Setting[float64]{
		Name: "current range", Unit: "A", SetCmd: "SENS:CURR:RANG %s", GetCmd: "SENS:CURR:RANG?",
		Codec: labdrivers.Between(0, MaxCurrent),
	}
	VoltageCompliance = labdrivers.Setting[float64]{
		Name: "voltage compliance", Unit: "V", SetCmd: "SENS:VOLT:PROT:LEV %s", GetCmd: "SENS:VOLT:PROT:LEV?",
		Codec: labdrivers.Between(200e-6, MaxVoltage),
	}
	CurrentCompliance = labdrivers.Setting[float64]{
		Name: "current compliance", Unit: "A", SetCmd: "SENS:CURR:PROT:LEV %s", GetCmd: "SENS:CURR:PROT:LEV?",
		Codec: labdrivers.Between(1e-9, MaxCurrent),
	}
	VoltageTripped = labdrivers.Setting[bool]{
		Name: "voltage compliance tripped", GetCmd: "SENS:VOLT:PROT:TRIP?", Codec: labdrivers.OneZero,
	}
	CurrentTripped = labdrivers.Setting[bool]{
		Name: "current compliance tripped", GetCmd: "SENS:CURR:PROT:TRIP?", Codec: labdrivers.OneZero,
	}
	Output = labdrivers.Setting[bool]{
		Name: "output", SetCmd: "OUTP:STAT %s", GetCmd: "OUTP:STAT?", Codec: labdrivers.OnOff,
	}
	OutputOffMode = labdrivers.Setting[string]{
		Name: "output off mode", SetCmd: "OUTP:SMOD %s", GetCmd: "OUTP:SMOD?", Codec: offModes,
	}
	SourceVoltage = labdrivers.Setting[float64]{
		Name: "source voltage", Unit: "V", SetCmd: "SOUR:VOLT:LEV %s", GetCmd: "SOUR:VOLT:LEV?",
		Codec: labdrivers.Between(-MaxVoltage, MaxVoltage),
	}
	SourceCurrent = labdrivers.Setting[float64]{
		Name: "source current", Unit: "A", SetCmd: "SOUR:CURR:LEV %s", GetCmd: "SOUR:CURR:LEV?",
		Codec: labdrivers.Between(-MaxCurrent, MaxCurrent),
	}
	SourceVoltageRange = labdrivers.Setting[float64]{
		Name: "source voltage range", Unit: "V", SetCmd: "SOUR:VOLT:RANG %s", GetCmd: "SOUR:VOLT:RANG?",
		Codec: labdrivers.Between(0, MaxVoltage),
	}
	SourceCurrentRange = labdrivers.Setting[float64]{
		Name: "source current range", Unit: "A", SetCmd: "SOUR:CURR:RANG %s", GetCmd: "SOUR:CURR:RANG?",
		Codec: labdrivers.Between(0, MaxCurrent),
	}
	SourceVoltageMode = labdrivers.Setting[string]{
		Name: "source voltage mode", SetCmd: "SOUR:VOLT:MODE %s", GetCmd: "SOUR:VOLT:MODE?", Codec: sourceModes,
	}
	SourceCurrentMode = labdrivers.Setting[string]{
		Name: "source current mode", SetCmd: "SOUR:CURR:MODE %s", GetCmd: "SOUR:CURR:MODE?", Codec: sourceModes,
	}
	ArmSource = labdrivers.Setting[string]{
		Name: "arm source", SetCmd: "ARM:SOUR %s", GetCmd: "ARM:SOUR?", Codec: armSources,
	}
	TriggerSource = labdrivers.Setting[string]{
		Name: "trigger source", SetCmd: "TRIG:SOUR %s", GetCmd: "TRIG:SOUR?", Codec: triggerSources,
	}
	TriggerCount = labdrivers.Setting[int]{
		Name: "trigger count", SetCmd: "TRIG:COUN %s", GetCmd: "TRIG:COUN?", Codec: labdrivers.Int{Min: 1, Max: MaxPoints},
	}
	TriggerDelay = labdrivers.Setting[float64]{
		Name: "trigger delay", Unit: "s", SetCmd: "TRIG:DEL %s", GetCmd: "TRIG:DEL?", Codec: labdrivers.Between(0, 999.9999),
	}
	NPLC = labdrivers.Setting[float64]{
		Name: "nplc", SetCmd: "SENS:CURR:NPLC %s", GetCmd: "SENS:CURR:NPLC?", Codec: labdrivers.Between(0.01, 10),
	}
	TracePoints = labdrivers.Setting[int]{
		Name: "trace points", SetCmd: "TRAC:POIN %s", GetCmd: "TRAC:POIN?", Codec: labdrivers.Int{Min: 1, Max: MaxPoints},
	}
	PointsStored = labdrivers.Setting[int]{
		Name: "points stored", GetCmd: "TRAC:POIN:ACT?", Codec: labdrivers.Int{Min: 0, Max: MaxPoints},
	}
	TraceFeed = labdrivers.Setting[string]{
		Name: "trace feed", SetCmd: "TRAC:FEED %s", GetCmd: "TRAC:FEED?", Codec: traceFeeds,
	}
	TraceControl = labdrivers.Setting[string]{
		Name: "trace control", SetCmd: "TRAC:FEED:CONT %s", GetCmd: "TRAC:FEED:CONT?", Codec: feedControls,
	}
)

// Params lists the settings addressable by name.
func Params() []labdrivers.Param {
	return []labdrivers.Param{
		SourceType, MeasureType, ResistanceMode, ResistanceRange, VoltageRange, CurrentRange,
		VoltageCompliance, CurrentCompliance, VoltageTripped, CurrentTripped, Output, OutputOffMode,
		SourceVoltage, SourceCurrent, SourceVoltageRange, SourceCurrentRange, SourceVoltageMode,
		SourceCurrentMode, ArmSource, TriggerSource, TriggerCount, TriggerDelay, NPLC, TracePoints,
		PointsStored, TraceFeed, TraceControl,
	}
}
