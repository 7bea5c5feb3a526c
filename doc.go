// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package labdrivers is the command/response core for laboratory instrument
// drivers.
//
// A Session moves command strings to one instrument and returns its replies.
// Sessions come from an Opener, such as a Prologix GPIB controller or a TCP
// dialer, handed to each client at construction. A Conn owns one Session,
// serializes exchanges on it and tracks the client lifecycle. Instrument
// settings are described by Setting values whose codecs validate input before
// anything is sent and parse replies into typed values.
//
// Drivers for individual instruments live in subpackages, e.g.
// keithley/k2400 and srs/sr830.
package labdrivers
