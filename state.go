// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package labdrivers

import "fmt"

// State is the lifecycle state of an instrument client.
type State int

// Client states. Open moves Disconnected to Connected, a successful write moves
// Connected to Configured, starting a buffered measurement moves to Acquiring
// and draining it returns to Configured. Close returns to Disconnected from
// any state.
const (
	Disconnected State = iota
	Connected
	Configured
	Acquiring
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Configured:
		return "configured"
	case Acquiring:
		return "acquiring"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Open reports whether a session exists in state s.
func (s State) Open() bool { return s != Disconnected }
