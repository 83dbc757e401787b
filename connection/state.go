// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package connection

// State is a Session's place in its OPENING -> OPEN -> SHUTTING_DOWN ->
// CLOSED lifecycle. CLOSED is terminal.
type State int32

const (
	StateOpening State = iota
	StateOpen
	StateShuttingDown
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "OPENING"
	case StateOpen:
		return "OPEN"
	case StateShuttingDown:
		return "SHUTTING_DOWN"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// StateChange is published to a Session's subscribers on every
// transition.
type StateChange struct {
	Old State
	New State
}
