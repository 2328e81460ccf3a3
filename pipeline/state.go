//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of sensorload.
//
// sensorload is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// sensorload is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with sensorload. If not, see https://www.gnu.org/licenses/.

package pipeline

// State is a step of the run state machine.
type State int

const (
	StateIdle State = iota
	StateSchemaReady
	StateListing
	StateFetching
	StateValidating
	StateInserting
	StateMarking
	StateDone
	StateFatal
)

var stateNames = [...]string{
	StateIdle:        "idle",
	StateSchemaReady: "schema_ready",
	StateListing:     "listing",
	StateFetching:    "fetching",
	StateValidating:  "validating",
	StateInserting:   "inserting",
	StateMarking:     "marking",
	StateDone:        "done",
	StateFatal:       "fatal",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
