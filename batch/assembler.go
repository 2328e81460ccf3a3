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

package batch

import "github.com/aaronlmathis/sensorload/core"

// Package batch accumulates validated readings into fixed-size batches.

// DefaultSize is the batch size used when none is configured.
const DefaultSize = 100

// Assembler buffers readings until a batch is full.
// A flushed batch is handed off whole; the assembler starts a new buffer
// so the caller owns the returned slice.
type Assembler struct {
	size int
	buf  core.Batch
}

// NewAssembler creates an assembler producing batches of at most size readings.
// A non-positive size falls back to DefaultSize.
func NewAssembler(size int) *Assembler {
	if size <= 0 {
		size = DefaultSize
	}
	return &Assembler{
		size: size,
		buf:  make(core.Batch, 0, size),
	}
}

// Size returns the configured batch size.
func (a *Assembler) Size() int {
	return a.size
}

// Len returns the number of buffered readings.
func (a *Assembler) Len() int {
	return len(a.buf)
}

// Append adds a reading to the current batch.
func (a *Assembler) Append(r core.Reading) {
	a.buf = append(a.buf, r)
}

// FlushIfFull returns the buffered batch once it has reached the configured size.
func (a *Assembler) FlushIfFull() (core.Batch, bool) {
	if len(a.buf) < a.size {
		return nil, false
	}
	return a.take(), true
}

// FlushRemaining returns whatever is buffered, if anything.
func (a *Assembler) FlushRemaining() (core.Batch, bool) {
	if len(a.buf) == 0 {
		return nil, false
	}
	return a.take(), true
}

// Reset drops any buffered readings.
func (a *Assembler) Reset() {
	a.buf = make(core.Batch, 0, a.size)
}

func (a *Assembler) take() core.Batch {
	out := a.buf
	a.buf = make(core.Batch, 0, a.size)
	return out
}
