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

package aggregate

import "github.com/aaronlmathis/sensorload/core"

// Aggregator folds readings into a single value.
type Aggregator interface {
	// Add processes one reading.
	Add(r core.Reading)
	// Result returns the aggregated value.
	Result() float64
	// Reset clears the aggregator state for reuse.
	Reset()
}

// Field extracts a numeric value from a reading.
type Field func(r core.Reading) float64

// Reading fields usable with the numeric aggregators.
var (
	Temperature  Field = func(r core.Reading) float64 { return r.Temperature }
	Humidity     Field = func(r core.Reading) float64 { return r.Humidity }
	BatteryLevel Field = func(r core.Reading) float64 { return float64(r.BatteryLevel) }
)

// CountAggregator counts readings
type CountAggregator struct {
	count int64
}

func (c *CountAggregator) Add(core.Reading) { c.count++ }

func (c *CountAggregator) Result() float64 { return float64(c.count) }

func (c *CountAggregator) Reset() { c.count = 0 }

// SumAggregator sums a field
type SumAggregator struct {
	Field Field
	sum   float64
}

func (s *SumAggregator) Add(r core.Reading) { s.sum += s.Field(r) }

func (s *SumAggregator) Result() float64 { return s.sum }

func (s *SumAggregator) Reset() { s.sum = 0 }

// AvgAggregator averages a field
type AvgAggregator struct {
	Field Field
	sum   float64
	count int64
}

func (a *AvgAggregator) Add(r core.Reading) {
	a.sum += a.Field(r)
	a.count++
}

// Result returns 0 when nothing was added.
func (a *AvgAggregator) Result() float64 {
	if a.count == 0 {
		return 0
	}
	return a.sum / float64(a.count)
}

func (a *AvgAggregator) Reset() {
	a.sum = 0
	a.count = 0
}

// MinAggregator finds the minimum of a field
type MinAggregator struct {
	Field Field
	min   float64
	set   bool
}

func (m *MinAggregator) Add(r core.Reading) {
	if v := m.Field(r); !m.set || v < m.min {
		m.min = v
		m.set = true
	}
}

func (m *MinAggregator) Result() float64 { return m.min }

func (m *MinAggregator) Reset() {
	m.min = 0
	m.set = false
}

// MaxAggregator finds the maximum of a field
type MaxAggregator struct {
	Field Field
	max   float64
	set   bool
}

func (m *MaxAggregator) Add(r core.Reading) {
	if v := m.Field(r); !m.set || v > m.max {
		m.max = v
		m.set = true
	}
}

func (m *MaxAggregator) Result() float64 { return m.max }

func (m *MaxAggregator) Reset() {
	m.max = 0
	m.set = false
}
