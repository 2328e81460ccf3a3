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

import (
	"sort"
	"time"

	"github.com/aaronlmathis/sensorload/core"
)

// timestampLayouts are tried in order when reading a reading's timestamp.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses an ISO-8601 reading timestamp. Timestamps without a
// zone are taken as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

type sensorGroup struct {
	count       CountAggregator
	temperature AvgAggregator
	humidity    AvgAggregator
	battery     MinAggregator
	last        time.Time
}

func newSensorGroup() *sensorGroup {
	return &sensorGroup{
		temperature: AvgAggregator{Field: Temperature},
		humidity:    AvgAggregator{Field: Humidity},
		battery:     MinAggregator{Field: BatteryLevel},
	}
}

func (g *sensorGroup) add(r core.Reading) {
	g.count.Add(r)
	g.temperature.Add(r)
	g.humidity.Add(r)
	g.battery.Add(r)
	if t, ok := ParseTimestamp(r.Timestamp); ok && t.After(g.last) {
		g.last = t
	}
}

// BySensor groups committed readings by sensor id. It is the in-process
// counterpart of the per-sensor report query, scoped to one run.
// A BySensor is not safe for concurrent use.
type BySensor struct {
	groups map[string]*sensorGroup
}

// NewBySensor creates an empty grouping.
func NewBySensor() *BySensor {
	return &BySensor{groups: make(map[string]*sensorGroup)}
}

// Add folds one reading into its sensor's group.
func (b *BySensor) Add(r core.Reading) {
	g, ok := b.groups[r.SensorID]
	if !ok {
		g = newSensorGroup()
		b.groups[r.SensorID] = g
	}
	g.add(r)
}

// AddBatch folds every reading of a committed batch.
func (b *BySensor) AddBatch(batch core.Batch) {
	for _, r := range batch {
		b.Add(r)
	}
}

// Len returns the number of distinct sensors seen.
func (b *BySensor) Len() int {
	return len(b.groups)
}

// Result returns one entry per sensor, ordered by sensor id.
func (b *BySensor) Result() []core.SensorStats {
	if len(b.groups) == 0 {
		return nil
	}
	out := make([]core.SensorStats, 0, len(b.groups))
	for id, g := range b.groups {
		out = append(out, core.SensorStats{
			SensorID:        id,
			Measurements:    int64(g.count.Result()),
			AvgTemperature:  g.temperature.Result(),
			AvgHumidity:     g.humidity.Result(),
			MinBatteryLevel: int32(g.battery.Result()),
			LastTimestamp:   g.last,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SensorID < out[j].SensorID })
	return out
}

// Reset drops every group.
func (b *BySensor) Reset() {
	b.groups = make(map[string]*sensorGroup)
}
