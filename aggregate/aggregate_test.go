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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/sensorload/core"
)

func reading(id, ts string, temp, hum float64, battery int32) core.Reading {
	return core.Reading{
		SensorID:     id,
		Timestamp:    ts,
		Temperature:  temp,
		Humidity:     hum,
		Latitude:     37.7749,
		Longitude:    -122.4194,
		BatteryLevel: battery,
	}
}

func TestFieldAggregators(t *testing.T) {
	readings := []core.Reading{
		reading("THS-001", "2025-06-01T12:00:00Z", 20, 50, 90),
		reading("THS-001", "2025-06-01T12:01:00Z", 30, 70, 85),
		reading("THS-001", "2025-06-01T12:02:00Z", 25, 60, 95),
	}

	tests := []struct {
		name     string
		agg      Aggregator
		expected float64
	}{
		{"count", &CountAggregator{}, 3},
		{"sum temperature", &SumAggregator{Field: Temperature}, 75},
		{"avg humidity", &AvgAggregator{Field: Humidity}, 60},
		{"min battery", &MinAggregator{Field: BatteryLevel}, 85},
		{"max temperature", &MaxAggregator{Field: Temperature}, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, r := range readings {
				tt.agg.Add(r)
			}
			assert.Equal(t, tt.expected, tt.agg.Result())

			tt.agg.Reset()
			assert.Equal(t, 0.0, tt.agg.Result())
		})
	}
}

func TestAvgAggregatorEmpty(t *testing.T) {
	a := &AvgAggregator{Field: Temperature}
	assert.Equal(t, 0.0, a.Result())
}

func TestMinMaxNegative(t *testing.T) {
	min := &MinAggregator{Field: Temperature}
	max := &MaxAggregator{Field: Temperature}
	for _, v := range []float64{-5, -12, -1} {
		min.Add(core.Reading{Temperature: v})
		max.Add(core.Reading{Temperature: v})
	}
	assert.Equal(t, -12.0, min.Result())
	assert.Equal(t, -1.0, max.Result())
}

func TestBySensor(t *testing.T) {
	b := NewBySensor()
	assert.Nil(t, b.Result())

	b.AddBatch(core.Batch{
		reading("THS-002", "2025-06-01T12:00:00Z", 18, 40, 99),
		reading("THS-001", "2025-06-01T12:00:00Z", 20, 50, 90),
		reading("THS-001", "2025-06-01T12:05:00Z", 30, 70, 82),
	})
	b.Add(reading("THS-001", "2025-06-01T11:00:00Z", 25, 60, 88))

	stats := b.Result()
	require.Len(t, stats, 2)
	assert.Equal(t, 2, b.Len())

	first := stats[0]
	assert.Equal(t, "THS-001", first.SensorID)
	assert.Equal(t, int64(3), first.Measurements)
	assert.Equal(t, 25.0, first.AvgTemperature)
	assert.Equal(t, 60.0, first.AvgHumidity)
	assert.Equal(t, int32(82), first.MinBatteryLevel)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC), first.LastTimestamp)

	assert.Equal(t, "THS-002", stats[1].SensorID)
	assert.Equal(t, int64(1), stats[1].Measurements)

	b.Reset()
	assert.Equal(t, 0, b.Len())
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2025-06-01T12:00:00Z", time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), true},
		{"2025-06-01T14:00:00+02:00", time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), true},
		{"2025-06-01T12:00:00.5Z", time.Date(2025, 6, 1, 12, 0, 0, 500000000, time.UTC), true},
		{"2025-06-01T12:00:00", time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), true},
		{"2025-06-01 12:00:00", time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), true},
		{"yesterday", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.True(t, tt.want.Equal(got), "got %v", got)
		})
	}
}
