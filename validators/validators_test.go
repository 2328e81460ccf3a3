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

package validators

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/sensorload/core"
)

func validRaw() core.RawRecord {
	return core.RawRecord{
		"sensor_id":   "THS-001",
		"timestamp":   "2024-01-01T00:00:00Z",
		"temperature": 21.5,
		"humidity":    55.0,
		"location": map[string]interface{}{
			"latitude":  37.7749,
			"longitude": -122.4194,
		},
		"battery_level": json.Number("88"),
	}
}

func without(raw core.RawRecord, field string) core.RawRecord {
	delete(raw, field)
	return raw
}

func with(raw core.RawRecord, field string, value interface{}) core.RawRecord {
	raw[field] = value
	return raw
}

func withLocation(raw core.RawRecord, loc interface{}) core.RawRecord {
	raw["location"] = loc
	return raw
}

func TestReadingValidator_Accepts(t *testing.T) {
	v := NewReadingValidator()

	reading, err := v.Validate(validRaw())
	require.NoError(t, err)

	assert.Equal(t, core.Reading{
		SensorID:     "THS-001",
		Timestamp:    "2024-01-01T00:00:00Z",
		Temperature:  21.5,
		Humidity:     55.0,
		Latitude:     37.7749,
		Longitude:    -122.4194,
		BatteryLevel: 88,
	}, reading)
}

func TestReadingValidator_Coerces(t *testing.T) {
	v := NewReadingValidator()

	raw := validRaw()
	raw["sensor_id"] = float64(17)
	raw["temperature"] = "19.25"
	raw["battery_level"] = 90.0
	raw["location"] = map[string]interface{}{"latitude": "-90", "longitude": json.Number("180")}

	reading, err := v.Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, "17.0", reading.SensorID)
	assert.Equal(t, 19.25, reading.Temperature)
	assert.Equal(t, int32(90), reading.BatteryLevel)
	assert.Equal(t, -90.0, reading.Latitude)
	assert.Equal(t, 180.0, reading.Longitude)
}

func TestReadingValidator_FirstFailingField(t *testing.T) {
	tests := []struct {
		name   string
		raw    core.RawRecord
		field  string
		reason string
	}{
		{"nil record", nil, "sensor_id", core.ReasonMissing},
		{"missing sensor id", without(validRaw(), "sensor_id"), "sensor_id", core.ReasonMissing},
		{"missing battery", without(validRaw(), "battery_level"), "battery_level", core.ReasonMissing},
		{"missing location and battery reports location first", without(without(validRaw(), "battery_level"), "location"), "location", core.ReasonMissing},
		{"location not an object", withLocation(validRaw(), "SF"), "location", core.ReasonNotCoercible},
		{"location missing longitude", withLocation(validRaw(), map[string]interface{}{"latitude": 1.0}), "longitude", core.ReasonMissing},
		{"sensor id null", with(validRaw(), "sensor_id", nil), "sensor_id", core.ReasonNotCoercible},
		{"sensor id too long", with(validRaw(), "sensor_id", strings.Repeat("x", 51)), "sensor_id", core.ReasonOutOfRange},
		{"timestamp not text", with(validRaw(), "timestamp", 1704067200.0), "timestamp", core.ReasonNotCoercible},
		{"temperature garbage", with(validRaw(), "temperature", "hot"), "temperature", core.ReasonNotCoercible},
		{"humidity null", with(validRaw(), "humidity", nil), "humidity", core.ReasonNotCoercible},
		{"bad temperature wins over bad humidity", with(with(validRaw(), "humidity", "x"), "temperature", "y"), "temperature", core.ReasonNotCoercible},
		{"latitude not numeric", withLocation(validRaw(), map[string]interface{}{"latitude": "north", "longitude": 1.0}), "latitude", core.ReasonNotCoercible},
		{"latitude out of range", withLocation(validRaw(), map[string]interface{}{"latitude": 90.5, "longitude": 1.0}), "latitude", core.ReasonOutOfRange},
		{"longitude out of range", withLocation(validRaw(), map[string]interface{}{"latitude": 0.0, "longitude": -180.01}), "longitude", core.ReasonOutOfRange},
		{"battery fractional string", with(validRaw(), "battery_level", "85.5"), "battery_level", core.ReasonNotCoercible},
		{"bad coordinates win over bad battery", with(withLocation(validRaw(), map[string]interface{}{"latitude": 100.0, "longitude": 0.0}), "battery_level", "x"), "latitude", core.ReasonOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewReadingValidator()
			reading, err := v.Validate(tt.raw)
			require.Error(t, err)
			assert.Equal(t, core.Reading{}, reading)

			var verr *core.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, tt.reason, verr.Reason)
		})
	}
}

func TestReadingValidator_Stats(t *testing.T) {
	v := NewReadingValidator()

	_, _ = v.Validate(validRaw())
	_, _ = v.Validate(without(validRaw(), "battery_level"))
	_, _ = v.Validate(without(validRaw(), "battery_level"))

	stats := v.Stats()
	assert.Equal(t, int64(3), stats.Checked)
	assert.Equal(t, int64(1), stats.Accepted)
	assert.Equal(t, int64(2), stats.Rejected)
	assert.Equal(t, int64(2), stats.FailuresByField["battery_level"])

	// The copy is detached from the validator.
	stats.FailuresByField["battery_level"] = 99
	assert.Equal(t, int64(2), v.Stats().FailuresByField["battery_level"])
}

func TestReadingValidator_NumericSensorIDs(t *testing.T) {
	v := NewReadingValidator()

	tests := []struct {
		name     string
		id       interface{}
		expected string
	}{
		{"json integer", json.Number("1"), "1"},
		{"json decimal", json.Number("1.0"), "1.0"},
		{"parquet double", float64(1), "1.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reading, err := v.Validate(with(validRaw(), "sensor_id", tt.id))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, reading.SensorID)
		})
	}
}

func TestReadingValidator_MaxSensorIDLength(t *testing.T) {
	v := NewReadingValidator(WithMaxSensorIDLength(3))

	_, err := v.Validate(validRaw())
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "sensor_id", verr.Field)
	assert.Equal(t, core.ReasonOutOfRange, verr.Reason)
}
