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

package transform

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToString(t *testing.T) {
	tests := []struct {
		name     string
		value    interface{}
		expected string
		wantErr  bool
	}{
		{"string", "THS-001", "THS-001", false},
		{"integral float", float64(12), "12.0", false},
		{"fractional float", 1.5, "1.5", false},
		{"negative float", -3.0, "-3.0", false},
		{"large float", 1e16, "1e+16", false},
		{"small float", 0.00001, "1e-05", false},
		{"float32", float32(2), "2.0", false},
		{"json number", json.Number("42"), "42", false},
		{"json decimal", json.Number("1.0"), "1.0", false},
		{"json exponent", json.Number("1e2"), "100.0", false},
		{"int", 7, "7", false},
		{"nil", nil, "", true},
		{"bool", true, "", true},
		{"map", map[string]interface{}{"a": 1}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToString(tt.value)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrNotCoercible)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestToFloat64(t *testing.T) {
	tests := []struct {
		name     string
		value    interface{}
		expected float64
		wantErr  bool
	}{
		{"float", 21.5, 21.5, false},
		{"int", 20, 20, false},
		{"json number", json.Number("65.2"), 65.2, false},
		{"numeric string", " 30.1 ", 30.1, false},
		{"garbage string", "warm", 0, true},
		{"nan string", "NaN", 0, true},
		{"infinity", math.Inf(1), 0, true},
		{"nil", nil, 0, true},
		{"bool", false, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToFloat64(tt.value)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNotCoercible)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 1e-9)
		})
	}
}

func TestToInt32(t *testing.T) {
	tests := []struct {
		name     string
		value    interface{}
		expected int32
		wantErr  bool
	}{
		{"json number", json.Number("87"), 87, false},
		{"json fractional number truncates", json.Number("87.9"), 87, false},
		{"float truncates", 91.7, 91, false},
		{"int string", "95", 95, false},
		{"fractional string", "95.5", 0, true},
		{"overflow", float64(math.MaxInt32) + 1, 0, true},
		{"overflow string", "9999999999", 0, true},
		{"nil", nil, 0, true},
		{"slice", []interface{}{1}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToInt32(tt.value)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNotCoercible)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestToMap(t *testing.T) {
	m, ok := ToMap(map[string]interface{}{"latitude": 1.0})
	assert.True(t, ok)
	assert.Contains(t, m, "latitude")

	_, ok = ToMap("not a map")
	assert.False(t, ok)

	var nilMap map[string]interface{}
	_, ok = ToMap(nilMap)
	assert.False(t, ok)
}
