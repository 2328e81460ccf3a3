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

package readers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyFilter(t *testing.T) {
	f := keyFilter{Prefix: "in/", Suffix: ".json", ProcessedPrefix: "processed/"}

	tests := []struct {
		key  string
		want bool
	}{
		{"in/a.json", true},
		{"in/nested/a.json", true},
		{"in/", false},
		{"in/a.csv", false},
		{"out/a.json", false},
		{"processed/a.json", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, f.include(tt.key), tt.key)
	}

	assert.False(t, keyFilter{ProcessedPrefix: "processed/"}.include("processed/in/a.json"))
	assert.True(t, keyFilter{}.include("a.json"))
}

func TestProcessedKey(t *testing.T) {
	assert.Equal(t, "processed/a.json", processedKey("processed/", "a.json"))
	assert.Equal(t, "processed/a.json", processedKey("processed/", "in/2024/a.json"))
}

func TestCopySource(t *testing.T) {
	assert.Equal(t, "bucket/in/a.json", copySource("bucket", "in/a.json"))
	assert.Equal(t, "bucket/in/sensor%20data.json", copySource("bucket", "in/sensor data.json"))
}
