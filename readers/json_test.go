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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/sensorload/core"
)

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int
		wantErr bool
	}{
		{"bare array", `[{"sensor_id":"THS-001"},{"sensor_id":"THS-002"}]`, 2, false},
		{"wrapped array", `{"measurements":[{"sensor_id":"THS-001"}]}`, 1, false},
		{"empty array", `[]`, 0, false},
		{"whitespace around", " \n[{\"sensor_id\":\"a\"}]\n ", 1, false},
		{"truncated", `[{"sensor_id":`, 0, true},
		{"scalar", `42`, 0, true},
		{"object without measurements", `{"readings":[]}`, 0, true},
		{"trailing data", `[] []`, 0, true},
		{"empty body", ``, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := DecodeJSON("k.json", []byte(tt.body))
			if tt.wantErr {
				var parseErr *core.ParseError
				require.ErrorAs(t, err, &parseErr)
				assert.Equal(t, "k.json", parseErr.Key)
				return
			}
			require.NoError(t, err)
			assert.Len(t, records, tt.want)
		})
	}
}

func TestDecodeJSONKeepsNumbers(t *testing.T) {
	records, err := DecodeJSON("k.json", []byte(`[{"battery_level":87,"temperature":22.5}]`))
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, json.Number("87"), records[0]["battery_level"])
	assert.Equal(t, json.Number("22.5"), records[0]["temperature"])
}

func TestDecodeJSONNonObjectElements(t *testing.T) {
	records, err := DecodeJSON("k.json", []byte(`[{"sensor_id":"a"}, 3, "x", null]`))
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.NotNil(t, records[0])
	assert.Nil(t, records[1])
	assert.Nil(t, records[2])
	assert.Nil(t, records[3])
}

func TestDecodeJSONLines(t *testing.T) {
	body := "{\"sensor_id\":\"a\"}\n\n{\"sensor_id\":\"b\"}\n"
	records, err := DecodeJSONLines("k.jsonl", []byte(body))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "b", records[1]["sensor_id"])

	_, err = DecodeJSONLines("k.jsonl", []byte("{\"sensor_id\":\"a\"}\nnot json\n"))
	var parseErr *core.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, parseErr.Error(), "line 2")
}

func TestDecodeObjectDispatch(t *testing.T) {
	records, err := DecodeObject("a/b.JSONL", []byte(`{"sensor_id":"a"}`))
	require.NoError(t, err)
	assert.Len(t, records, 1)

	records, err = DecodeObject("a/b.json", []byte(`[{"sensor_id":"a"}]`))
	require.NoError(t, err)
	assert.Len(t, records, 1)

	_, err = DecodeObject("a/b.parquet", []byte(`not parquet`))
	var parseErr *core.ParseError
	assert.ErrorAs(t, err, &parseErr)
}
