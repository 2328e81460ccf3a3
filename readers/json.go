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
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aaronlmathis/sensorload/core"
)

// measurementsKey is the wrapper field some producers put around the array.
const measurementsKey = "measurements"

// DecodeJSON decodes an object payload holding a JSON array of readings.
// Both a bare array and the wrapped {"measurements": [...]} form are accepted.
// Numbers are kept as json.Number so integers survive unchanged.
// Array elements that are not JSON objects decode to a nil RawRecord, which
// validation rejects.
func DecodeJSON(key string, body []byte) ([]core.RawRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var payload interface{}
	if err := dec.Decode(&payload); err != nil {
		return nil, &core.ParseError{Key: key, Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &core.ParseError{Key: key, Err: errors.New("unexpected data after top-level value")}
	}

	var items []interface{}
	switch v := payload.(type) {
	case []interface{}:
		items = v
	case map[string]interface{}:
		wrapped, ok := v[measurementsKey].([]interface{})
		if !ok {
			return nil, &core.ParseError{Key: key, Err: fmt.Errorf("object payload without %q array", measurementsKey)}
		}
		items = wrapped
	default:
		return nil, &core.ParseError{Key: key, Err: fmt.Errorf("payload is %T, want array", payload)}
	}

	records := make([]core.RawRecord, len(items))
	for i, item := range items {
		if m, ok := item.(map[string]interface{}); ok {
			records[i] = core.RawRecord(m)
		}
	}
	return records, nil
}

// DecodeJSONLines decodes line-delimited JSON, one reading per line.
// Blank lines are skipped; any malformed line fails the whole object.
func DecodeJSONLines(key string, body []byte) ([]core.RawRecord, error) {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var records []core.RawRecord
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}

		dec := json.NewDecoder(bytes.NewReader(text))
		dec.UseNumber()
		var record core.RawRecord
		if err := dec.Decode(&record); err != nil {
			return nil, &core.ParseError{Key: key, Err: fmt.Errorf("line %d: %w", line, err)}
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, &core.ParseError{Key: key, Err: err}
	}
	return records, nil
}
