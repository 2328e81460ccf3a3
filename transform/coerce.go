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
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Package transform provides the value coercions used to normalize raw sensor readings.
//
// Decoded JSON carries numbers as float64 or json.Number, and upstream producers
// occasionally quote numbers. Each helper accepts those shapes and rejects the rest.

// ErrNotCoercible is returned when a value cannot be converted to the requested type.
var ErrNotCoercible = errors.New("value not coercible")

// ToString converts a scalar to its string form.
// Floats always carry a fraction or exponent, so 1.0 becomes "1.0" and an
// integral JSON number stays "1". nil, maps, slices and booleans are rejected.
func ToString(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case json.Number:
		if !strings.ContainsAny(v.String(), ".eE") {
			return v.String(), nil
		}
		f, err := v.Float64()
		if err != nil {
			return "", fmt.Errorf("%w: %q to string", ErrNotCoercible, v)
		}
		return floatString(f, 64), nil
	case float64:
		return floatString(v, 64), nil
	case float32:
		return floatString(float64(v), 32), nil
	case int:
		return strconv.Itoa(v), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	default:
		return "", fmt.Errorf("%w: %T to string", ErrNotCoercible, value)
	}
}

// floatString formats f in shortest round-trip form. Magnitudes from 1e-4 up
// to 1e16 are written in plain notation with at least one fractional digit.
func floatString(f float64, bitSize int) string {
	abs := math.Abs(f)
	if math.IsNaN(f) || (abs != 0 && (abs < 1e-4 || abs >= 1e16)) {
		return strconv.FormatFloat(f, 'g', -1, bitSize)
	}
	s := strconv.FormatFloat(f, 'f', -1, bitSize)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// ToFloat64 converts a number or numeric string to a finite float64.
func ToFloat64(value interface{}) (float64, error) {
	var (
		f   float64
		err error
	)

	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		f, err = v.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return 0, fmt.Errorf("%w: %T to float64", ErrNotCoercible, value)
	}

	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNotCoercible, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: non-finite %v", ErrNotCoercible, f)
	}
	return f, nil
}

// ToInt32 converts a number or integer string to int32.
// Fractional numbers are truncated toward zero; fractional strings are rejected.
func ToInt32(value interface{}) (int32, error) {
	var n int64

	switch v := value.(type) {
	case int:
		n = int64(v)
	case int32:
		return v, nil
	case int64:
		n = v
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%w: non-finite %v", ErrNotCoercible, v)
		}
		if v > math.MaxInt32 || v < math.MinInt32 {
			return 0, fmt.Errorf("%w: %v overflows int32", ErrNotCoercible, v)
		}
		n = int64(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			n = i
			break
		}
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrNotCoercible, err)
		}
		return ToInt32(f)
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrNotCoercible, err)
		}
		n = i
	default:
		return 0, fmt.Errorf("%w: %T to int32", ErrNotCoercible, value)
	}

	if n > math.MaxInt32 || n < math.MinInt32 {
		return 0, fmt.Errorf("%w: %d overflows int32", ErrNotCoercible, n)
	}
	return int32(n), nil
}

// ToMap returns value as a string-keyed map, the shape of a decoded JSON object.
func ToMap(value interface{}) (map[string]interface{}, bool) {
	switch v := value.(type) {
	case map[string]interface{}:
		return v, v != nil
	default:
		return nil, false
	}
}
