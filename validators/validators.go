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

// validators.go - Sensor reading validation and normalization
package validators

import (
	"sync"

	"github.com/aaronlmathis/sensorload/core"
	"github.com/aaronlmathis/sensorload/transform"
)

// requiredFields lists the top-level fields in the order they are checked.
var requiredFields = []string{
	core.FieldSensorID,
	core.FieldTimestamp,
	core.FieldTemperature,
	core.FieldHumidity,
	core.FieldLocation,
	core.FieldBatteryLevel,
}

// Step is one predicate+coercion stage of reading validation.
// Apply inspects raw and fills the fields of out it is responsible for.
// A non-nil result stops the chain for that record.
type Step struct {
	Name  string
	Apply func(raw core.RawRecord, out *core.Reading) *core.ValidationError
}

// ValidatorStats holds counters about validated records.
type ValidatorStats struct {
	Checked         int64            // Records passed to Validate
	Accepted        int64            // Records that produced a Reading
	Rejected        int64            // Records dropped
	FailuresByField map[string]int64 // Rejections keyed by the first failing field
}

// ValidatorOptions configures the reading validator.
type ValidatorOptions struct {
	MaxSensorIDLength int     // Longest accepted sensor id (varchar width of the column)
	MinLatitude       float64 // Inclusive latitude bounds
	MaxLatitude       float64
	MinLongitude      float64 // Inclusive longitude bounds
	MaxLongitude      float64
}

// ValidatorOption represents a configuration function for ValidatorOptions.
type ValidatorOption func(*ValidatorOptions)

// WithMaxSensorIDLength sets the longest accepted sensor id.
func WithMaxSensorIDLength(n int) ValidatorOption {
	return func(opts *ValidatorOptions) {
		opts.MaxSensorIDLength = n
	}
}

// ReadingValidator turns RawRecords into core.Readings by running an ordered list of steps.
// The steps are pure; only the counters are shared, so Validate is safe for concurrent use.
type ReadingValidator struct {
	steps []Step
	stats ValidatorStats
	mu    sync.Mutex
}

// NewReadingValidator creates a validator with the default step chain.
func NewReadingValidator(options ...ValidatorOption) *ReadingValidator {
	opts := ValidatorOptions{
		MaxSensorIDLength: 50,
		MinLatitude:       -90,
		MaxLatitude:       90,
		MinLongitude:      -180,
		MaxLongitude:      180,
	}
	for _, option := range options {
		option(&opts)
	}

	return &ReadingValidator{
		steps: DefaultSteps(opts),
		stats: ValidatorStats{FailuresByField: make(map[string]int64)},
	}
}

// Validate runs every step left to right and stops at the first failure.
// The returned error, when non-nil, is always a *core.ValidationError.
func (v *ReadingValidator) Validate(raw core.RawRecord) (core.Reading, error) {
	var reading core.Reading
	for _, step := range v.steps {
		if verr := step.Apply(raw, &reading); verr != nil {
			v.record(verr)
			return core.Reading{}, verr
		}
	}
	v.record(nil)
	return reading, nil
}

// Stats returns a copy of the validation counters.
func (v *ReadingValidator) Stats() ValidatorStats {
	v.mu.Lock()
	defer v.mu.Unlock()

	statsCopy := v.stats
	statsCopy.FailuresByField = make(map[string]int64, len(v.stats.FailuresByField))
	for k, n := range v.stats.FailuresByField {
		statsCopy.FailuresByField[k] = n
	}
	return statsCopy
}

func (v *ReadingValidator) record(verr *core.ValidationError) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.stats.Checked++
	if verr == nil {
		v.stats.Accepted++
		return
	}
	v.stats.Rejected++
	v.stats.FailuresByField[verr.Field]++
}

// DefaultSteps returns the validation chain:
// presence, location shape, identifiers, measurements, coordinates, battery level.
func DefaultSteps(opts ValidatorOptions) []Step {
	return []Step{
		{Name: "presence", Apply: checkPresence},
		{Name: "location", Apply: checkLocation},
		{Name: "identifiers", Apply: identifiers(opts.MaxSensorIDLength)},
		{Name: "measurements", Apply: measurements},
		{Name: "coordinates", Apply: coordinates(opts)},
		{Name: "battery", Apply: battery},
	}
}

func checkPresence(raw core.RawRecord, _ *core.Reading) *core.ValidationError {
	for _, field := range requiredFields {
		if _, ok := raw[field]; !ok {
			return &core.ValidationError{Field: field, Reason: core.ReasonMissing}
		}
	}
	return nil
}

func checkLocation(raw core.RawRecord, _ *core.Reading) *core.ValidationError {
	loc, ok := transform.ToMap(raw[core.FieldLocation])
	if !ok {
		return &core.ValidationError{Field: core.FieldLocation, Value: raw[core.FieldLocation], Reason: core.ReasonNotCoercible}
	}
	for _, field := range []string{core.FieldLatitude, core.FieldLongitude} {
		if _, ok := loc[field]; !ok {
			return &core.ValidationError{Field: field, Reason: core.ReasonMissing}
		}
	}
	return nil
}

func identifiers(maxLen int) func(core.RawRecord, *core.Reading) *core.ValidationError {
	return func(raw core.RawRecord, out *core.Reading) *core.ValidationError {
		id, err := transform.ToString(raw[core.FieldSensorID])
		if err != nil || id == "" {
			return &core.ValidationError{Field: core.FieldSensorID, Value: raw[core.FieldSensorID], Reason: core.ReasonNotCoercible}
		}
		if maxLen > 0 && len(id) > maxLen {
			return &core.ValidationError{Field: core.FieldSensorID, Value: id, Reason: core.ReasonOutOfRange}
		}

		// The timestamp is handed to the database as-is; it only has to be text.
		ts, ok := raw[core.FieldTimestamp].(string)
		if !ok || ts == "" {
			return &core.ValidationError{Field: core.FieldTimestamp, Value: raw[core.FieldTimestamp], Reason: core.ReasonNotCoercible}
		}

		out.SensorID = id
		out.Timestamp = ts
		return nil
	}
}

func measurements(raw core.RawRecord, out *core.Reading) *core.ValidationError {
	temp, err := transform.ToFloat64(raw[core.FieldTemperature])
	if err != nil {
		return &core.ValidationError{Field: core.FieldTemperature, Value: raw[core.FieldTemperature], Reason: core.ReasonNotCoercible}
	}
	hum, err := transform.ToFloat64(raw[core.FieldHumidity])
	if err != nil {
		return &core.ValidationError{Field: core.FieldHumidity, Value: raw[core.FieldHumidity], Reason: core.ReasonNotCoercible}
	}
	out.Temperature = temp
	out.Humidity = hum
	return nil
}

func coordinates(opts ValidatorOptions) func(core.RawRecord, *core.Reading) *core.ValidationError {
	return func(raw core.RawRecord, out *core.Reading) *core.ValidationError {
		loc, _ := transform.ToMap(raw[core.FieldLocation])

		lat, err := transform.ToFloat64(loc[core.FieldLatitude])
		if err != nil {
			return &core.ValidationError{Field: core.FieldLatitude, Value: loc[core.FieldLatitude], Reason: core.ReasonNotCoercible}
		}
		lon, err := transform.ToFloat64(loc[core.FieldLongitude])
		if err != nil {
			return &core.ValidationError{Field: core.FieldLongitude, Value: loc[core.FieldLongitude], Reason: core.ReasonNotCoercible}
		}
		if lat < opts.MinLatitude || lat > opts.MaxLatitude {
			return &core.ValidationError{Field: core.FieldLatitude, Value: lat, Reason: core.ReasonOutOfRange}
		}
		if lon < opts.MinLongitude || lon > opts.MaxLongitude {
			return &core.ValidationError{Field: core.FieldLongitude, Value: lon, Reason: core.ReasonOutOfRange}
		}

		out.Latitude = lat
		out.Longitude = lon
		return nil
	}
}

func battery(raw core.RawRecord, out *core.Reading) *core.ValidationError {
	level, err := transform.ToInt32(raw[core.FieldBatteryLevel])
	if err != nil {
		return &core.ValidationError{Field: core.FieldBatteryLevel, Value: raw[core.FieldBatteryLevel], Reason: core.ReasonNotCoercible}
	}
	out.BatteryLevel = level
	return nil
}
