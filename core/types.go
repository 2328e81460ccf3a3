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

package core

import "time"

// Package core defines the shared types for the sensorload pipeline.
//
// sensorload moves sensor readings from JSON objects in an object store into a
// PostgreSQL table. Data flows one way: ObjectSource -> validator -> batch
// assembler -> Sink, driven object by object by the pipeline orchestrator.
//
// This file contains the record, reading, batch and summary types.

// RawRecord is one untyped reading as decoded from a source object.
// Nothing about its contents is guaranteed until it has been validated.
type RawRecord map[string]interface{}

// Field names expected in a RawRecord.
const (
	FieldSensorID     = "sensor_id"
	FieldTimestamp    = "timestamp"
	FieldTemperature  = "temperature"
	FieldHumidity     = "humidity"
	FieldLocation     = "location"
	FieldLatitude     = "latitude"
	FieldLongitude    = "longitude"
	FieldBatteryLevel = "battery_level"
)

// Reading is a validated sensor reading. Every field is present and in range.
// Readings are produced by the validators package and passed by value.
type Reading struct {
	SensorID     string
	Timestamp    string // ISO-8601, passed through unparsed
	Temperature  float64
	Humidity     float64
	Latitude     float64
	Longitude    float64
	BatteryLevel int32
}

// Destination defaults.
const (
	DefaultSchema = "sensors"
	DefaultTable  = "sensor_data"
)

// Batch is an ordered group of readings inserted in one transaction.
type Batch []Reading

// ObjectState is the processing state of a source object.
type ObjectState int

const (
	// Unprocessed objects have not been loaded yet.
	Unprocessed ObjectState = iota
	// Processed objects have been copied into the processed namespace.
	Processed
)

func (s ObjectState) String() string {
	if s == Processed {
		return "processed"
	}
	return "unprocessed"
}

// SourceObject identifies one object in the store.
type SourceObject struct {
	Key          string
	Size         int64
	LastModified time.Time
	State        ObjectState
}

// Outcome describes what happened to one source object during a run.
type Outcome string

const (
	OutcomeLoaded         Outcome = "loaded"
	OutcomeEmpty          Outcome = "empty"
	OutcomeNoValidRecords Outcome = "no_valid_records"
	OutcomeFetchError     Outcome = "fetch_error"
	OutcomeParseError     Outcome = "parse_error"
	OutcomeInsertError    Outcome = "insert_error"
)

// ObjectResult is the per-object line of a run summary.
type ObjectResult struct {
	Key             string        `json:"key" bson:"key"`
	Outcome         Outcome       `json:"outcome" bson:"outcome"`
	RecordsRead     int           `json:"records_read" bson:"records_read"`
	RecordsRejected int           `json:"records_rejected" bson:"records_rejected"`
	RecordsInserted int           `json:"records_inserted" bson:"records_inserted"`
	Batches         int           `json:"batches" bson:"batches"`
	Marked          bool          `json:"marked" bson:"marked"`
	Reason          string        `json:"reason,omitempty" bson:"reason,omitempty"`
	Duration        time.Duration `json:"duration" bson:"duration"`
}

// Skipped reports whether the object contributed no rows.
func (r ObjectResult) Skipped() bool {
	return r.Outcome != OutcomeLoaded
}

// RunSummary is the durable output of one pipeline run besides the table rows.
type RunSummary struct {
	RunID           string         `json:"run_id" bson:"run_id"`
	StartedAt       time.Time      `json:"started_at" bson:"started_at"`
	FinishedAt      time.Time      `json:"finished_at" bson:"finished_at"`
	ObjectsSeen     int            `json:"objects_seen" bson:"objects_seen"`
	ObjectsLoaded   int            `json:"objects_loaded" bson:"objects_loaded"`
	ObjectsSkipped  int            `json:"objects_skipped" bson:"objects_skipped"`
	RecordsInserted int            `json:"records_inserted" bson:"records_inserted"`
	RecordsRejected int            `json:"records_rejected" bson:"records_rejected"`
	MarkFailures    int            `json:"mark_failures" bson:"mark_failures"`
	ListingError    string         `json:"listing_error,omitempty" bson:"listing_error,omitempty"`
	Objects         []ObjectResult `json:"objects" bson:"objects"`
	Sensors         []SensorStats  `json:"sensors,omitempty" bson:"sensors,omitempty"`
}

// Add folds one object result into the totals.
func (s *RunSummary) Add(r ObjectResult) {
	s.ObjectsSeen++
	s.RecordsInserted += r.RecordsInserted
	s.RecordsRejected += r.RecordsRejected
	if r.Skipped() {
		s.ObjectsSkipped++
	} else {
		s.ObjectsLoaded++
	}
	s.Objects = append(s.Objects, r)
}

// SkippedObjects returns the results of objects that contributed no rows.
func (s RunSummary) SkippedObjects() []ObjectResult {
	var out []ObjectResult
	for _, r := range s.Objects {
		if r.Skipped() {
			out = append(out, r)
		}
	}
	return out
}

// SensorStats aggregates the readings of one sensor, either across the whole
// table or across the rows committed by one run.
type SensorStats struct {
	SensorID        string    `json:"sensor_id" bson:"sensor_id"`
	Measurements    int64     `json:"measurements" bson:"measurements"`
	AvgTemperature  float64   `json:"avg_temperature" bson:"avg_temperature"`
	AvgHumidity     float64   `json:"avg_humidity" bson:"avg_humidity"`
	MinBatteryLevel int32     `json:"min_battery_level" bson:"min_battery_level"`
	LastTimestamp   time.Time `json:"last_timestamp" bson:"last_timestamp"`
}
