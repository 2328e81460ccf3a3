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

package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"
	"github.com/google/uuid"

	"github.com/aaronlmathis/sensorload/core"
)

// Package generator produces synthetic sensor readings and uploads them to an
// object store, giving the loader something to consume in development.

// Value ranges for generated readings.
const (
	TempMin, TempMax         = 15.0, 35.0
	HumidityMin, HumidityMax = 30.0, 90.0
	BatteryMin, BatteryMax   = 80, 100
)

// Output formats.
const (
	FormatJSON    = "json"
	FormatParquet = "parquet"
)

// Location is a fixed sensor position.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Locations are the fixed sensor sites, around San Francisco.
var Locations = []Location{
	{Latitude: 37.7749, Longitude: -122.4194}, // downtown
	{Latitude: 37.7831, Longitude: -122.4039}, // financial district
	{Latitude: 37.8085, Longitude: -122.4097}, // fisherman's wharf
	{Latitude: 37.7608, Longitude: -122.4286}, // mission district
	{Latitude: 37.8029, Longitude: -122.4408}, // marina
}

// Measurement is one generated reading in the loader's input shape.
type Measurement struct {
	SensorID     string   `json:"sensor_id"`
	Timestamp    string   `json:"timestamp"`
	Temperature  float64  `json:"temperature"`
	Humidity     float64  `json:"humidity"`
	Location     Location `json:"location"`
	BatteryLevel int      `json:"battery_level"`
}

// GeneratorError wraps generation and upload failures.
type GeneratorError struct {
	Op  string
	Key string
	Err error
}

func (e *GeneratorError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("generator %s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("generator %s: %v", e.Op, e.Err)
}

func (e *GeneratorError) Unwrap() error {
	return e.Err
}

// GeneratorOptions configures a Generator.
type GeneratorOptions struct {
	Sensors      int           // sensors THS-001..THS-NNN
	Files        int           // objects per Run
	Measurements int           // readings per object
	Window       time.Duration // span covered by the readings of one object
	Interval     time.Duration // pause between objects
	Format       string
	Prefix       string // key prefix for uploaded objects
	Seed         int64
	Now          func() time.Time
	Logger       *slog.Logger
}

// GeneratorOption is a functional option for Generator.
type GeneratorOption func(*GeneratorOptions)

// WithSensors sets the number of simulated sensors.
func WithSensors(n int) GeneratorOption {
	return func(o *GeneratorOptions) {
		o.Sensors = n
	}
}

// WithFiles sets the number of objects written per run.
func WithFiles(n int) GeneratorOption {
	return func(o *GeneratorOptions) {
		o.Files = n
	}
}

// WithMeasurements sets the readings per object.
func WithMeasurements(n int) GeneratorOption {
	return func(o *GeneratorOptions) {
		o.Measurements = n
	}
}

// WithInterval sets the pause between objects.
func WithInterval(d time.Duration) GeneratorOption {
	return func(o *GeneratorOptions) {
		o.Interval = d
	}
}

// WithFormat selects json or parquet output.
func WithFormat(format string) GeneratorOption {
	return func(o *GeneratorOptions) {
		o.Format = format
	}
}

// WithPrefix prepends a prefix to every generated key.
func WithPrefix(prefix string) GeneratorOption {
	return func(o *GeneratorOptions) {
		o.Prefix = prefix
	}
}

// WithSeed makes the generated values reproducible.
func WithSeed(seed int64) GeneratorOption {
	return func(o *GeneratorOptions) {
		o.Seed = seed
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) GeneratorOption {
	return func(o *GeneratorOptions) {
		o.Now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) GeneratorOption {
	return func(o *GeneratorOptions) {
		o.Logger = logger
	}
}

func (o *GeneratorOptions) withDefaults() *GeneratorOptions {
	if o.Sensors == 0 {
		o.Sensors = 5
	}
	if o.Files == 0 {
		o.Files = 5
	}
	if o.Measurements == 0 {
		o.Measurements = 10
	}
	if o.Window == 0 {
		o.Window = time.Minute
	}
	if o.Format == "" {
		o.Format = FormatJSON
	}
	if o.Seed == 0 {
		o.Seed = time.Now().UnixNano()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

func validateOptions(o *GeneratorOptions) error {
	if o.Sensors < 0 || o.Sensors > 999 {
		return fmt.Errorf("sensor count must be between 1 and 999, got %d", o.Sensors)
	}
	if o.Files < 0 || o.Measurements < 0 {
		return errors.New("file and measurement counts must be positive")
	}
	if o.Interval < 0 {
		return errors.New("interval cannot be negative")
	}
	if o.Format != FormatJSON && o.Format != FormatParquet {
		return fmt.Errorf("unsupported format %q", o.Format)
	}
	return nil
}

// Generator writes batches of synthetic readings to an ObjectWriter.
type Generator struct {
	w    core.ObjectWriter
	opts *GeneratorOptions
	rnd  *rand.Rand
}

// New creates a Generator writing to w.
func New(w core.ObjectWriter, options ...GeneratorOption) (*Generator, error) {
	if w == nil {
		return nil, &GeneratorError{Op: "validate_options", Err: errors.New("object writer is required")}
	}
	opts := &GeneratorOptions{}
	for _, option := range options {
		option(opts)
	}
	opts.withDefaults()
	if err := validateOptions(opts); err != nil {
		return nil, &GeneratorError{Op: "validate_options", Err: err}
	}
	return &Generator{
		w:    w,
		opts: opts,
		rnd:  rand.New(rand.NewSource(opts.Seed)),
	}, nil
}

// SensorID formats the id of sensor n, starting at 1.
func SensorID(n int) string {
	return fmt.Sprintf("THS-%03d", n)
}

// LocationFor returns the fixed location of sensor n.
func LocationFor(n int) Location {
	return Locations[n%len(Locations)]
}

// Measurements generates one object's worth of readings, spread evenly
// across the window starting at base.
func (g *Generator) Measurements(base time.Time) []Measurement {
	n := g.opts.Measurements
	step := g.opts.Window / time.Duration(n)
	out := make([]Measurement, 0, n)
	for i := 0; i < n; i++ {
		sensor := g.rnd.Intn(g.opts.Sensors) + 1
		out = append(out, Measurement{
			SensorID:     SensorID(sensor),
			Timestamp:    base.Add(time.Duration(i) * step).UTC().Format("2006-01-02T15:04:05Z"),
			Temperature:  round1(TempMin + g.rnd.Float64()*(TempMax-TempMin)),
			Humidity:     round1(HumidityMin + g.rnd.Float64()*(HumidityMax-HumidityMin)),
			Location:     LocationFor(sensor),
			BatteryLevel: BatteryMin + g.rnd.Intn(BatteryMax-BatteryMin+1),
		})
	}
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Encode serializes measurements in the configured format.
func (g *Generator) Encode(ms []Measurement) ([]byte, error) {
	if g.opts.Format == FormatParquet {
		return EncodeParquet(ms)
	}
	return EncodeJSON(ms)
}

// EncodeJSON wraps measurements in a {"measurements": [...]} document.
func EncodeJSON(ms []Measurement) ([]byte, error) {
	doc := struct {
		Measurements []Measurement `json:"measurements"`
	}{Measurements: ms}
	return json.MarshalIndent(doc, "", "  ")
}

var parquetSchema = arrow.NewSchema([]arrow.Field{
	{Name: core.FieldSensorID, Type: arrow.BinaryTypes.String},
	{Name: core.FieldTimestamp, Type: arrow.BinaryTypes.String},
	{Name: core.FieldTemperature, Type: arrow.PrimitiveTypes.Float64},
	{Name: core.FieldHumidity, Type: arrow.PrimitiveTypes.Float64},
	{Name: core.FieldLatitude, Type: arrow.PrimitiveTypes.Float64},
	{Name: core.FieldLongitude, Type: arrow.PrimitiveTypes.Float64},
	{Name: core.FieldBatteryLevel, Type: arrow.PrimitiveTypes.Int32},
}, nil)

// EncodeParquet writes measurements as a flat, snappy-compressed Parquet file
// with latitude and longitude as top-level columns.
func EncodeParquet(ms []Measurement) ([]byte, error) {
	b := array.NewRecordBuilder(memory.NewGoAllocator(), parquetSchema)
	defer b.Release()

	for _, m := range ms {
		b.Field(0).(*array.StringBuilder).Append(m.SensorID)
		b.Field(1).(*array.StringBuilder).Append(m.Timestamp)
		b.Field(2).(*array.Float64Builder).Append(m.Temperature)
		b.Field(3).(*array.Float64Builder).Append(m.Humidity)
		b.Field(4).(*array.Float64Builder).Append(m.Location.Latitude)
		b.Field(5).(*array.Float64Builder).Append(m.Location.Longitude)
		b.Field(6).(*array.Int32Builder).Append(int32(m.BatteryLevel))
	}
	rec := b.NewRecord()
	defer rec.Release()

	var buf bytes.Buffer
	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	w, err := pqarrow.NewFileWriter(parquetSchema, &buf, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return nil, fmt.Errorf("creating parquet writer: %w", err)
	}
	if err := w.Write(rec); err != nil {
		w.Close()
		return nil, fmt.Errorf("writing parquet record: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// objectKey names an object uniquely so base names never collide with
// earlier runs in the processed namespace.
func (g *Generator) objectKey(at time.Time) string {
	return fmt.Sprintf("%ssensor_data_%s_%s.%s",
		g.opts.Prefix, at.UTC().Format("20060102T150405Z"), uuid.NewString()[:8], g.opts.Format)
}

// Run generates and uploads the configured number of objects, pausing
// between them, and returns the keys written. An upload failure stops the run.
func (g *Generator) Run(ctx context.Context) ([]string, error) {
	keys := make([]string, 0, g.opts.Files)
	for i := 0; i < g.opts.Files; i++ {
		if i > 0 && g.opts.Interval > 0 {
			select {
			case <-ctx.Done():
				return keys, ctx.Err()
			case <-time.After(g.opts.Interval):
			}
		}
		if err := ctx.Err(); err != nil {
			return keys, err
		}

		now := g.opts.Now()
		ms := g.Measurements(now)
		body, err := g.Encode(ms)
		if err != nil {
			return keys, &GeneratorError{Op: "encode", Err: err}
		}

		key := g.objectKey(now)
		if err := g.w.Put(ctx, key, body); err != nil {
			return keys, &GeneratorError{Op: "put", Key: key, Err: err}
		}
		keys = append(keys, key)
		g.opts.Logger.Info("object generated", "key", key, "measurements", len(ms), "bytes", len(body))
	}
	return keys, nil
}
