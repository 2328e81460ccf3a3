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

package writers

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/aaronlmathis/sensorload/core"
)

// CSVWriterError wraps CSV-specific write errors with context.
type CSVWriterError struct {
	Op  string
	Err error
}

func (e *CSVWriterError) Error() string {
	return fmt.Sprintf("csv writer %s: %v", e.Op, e.Err)
}

func (e *CSVWriterError) Unwrap() error {
	return e.Err
}

// CSVWriterOptions configures CSV output.
type CSVWriterOptions struct {
	Comma       rune
	UseCRLF     bool
	WriteHeader bool
}

// WriterOptionCSV is a functional option.
type WriterOptionCSV func(*CSVWriterOptions)

func WithComma(delim rune) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.Comma = delim
	}
}

func WithWriteHeader(write bool) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.WriteHeader = write
	}
}

func WithUseCRLF(useCRLF bool) WriterOptionCSV {
	return func(opts *CSVWriterOptions) {
		opts.UseCRLF = useCRLF
	}
}

var reportHeader = []string{"sensor_id", "measurements", "avg_temperature", "avg_humidity", "min_battery_level", "last_timestamp"}

// CSVReportWriter writes per-sensor report rows as CSV.
type CSVReportWriter struct {
	writer      *csv.Writer
	options     CSVWriterOptions
	wroteHeader bool
}

// NewCSVReportWriter creates a CSV report writer.
func NewCSVReportWriter(w io.Writer, opts ...WriterOptionCSV) *CSVReportWriter {
	options := CSVWriterOptions{
		Comma:       ',',
		WriteHeader: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	cw := csv.NewWriter(w)
	cw.Comma = options.Comma
	cw.UseCRLF = options.UseCRLF
	return &CSVReportWriter{writer: cw, options: options}
}

// WriteStats writes the rows and flushes.
func (c *CSVReportWriter) WriteStats(stats []core.SensorStats) error {
	if c.options.WriteHeader && !c.wroteHeader {
		if err := c.writer.Write(reportHeader); err != nil {
			return &CSVWriterError{Op: "write_header", Err: err}
		}
		c.wroteHeader = true
	}

	for _, s := range stats {
		row := []string{
			s.SensorID,
			strconv.FormatInt(s.Measurements, 10),
			strconv.FormatFloat(s.AvgTemperature, 'f', 2, 64),
			strconv.FormatFloat(s.AvgHumidity, 'f', 2, 64),
			strconv.FormatInt(int64(s.MinBatteryLevel), 10),
			s.LastTimestamp.UTC().Format(time.RFC3339),
		}
		if err := c.writer.Write(row); err != nil {
			return &CSVWriterError{Op: "write_row", Err: err}
		}
	}

	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		return &CSVWriterError{Op: "flush", Err: err}
	}
	return nil
}
