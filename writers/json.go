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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aaronlmathis/sensorload/core"
)

// RejectEntry is the serialized form of a record dropped by validation.
type RejectEntry struct {
	Key        string         `json:"key"`
	Field      string         `json:"field"`
	Reason     string         `json:"reason"`
	Value      interface{}    `json:"value,omitempty"`
	Record     core.RawRecord `json:"record"`
	RejectedAt time.Time      `json:"rejected_at"`
}

func newRejectEntry(key string, record core.RawRecord, verr *core.ValidationError) RejectEntry {
	entry := RejectEntry{Key: key, Record: record, RejectedAt: time.Now().UTC()}
	if verr != nil {
		entry.Field = verr.Field
		entry.Reason = verr.Reason
		entry.Value = verr.Value
	}
	return entry
}

// JSONRejectWriter implements core.RejectHandler as line-delimited JSON
type JSONRejectWriter struct {
	writer io.Writer
	closer io.Closer
	count  int64
	mu     sync.Mutex
}

// NewJSONRejectWriter creates a reject writer for line-delimited JSON output
func NewJSONRejectWriter(w io.WriteCloser) *JSONRejectWriter {
	return &JSONRejectWriter{
		writer: w,
		closer: w,
	}
}

// HandleReject implements the core.RejectHandler interface
func (j *JSONRejectWriter) HandleReject(ctx context.Context, key string, record core.RawRecord, verr *core.ValidationError) error {
	data, err := json.Marshal(newRejectEntry(key, record, verr))
	if err != nil {
		return fmt.Errorf("failed to marshal reject to JSON: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write JSON data: %w", err)
	}
	j.count++
	return nil
}

// Count returns the number of rejects written
func (j *JSONRejectWriter) Count() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.count
}

// Close flushes and closes the underlying writer
func (j *JSONRejectWriter) Close() error {
	if flusher, ok := j.writer.(interface{ Flush() error }); ok {
		if err := flusher.Flush(); err != nil {
			return err
		}
	}
	if j.closer != nil {
		return j.closer.Close()
	}
	return nil
}

// JSONSummaryWriter implements core.SummaryReporter by writing the run summary as indented JSON
type JSONSummaryWriter struct {
	writer io.Writer
	closer io.Closer
}

// NewJSONSummaryWriter creates a summary writer. The writer is closed after the first report.
func NewJSONSummaryWriter(w io.WriteCloser) *JSONSummaryWriter {
	return &JSONSummaryWriter{
		writer: w,
		closer: w,
	}
}

// Report implements the core.SummaryReporter interface
func (j *JSONSummaryWriter) Report(ctx context.Context, summary core.RunSummary) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	if j.closer != nil {
		err := j.closer.Close()
		j.closer = nil
		return err
	}
	return nil
}
