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

import (
	"context"
)

// Package core defines the core interfaces for the sensorload pipeline.
//
// This file contains the interfaces for object sources, the relational sink,
// and the side outputs (rejected records and run summaries).

// ObjectIterator is a lazy, finite sequence of source objects.
type ObjectIterator interface {
	// Next returns the next object or io.EOF when the listing is exhausted.
	Next(ctx context.Context) (SourceObject, error)
}

// ObjectSource enumerates and fetches objects from a store.
type ObjectSource interface {
	// List returns an iterator over every unprocessed object, paging transparently.
	List(ctx context.Context) ObjectIterator
	// Fetch retrieves one object and decodes it into raw records.
	// A malformed payload yields a *ParseError.
	Fetch(ctx context.Context, key string) ([]RawRecord, error)
	// MarkProcessed moves or tags the object so later runs skip it.
	MarkProcessed(ctx context.Context, key string) error
	// Close releases any resources held by the source.
	Close() error
}

// ObjectWriter stores a raw object. Used to seed a store with generated data.
type ObjectWriter interface {
	Put(ctx context.Context, key string, body []byte) error
}

// Sink is the relational destination for validated readings.
// A Sink owns a single connection for its lifetime and is not safe for concurrent use.
type Sink interface {
	// Connect establishes the connection. Failure is a *ConnectionError.
	Connect(ctx context.Context) error
	// EnsureSchema creates the destination namespace and table if absent.
	EnsureSchema(ctx context.Context) error
	// InsertBatch writes the batch in one transaction and returns the rows committed.
	InsertBatch(ctx context.Context, batch Batch) (int, error)
	// InsertObject writes every batch of one source object in a single
	// transaction. Any failure rolls back the whole object and returns 0.
	InsertObject(ctx context.Context, batches []Batch) (int, error)
	// Close releases the connection.
	Close() error
}

// SummaryReporter persists or publishes the summary of a completed run.
type SummaryReporter interface {
	Report(ctx context.Context, summary RunSummary) error
}

// SummaryReporterFunc is a function adapter for the SummaryReporter interface.
type SummaryReporterFunc func(ctx context.Context, summary RunSummary) error

// Report implements the SummaryReporter interface for SummaryReporterFunc.
func (f SummaryReporterFunc) Report(ctx context.Context, summary RunSummary) error {
	return f(ctx, summary)
}
