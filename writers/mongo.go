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
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aaronlmathis/sensorload/core"
)

// MongoWriterError provides structured error information for MongoDB writer operations
type MongoWriterError struct {
	Op         string // Operation that failed (e.g., "connect", "insert")
	Collection string // Collection being accessed when error occurred
	Err        error  // Underlying error
}

func (e *MongoWriterError) Error() string {
	if e.Collection != "" {
		return fmt.Sprintf("mongo writer %s [%s]: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("mongo writer %s: %v", e.Op, e.Err)
}

func (e *MongoWriterError) Unwrap() error {
	return e.Err
}

// SummaryCollection is the subset of *mongo.Collection used by MongoSummaryWriter.
type SummaryCollection interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

// MongoSummaryOptions configures the MongoDB summary writer
type MongoSummaryOptions struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

// MongoSummaryOption represents a configuration function for MongoSummaryOptions
type MongoSummaryOption func(*MongoSummaryOptions)

func WithMongoURI(uri string) MongoSummaryOption {
	return func(opts *MongoSummaryOptions) {
		opts.URI = uri
	}
}

func WithMongoDB(database string) MongoSummaryOption {
	return func(opts *MongoSummaryOptions) {
		opts.Database = database
	}
}

func WithMongoCollection(collection string) MongoSummaryOption {
	return func(opts *MongoSummaryOptions) {
		opts.Collection = collection
	}
}

func WithMongoTimeout(timeout time.Duration) MongoSummaryOption {
	return func(opts *MongoSummaryOptions) {
		opts.Timeout = timeout
	}
}

// MongoSummaryWriter implements core.SummaryReporter by storing one document per run
type MongoSummaryWriter struct {
	client     *mongo.Client
	collection SummaryCollection
	name       string
	timeout    time.Duration
}

// NewMongoSummaryWriter connects to MongoDB and verifies the connection
func NewMongoSummaryWriter(ctx context.Context, options ...MongoSummaryOption) (*MongoSummaryWriter, error) {
	opts := &MongoSummaryOptions{
		Database:   "sensorload",
		Collection: "runs",
		Timeout:    10 * time.Second,
	}
	for _, option := range options {
		option(opts)
	}
	if opts.URI == "" {
		return nil, &MongoWriterError{Op: "validate", Err: fmt.Errorf("URI is required")}
	}

	connectCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, buildClientOptions(opts))
	if err != nil {
		return nil, &MongoWriterError{Op: "connect", Err: err}
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, &MongoWriterError{Op: "ping", Err: err}
	}

	return &MongoSummaryWriter{
		client:     client,
		collection: client.Database(opts.Database).Collection(opts.Collection),
		name:       opts.Collection,
		timeout:    opts.Timeout,
	}, nil
}

// NewMongoSummaryWriterWithCollection wraps an existing collection handle
func NewMongoSummaryWriterWithCollection(collection SummaryCollection, name string) *MongoSummaryWriter {
	return &MongoSummaryWriter{collection: collection, name: name, timeout: 10 * time.Second}
}

// buildClientOptions constructs MongoDB client options from writer configuration
func buildClientOptions(opts *MongoSummaryOptions) *options.ClientOptions {
	return options.Client().
		ApplyURI(opts.URI).
		SetConnectTimeout(opts.Timeout).
		SetRetryWrites(true).
		SetAppName("sensorload")
}

// Report implements the core.SummaryReporter interface
func (m *MongoSummaryWriter) Report(ctx context.Context, summary core.RunSummary) error {
	insertCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if _, err := m.collection.InsertOne(insertCtx, summary); err != nil {
		return &MongoWriterError{Op: "insert", Collection: m.name, Err: err}
	}
	return nil
}

// Close disconnects the client, if this writer owns one
func (m *MongoSummaryWriter) Close() error {
	if m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	err := m.client.Disconnect(ctx)
	m.client = nil
	if err != nil {
		return &MongoWriterError{Op: "disconnect", Err: err}
	}
	return nil
}
