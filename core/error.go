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
	"errors"
	"fmt"
)

// Package core defines the error taxonomy for the sensorload pipeline.
//
// Connection and schema errors are fatal and end the run. Parse and insert
// errors are scoped to one object, validation errors to one record, and mark
// errors are warnings only.

// ConnectionError reports that the object store or the database is unreachable.
type ConnectionError struct {
	Target string // "database" or "store"
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// SchemaError reports that the destination namespace or table could not be ensured.
type SchemaError struct {
	Op  string // "create_schema" or "create_table"
	Err error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema %s: %v", e.Op, e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// ParseError reports an object payload that is not a JSON array of records.
type ParseError struct {
	Key string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Key, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Validation failure reasons.
const (
	ReasonMissing      = "missing"
	ReasonNotCoercible = "not_coercible"
	ReasonOutOfRange   = "out_of_range"
)

// ValidationError names the first field of a record that failed validation.
type ValidationError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == ReasonMissing {
		return fmt.Sprintf("validate %s: missing", e.Field)
	}
	return fmt.Sprintf("validate %s: %s (%v)", e.Field, e.Reason, e.Value)
}

// InsertError reports an insert transaction that was rolled back.
type InsertError struct {
	Key string // object the rows came from, if known
	Row int    // index of the failing row in the transaction, -1 for begin/commit failures
	Err error
}

func (e *InsertError) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("insert %s row %d: %v", e.Key, e.Row, e.Err)
	}
	return fmt.Sprintf("insert %s: %v", e.Key, e.Err)
}

func (e *InsertError) Unwrap() error {
	return e.Err
}

// MarkError reports that a loaded object could not be marked as processed.
type MarkError struct {
	Key string
	Err error
}

func (e *MarkError) Error() string {
	return fmt.Sprintf("mark %s: %v", e.Key, e.Err)
}

func (e *MarkError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err must abort the whole run.
func IsFatal(err error) bool {
	var connErr *ConnectionError
	var schemaErr *SchemaError
	return errors.As(err, &connErr) || errors.As(err, &schemaErr)
}

// RejectHandler receives records dropped by validation.
// Handlers must not abort the run; a returned error is logged and ignored.
type RejectHandler interface {
	HandleReject(ctx context.Context, key string, record RawRecord, err *ValidationError) error
}

// RejectHandlerFunc is a function adapter for the RejectHandler interface.
type RejectHandlerFunc func(ctx context.Context, key string, record RawRecord, err *ValidationError) error

// HandleReject implements the RejectHandler interface for RejectHandlerFunc.
func (f RejectHandlerFunc) HandleReject(ctx context.Context, key string, record RawRecord, err *ValidationError) error {
	return f(ctx, key, record, err)
}
