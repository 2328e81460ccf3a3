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
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/aaronlmathis/sensorload/core"
)

// Package readers provides the object sources that feed the pipeline.
//
// This file implements the report reader, which runs the analytical queries
// over the loaded readings table.

// PostgresReaderError provides structured error information for Postgres reader operations
type PostgresReaderError struct {
	Op  string // Operation that failed (e.g., "connect", "query", "scan")
	Err error  // Underlying error
}

func (e *PostgresReaderError) Error() string {
	return fmt.Sprintf("postgres reader %s: %v", e.Op, e.Err)
}

func (e *PostgresReaderError) Unwrap() error {
	return e.Err
}

// PostgresReaderOptions configures the report reader
type PostgresReaderOptions struct {
	DSN          string        // Database connection string
	Schema       string        // Schema holding the readings table
	Table        string        // Readings table name
	QueryTimeout time.Duration // Query execution timeout
	DB           *sql.DB       // Preopened handle, takes precedence over DSN
}

// PostgresReaderOption represents a configuration function for PostgresReaderOptions
type PostgresReaderOption func(*PostgresReaderOptions)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.DSN = dsn
	}
}

// WithPostgresTable sets the schema and table to report on.
func WithPostgresTable(schema, table string) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.Schema = schema
		opts.Table = table
	}
}

// WithPostgresQueryTimeout sets the query execution timeout.
func WithPostgresQueryTimeout(timeout time.Duration) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.QueryTimeout = timeout
	}
}

// WithPostgresReaderDB uses an already opened database handle.
func WithPostgresReaderDB(db *sql.DB) PostgresReaderOption {
	return func(opts *PostgresReaderOptions) {
		opts.DB = db
	}
}

// PostgresReportReader queries per-sensor aggregates.
type PostgresReportReader struct {
	db   *sql.DB
	opts *PostgresReaderOptions
}

// NewPostgresReportReader opens the database and verifies it is reachable.
func NewPostgresReportReader(ctx context.Context, options ...PostgresReaderOption) (*PostgresReportReader, error) {
	opts := &PostgresReaderOptions{}
	for _, option := range options {
		option(opts)
	}
	opts = opts.withDefaults()

	db := opts.DB
	if db == nil {
		if opts.DSN == "" {
			return nil, &PostgresReaderError{Op: "validate_options", Err: fmt.Errorf("DSN is required")}
		}
		var err error
		db, err = sql.Open("postgres", opts.DSN)
		if err != nil {
			return nil, &core.ConnectionError{Target: "database", Err: err}
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, opts.QueryTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, &core.ConnectionError{Target: "database", Err: err}
	}

	return &PostgresReportReader{db: db, opts: opts}, nil
}

// SensorStats returns one row per sensor, ordered by sensor id.
func (r *PostgresReportReader) SensorStats(ctx context.Context) ([]core.SensorStats, error) {
	query := fmt.Sprintf(`SELECT sensor_id, COUNT(*), AVG(temperature), AVG(humidity), MIN(battery_level), MAX(timestamp)
FROM %s GROUP BY sensor_id ORDER BY sensor_id`, r.table())

	queryCtx, cancel := context.WithTimeout(ctx, r.opts.QueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(queryCtx, query)
	if err != nil {
		return nil, &PostgresReaderError{Op: "query", Err: err}
	}
	defer rows.Close()

	var out []core.SensorStats
	for rows.Next() {
		var s core.SensorStats
		if err := rows.Scan(&s.SensorID, &s.Measurements, &s.AvgTemperature, &s.AvgHumidity, &s.MinBatteryLevel, &s.LastTimestamp); err != nil {
			return nil, &PostgresReaderError{Op: "scan", Err: err}
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, &PostgresReaderError{Op: "rows", Err: err}
	}
	return out, nil
}

// Close releases the database handle.
func (r *PostgresReportReader) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

func (r *PostgresReportReader) table() string {
	return pq.QuoteIdentifier(r.opts.Schema) + "." + pq.QuoteIdentifier(r.opts.Table)
}

func (opts *PostgresReaderOptions) withDefaults() *PostgresReaderOptions {
	result := &PostgresReaderOptions{}
	if opts != nil {
		*result = *opts
	}
	if result.Schema == "" {
		result.Schema = core.DefaultSchema
	}
	if result.Table == "" {
		result.Table = core.DefaultTable
	}
	if result.QueryTimeout <= 0 {
		result.QueryTimeout = 30 * time.Second
	}
	return result
}
