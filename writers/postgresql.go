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
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/aaronlmathis/sensorload/core"
)

// Package writers provides the relational sink and the side outputs of the pipeline.
//
// This file implements the PostgreSQL sink. It owns exactly one connection for
// the lifetime of a run and writes every batch in its own transaction.

// SQLSTATE codes raised when a concurrent run creates the same object first.
var alreadyExistsCodes = map[pq.ErrorCode]bool{
	"42P06": true, // duplicate_schema
	"42P07": true, // duplicate_table
	"23505": true, // unique_violation on pg_namespace / pg_type
}

// PostgresSinkError wraps PostgreSQL-specific errors with context about the operation.
type PostgresSinkError struct {
	Op  string // The operation being performed (e.g., "validate", "prepare")
	Err error  // The underlying error
}

// Error returns the error string for PostgresSinkError.
func (e *PostgresSinkError) Error() string {
	return fmt.Sprintf("postgres sink %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for PostgresSinkError.
func (e *PostgresSinkError) Unwrap() error {
	return e.Err
}

// PostgresSinkStats holds PostgreSQL write statistics.
type PostgresSinkStats struct {
	RowsInserted   int64         // Rows committed
	BatchesWritten int64         // Batches inside committed transactions
	Commits        int64         // Transactions committed
	Rollbacks      int64         // Transactions rolled back
	LastWriteTime  time.Time     // Time of last commit
	WriteDuration  time.Duration // Total time spent in insert transactions
	ConnectionTime time.Duration // Time spent establishing the connection
}

// PostgresSinkOptions configures the PostgreSQL sink.
type PostgresSinkOptions struct {
	DSN            string        // PostgreSQL connection string
	Schema         string        // Destination schema, created if absent
	Table          string        // Destination table, created if absent
	ConnectTimeout time.Duration // Bound on connection establishment
	DB             *sql.DB       // Preopened handle, takes precedence over DSN
	Logger         *slog.Logger
}

// PostgresSinkOption represents a configuration function for PostgresSinkOptions.
type PostgresSinkOption func(*PostgresSinkOptions)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) PostgresSinkOption {
	return func(opts *PostgresSinkOptions) {
		opts.DSN = dsn
	}
}

// WithPostgresSchema sets the destination schema.
func WithPostgresSchema(schema string) PostgresSinkOption {
	return func(opts *PostgresSinkOptions) {
		opts.Schema = schema
	}
}

// WithTableName sets the destination table name.
func WithTableName(table string) PostgresSinkOption {
	return func(opts *PostgresSinkOptions) {
		opts.Table = table
	}
}

// WithConnectTimeout bounds how long Connect may take.
func WithConnectTimeout(timeout time.Duration) PostgresSinkOption {
	return func(opts *PostgresSinkOptions) {
		opts.ConnectTimeout = timeout
	}
}

// WithPostgresDB uses an already opened database handle. The sink takes ownership of it.
func WithPostgresDB(db *sql.DB) PostgresSinkOption {
	return func(opts *PostgresSinkOptions) {
		opts.DB = db
	}
}

// WithPostgresLogger sets the sink logger.
func WithPostgresLogger(logger *slog.Logger) PostgresSinkOption {
	return func(opts *PostgresSinkOptions) {
		opts.Logger = logger
	}
}

// PostgresSink implements core.Sink for PostgreSQL.
// It is not safe for concurrent use by multiple runs; the mutex only guards Stats.
type PostgresSink struct {
	options PostgresSinkOptions
	db      *sql.DB
	conn    *sql.Conn
	table   string
	insert  string
	stats   PostgresSinkStats
	mu      sync.Mutex
}

// NewPostgresSink creates a sink. No connection is made until Connect.
func NewPostgresSink(opts ...PostgresSinkOption) (*PostgresSink, error) {
	options := &PostgresSinkOptions{}
	for _, opt := range opts {
		opt(options)
	}
	options = options.withDefaults()

	if err := validateOptions(options); err != nil {
		return nil, &PostgresSinkError{Op: "validate", Err: err}
	}

	table := pq.QuoteIdentifier(options.Schema) + "." + pq.QuoteIdentifier(options.Table)
	return &PostgresSink{
		options: *options,
		db:      options.DB,
		table:   table,
		insert: fmt.Sprintf(`INSERT INTO %s (sensor_id, "timestamp", temperature, humidity, latitude, longitude, battery_level) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			table),
	}, nil
}

// Connect opens a pool capped at one connection and pins that connection.
func (s *PostgresSink) Connect(ctx context.Context) error {
	if s.conn != nil {
		return nil
	}
	start := time.Now()

	if s.db == nil {
		db, err := sql.Open("postgres", s.options.DSN)
		if err != nil {
			return &core.ConnectionError{Target: "database", Err: err}
		}
		s.db = db
	}
	s.db.SetMaxOpenConns(1)
	s.db.SetMaxIdleConns(1)

	connectCtx, cancel := context.WithTimeout(ctx, s.options.ConnectTimeout)
	defer cancel()

	if err := s.db.PingContext(connectCtx); err != nil {
		s.db.Close()
		s.db = nil
		return &core.ConnectionError{Target: "database", Err: err}
	}

	conn, err := s.db.Conn(connectCtx)
	if err != nil {
		s.db.Close()
		s.db = nil
		return &core.ConnectionError{Target: "database", Err: err}
	}
	s.conn = conn

	s.mu.Lock()
	s.stats.ConnectionTime = time.Since(start)
	s.mu.Unlock()

	s.options.Logger.Debug("database connected", "table", s.table, "elapsed", time.Since(start))
	return nil
}

// EnsureSchema creates the schema and table if they do not exist.
// Losing a creation race to a concurrent run is not an error.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if s.conn == nil {
		return &core.SchemaError{Op: "create_schema", Err: errors.New("not connected")}
	}

	createSchema := "CREATE SCHEMA IF NOT EXISTS " + pq.QuoteIdentifier(s.options.Schema)
	if _, err := s.conn.ExecContext(ctx, createSchema); err != nil && !alreadyExists(err) {
		return &core.SchemaError{Op: "create_schema", Err: err}
	}

	createTable := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id SERIAL PRIMARY KEY,
    sensor_id VARCHAR(50) NOT NULL,
    "timestamp" TIMESTAMP NOT NULL,
    temperature FLOAT NOT NULL,
    humidity FLOAT NOT NULL,
    latitude DECIMAL(9,6) NOT NULL,
    longitude DECIMAL(9,6) NOT NULL,
    battery_level INT NOT NULL
)`, s.table)
	if _, err := s.conn.ExecContext(ctx, createTable); err != nil && !alreadyExists(err) {
		return &core.SchemaError{Op: "create_table", Err: err}
	}
	return nil
}

// InsertBatch writes the batch in one transaction.
// On any failure the transaction is rolled back and 0 is returned with a *core.InsertError.
func (s *PostgresSink) InsertBatch(ctx context.Context, batch core.Batch) (int, error) {
	return s.insertTx(ctx, []core.Batch{batch})
}

// InsertObject writes every batch of one object in a single transaction, so
// an object is either fully committed or not at all. Row indexes in a
// returned *core.InsertError count from the first row of the first batch.
func (s *PostgresSink) InsertObject(ctx context.Context, batches []core.Batch) (int, error) {
	return s.insertTx(ctx, batches)
}

func (s *PostgresSink) insertTx(ctx context.Context, batches []core.Batch) (n int, err error) {
	total := 0
	for _, b := range batches {
		total += len(b)
	}
	if total == 0 {
		return 0, nil
	}
	if s.conn == nil {
		return 0, &core.InsertError{Row: -1, Err: errors.New("not connected")}
	}

	start := time.Now()
	defer func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.stats.WriteDuration += time.Since(start)
		if err != nil {
			s.stats.Rollbacks++
			return
		}
		s.stats.RowsInserted += int64(n)
		s.stats.BatchesWritten += int64(len(batches))
		s.stats.Commits++
		s.stats.LastWriteTime = time.Now()
	}()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, &core.InsertError{Row: -1, Err: fmt.Errorf("begin: %w", err)}
	}

	stmt, err := tx.PrepareContext(ctx, s.insert)
	if err != nil {
		tx.Rollback()
		return 0, &core.InsertError{Row: -1, Err: fmt.Errorf("prepare: %w", err)}
	}
	defer stmt.Close()

	row := 0
	for i, batch := range batches {
		for _, r := range batch {
			if _, err := stmt.ExecContext(ctx, r.SensorID, r.Timestamp, r.Temperature, r.Humidity, r.Latitude, r.Longitude, r.BatteryLevel); err != nil {
				if rbErr := tx.Rollback(); rbErr != nil {
					s.options.Logger.Warn("rollback failed", "error", rbErr)
				}
				return 0, &core.InsertError{Row: row, Err: err}
			}
			row++
		}
		s.options.Logger.Debug("batch staged", "batch", i, "rows", len(batch))
	}

	if err := tx.Commit(); err != nil {
		return 0, &core.InsertError{Row: -1, Err: fmt.Errorf("commit: %w", err)}
	}
	return total, nil
}

// Close releases the pinned connection and the pool. Safe to call more than once.
func (s *PostgresSink) Close() error {
	var errs []error
	if s.conn != nil {
		errs = append(errs, s.conn.Close())
		s.conn = nil
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
		s.db = nil
	}
	if err := errors.Join(errs...); err != nil {
		return &PostgresSinkError{Op: "close", Err: err}
	}
	return nil
}

// Stats returns a copy of the current write statistics.
func (s *PostgresSink) Stats() PostgresSinkStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// withDefaults applies default values to PostgresSinkOptions.
func (opts *PostgresSinkOptions) withDefaults() *PostgresSinkOptions {
	if opts.Schema == "" {
		opts.Schema = core.DefaultSchema
	}
	if opts.Table == "" {
		opts.Table = core.DefaultTable
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return opts
}

// validateOptions validates the PostgreSQL sink options.
func validateOptions(opts *PostgresSinkOptions) error {
	if opts.DSN == "" && opts.DB == nil {
		return fmt.Errorf("dsn is required")
	}
	return nil
}

func alreadyExists(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && alreadyExistsCodes[pqErr.Code]
}
