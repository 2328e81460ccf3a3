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

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/aaronlmathis/sensorload/config"
	"github.com/aaronlmathis/sensorload/core"
	"github.com/aaronlmathis/sensorload/readers"
	"github.com/aaronlmathis/sensorload/writers"
)

// store is what every backend provides: a source to load from and a writer
// the generator can seed.
type store interface {
	core.ObjectSource
	core.ObjectWriter
}

// app holds the loaded configuration and everything that must be closed on exit.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	stdout  io.Writer
	closers []io.Closer
}

func (a *app) onClose(c io.Closer) {
	a.closers = append(a.closers, c)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) openStore(ctx context.Context, createBucket bool) (store, error) {
	sc := a.cfg.Store
	switch sc.Backend {
	case config.BackendS3:
		opts := []readers.SourceOptionS3{
			readers.WithS3Bucket(sc.Bucket),
			readers.WithS3Region(sc.Region),
			readers.WithS3Prefix(sc.Prefix),
			readers.WithS3Suffix(sc.Suffix),
			readers.WithS3ProcessedPrefix(sc.ProcessedPrefix),
			readers.WithS3DeleteAfterMark(sc.DeleteAfterMark),
		}
		if sc.Endpoint != "" {
			opts = append(opts, readers.WithS3Endpoint(sc.Endpoint), readers.WithS3PathStyle(sc.PathStyle))
		}
		if sc.AccessKey != "" {
			opts = append(opts, readers.WithS3Credentials(aws.Credentials{
				AccessKeyID:     sc.AccessKey,
				SecretAccessKey: sc.SecretKey,
			}))
		}
		src, err := readers.NewS3Source(opts...)
		if err != nil {
			return nil, err
		}
		a.onClose(src)
		return src, nil

	case config.BackendMinIO:
		src, err := readers.NewMinIOSource(ctx,
			readers.WithMinIOEndpoint(sc.Endpoint, sc.UseTLS),
			readers.WithMinIOCredentials(sc.AccessKey, sc.SecretKey),
			readers.WithMinIORegion(sc.Region),
			readers.WithMinIOBucket(sc.Bucket),
			readers.WithMinIOKeyFilter(sc.Prefix, sc.Suffix),
			readers.WithMinIOProcessedPrefix(sc.ProcessedPrefix),
			readers.WithMinIODeleteAfterMark(sc.DeleteAfterMark),
			readers.WithMinIOCreateBucket(createBucket),
		)
		if err != nil {
			return nil, err
		}
		a.onClose(src)
		return src, nil

	case config.BackendDir:
		src, err := readers.NewDirSource(sc.Dir, sc.Prefix, sc.Suffix, sc.ProcessedPrefix)
		if err != nil {
			return nil, err
		}
		a.onClose(src)
		return src, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", sc.Backend)
}

func (a *app) newSink() (*writers.PostgresSink, error) {
	db := a.cfg.Database
	return writers.NewPostgresSink(
		writers.WithPostgresDSN(a.cfg.DSN()),
		writers.WithPostgresSchema(db.Schema),
		writers.WithTableName(db.Table),
		writers.WithConnectTimeout(db.ConnectTimeout),
		writers.WithPostgresLogger(a.logger),
	)
}

// rejectHandlers opens the configured side outputs for rejected records.
// A reject file that cannot be opened is a configuration error.
func (a *app) rejectHandlers() ([]core.RejectHandler, error) {
	var handlers []core.RejectHandler

	if path := a.cfg.Rejects.File; path != "" {
		f, err := openAppend(path)
		if err != nil {
			return nil, fmt.Errorf("opening reject file: %w", err)
		}
		w := writers.NewJSONRejectWriter(f)
		a.onClose(w)
		handlers = append(handlers, w)
	}

	if brokers := a.cfg.Rejects.KafkaBrokers; len(brokers) > 0 {
		w, err := writers.NewKafkaRejectWriter(
			writers.WithKafkaBrokers(brokers...),
			writers.WithKafkaTopic(a.cfg.Rejects.KafkaTopic),
		)
		if err != nil {
			return nil, err
		}
		a.onClose(w)
		handlers = append(handlers, w)
	}
	return handlers, nil
}

// summaryReporters opens the configured summary destinations. An unreachable
// MongoDB is logged and skipped so it never blocks a load.
func (a *app) summaryReporters(ctx context.Context) ([]core.SummaryReporter, error) {
	var reporters []core.SummaryReporter

	if path := a.cfg.Summary.File; path != "" {
		if err := ensureDir(path); err != nil {
			return nil, fmt.Errorf("opening summary file: %w", err)
		}
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("opening summary file: %w", err)
		}
		reporters = append(reporters, writers.NewJSONSummaryWriter(f))
	}

	if uri := a.cfg.Summary.MongoURI; uri != "" {
		w, err := writers.NewMongoSummaryWriter(ctx,
			writers.WithMongoURI(uri),
			writers.WithMongoDB(a.cfg.Summary.MongoDatabase),
			writers.WithMongoCollection(a.cfg.Summary.MongoCollection),
		)
		if err != nil {
			a.logger.Warn("summary store unavailable, continuing without it", "error", err)
		} else {
			a.onClose(w)
			reporters = append(reporters, w)
		}
	}
	return reporters, nil
}

func (a *app) newReportReader(ctx context.Context) (*readers.PostgresReportReader, error) {
	r, err := readers.NewPostgresReportReader(ctx,
		readers.WithPostgresDSN(a.cfg.DSN()),
		readers.WithPostgresTable(a.cfg.Database.Schema, a.cfg.Database.Table),
	)
	if err != nil {
		return nil, err
	}
	a.onClose(r)
	return r, nil
}

const pushTimeout = 10 * time.Second

func openAppend(path string) (*os.File, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
