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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aaronlmathis/sensorload/config"
	"github.com/aaronlmathis/sensorload/core"
	"github.com/aaronlmathis/sensorload/generator"
	"github.com/aaronlmathis/sensorload/metrics"
	"github.com/aaronlmathis/sensorload/pipeline"
	"github.com/aaronlmathis/sensorload/writers"
)

func newRunCmd(a *app) *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load every unprocessed object into the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("batch-size") {
				a.cfg.BatchSize = batchSize
			}
			return runLoad(cmd.Context(), a)
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "override BATCH_SIZE")
	return cmd
}

func runLoad(ctx context.Context, a *app) error {
	source, err := a.openStore(ctx, false)
	if err != nil {
		return fail(exitFailure, err)
	}
	sink, err := a.newSink()
	if err != nil {
		return fail(exitFailure, err)
	}
	rejects, err := a.rejectHandlers()
	if err != nil {
		return fail(exitFailure, err)
	}
	reporters, err := a.summaryReporters(ctx)
	if err != nil {
		return fail(exitFailure, err)
	}
	collector := metrics.NewCollector()

	b := pipeline.New().
		From(source).
		To(sink).
		WithBatchSize(a.cfg.BatchSize).
		Observe(collector).
		WithLogger(a.logger)
	for _, h := range rejects {
		b.OnReject(h)
	}
	for _, r := range reporters {
		b.ReportTo(r)
	}
	p, err := b.Build()
	if err != nil {
		return fail(exitFailure, err)
	}

	a.logger.Info("starting load",
		"backend", a.cfg.Store.Backend,
		"bucket", a.cfg.Store.Bucket,
		"database", a.cfg.RedactedDSN(),
		"batch_size", a.cfg.BatchSize)

	_, runErr := p.Run(ctx)
	pushMetrics(ctx, a, collector)

	switch {
	case runErr == nil:
		return nil
	case errors.Is(runErr, context.Canceled):
		return fail(exitInterrupted, runErr)
	default:
		return fail(exitFailure, runErr)
	}
}

func pushMetrics(ctx context.Context, a *app, collector *metrics.Collector) {
	url := a.cfg.Metrics.PushgatewayURL
	if url == "" {
		return
	}
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
	defer cancel()
	if err := collector.Push(pushCtx, url, a.cfg.Metrics.Job); err != nil {
		a.logger.Warn("pushing metrics failed", "error", err)
	}
}

func newSchemaCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create the destination schema and table if they do not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sink, err := a.newSink()
			if err != nil {
				return fail(exitFailure, err)
			}
			ctx := cmd.Context()
			if err := sink.Connect(ctx); err != nil {
				return fail(exitFailure, err)
			}
			defer sink.Close()
			if err := sink.EnsureSchema(ctx); err != nil {
				return fail(exitFailure, err)
			}
			a.logger.Info("schema ready", "schema", a.cfg.Database.Schema, "table", a.cfg.Database.Table)
			return nil
		},
	}
}

// Report output formats.
const (
	reportTable = "table"
	reportCSV   = "csv"
	reportJSON  = "json"
)

func newReportCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show measurement count and averages per sensor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.newReportReader(cmd.Context())
			if err != nil {
				return fail(exitFailure, err)
			}
			stats, err := r.SensorStats(cmd.Context())
			if err != nil {
				return fail(exitFailure, err)
			}
			if err := writeReport(a.stdout, format, stats); err != nil {
				return fail(exitFailure, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", reportTable, "output format: table, csv or json")
	return cmd
}

func writeReport(w io.Writer, format string, stats []core.SensorStats) error {
	switch format {
	case reportTable:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SENSOR\tMEASUREMENTS\tAVG TEMP\tAVG HUMIDITY\tMIN BATTERY\tLAST READING")
		for _, s := range stats {
			fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.2f\t%d\t%s\n",
				s.SensorID, s.Measurements, s.AvgTemperature, s.AvgHumidity,
				s.MinBatteryLevel, s.LastTimestamp.UTC().Format(time.RFC3339))
		}
		return tw.Flush()
	case reportCSV:
		return writers.NewCSVReportWriter(w).WriteStats(stats)
	case reportJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if stats == nil {
			stats = []core.SensorStats{}
		}
		return enc.Encode(stats)
	}
	return fmt.Errorf("unknown report format %q", format)
}

func newGenerateCmd(a *app) *cobra.Command {
	var (
		files, measurements, sensors int
		interval                     time.Duration
		format, prefix               string
		createBucket                 bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Upload synthetic sensor readings to the object store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gc := a.cfg.Generator
			flags := cmd.Flags()
			if flags.Changed("files") {
				gc.Files = files
			}
			if flags.Changed("measurements") {
				gc.Measurements = measurements
			}
			if flags.Changed("sensors") {
				gc.Sensors = sensors
			}
			if flags.Changed("interval") {
				gc.Interval = interval
			}
			if flags.Changed("format") {
				gc.Format = format
			}
			if gc.Format != config.FormatJSON && gc.Format != config.FormatParquet {
				return fail(exitFailure, fmt.Errorf("unknown format %q", gc.Format))
			}

			ctx := cmd.Context()
			dst, err := a.openStore(ctx, createBucket)
			if err != nil {
				return fail(exitFailure, err)
			}
			if prefix == "" {
				prefix = a.cfg.Store.Prefix
			}

			gen, err := generator.New(dst,
				generator.WithFiles(gc.Files),
				generator.WithMeasurements(gc.Measurements),
				generator.WithSensors(gc.Sensors),
				generator.WithInterval(gc.Interval),
				generator.WithFormat(gc.Format),
				generator.WithPrefix(prefix),
				generator.WithLogger(a.logger),
			)
			if err != nil {
				return fail(exitFailure, err)
			}

			keys, err := gen.Run(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return fail(exitInterrupted, err)
				}
				return fail(exitFailure, err)
			}
			a.logger.Info("generation complete", "objects", len(keys), "backend", a.cfg.Store.Backend)
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&files, "files", 0, "override GEN_FILES")
	f.IntVar(&measurements, "measurements", 0, "override GEN_MEASUREMENTS")
	f.IntVar(&sensors, "sensors", 0, "override GEN_SENSORS")
	f.DurationVar(&interval, "interval", 0, "override GEN_INTERVAL")
	f.StringVar(&format, "format", "", "override GEN_FORMAT (json or parquet)")
	f.StringVar(&prefix, "prefix", "", "key prefix for generated objects (default STORE_PREFIX)")
	f.BoolVar(&createBucket, "create-bucket", false, "create the MinIO bucket if it does not exist")
	return cmd
}
