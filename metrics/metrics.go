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

package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/aaronlmathis/sensorload/core"
)

// Package metrics exposes pipeline run events as Prometheus metrics.
//
// A load run is a bounded batch job, so metrics live in a dedicated registry
// and are pushed to a Pushgateway once the run has finished instead of being
// scraped.

const namespace = "sensorload"

// Transaction status label values.
const (
	StatusCommitted  = "committed"
	StatusRolledBack = "rolled_back"
)

// Collector records run events. It satisfies pipeline.Observer.
type Collector struct {
	registry *prometheus.Registry

	objectsTotal    *prometheus.CounterVec
	rejectedTotal   *prometheus.CounterVec
	rowsInserted    prometheus.Counter
	transactions    *prometheus.CounterVec
	txDuration      prometheus.Histogram
	markFailures    prometheus.Counter
	lastRunObjects  prometheus.Gauge
	lastRunDuration prometheus.Gauge
	lastRunSuccess  prometheus.Gauge
}

// NewCollector registers every metric in a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		objectsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "objects_total",
				Help:      "Source objects processed, by outcome",
			},
			[]string{"outcome"}, // loaded, empty, no_valid_records, fetch_error, parse_error, insert_error
		),
		rejectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_rejected_total",
				Help:      "Records dropped by validation, by field and reason",
			},
			[]string{"field", "reason"},
		),
		rowsInserted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_inserted_total",
			Help:      "Readings committed to the database",
		}),
		transactions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "insert_transactions_total",
				Help:      "Per-object insert transactions, by status",
			},
			[]string{"status"}, // committed, rolled_back
		),
		txDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "insert_transaction_duration_seconds",
			Help:      "Duration of one object's insert transaction",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		}),
		markFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mark_failures_total",
			Help:      "Loaded objects that could not be marked processed",
		}),
		lastRunObjects: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_objects",
			Help:      "Objects seen by the last run",
		}),
		lastRunDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run",
		}),
		lastRunSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
	}
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordRejected counts one record dropped by validation.
func (c *Collector) RecordRejected(err *core.ValidationError) {
	if err == nil {
		return
	}
	field := err.Field
	if field == "" {
		field = "unknown"
	}
	c.rejectedTotal.WithLabelValues(field, err.Reason).Inc()
}

// ObjectInserted records one object's insert transaction.
func (c *Collector) ObjectInserted(rows int, elapsed time.Duration, err error) {
	c.txDuration.Observe(elapsed.Seconds())
	if err != nil {
		c.transactions.WithLabelValues(StatusRolledBack).Inc()
		return
	}
	c.transactions.WithLabelValues(StatusCommitted).Inc()
	c.rowsInserted.Add(float64(rows))
}

// ObjectProcessed counts one object by outcome.
func (c *Collector) ObjectProcessed(result core.ObjectResult) {
	c.objectsTotal.WithLabelValues(string(result.Outcome)).Inc()
	if result.Outcome == core.OutcomeLoaded && !result.Marked {
		c.markFailures.Inc()
	}
}

// RunFinished records the run gauges.
func (c *Collector) RunFinished(summary core.RunSummary) {
	c.lastRunObjects.Set(float64(summary.ObjectsSeen))
	if !summary.FinishedAt.IsZero() && !summary.StartedAt.IsZero() {
		c.lastRunDuration.Set(summary.FinishedAt.Sub(summary.StartedAt).Seconds())
		c.lastRunSuccess.Set(float64(summary.FinishedAt.Unix()))
	}
}

// Push sends every metric in the registry to a Pushgateway under the given job.
func (c *Collector) Push(ctx context.Context, url, job string) error {
	if url == "" {
		return errors.New("metrics: pushgateway url is required")
	}
	if job == "" {
		job = namespace
	}
	if err := push.New(url, job).Gatherer(c.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("metrics: push to %s: %w", url, err)
	}
	return nil
}
