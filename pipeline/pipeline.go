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

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aaronlmathis/sensorload/aggregate"
	"github.com/aaronlmathis/sensorload/batch"
	"github.com/aaronlmathis/sensorload/core"
	"github.com/aaronlmathis/sensorload/validators"
)

// Package pipeline drives a bounded load run: list objects, then for each one
// fetch, validate, batch, insert and mark it processed.
//
// Example usage:
//
//   p, err := pipeline.New().
//       From(source).
//       To(sink).
//       WithBatchSize(100).
//       OnReject(rejectWriter).
//       ReportTo(summaryWriter).
//       Build()
//   if err != nil { return err }
//   summary, err := p.Run(ctx)
//
// Objects are processed strictly one at a time. Only connection and schema
// failures end the run early; everything else is recorded per object.

// Validator turns a raw record into a reading or explains why it cannot.
// The error is expected to be a *core.ValidationError.
type Validator interface {
	Validate(raw core.RawRecord) (core.Reading, error)
}

// Builder provides a fluent API for constructing a Pipeline.
type Builder struct {
	pipeline *Pipeline
}

// New creates a Builder with the default validator and batch size.
func New() *Builder {
	return &Builder{
		pipeline: &Pipeline{
			batchSize: batch.DefaultSize,
			observer:  nopObserver{},
		},
	}
}

// From sets the object source.
func (b *Builder) From(source core.ObjectSource) *Builder {
	b.pipeline.source = source
	return b
}

// To sets the relational sink.
func (b *Builder) To(sink core.Sink) *Builder {
	b.pipeline.sink = sink
	return b
}

// ValidateWith replaces the default reading validator.
func (b *Builder) ValidateWith(v Validator) *Builder {
	b.pipeline.validator = v
	return b
}

// WithBatchSize sets the number of readings per batch. Every batch of an
// object is written in that object's single insert transaction.
func (b *Builder) WithBatchSize(size int) *Builder {
	b.pipeline.batchSize = size
	return b
}

// OnReject adds a handler for records dropped by validation.
func (b *Builder) OnReject(h core.RejectHandler) *Builder {
	b.pipeline.rejectHandlers = append(b.pipeline.rejectHandlers, h)
	return b
}

// ReportTo adds a destination for the run summary.
func (b *Builder) ReportTo(r core.SummaryReporter) *Builder {
	b.pipeline.reporters = append(b.pipeline.reporters, r)
	return b
}

// Observe sets the run observer, typically the metrics collector.
func (b *Builder) Observe(o Observer) *Builder {
	if o != nil {
		b.pipeline.observer = o
	}
	return b
}

// WithLogger sets the logger.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.pipeline.logger = logger
	return b
}

// Build validates the configuration and returns the Pipeline.
func (b *Builder) Build() (*Pipeline, error) {
	p := b.pipeline
	if p.source == nil {
		return nil, errors.New("pipeline: source is required")
	}
	if p.sink == nil {
		return nil, errors.New("pipeline: sink is required")
	}
	if p.batchSize <= 0 {
		return nil, fmt.Errorf("pipeline: batch size must be positive, got %d", p.batchSize)
	}
	if p.validator == nil {
		p.validator = validators.NewReadingValidator()
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p, nil
}

// Pipeline is a configured load run. A Pipeline is not safe for concurrent runs.
type Pipeline struct {
	source         core.ObjectSource
	sink           core.Sink
	validator      Validator
	batchSize      int
	rejectHandlers []core.RejectHandler
	reporters      []core.SummaryReporter
	observer       Observer
	logger         *slog.Logger
	state          State
	sensors        *aggregate.BySensor
}

// State returns the current run state.
func (p *Pipeline) State() State {
	return p.state
}

func (p *Pipeline) setState(s State) {
	if p.state != s {
		p.logger.Debug("state change", "from", p.state, "to", s)
	}
	p.state = s
}

// handleReject fans a dropped record out to every reject handler.
// Handler failures are logged and never abort the object.
func (p *Pipeline) handleReject(ctx context.Context, log *slog.Logger, key string, raw core.RawRecord, err error) {
	var verr *core.ValidationError
	if !errors.As(err, &verr) {
		verr = &core.ValidationError{Reason: err.Error()}
	}
	log.Warn("record rejected", "key", key, "field", verr.Field, "reason", verr.Reason, "value", verr.Value)
	p.observer.RecordRejected(verr)

	for _, h := range p.rejectHandlers {
		if herr := h.HandleReject(ctx, key, raw, verr); herr != nil {
			log.Warn("reject handler failed", "key", key, "error", herr)
		}
	}
}

// report hands the summary to every reporter. Failures are logged only.
func (p *Pipeline) report(ctx context.Context, summary core.RunSummary) {
	for _, r := range p.reporters {
		if err := r.Report(ctx, summary); err != nil {
			p.logger.Warn("summary reporter failed", "run_id", summary.RunID, "error", err)
		}
	}
}
