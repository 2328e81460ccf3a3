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
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aaronlmathis/sensorload/aggregate"
	"github.com/aaronlmathis/sensorload/batch"
	"github.com/aaronlmathis/sensorload/core"
)

// Run executes one bounded load over every unprocessed object.
//
// It returns a *core.ConnectionError or *core.SchemaError when the run cannot
// start or the store cannot be listed at all, and ctx.Err() when cancelled
// between objects. In every other case the error is nil and per-object
// failures are reported in the summary.
func (p *Pipeline) Run(ctx context.Context) (core.RunSummary, error) {
	summary := core.RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	log := p.logger.With("run_id", summary.RunID)
	p.state = StateIdle
	p.sensors = aggregate.NewBySensor()

	if err := p.sink.Connect(ctx); err != nil {
		p.setState(StateFatal)
		log.Error("database connection failed", "error", err)
		return summary, err
	}
	defer func() {
		if err := p.sink.Close(); err != nil {
			log.Warn("closing sink", "error", err)
		}
	}()

	if err := p.sink.EnsureSchema(ctx); err != nil {
		p.setState(StateFatal)
		log.Error("schema setup failed", "error", err)
		return summary, err
	}
	p.setState(StateSchemaReady)

	p.setState(StateListing)
	it := p.source.List(ctx)
	for {
		if err := ctx.Err(); err != nil {
			return p.finish(ctx, log, summary, err)
		}

		obj, err := it.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return p.finish(ctx, log, summary, ctxErr)
			}
			if summary.ObjectsSeen == 0 {
				p.setState(StateFatal)
				log.Error("object store unreachable", "error", err)
				return summary, &core.ConnectionError{Target: "store", Err: err}
			}
			summary.ListingError = err.Error()
			log.Warn("listing ended early", "error", err, "objects_seen", summary.ObjectsSeen)
			break
		}

		result, markErr := p.processObject(ctx, log, obj.Key)
		summary.Add(result)
		if markErr != nil {
			summary.MarkFailures++
		}
		p.observer.ObjectProcessed(result)
		p.setState(StateListing)
	}

	return p.finish(ctx, log, summary, nil)
}

// finish stamps the summary, logs it and hands it to the reporters.
func (p *Pipeline) finish(ctx context.Context, log *slog.Logger, summary core.RunSummary, runErr error) (core.RunSummary, error) {
	summary.FinishedAt = time.Now().UTC()
	summary.Sensors = p.sensors.Result()
	p.setState(StateDone)

	attrs := []any{
		"objects_seen", summary.ObjectsSeen,
		"objects_loaded", summary.ObjectsLoaded,
		"objects_skipped", summary.ObjectsSkipped,
		"records_inserted", summary.RecordsInserted,
		"records_rejected", summary.RecordsRejected,
		"mark_failures", summary.MarkFailures,
		"sensors", len(summary.Sensors),
		"elapsed", summary.FinishedAt.Sub(summary.StartedAt),
	}
	if runErr != nil {
		log.Warn("run interrupted", append(attrs, "error", runErr)...)
	} else {
		log.Info("run complete", attrs...)
	}
	for _, r := range summary.SkippedObjects() {
		log.Info("skipped object", "key", r.Key, "outcome", r.Outcome, "reason", r.Reason)
	}

	p.observer.RunFinished(summary)
	// Reporting must still happen after an interrupt, so it does not use ctx.
	p.report(context.WithoutCancel(ctx), summary)
	return summary, runErr
}

// processObject runs one object through fetch, validate, insert and mark.
// The returned error is the mark failure, if any; it never changes the outcome.
func (p *Pipeline) processObject(ctx context.Context, log *slog.Logger, key string) (core.ObjectResult, error) {
	start := time.Now()
	res := core.ObjectResult{Key: key}

	p.setState(StateFetching)
	records, err := p.source.Fetch(ctx, key)
	if err != nil {
		var parseErr *core.ParseError
		if errors.As(err, &parseErr) {
			res.Outcome = core.OutcomeParseError
		} else {
			res.Outcome = core.OutcomeFetchError
		}
		res.Reason = err.Error()
		return p.logObject(log, res, start), nil
	}

	res.RecordsRead = len(records)
	if len(records) == 0 {
		res.Outcome = core.OutcomeEmpty
		res.Reason = "object contains no records"
		return p.logObject(log, res, start), nil
	}

	p.setState(StateValidating)
	asm := batch.NewAssembler(p.batchSize)
	var batches []core.Batch
	for _, raw := range records {
		reading, err := p.validator.Validate(raw)
		if err != nil {
			res.RecordsRejected++
			p.handleReject(ctx, log, key, raw, err)
			continue
		}

		asm.Append(reading)
		if full, ok := asm.FlushIfFull(); ok {
			batches = append(batches, full)
		}
	}
	if rest, ok := asm.FlushRemaining(); ok {
		batches = append(batches, rest)
	}

	if len(batches) == 0 {
		res.Outcome = core.OutcomeNoValidRecords
		res.Reason = fmt.Sprintf("all %d records rejected", res.RecordsRejected)
		return p.logObject(log, res, start), nil
	}
	if err := p.insert(ctx, key, batches, &res); err != nil {
		return p.logObject(log, res, start), nil
	}
	res.Outcome = core.OutcomeLoaded

	p.setState(StateMarking)
	if err := p.source.MarkProcessed(ctx, key); err != nil {
		log.Warn("mark processed failed", "key", key, "error", err)
		return p.logObject(log, res, start), err
	}
	res.Marked = true
	return p.logObject(log, res, start), nil
}

// insert writes every batch of the object in one transaction, recording the
// committed rows or the failure on res. A failed object counts zero rows.
func (p *Pipeline) insert(ctx context.Context, key string, batches []core.Batch, res *core.ObjectResult) error {
	p.setState(StateInserting)
	start := time.Now()
	n, err := p.sink.InsertObject(ctx, batches)
	p.observer.ObjectInserted(n, time.Since(start), err)
	if err != nil {
		var insertErr *core.InsertError
		if errors.As(err, &insertErr) && insertErr.Key == "" {
			insertErr.Key = key
		}
		res.Outcome = core.OutcomeInsertError
		res.Reason = err.Error()
		return err
	}
	res.RecordsInserted = n
	res.Batches = len(batches)
	for _, b := range batches {
		p.sensors.AddBatch(b)
	}
	return nil
}

func (p *Pipeline) logObject(log *slog.Logger, res core.ObjectResult, start time.Time) core.ObjectResult {
	res.Duration = time.Since(start)
	attrs := []any{
		"key", res.Key,
		"outcome", res.Outcome,
		"records", res.RecordsRead,
		"inserted", res.RecordsInserted,
		"rejected", res.RecordsRejected,
		"batches", res.Batches,
		"marked", res.Marked,
		"elapsed", res.Duration,
	}
	if res.Reason != "" {
		attrs = append(attrs, "reason", res.Reason)
	}
	if res.Skipped() {
		log.Warn("object skipped", attrs...)
	} else {
		log.Info("object loaded", attrs...)
	}
	return res
}
