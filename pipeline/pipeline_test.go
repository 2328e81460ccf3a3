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
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/sensorload/core"
	"github.com/aaronlmathis/sensorload/readers"
)

// memSource is an in-memory core.ObjectSource.
type memSource struct {
	keys     []string
	payloads map[string][]byte
	listErr  error // returned after all keys have been listed
	markErr  error
	marked   []string
}

func newMemSource() *memSource {
	return &memSource{payloads: map[string][]byte{}}
}

func (m *memSource) add(key, payload string) {
	m.keys = append(m.keys, key)
	m.payloads[key] = []byte(payload)
}

type memIterator struct {
	keys []string
	err  error
}

func (it *memIterator) Next(ctx context.Context) (core.SourceObject, error) {
	if len(it.keys) == 0 {
		if it.err != nil {
			return core.SourceObject{}, it.err
		}
		return core.SourceObject{}, io.EOF
	}
	key := it.keys[0]
	it.keys = it.keys[1:]
	return core.SourceObject{Key: key}, nil
}

func (m *memSource) List(ctx context.Context) core.ObjectIterator {
	return &memIterator{keys: append([]string(nil), m.keys...), err: m.listErr}
}

func (m *memSource) Fetch(ctx context.Context, key string) ([]core.RawRecord, error) {
	body, ok := m.payloads[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return readers.DecodeJSON(key, body)
}

func (m *memSource) MarkProcessed(ctx context.Context, key string) error {
	if m.markErr != nil {
		return &core.MarkError{Key: key, Err: m.markErr}
	}
	m.marked = append(m.marked, key)
	return nil
}

func (m *memSource) Close() error { return nil }

// memSink is an in-memory core.Sink with transactional inserts.
type memSink struct {
	connectErr error
	schemaErr  error
	failSensor string // any transaction containing this sensor id is rolled back
	rows       []core.Reading
	batches    int
	commits    int
	connected  bool
	closed     bool
}

func (s *memSink) Connect(ctx context.Context) error {
	if s.connectErr != nil {
		return &core.ConnectionError{Target: "database", Err: s.connectErr}
	}
	s.connected = true
	return nil
}

func (s *memSink) EnsureSchema(ctx context.Context) error {
	if s.schemaErr != nil {
		return &core.SchemaError{Op: "create_table", Err: s.schemaErr}
	}
	return nil
}

func (s *memSink) InsertBatch(ctx context.Context, b core.Batch) (int, error) {
	return s.InsertObject(ctx, []core.Batch{b})
}

func (s *memSink) InsertObject(ctx context.Context, batches []core.Batch) (int, error) {
	var staged []core.Reading
	for _, b := range batches {
		for _, r := range b {
			if r.SensorID == s.failSensor {
				return 0, &core.InsertError{Row: len(staged), Err: errors.New("value too long")}
			}
			staged = append(staged, r)
		}
	}
	s.rows = append(s.rows, staged...)
	s.batches += len(batches)
	s.commits++
	return len(staged), nil
}

func (s *memSink) Close() error {
	s.closed = true
	return nil
}

type recordingObserver struct {
	rejected []string
	inserts  int
	objects  []core.Outcome
	finished bool
}

func (o *recordingObserver) RecordRejected(err *core.ValidationError) {
	o.rejected = append(o.rejected, err.Field)
}
func (o *recordingObserver) ObjectInserted(int, time.Duration, error) { o.inserts++ }
func (o *recordingObserver) ObjectProcessed(r core.ObjectResult) { o.objects = append(o.objects, r.Outcome) }
func (o *recordingObserver) RunFinished(core.RunSummary) { o.finished = true }

const validRecord = `{"sensor_id":"THS-001","timestamp":"2024-01-01T00:00:00Z","temperature":21.5,"humidity":55,"location":{"latitude":37.77,"longitude":-122.41},"battery_level":90}`
const noBatteryRecord = `{"sensor_id":"THS-002","timestamp":"2024-01-01T00:00:00Z","temperature":21.5,"humidity":55,"location":{"latitude":37.77,"longitude":-122.41}}`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func build(t *testing.T, src core.ObjectSource, sink core.Sink, extra ...func(*Builder)) *Pipeline {
	t.Helper()
	b := New().From(src).To(sink).WithLogger(quietLogger())
	for _, fn := range extra {
		fn(b)
	}
	p, err := b.Build()
	require.NoError(t, err)
	return p
}

func TestBuildValidation(t *testing.T) {
	_, err := New().To(&memSink{}).Build()
	assert.Error(t, err)

	_, err = New().From(newMemSource()).Build()
	assert.Error(t, err)

	_, err = New().From(newMemSource()).To(&memSink{}).WithBatchSize(0).Build()
	assert.Error(t, err)
}

func TestRunThreeValidRecords(t *testing.T) {
	src := newMemSource()
	src.add("a.json", "["+validRecord+","+validRecord+","+validRecord+"]")
	sink := &memSink{}

	p := build(t, src, sink)
	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ObjectsSeen)
	assert.Equal(t, 1, summary.ObjectsLoaded)
	assert.Equal(t, 3, summary.RecordsInserted)
	assert.Len(t, sink.rows, 3)
	assert.Equal(t, []string{"a.json"}, src.marked)
	assert.True(t, sink.closed)
	assert.Equal(t, StateDone, p.State())
	assert.NotEmpty(t, summary.RunID)

	require.Len(t, summary.Sensors, 1)
	assert.Equal(t, "THS-001", summary.Sensors[0].SensorID)
	assert.Equal(t, int64(3), summary.Sensors[0].Measurements)
	assert.Equal(t, 21.5, summary.Sensors[0].AvgTemperature)
	assert.Equal(t, int32(90), summary.Sensors[0].MinBatteryLevel)
}

func TestRunRejectsInvalidRecordAndStillMarks(t *testing.T) {
	src := newMemSource()
	src.add("b.json", "["+validRecord+","+noBatteryRecord+","+validRecord+"]")
	sink := &memSink{}
	obs := &recordingObserver{}

	var rejected []string
	handler := core.RejectHandlerFunc(func(ctx context.Context, key string, raw core.RawRecord, err *core.ValidationError) error {
		rejected = append(rejected, key+":"+err.Field)
		return errors.New("dlq unavailable") // must not affect the run
	})

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	p := build(t, src, sink, func(b *Builder) { b.OnReject(handler).Observe(obs).WithLogger(logger) })
	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	// Rejections are visible at the default info level.
	out := buf.String()
	assert.Contains(t, out, `level=WARN msg="record rejected" run_id=`)
	assert.Contains(t, out, "key=b.json field=battery_level reason=missing value=<nil>")

	assert.Equal(t, 2, summary.RecordsInserted)
	assert.Equal(t, 1, summary.RecordsRejected)
	assert.Len(t, sink.rows, 2)
	assert.Equal(t, []string{"b.json:battery_level"}, rejected)
	assert.Equal(t, []string{"battery_level"}, obs.rejected)
	assert.Equal(t, []string{"b.json"}, src.marked)
	require.Len(t, summary.Objects, 1)
	assert.True(t, summary.Objects[0].Marked)
	assert.True(t, obs.finished)
}

func TestRunSkipsUnparseableObject(t *testing.T) {
	src := newMemSource()
	src.add("bad.json", `[{"sensor_id": "THS-001",`)
	src.add("good.json", "["+validRecord+"]")
	sink := &memSink{}

	p := build(t, src, sink)
	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.ObjectsSeen)
	assert.Equal(t, 1, summary.ObjectsLoaded)
	assert.Equal(t, 1, summary.RecordsInserted)

	skipped := summary.SkippedObjects()
	require.Len(t, skipped, 1)
	assert.Equal(t, "bad.json", skipped[0].Key)
	assert.Equal(t, core.OutcomeParseError, skipped[0].Outcome)
	assert.Contains(t, skipped[0].Reason, "parse bad.json")
	assert.Equal(t, []string{"good.json"}, src.marked)
}

func TestRunDatabaseUnreachable(t *testing.T) {
	src := newMemSource()
	src.add("a.json", "["+validRecord+"]")
	sink := &memSink{connectErr: errors.New("connection refused")}

	reported := false
	reporter := core.SummaryReporterFunc(func(ctx context.Context, s core.RunSummary) error {
		reported = true
		return nil
	})

	p := build(t, src, sink, func(b *Builder) { b.ReportTo(reporter) })
	summary, err := p.Run(context.Background())

	var connErr *core.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.True(t, core.IsFatal(err))
	assert.Equal(t, 0, summary.ObjectsSeen)
	assert.False(t, reported, "no summary is produced")
	assert.Empty(t, src.marked)
	assert.Equal(t, StateFatal, p.State())
}

func TestRunSchemaFailureIsFatal(t *testing.T) {
	src := newMemSource()
	src.add("a.json", "["+validRecord+"]")
	sink := &memSink{schemaErr: errors.New("permission denied")}

	p := build(t, src, sink)
	_, err := p.Run(context.Background())

	var schemaErr *core.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Empty(t, sink.rows)
	assert.True(t, sink.closed, "connection is released on the error path")
}

func TestRunOutcomes(t *testing.T) {
	src := newMemSource()
	src.add("empty.json", `[]`)
	src.add("invalid.json", "["+noBatteryRecord+"]")
	src.add("missing.json", "")
	delete(src.payloads, "missing.json")
	src.add("ok.json", "["+validRecord+"]")
	sink := &memSink{}
	obs := &recordingObserver{}

	p := build(t, src, sink, func(b *Builder) { b.Observe(obs) })
	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []core.Outcome{
		core.OutcomeEmpty,
		core.OutcomeNoValidRecords,
		core.OutcomeFetchError,
		core.OutcomeLoaded,
	}, obs.objects)
	assert.Equal(t, 3, summary.ObjectsSkipped)
	assert.Equal(t, []string{"ok.json"}, src.marked, "only loaded objects are marked")
}

func TestRunInsertFailureLeavesObjectUnmarked(t *testing.T) {
	src := newMemSource()
	bad := `{"sensor_id":"BROKEN","timestamp":"2024-01-01T00:00:00Z","temperature":1,"humidity":1,"location":{"latitude":0,"longitude":0},"battery_level":1}`
	src.add("a.json", "["+validRecord+","+validRecord+","+bad+"]")
	src.add("b.json", "["+validRecord+"]")
	sink := &memSink{failSensor: "BROKEN"}

	p := build(t, src, sink, func(b *Builder) { b.WithBatchSize(2) })
	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Objects, 2)
	a := summary.Objects[0]
	assert.Equal(t, core.OutcomeInsertError, a.Outcome)
	assert.Equal(t, 0, a.RecordsInserted, "the full first batch is rolled back with the object")
	assert.False(t, a.Marked)
	assert.Contains(t, a.Reason, "insert a.json row 2")

	// Only b.json is committed, so a rerun of a.json cannot duplicate rows.
	assert.Equal(t, 1, summary.RecordsInserted)
	assert.Len(t, sink.rows, 1)
	assert.Equal(t, 1, sink.commits)
	assert.Equal(t, []string{"b.json"}, src.marked)

	require.Len(t, summary.Sensors, 1, "rolled back rows are not aggregated")
	assert.Equal(t, int64(1), summary.Sensors[0].Measurements)
}

func TestRunBatchesBySize(t *testing.T) {
	src := newMemSource()
	payload := "["
	for i := 0; i < 5; i++ {
		if i > 0 {
			payload += ","
		}
		payload += validRecord
	}
	src.add("a.json", payload+"]")
	sink := &memSink{}
	obs := &recordingObserver{}

	p := build(t, src, sink, func(b *Builder) { b.WithBatchSize(2).Observe(obs) })
	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, summary.RecordsInserted)
	assert.Equal(t, 3, sink.batches)
	assert.Equal(t, 1, sink.commits, "all batches of an object share one transaction")
	assert.Equal(t, 1, obs.inserts)
	require.Len(t, summary.Objects, 1)
	assert.Equal(t, 3, summary.Objects[0].Batches)
}

func TestRunMarkFailureIsWarning(t *testing.T) {
	src := newMemSource()
	src.add("a.json", "["+validRecord+"]")
	src.markErr = errors.New("access denied")
	sink := &memSink{}

	p := build(t, src, sink)
	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ObjectsLoaded)
	assert.Equal(t, 1, summary.RecordsInserted)
	assert.Equal(t, 1, summary.MarkFailures)
	assert.False(t, summary.Objects[0].Marked)
}

func TestRunListingFailures(t *testing.T) {
	t.Run("before any object is fatal", func(t *testing.T) {
		src := newMemSource()
		src.listErr = errors.New("access denied")

		_, err := build(t, src, &memSink{}).Run(context.Background())
		var connErr *core.ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.Equal(t, "store", connErr.Target)
	})

	t.Run("after some objects is recorded", func(t *testing.T) {
		src := newMemSource()
		src.add("a.json", "["+validRecord+"]")
		src.listErr = errors.New("throttled")

		summary, err := build(t, src, &memSink{}).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, summary.RecordsInserted)
		assert.Equal(t, "throttled", summary.ListingError)
	})
}

func TestRunCancelledBetweenObjects(t *testing.T) {
	src := newMemSource()
	src.add("a.json", "["+validRecord+"]")
	src.add("b.json", "["+validRecord+"]")

	ctx, cancel := context.WithCancel(context.Background())
	reported := 0
	reporter := core.SummaryReporterFunc(func(ctx context.Context, s core.RunSummary) error {
		reported++
		return ctx.Err()
	})
	// Cancel as soon as the first object is marked.
	cancelling := &cancelOnMark{memSource: src, cancel: cancel}

	summary, err := build(t, cancelling, &memSink{}, func(b *Builder) { b.ReportTo(reporter) }).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, summary.ObjectsSeen)
	assert.Equal(t, 1, reported)
	assert.False(t, summary.FinishedAt.IsZero())
}

type cancelOnMark struct {
	*memSource
	cancel context.CancelFunc
}

func (c *cancelOnMark) MarkProcessed(ctx context.Context, key string) error {
	err := c.memSource.MarkProcessed(ctx, key)
	c.cancel()
	return err
}

func TestRunLogsSummary(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	src := newMemSource()
	src.add("bad.json", `nope`)
	p, err := New().From(src).To(&memSink{}).WithLogger(logger).Build()
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "run complete")
	assert.Contains(t, out, "objects_skipped=1")
	assert.Contains(t, out, "key=bad.json")
	assert.Contains(t, out, "outcome=parse_error")
}

func TestRunWithDirSource(t *testing.T) {
	dir := t.TempDir()
	src, err := readers.NewDirSource(dir, "", ".json", "")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, src.Put(ctx, "one.json", []byte(`{"measurements":[`+validRecord+`,`+noBatteryRecord+`]}`)))
	require.NoError(t, src.Put(ctx, "two.json", []byte(`{broken`)))

	sink := &memSink{}
	summary, err := build(t, src, sink).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.RecordsInserted)
	assert.Equal(t, 1, summary.RecordsRejected)
	assert.Equal(t, 1, summary.ObjectsSkipped)

	// A second run only sees the object that failed.
	sink2 := &memSink{}
	summary, err = build(t, src, sink2).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ObjectsSeen)
	assert.Equal(t, core.OutcomeParseError, summary.Objects[0].Outcome)
	assert.Empty(t, sink2.rows)
}
