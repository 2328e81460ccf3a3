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
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/sensorload/core"
)

type fakeMessageWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeMessageWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeMessageWriter) Close() error {
	f.closed = true
	return nil
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestKafkaRejectWriter(t *testing.T) {
	fake := &fakeMessageWriter{}
	writer, err := NewKafkaRejectWriter(WithKafkaWriter(fake))
	require.NoError(t, err)
	ctx := context.Background()

	verr := &core.ValidationError{Field: core.FieldLatitude, Value: 123.0, Reason: core.ReasonOutOfRange}
	require.NoError(t, writer.HandleReject(ctx, "in/a.json", core.RawRecord{"sensor_id": "THS-004"}, verr))
	require.NoError(t, writer.HandleReject(ctx, "in/a.json", core.RawRecord{"sensor_id": 17}, verr))

	require.Len(t, fake.msgs, 2)
	assert.Equal(t, "THS-004", string(fake.msgs[0].Key))
	assert.Equal(t, "in/a.json", string(fake.msgs[1].Key), "non-string ids fall back to the object key")
	assert.Equal(t, "out_of_range", headerValue(fake.msgs[0], "reason"))
	assert.Equal(t, "latitude", headerValue(fake.msgs[0], "field"))

	var entry RejectEntry
	require.NoError(t, json.Unmarshal(fake.msgs[0].Value, &entry))
	assert.Equal(t, 123.0, entry.Value)
	assert.Equal(t, int64(2), writer.Sent())

	require.NoError(t, writer.Close())
	assert.True(t, fake.closed)
}

func TestKafkaRejectWriterErrors(t *testing.T) {
	_, err := NewKafkaRejectWriter()
	var kErr *KafkaWriterError
	require.ErrorAs(t, err, &kErr)
	assert.Equal(t, "validate", kErr.Op)

	fake := &fakeMessageWriter{err: errors.New("leader not available")}
	writer, err := NewKafkaRejectWriter(WithKafkaWriter(fake))
	require.NoError(t, err)

	err = writer.HandleReject(context.Background(), "a.json", core.RawRecord{}, &core.ValidationError{Field: core.FieldSensorID, Reason: core.ReasonMissing})
	require.ErrorAs(t, err, &kErr)
	assert.Equal(t, "write", kErr.Op)
	assert.Equal(t, int64(0), writer.Sent())
}
