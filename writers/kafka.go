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
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/aaronlmathis/sensorload/core"
)

// KafkaWriterError wraps Kafka-specific errors with context about the operation.
type KafkaWriterError struct {
	Op  string
	Err error
}

func (e *KafkaWriterError) Error() string {
	return fmt.Sprintf("kafka writer %s: %v", e.Op, e.Err)
}

func (e *KafkaWriterError) Unwrap() error {
	return e.Err
}

// MessageWriter is the subset of *kafka.Writer used by KafkaRejectWriter.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaRejectOptions configures the dead-letter producer.
type KafkaRejectOptions struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	WriteTimeout time.Duration
	Writer       MessageWriter // Preconfigured writer, takes precedence over Brokers
}

// KafkaRejectOption represents a configuration function for KafkaRejectOptions.
type KafkaRejectOption func(*KafkaRejectOptions)

// WithKafkaBrokers sets the bootstrap brokers.
func WithKafkaBrokers(brokers ...string) KafkaRejectOption {
	return func(opts *KafkaRejectOptions) {
		opts.Brokers = append([]string(nil), brokers...)
	}
}

// WithKafkaTopic sets the dead-letter topic.
func WithKafkaTopic(topic string) KafkaRejectOption {
	return func(opts *KafkaRejectOptions) {
		opts.Topic = topic
	}
}

// WithKafkaWriter injects a message writer, mainly for tests.
func WithKafkaWriter(w MessageWriter) KafkaRejectOption {
	return func(opts *KafkaRejectOptions) {
		opts.Writer = w
	}
}

// KafkaRejectWriter implements core.RejectHandler by publishing rejects to a DLQ topic.
// Messages are keyed by sensor id so rejects of one sensor stay ordered.
type KafkaRejectWriter struct {
	writer MessageWriter
	topic  string
	sent   int64
	mu     sync.Mutex
}

// NewKafkaRejectWriter creates the DLQ producer.
func NewKafkaRejectWriter(options ...KafkaRejectOption) (*KafkaRejectWriter, error) {
	opts := &KafkaRejectOptions{
		Topic:        "sensor-readings-dlq",
		BatchSize:    10,
		WriteTimeout: 10 * time.Second,
	}
	for _, option := range options {
		option(opts)
	}

	writer := opts.Writer
	if writer == nil {
		if len(opts.Brokers) == 0 {
			return nil, &KafkaWriterError{Op: "validate", Err: fmt.Errorf("at least one broker is required")}
		}
		writer = &kafka.Writer{
			Addr:         kafka.TCP(opts.Brokers...),
			Topic:        opts.Topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    opts.BatchSize,
			BatchTimeout: 100 * time.Millisecond,
			WriteTimeout: opts.WriteTimeout,
			RequiredAcks: kafka.RequireAll,
		}
	}

	return &KafkaRejectWriter{writer: writer, topic: opts.Topic}, nil
}

// HandleReject implements the core.RejectHandler interface
func (k *KafkaRejectWriter) HandleReject(ctx context.Context, key string, record core.RawRecord, verr *core.ValidationError) error {
	entry := newRejectEntry(key, record, verr)
	value, err := json.Marshal(entry)
	if err != nil {
		return &KafkaWriterError{Op: "marshal", Err: err}
	}

	msgKey := key
	if id, ok := record[core.FieldSensorID].(string); ok && id != "" {
		msgKey = id
	}

	msg := kafka.Message{
		Key:   []byte(msgKey),
		Value: value,
		Headers: []kafka.Header{
			{Key: "object_key", Value: []byte(key)},
			{Key: "field", Value: []byte(entry.Field)},
			{Key: "reason", Value: []byte(entry.Reason)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return &KafkaWriterError{Op: "write", Err: err}
	}

	k.mu.Lock()
	k.sent++
	k.mu.Unlock()
	return nil
}

// Sent returns the number of rejects published.
func (k *KafkaRejectWriter) Sent() int64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.sent
}

// Close flushes pending messages and closes the producer.
func (k *KafkaRejectWriter) Close() error {
	if err := k.writer.Close(); err != nil {
		return &KafkaWriterError{Op: "close", Err: err}
	}
	return nil
}
