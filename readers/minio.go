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
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/aaronlmathis/sensorload/core"
)

// MinIOSourceError provides structured error information for MinIO source operations
type MinIOSourceError struct {
	Op  string
	Err error
}

func (e *MinIOSourceError) Error() string {
	return fmt.Sprintf("minio source %s: %v", e.Op, e.Err)
}

func (e *MinIOSourceError) Unwrap() error {
	return e.Err
}

// MinIOSourceOptions configures the MinIO source
type MinIOSourceOptions struct {
	Endpoint        string // host:port, no scheme
	AccessKey       string
	SecretKey       string
	UseTLS          bool
	Region          string
	Bucket          string
	Prefix          string
	Suffix          string
	ProcessedPrefix string
	DeleteAfterMark bool
	CreateBucket    bool // Create the bucket on construction if it does not exist
}

// SourceOptionMinIO represents a configuration function for MinIOSource
type SourceOptionMinIO func(*MinIOSourceOptions)

func WithMinIOEndpoint(endpoint string, useTLS bool) SourceOptionMinIO {
	return func(opts *MinIOSourceOptions) {
		opts.Endpoint = endpoint
		opts.UseTLS = useTLS
	}
}

func WithMinIOCredentials(accessKey, secretKey string) SourceOptionMinIO {
	return func(opts *MinIOSourceOptions) {
		opts.AccessKey = accessKey
		opts.SecretKey = secretKey
	}
}

func WithMinIORegion(region string) SourceOptionMinIO {
	return func(opts *MinIOSourceOptions) {
		opts.Region = region
	}
}

func WithMinIOBucket(bucket string) SourceOptionMinIO {
	return func(opts *MinIOSourceOptions) {
		opts.Bucket = bucket
	}
}

func WithMinIOKeyFilter(prefix, suffix string) SourceOptionMinIO {
	return func(opts *MinIOSourceOptions) {
		opts.Prefix = prefix
		opts.Suffix = suffix
	}
}

func WithMinIOProcessedPrefix(prefix string) SourceOptionMinIO {
	return func(opts *MinIOSourceOptions) {
		opts.ProcessedPrefix = prefix
	}
}

func WithMinIODeleteAfterMark(del bool) SourceOptionMinIO {
	return func(opts *MinIOSourceOptions) {
		opts.DeleteAfterMark = del
	}
}

func WithMinIOCreateBucket(create bool) SourceOptionMinIO {
	return func(opts *MinIOSourceOptions) {
		opts.CreateBucket = create
	}
}

// MinIOSource implements core.ObjectSource on top of minio-go.
type MinIOSource struct {
	mc     *minio.Client
	opts   MinIOSourceOptions
	filter keyFilter
	stats  SourceStats

	mu      sync.Mutex
	cancels []context.CancelFunc
}

// NewMinIOSource creates a MinIO client and optionally ensures the bucket exists.
func NewMinIOSource(ctx context.Context, options ...SourceOptionMinIO) (*MinIOSource, error) {
	opts := MinIOSourceOptions{ProcessedPrefix: DefaultProcessedPrefix}
	for _, option := range options {
		option(&opts)
	}
	if opts.Endpoint == "" {
		return nil, &MinIOSourceError{Op: "validate_options", Err: fmt.Errorf("endpoint is required")}
	}
	if opts.Bucket == "" {
		return nil, &MinIOSourceError{Op: "validate_options", Err: fmt.Errorf("bucket is required")}
	}

	mc, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseTLS,
		Region: opts.Region,
	})
	if err != nil {
		return nil, &MinIOSourceError{Op: "create_client", Err: err}
	}

	src := &MinIOSource{
		mc:     mc,
		opts:   opts,
		filter: keyFilter{Prefix: opts.Prefix, Suffix: opts.Suffix, ProcessedPrefix: opts.ProcessedPrefix},
	}
	if opts.CreateBucket {
		if err := src.EnsureBucket(ctx); err != nil {
			return nil, err
		}
	}
	return src, nil
}

// EnsureBucket creates the bucket if it does not exist.
func (m *MinIOSource) EnsureBucket(ctx context.Context) error {
	exists, err := m.mc.BucketExists(ctx, m.opts.Bucket)
	if err != nil {
		return &MinIOSourceError{Op: "bucket_exists", Err: err}
	}
	if !exists {
		if err := m.mc.MakeBucket(ctx, m.opts.Bucket, minio.MakeBucketOptions{Region: m.opts.Region}); err != nil {
			return &MinIOSourceError{Op: "make_bucket", Err: err}
		}
	}
	return nil
}

// List streams the bucket listing. The listing goroutine stops when ctx is done or the source is closed.
func (m *MinIOSource) List(ctx context.Context) core.ObjectIterator {
	listCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancels = append(m.cancels, cancel)
	m.mu.Unlock()

	processed := processedSet{}
	if m.opts.ProcessedPrefix != "" {
		for info := range m.mc.ListObjects(listCtx, m.opts.Bucket, minio.ListObjectsOptions{
			Prefix:    m.opts.ProcessedPrefix,
			Recursive: true,
		}) {
			if info.Err != nil {
				return &minioIterator{err: &MinIOSourceError{Op: "list_processed", Err: info.Err}}
			}
			processed.add(info.Key)
		}
	}

	ch := m.mc.ListObjects(listCtx, m.opts.Bucket, minio.ListObjectsOptions{
		Prefix:    m.opts.Prefix,
		Recursive: true,
	})
	return &minioIterator{source: m, ch: ch, processed: processed}
}

type minioIterator struct {
	source    *MinIOSource
	ch        <-chan minio.ObjectInfo
	processed processedSet
	err       error
}

func (it *minioIterator) Next(ctx context.Context) (core.SourceObject, error) {
	if it.err != nil {
		return core.SourceObject{}, it.err
	}
	for {
		select {
		case <-ctx.Done():
			it.err = &MinIOSourceError{Op: "list_objects", Err: ctx.Err()}
			return core.SourceObject{}, it.err
		case info, ok := <-it.ch:
			if !ok {
				return core.SourceObject{}, io.EOF
			}
			if info.Err != nil {
				it.err = &MinIOSourceError{Op: "list_objects", Err: info.Err}
				return core.SourceObject{}, it.err
			}
			if !it.source.filter.include(info.Key) || it.processed.has(info.Key) {
				continue
			}
			it.source.mu.Lock()
			it.source.stats.ObjectsListed++
			it.source.mu.Unlock()
			return core.SourceObject{
				Key:          info.Key,
				Size:         info.Size,
				LastModified: info.LastModified,
				State:        core.Unprocessed,
			}, nil
		}
	}
}

// Fetch downloads and decodes one object.
func (m *MinIOSource) Fetch(ctx context.Context, key string) ([]core.RawRecord, error) {
	start := time.Now()
	defer func() {
		m.mu.Lock()
		m.stats.FetchDuration += time.Since(start)
		m.mu.Unlock()
	}()

	obj, err := m.mc.GetObject(ctx, m.opts.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		m.countFetchError()
		return nil, &MinIOSourceError{Op: "get_object", Err: err}
	}
	defer obj.Close()

	body, err := io.ReadAll(obj)
	if err != nil {
		m.countFetchError()
		return nil, &MinIOSourceError{Op: "read_body", Err: err}
	}

	records, err := DecodeObject(key, body)
	if err != nil {
		m.countFetchError()
		return nil, err
	}

	m.mu.Lock()
	m.stats.ObjectsFetched++
	m.stats.BytesRead += int64(len(body))
	m.mu.Unlock()
	return records, nil
}

// MarkProcessed copies the object under the processed prefix.
func (m *MinIOSource) MarkProcessed(ctx context.Context, key string) error {
	_, err := m.mc.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: m.opts.Bucket, Object: processedKey(m.opts.ProcessedPrefix, key)},
		minio.CopySrcOptions{Bucket: m.opts.Bucket, Object: key},
	)
	if err != nil {
		return &core.MarkError{Key: key, Err: &MinIOSourceError{Op: "copy_object", Err: err}}
	}

	if m.opts.DeleteAfterMark {
		if err := m.mc.RemoveObject(ctx, m.opts.Bucket, key, minio.RemoveObjectOptions{}); err != nil {
			return &core.MarkError{Key: key, Err: &MinIOSourceError{Op: "remove_object", Err: err}}
		}
	}

	m.mu.Lock()
	m.stats.ObjectsMarked++
	m.mu.Unlock()
	return nil
}

// Put uploads an object.
func (m *MinIOSource) Put(ctx context.Context, key string, body []byte) error {
	_, err := m.mc.PutObject(ctx, m.opts.Bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: contentType(key),
	})
	if err != nil {
		return &MinIOSourceError{Op: "put_object", Err: err}
	}
	return nil
}

// Close stops any listing still in flight.
func (m *MinIOSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cancel := range m.cancels {
		cancel()
	}
	m.cancels = nil
	return nil
}

// Stats returns MinIO source statistics
func (m *MinIOSource) Stats() SourceStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *MinIOSource) countFetchError() {
	m.mu.Lock()
	m.stats.FetchErrors++
	m.mu.Unlock()
}
