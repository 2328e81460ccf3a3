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

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aaronlmathis/sensorload/core"
)

// S3SourceError provides structured error information for S3 source operations
type S3SourceError struct {
	Op  string // Operation that failed (e.g., "list_objects", "get_object", "copy_object")
	Err error  // Underlying error
}

func (e *S3SourceError) Error() string {
	return fmt.Sprintf("s3 source %s: %v", e.Op, e.Err)
}

func (e *S3SourceError) Unwrap() error {
	return e.Err
}

// S3API is the subset of the S3 client used by S3Source.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// SourceStats holds counters about object source activity
type SourceStats struct {
	ObjectsListed  int64         // Objects yielded by List
	ObjectsFetched int64         // Objects successfully retrieved and decoded
	ObjectsMarked  int64         // Objects copied into the processed namespace
	BytesRead      int64         // Total payload bytes retrieved
	FetchErrors    int64         // Retrieval or decode failures
	FetchDuration  time.Duration // Total time spent in Fetch
}

// S3SourceOptions configures the S3 source behavior
type S3SourceOptions struct {
	Bucket          string          // S3 bucket name
	Prefix          string          // Key prefix filter
	Suffix          string          // Key suffix filter (e.g., ".json")
	ProcessedPrefix string          // Namespace processed objects are copied into
	DeleteAfterMark bool            // Remove the source object once copied
	MaxKeys         int32           // Page size for listing
	Region          string          // AWS region
	Profile         string          // AWS profile to use
	Credentials     aws.Credentials // Explicit credentials
	EndpointURL     string          // Custom S3 endpoint (for S3-compatible services)
	ForcePathStyle  bool            // Use path-style addressing
	Client          S3API           // Preconfigured client, skips AWS config loading
}

// SourceOptionS3 represents a configuration function for S3Source
type SourceOptionS3 func(*S3SourceOptions)

// Functional option functions
func WithS3Bucket(bucket string) SourceOptionS3 {
	return func(opts *S3SourceOptions) {
		opts.Bucket = bucket
	}
}

func WithS3Prefix(prefix string) SourceOptionS3 {
	return func(opts *S3SourceOptions) {
		opts.Prefix = prefix
	}
}

func WithS3Suffix(suffix string) SourceOptionS3 {
	return func(opts *S3SourceOptions) {
		opts.Suffix = suffix
	}
}

func WithS3ProcessedPrefix(prefix string) SourceOptionS3 {
	return func(opts *S3SourceOptions) {
		opts.ProcessedPrefix = prefix
	}
}

func WithS3DeleteAfterMark(del bool) SourceOptionS3 {
	return func(opts *S3SourceOptions) {
		opts.DeleteAfterMark = del
	}
}

func WithS3MaxKeys(maxKeys int32) SourceOptionS3 {
	return func(opts *S3SourceOptions) {
		opts.MaxKeys = maxKeys
	}
}

func WithS3Region(region string) SourceOptionS3 {
	return func(opts *S3SourceOptions) {
		opts.Region = region
	}
}

func WithS3Profile(profile string) SourceOptionS3 {
	return func(opts *S3SourceOptions) {
		opts.Profile = profile
	}
}

func WithS3Credentials(creds aws.Credentials) SourceOptionS3 {
	return func(opts *S3SourceOptions) {
		opts.Credentials = creds
	}
}

func WithS3Endpoint(endpoint string) SourceOptionS3 {
	return func(opts *S3SourceOptions) {
		opts.EndpointURL = endpoint
	}
}

func WithS3PathStyle(pathStyle bool) SourceOptionS3 {
	return func(opts *S3SourceOptions) {
		opts.ForcePathStyle = pathStyle
	}
}

// WithS3Client injects a client, mainly for tests.
func WithS3Client(client S3API) SourceOptionS3 {
	return func(opts *S3SourceOptions) {
		opts.Client = client
	}
}

// S3Source implements core.ObjectSource for Amazon S3 and S3-compatible stores
type S3Source struct {
	client S3API
	filter keyFilter
	stats  SourceStats
	opts   S3SourceOptions
	mu     sync.RWMutex
}

// NewS3Source creates a new S3 source with the specified options
func NewS3Source(options ...SourceOptionS3) (*S3Source, error) {
	opts := S3SourceOptions{
		MaxKeys:         1000,
		ProcessedPrefix: DefaultProcessedPrefix,
	}

	// Apply functional options
	for _, option := range options {
		option(&opts)
	}

	if opts.Bucket == "" {
		return nil, &S3SourceError{Op: "validate_options", Err: fmt.Errorf("bucket is required")}
	}
	if opts.MaxKeys <= 0 {
		opts.MaxKeys = 1000
	}

	client := opts.Client
	if client == nil {
		cfg, err := createAWSConfig(opts)
		if err != nil {
			return nil, &S3SourceError{Op: "create_aws_config", Err: err}
		}
		client = s3.NewFromConfig(cfg, func(o *s3.Options) {
			if opts.EndpointURL != "" {
				o.BaseEndpoint = aws.String(opts.EndpointURL)
			}
			o.UsePathStyle = opts.ForcePathStyle
		})
	}

	return &S3Source{
		client: client,
		opts:   opts,
		filter: keyFilter{Prefix: opts.Prefix, Suffix: opts.Suffix, ProcessedPrefix: opts.ProcessedPrefix},
	}, nil
}

// List returns a lazy iterator over unprocessed objects, one page at a time.
func (s *S3Source) List(ctx context.Context) core.ObjectIterator {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.opts.Bucket),
		MaxKeys: aws.Int32(s.opts.MaxKeys),
	}
	if s.opts.Prefix != "" {
		input.Prefix = aws.String(s.opts.Prefix)
	}

	return &s3Iterator{
		source:    s,
		paginator: s3.NewListObjectsV2Paginator(s.client, input),
	}
}

type s3Iterator struct {
	source    *S3Source
	paginator *s3.ListObjectsV2Paginator
	processed processedSet
	page      []core.SourceObject
	err       error
}

// Next returns the next object, fetching a further page when the current one is drained.
// Objects that already have a copy under the processed prefix are skipped.
func (it *s3Iterator) Next(ctx context.Context) (core.SourceObject, error) {
	if it.processed == nil && it.err == nil {
		processed, err := it.source.listProcessed(ctx)
		if err != nil {
			it.err = &S3SourceError{Op: "list_processed", Err: err}
			return core.SourceObject{}, it.err
		}
		it.processed = processed
	}

	for len(it.page) == 0 {
		if it.err != nil {
			return core.SourceObject{}, it.err
		}
		if !it.paginator.HasMorePages() {
			return core.SourceObject{}, io.EOF
		}
		out, err := it.paginator.NextPage(ctx)
		if err != nil {
			it.err = &S3SourceError{Op: "list_objects", Err: err}
			return core.SourceObject{}, it.err
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if !it.source.filter.include(key) || it.processed.has(key) {
				continue
			}
			it.page = append(it.page, core.SourceObject{
				Key:          key,
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
				State:        core.Unprocessed,
			})
		}
	}

	obj := it.page[0]
	it.page = it.page[1:]

	it.source.mu.Lock()
	it.source.stats.ObjectsListed++
	it.source.mu.Unlock()
	return obj, nil
}

// listProcessed collects the base names under the processed prefix.
func (s *S3Source) listProcessed(ctx context.Context) (processedSet, error) {
	set := processedSet{}
	if s.opts.ProcessedPrefix == "" {
		return set, nil
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.opts.Bucket),
		Prefix:  aws.String(s.opts.ProcessedPrefix),
		MaxKeys: aws.Int32(s.opts.MaxKeys),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			set.add(aws.ToString(obj.Key))
		}
	}
	return set, nil
}

// Fetch retrieves one object and decodes it into raw records
func (s *S3Source) Fetch(ctx context.Context, key string) ([]core.RawRecord, error) {
	start := time.Now()
	defer func() {
		s.mu.Lock()
		s.stats.FetchDuration += time.Since(start)
		s.mu.Unlock()
	}()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		s.countFetchError()
		return nil, &S3SourceError{Op: "get_object", Err: err}
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		s.countFetchError()
		return nil, &S3SourceError{Op: "read_body", Err: err}
	}

	records, err := DecodeObject(key, body)
	if err != nil {
		s.countFetchError()
		return nil, err
	}

	s.mu.Lock()
	s.stats.ObjectsFetched++
	s.stats.BytesRead += int64(len(body))
	s.mu.Unlock()
	return records, nil
}

// MarkProcessed copies the object into the processed namespace and optionally deletes the original
func (s *S3Source) MarkProcessed(ctx context.Context, key string) error {
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.opts.Bucket),
		CopySource: aws.String(copySource(s.opts.Bucket, key)),
		Key:        aws.String(processedKey(s.opts.ProcessedPrefix, key)),
	})
	if err != nil {
		return &core.MarkError{Key: key, Err: &S3SourceError{Op: "copy_object", Err: err}}
	}

	if s.opts.DeleteAfterMark {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.opts.Bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return &core.MarkError{Key: key, Err: &S3SourceError{Op: "delete_object", Err: err}}
		}
	}

	s.mu.Lock()
	s.stats.ObjectsMarked++
	s.mu.Unlock()
	return nil
}

// Put uploads an object, used by the generator
func (s *S3Source) Put(ctx context.Context, key string, body []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.opts.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType(key)),
	})
	if err != nil {
		return &S3SourceError{Op: "put_object", Err: err}
	}
	return nil
}

// Close implements the core.ObjectSource interface
func (s *S3Source) Close() error {
	return nil
}

// Stats returns S3 source statistics
func (s *S3Source) Stats() SourceStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

func (s *S3Source) countFetchError() {
	s.mu.Lock()
	s.stats.FetchErrors++
	s.mu.Unlock()
}

// createAWSConfig creates AWS configuration from options
func createAWSConfig(opts S3SourceOptions) (aws.Config, error) {
	configOpts := []func(*config.LoadOptions) error{}

	if opts.Region != "" {
		configOpts = append(configOpts, config.WithRegion(opts.Region))
	}

	if opts.Profile != "" {
		configOpts = append(configOpts, config.WithSharedConfigProfile(opts.Profile))
	}

	cfg, err := config.LoadDefaultConfig(context.Background(), configOpts...)
	if err != nil {
		return aws.Config{}, err
	}

	// Override with explicit credentials if provided
	if opts.Credentials.AccessKeyID != "" {
		cfg.Credentials = aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(
				opts.Credentials.AccessKeyID,
				opts.Credentials.SecretAccessKey,
				opts.Credentials.SessionToken,
			),
		)
	}

	return cfg, nil
}
