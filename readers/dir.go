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
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aaronlmathis/sensorload/core"
)

// DirSourceError provides structured error information for directory source operations
type DirSourceError struct {
	Op  string
	Err error
}

func (e *DirSourceError) Error() string {
	return fmt.Sprintf("dir source %s: %v", e.Op, e.Err)
}

func (e *DirSourceError) Unwrap() error {
	return e.Err
}

// DirSource implements core.ObjectSource over a local directory.
// Keys are slash-separated paths relative to the root.
type DirSource struct {
	root            string
	processedPrefix string
	filter          keyFilter
	stats           SourceStats
	mu              sync.Mutex
}

// NewDirSource creates a source rooted at dir. The directory is created if missing.
// processedPrefix defaults to "processed/".
func NewDirSource(dir, prefix, suffix, processedPrefix string) (*DirSource, error) {
	if dir == "" {
		return nil, &DirSourceError{Op: "validate_options", Err: errors.New("directory is required")}
	}
	if processedPrefix == "" {
		processedPrefix = DefaultProcessedPrefix
	}
	if !strings.HasSuffix(processedPrefix, "/") {
		processedPrefix += "/"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &DirSourceError{Op: "create_dir", Err: err}
	}
	return &DirSource{
		root:            dir,
		processedPrefix: processedPrefix,
		filter:          keyFilter{Prefix: prefix, Suffix: suffix, ProcessedPrefix: processedPrefix},
	}, nil
}

// List walks the directory once and yields matching files in key order.
// Files whose base name already exists in the processed directory are skipped.
func (d *DirSource) List(ctx context.Context) core.ObjectIterator {
	processed := processedSet{}
	var objects []core.SourceObject
	err := filepath.WalkDir(d.root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, d.processedPrefix) {
			processed.add(key)
			return nil
		}
		if !d.filter.include(key) {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		objects = append(objects, core.SourceObject{
			Key:          key,
			Size:         info.Size(),
			LastModified: info.ModTime(),
			State:        core.Unprocessed,
		})
		return nil
	})
	if err != nil {
		return &sliceIterator{err: &DirSourceError{Op: "list", Err: err}}
	}

	pending := objects[:0]
	for _, obj := range objects {
		if !processed.has(obj.Key) {
			pending = append(pending, obj)
		}
	}
	objects = pending
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })

	d.mu.Lock()
	d.stats.ObjectsListed += int64(len(objects))
	d.mu.Unlock()
	return &sliceIterator{objects: objects}
}

// sliceIterator yields a precomputed listing.
type sliceIterator struct {
	objects []core.SourceObject
	err     error
}

func (it *sliceIterator) Next(ctx context.Context) (core.SourceObject, error) {
	if it.err != nil {
		return core.SourceObject{}, it.err
	}
	if err := ctx.Err(); err != nil {
		return core.SourceObject{}, err
	}
	if len(it.objects) == 0 {
		return core.SourceObject{}, io.EOF
	}
	obj := it.objects[0]
	it.objects = it.objects[1:]
	return obj, nil
}

// Fetch reads and decodes one file.
func (d *DirSource) Fetch(ctx context.Context, key string) ([]core.RawRecord, error) {
	start := time.Now()
	body, err := os.ReadFile(d.path(key))
	if err != nil {
		d.mu.Lock()
		d.stats.FetchErrors++
		d.mu.Unlock()
		return nil, &DirSourceError{Op: "read_file", Err: err}
	}

	records, err := DecodeObject(key, body)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.FetchDuration += time.Since(start)
	if err != nil {
		d.stats.FetchErrors++
		return nil, err
	}
	d.stats.ObjectsFetched++
	d.stats.BytesRead += int64(len(body))
	return records, nil
}

// MarkProcessed copies the file into the processed directory under its base name.
func (d *DirSource) MarkProcessed(ctx context.Context, key string) error {
	body, err := os.ReadFile(d.path(key))
	if err != nil {
		return &core.MarkError{Key: key, Err: &DirSourceError{Op: "read_file", Err: err}}
	}
	if err := d.Put(ctx, processedKey(d.processedPrefix, key), body); err != nil {
		return &core.MarkError{Key: key, Err: err}
	}

	d.mu.Lock()
	d.stats.ObjectsMarked++
	d.mu.Unlock()
	return nil
}

// Put writes a file, creating parent directories as needed.
func (d *DirSource) Put(ctx context.Context, key string, body []byte) error {
	p := d.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return &DirSourceError{Op: "create_dir", Err: err}
	}
	if err := os.WriteFile(p, body, 0o644); err != nil {
		return &DirSourceError{Op: "write_file", Err: err}
	}
	return nil
}

// Close implements the core.ObjectSource interface
func (d *DirSource) Close() error {
	return nil
}

// Stats returns directory source statistics
func (d *DirSource) Stats() SourceStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *DirSource) path(key string) string {
	return filepath.Join(d.root, filepath.FromSlash(key))
}
