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
	"net/url"
	"path"
	"strings"
)

// DefaultProcessedPrefix is the namespace loaded objects are copied into.
const DefaultProcessedPrefix = "processed/"

// keyFilter decides which listed keys are candidates for loading.
type keyFilter struct {
	Prefix          string
	Suffix          string
	ProcessedPrefix string
}

func (f keyFilter) include(key string) bool {
	if key == "" || strings.HasSuffix(key, "/") {
		return false // folder placeholder
	}
	if f.ProcessedPrefix != "" && strings.HasPrefix(key, f.ProcessedPrefix) {
		return false
	}
	if f.Prefix != "" && !strings.HasPrefix(key, f.Prefix) {
		return false
	}
	if f.Suffix != "" && !strings.HasSuffix(key, f.Suffix) {
		return false
	}
	return true
}

// processedKey maps a source key to its marker in the processed namespace.
// Only the base name is kept, so nested keys land flat under the prefix.
func processedKey(prefix, key string) string {
	return prefix + path.Base(key)
}

// copySource builds the URL-encoded "bucket/key" value S3 expects for CopyObject.
func copySource(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return bucket + "/" + strings.Join(segments, "/")
}

// processedSet holds the base names already present in the processed namespace.
type processedSet map[string]struct{}

func (p processedSet) add(processedKey string) {
	p[path.Base(processedKey)] = struct{}{}
}

// has reports whether key already has a processed copy.
func (p processedSet) has(key string) bool {
	_, ok := p[path.Base(key)]
	return ok
}
