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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/sensorload/core"
)

func TestDirSourceLifecycle(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	src, err := NewDirSource(dir, "", ".json", "")
	require.NoError(t, err)

	require.NoError(t, src.Put(ctx, "b.json", []byte(`[{"sensor_id":"b"}]`)))
	require.NoError(t, src.Put(ctx, "nested/a.json", []byte(`{"measurements":[{"sensor_id":"a"}]}`)))
	require.NoError(t, src.Put(ctx, "notes.txt", []byte(`ignore me`)))
	require.NoError(t, src.Put(ctx, "processed/old.json", []byte(`[]`)))

	keys, err := drain(t, src.List(ctx))
	require.NoError(t, err)
	assert.Equal(t, []string{"b.json", "nested/a.json"}, keys)

	records, err := src.Fetch(ctx, "nested/a.json")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0]["sensor_id"])

	require.NoError(t, src.MarkProcessed(ctx, "nested/a.json"))
	marked, err := os.ReadFile(filepath.Join(dir, "processed", "a.json"))
	require.NoError(t, err)
	assert.Contains(t, string(marked), `"sensor_id":"a"`)

	keys, err = drain(t, src.List(ctx))
	require.NoError(t, err)
	assert.Equal(t, []string{"b.json"}, keys, "marked files are not listed again")

	stats := src.Stats()
	assert.Equal(t, int64(3), stats.ObjectsListed)
	assert.Equal(t, int64(1), stats.ObjectsFetched)
	assert.Equal(t, int64(1), stats.ObjectsMarked)
}

func TestDirSourceFetchErrors(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	src, err := NewDirSource(dir, "", "", "done")
	require.NoError(t, err)

	_, err = src.Fetch(ctx, "missing.json")
	var dirErr *DirSourceError
	require.ErrorAs(t, err, &dirErr)
	assert.Equal(t, "read_file", dirErr.Op)

	require.NoError(t, src.Put(ctx, "bad.json", []byte(`[{`)))
	_, err = src.Fetch(ctx, "bad.json")
	var parseErr *core.ParseError
	assert.ErrorAs(t, err, &parseErr)

	err = src.MarkProcessed(ctx, "missing.json")
	var markErr *core.MarkError
	assert.ErrorAs(t, err, &markErr)

	assert.Equal(t, int64(2), src.Stats().FetchErrors)
}

func TestDirSourceRequiresDir(t *testing.T) {
	_, err := NewDirSource("", "", "", "")
	assert.Error(t, err)
}
