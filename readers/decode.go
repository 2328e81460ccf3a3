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
	"path"
	"strings"

	"github.com/aaronlmathis/sensorload/core"
)

// DecodeObject decodes an object payload, choosing the format from the key's extension.
// .parquet is read with Arrow, .jsonl and .ndjson as JSON lines, anything else as a JSON array.
func DecodeObject(key string, body []byte) ([]core.RawRecord, error) {
	switch strings.ToLower(path.Ext(key)) {
	case ".parquet":
		return DecodeParquet(key, body)
	case ".jsonl", ".ndjson":
		return DecodeJSONLines(key, body)
	default:
		return DecodeJSON(key, body)
	}
}

// contentType returns the MIME type stored alongside uploaded objects.
func contentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".parquet":
		return "application/vnd.apache.parquet"
	case ".jsonl", ".ndjson":
		return "application/x-ndjson"
	default:
		return "application/json"
	}
}
