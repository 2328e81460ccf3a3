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
	"time"

	"github.com/aaronlmathis/sensorload/core"
)

// Observer receives run events. Implementations must be cheap and must not block.
type Observer interface {
	RecordRejected(err *core.ValidationError)
	ObjectInserted(rows int, elapsed time.Duration, err error)
	ObjectProcessed(result core.ObjectResult)
	RunFinished(summary core.RunSummary)
}

type nopObserver struct{}

func (nopObserver) RecordRejected(*core.ValidationError) {}
func (nopObserver) ObjectInserted(int, time.Duration, error) {}
func (nopObserver) ObjectProcessed(core.ObjectResult) {}
func (nopObserver) RunFinished(core.RunSummary) {}
