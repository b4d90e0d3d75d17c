// Copyright 2023 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package file implements reduce.Producer over a newline-delimited JSON
// stream, one log event object per line.
package file

import (
	"bufio"
	"context"
	"encoding/json"
	"io"

	"github.com/pkg/errors"

	"github.com/logreduce/reduced/internal/event"
	"github.com/logreduce/reduced/internal/reduce"
	"github.com/logreduce/reduced/internal/value"
)

const maxLineBytes = 1024 * 1024

// Source reads one JSON object per line from an io.Reader and yields
// each as an Event. It is not safe for concurrent use; exactly one
// Driver reads from it at a time, per spec §5.
type Source struct {
	scanner *bufio.Scanner
}

var _ reduce.Producer = (*Source)(nil)

// New wraps r as a Source. r is never closed by Source; the caller
// owns its lifetime.
func New(r io.Reader) *Source {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &Source{scanner: scanner}
}

// Next implements reduce.Producer. Blank lines are skipped; a line that
// does not parse as a JSON object is a fatal stream error, since there
// is no reasonable recovery short of desynchronizing from the stream.
func (s *Source) Next(ctx context.Context) (event.Event, bool, error) {
	for {
		select {
		case <-ctx.Done():
			return event.Event{}, false, ctx.Err()
		default:
		}

		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return event.Event{}, false, errors.Wrap(err, "file: reading event stream")
			}
			return event.Event{}, false, nil
		}

		line := s.scanner.Bytes()
		if len(bytesTrimSpace(line)) == 0 {
			continue
		}

		var raw map[string]interface{}
		if err := json.Unmarshal(line, &raw); err != nil {
			return event.Event{}, false, errors.Wrap(err, "file: parsing event line")
		}

		v, err := value.FromAny(raw)
		if err != nil {
			return event.Event{}, false, errors.Wrap(err, "file: converting event line")
		}
		return event.New(v), true, nil
	}
}

func bytesTrimSpace(b []byte) []byte {
	i, j := 0, len(b)
	for i < j && isSpace(b[i]) {
		i++
	}
	for j > i && isSpace(b[j-1]) {
		j--
	}
	return b[i:j]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}
