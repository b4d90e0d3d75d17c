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

// Package console implements reduce.Consumer by writing one
// newline-delimited JSON object per consolidated event, for local
// development.
package console

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/logreduce/reduced/internal/event"
	"github.com/logreduce/reduced/internal/reduce"
	"github.com/logreduce/reduced/internal/value"
)

// Sink writes each accepted event as a single JSON line to w.
type Sink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

var _ reduce.Consumer = (*Sink)(nil)

// New wraps w as a Sink.
func New(w io.Writer) *Sink {
	return &Sink{enc: json.NewEncoder(w)}
}

// Accept implements reduce.Consumer.
func (s *Sink) Accept(_ context.Context, e event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields, _ := e.Fields()
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = value.ToAny(v)
	}
	if err := s.enc.Encode(out); err != nil {
		return errors.Wrap(err, "console: writing event")
	}
	return nil
}
