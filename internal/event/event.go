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

// Package event defines the log event record that flows through the
// reduction engine.
package event

import "github.com/logreduce/reduced/internal/value"

// Metadata is an opaque, mergeable blob of provenance/acknowledgement
// tracking attached to every Event. The core only ever merges it; it
// never inspects individual tokens.
type Metadata struct {
	// Sources counts the number of original events whose provenance
	// this Metadata has absorbed. A freshly-observed event starts at 1.
	Sources int
}

// NewMetadata returns the metadata for a single, freshly-observed event.
func NewMetadata() Metadata { return Metadata{Sources: 1} }

// Merge unions two Metadata blobs. Merge is commutative and
// associative, so repeated appends in any order yield the same result.
func (m Metadata) Merge(other Metadata) Metadata {
	return Metadata{Sources: m.Sources + other.Sources}
}

// Event is a log event: a top-level Value (conventionally a Map from
// field name to Value) plus attached Metadata. When Value is not a Map,
// it contributes no fields, but its Metadata still merges.
type Event struct {
	Value    value.Value
	Metadata Metadata
}

// New wraps a top-level value with fresh, single-event metadata.
func New(v value.Value) Event {
	return Event{Value: v, Metadata: NewMetadata()}
}

// Fields returns the event's top-level fields, or (nil, false) if Value
// is not a Map.
func (e Event) Fields() (map[string]value.Value, bool) {
	return e.Value.Map()
}

// Field looks up a single top-level field by name.
func (e Event) Field(name string) (value.Value, bool) {
	m, ok := e.Value.Map()
	if !ok {
		return value.Null(), false
	}
	v, ok := m[name]
	return v, ok
}
