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

package reduce

import (
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/logreduce/reduced/internal/event"
	"github.com/logreduce/reduced/internal/value"
)

const endSuffix = "_end"

// OnMergeError, when non-nil, is notified once per dropped field error
// (seed, add, or finalize). It exists so the metrics package can count
// these without reduce importing metrics back.
var OnMergeError func(field string)

func reportMergeError(field string) {
	if OnMergeError != nil {
		OnMergeError(field)
	}
}

// group is the mutable, per-discriminant accumulator described in
// spec §4.2. It is owned exclusively by the reducer's group map; its
// mergers are owned exclusively by it.
type group struct {
	id         uuid.UUID
	fields     map[string]merger
	endFields  map[string]bool // fields with a synthetic <name>_end default merger
	staleSince time.Time
	metadata   event.Metadata
}

// newGroup creates a group state by seeding it from e.
func newGroup(e event.Event, strategies map[string]Strategy, now time.Time) *group {
	g := &group{
		id:         uuid.New(),
		fields:     make(map[string]merger),
		endFields:  make(map[string]bool),
		staleSince: now,
		metadata:   e.Metadata,
	}
	if fields, ok := e.Fields(); ok {
		for name, v := range fields {
			g.seedField(name, v, strategies)
		}
	}
	return g
}

// seedField installs a merger (and, for default-timestamp fields, its
// synthetic _end sibling) for a field first seen in the group. Seeding
// failures are logged and the field is omitted; they are never fatal.
func (g *group) seedField(name string, v value.Value, strategies map[string]Strategy) {
	strat, explicit := strategies[name]
	if !explicit {
		strat = defaultStrategyFor(v)
	}

	m, err := newMerger(strat, v)
	if err != nil {
		log.WithFields(log.Fields{
			"group_id": g.id,
			"field":    name,
			"strategy": strat,
		}).WithError(err).Warn("dropping field: could not seed merger")
		reportMergeError(name)
		return
	}
	g.fields[name] = m

	if !explicit && v.Kind() == value.KindTime {
		endName := name + endSuffix
		endMerger, err := newMerger(StrategyRetain, v)
		if err != nil {
			log.WithFields(log.Fields{
				"group_id": g.id,
				"field":    endName,
			}).WithError(err).Warn("dropping synthetic _end field: could not seed merger")
			reportMergeError(endName)
			return
		}
		g.fields[endName] = endMerger
		g.endFields[endName] = true
	}
}

// append folds a later event into the group, per spec §4.2. A field
// that has no merger yet (including one that appears mid-group for the
// first time) is seeded fresh here — this mirrors the source behavior
// spec §9 calls out explicitly as intentional: late-appearing fields
// always start from the current contribution, never retroactively
// absorb earlier events they didn't witness.
func (g *group) append(e event.Event, strategies map[string]Strategy, now time.Time) {
	g.metadata = g.metadata.Merge(e.Metadata)
	g.staleSince = now

	fields, ok := e.Fields()
	if !ok {
		return
	}
	for name, v := range fields {
		m, exists := g.fields[name]
		if !exists {
			g.seedField(name, v, strategies)
			continue
		}
		if err := m.add(v); err != nil {
			strat := strategies[name]
			log.WithFields(log.Fields{
				"group_id": g.id,
				"field":    name,
				"strategy": strat,
			}).WithError(err).Warn("dropping contribution: merger rejected value")
			reportMergeError(name)
			continue
		}
		// Keep the _end sibling, if any, moving forward too.
		if endName := name + endSuffix; g.endFields[endName] {
			if endMerger, ok := g.fields[endName]; ok {
				_ = endMerger.add(v)
			}
		}
	}
}

// finalize converts the group's mergers into a single output Event.
// Traversal order is unspecified; finalization errors are logged and
// the field is omitted from the result.
func (g *group) finalize() event.Event {
	out := make(map[string]value.Value, len(g.fields))
	for name, m := range g.fields {
		v, err := m.finalize()
		if err != nil {
			log.WithFields(log.Fields{
				"group_id": g.id,
				"field":    name,
			}).WithError(err).Warn("omitting field: finalize failed")
			reportMergeError(name)
			continue
		}
		out[name] = v
	}
	return event.Event{Value: value.Map(out), Metadata: g.metadata}
}

// defaultStrategyFor returns the implicit per-type default strategy
// described in spec §4.1.
func defaultStrategyFor(v value.Value) Strategy {
	switch v.Kind() {
	case value.KindInt, value.KindFloat:
		return StrategySum
	default:
		return StrategyDiscard
	}
}
