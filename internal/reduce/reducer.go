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

// Package reduce implements the event-reduction core: the merger
// registry, group state, discriminant extraction, and the reducer
// decision logic described in spec §4. Reducer is not safe for
// concurrent use; exactly one goroutine (the Driver) is meant to drive
// it, per spec §5.
package reduce

import (
	"context"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/logreduce/reduced/internal/condition"
	"github.com/logreduce/reduced/internal/event"
)

// Clock yields monotonic instants. Only elapsed duration between calls
// matters; the reducer never reasons about wall-clock time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// Now implements Clock using time.Now.
func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the default, real-time Clock.
var SystemClock Clock = systemClock{}

// Hook is the metrics/event hook invoked once per stale-sweep-flushed
// group (spec §6). It is never invoked for predicate-driven or
// end-of-stream flushes.
type Hook interface {
	StaleEventFlushed()
}

// noopHook discards the signal; used when no Hook is configured.
type noopHook struct{}

func (noopHook) StaleEventFlushed() {}

// Reducer holds the live groups, keyed by discriminant, and implements
// the routing/stale-sweep decision logic of spec §4.4.
type Reducer struct {
	cfg        Config
	evaluator  condition.Evaluator
	clock      Clock
	hook       Hook
	groups     map[string]*group
	discrOrder map[string]Discriminant // the slot values per live key, kept in step with groups
}

// New constructs a Reducer. evaluator, clock, and hook must be
// non-blocking, per spec §5; a nil evaluator/clock/hook falls back to
// sensible non-blocking defaults.
func New(cfg Config, evaluator condition.Evaluator, clock Clock, hook Hook) (*Reducer, error) {
	if err := cfg.Preflight(); err != nil {
		return nil, err
	}
	if evaluator == nil {
		evaluator = condition.Default{}
	}
	if clock == nil {
		clock = SystemClock
	}
	if hook == nil {
		hook = noopHook{}
	}
	return &Reducer{
		cfg:        cfg,
		evaluator:  evaluator,
		clock:      clock,
		hook:       hook,
		groups:     make(map[string]*group),
		discrOrder: make(map[string]Discriminant),
	}, nil
}

// HandleEvent implements the per-event decision of spec §4.4, returning
// any events it emits as a side effect of this single event: the group
// flushed by a matching predicate, if any, followed by every group the
// stale sweep that runs after it flushes.
func (r *Reducer) HandleEvent(ctx context.Context, e event.Event) ([]event.Event, error) {
	now := r.clock.Now()
	d := discriminantOf(e, r.cfg.GroupBy)
	key := d.key()

	var emitted []event.Event

	starts, err := r.evaluator.Evaluate(ctx, e, r.cfg.StartsWhen)
	if err != nil {
		return nil, err
	}
	ends, err := r.evaluator.Evaluate(ctx, e, r.cfg.EndsWhen)
	if err != nil {
		return nil, err
	}

	switch {
	case starts:
		if g, ok := r.groups[key]; ok {
			emitted = append(emitted, g.finalize())
			delete(r.groups, key)
		}
		r.seedGroup(key, d, e, now)

	case ends:
		g, ok := r.groups[key]
		if !ok {
			g = newGroup(e, r.cfg.MergeStrategies, now)
		} else {
			g.append(e, r.cfg.MergeStrategies, now)
		}
		emitted = append(emitted, g.finalize())
		delete(r.groups, key)
		delete(r.discrOrder, key)

	default:
		if g, ok := r.groups[key]; ok {
			g.append(e, r.cfg.MergeStrategies, now)
		} else {
			r.seedGroup(key, d, e, now)
		}
	}

	swept := r.sweep(now)
	return append(emitted, swept...), nil
}

func (r *Reducer) seedGroup(key string, d Discriminant, e event.Event, now time.Time) {
	r.groups[key] = newGroup(e, r.cfg.MergeStrategies, now)
	r.discrOrder[key] = d
}

// sweep finalizes and emits every group idle for at least ExpireAfter,
// firing the StaleEventFlushed hook once per flushed group. Scan order
// is a sorted pass over discriminant keys, making emission order
// deterministic within one call (spec leaves this unspecified upstream
// but asks for a documented, fixed choice).
func (r *Reducer) sweep(now time.Time) []event.Event {
	var staleKeys []string
	for key, g := range r.groups {
		if now.Sub(g.staleSince) >= r.cfg.ExpireAfter {
			staleKeys = append(staleKeys, key)
		}
	}
	sort.Strings(staleKeys)

	emitted := make([]event.Event, 0, len(staleKeys))
	for _, key := range staleKeys {
		g := r.groups[key]
		emitted = append(emitted, g.finalize())
		delete(r.groups, key)
		delete(r.discrOrder, key)
		r.hook.StaleEventFlushed()
		log.WithField("group_id", g.id).Debug("stale group flushed")
	}
	return emitted
}

// FlushAll finalizes and emits every remaining group, in sorted-key
// order, without touching the stale-sweep hook. It is called once
// on upstream end-of-stream (spec §4.4).
func (r *Reducer) FlushAll() []event.Event {
	keys := make([]string, 0, len(r.groups))
	for key := range r.groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	emitted := make([]event.Event, 0, len(keys))
	for _, key := range keys {
		g := r.groups[key]
		emitted = append(emitted, g.finalize())
		delete(r.groups, key)
		delete(r.discrOrder, key)
	}
	return emitted
}

// Sweep runs the stale sweep independently of event arrival; the Driver
// calls this once per flush-period tick.
func (r *Reducer) Sweep() []event.Event {
	return r.sweep(r.clock.Now())
}

// ActiveGroups reports the current live group count, for the
// reduced_active_groups gauge.
func (r *Reducer) ActiveGroups() int {
	return len(r.groups)
}
