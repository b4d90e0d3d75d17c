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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/logreduce/reduced/internal/condition"
	"github.com/logreduce/reduced/internal/event"
	"github.com/logreduce/reduced/internal/value"
)

func ev(fields map[string]value.Value) event.Event {
	return event.New(value.Map(fields))
}

func field(e event.Event, name string) value.Value {
	v, _ := e.Field(name)
	return v
}

func mustExpr(t *testing.T, src string) condition.Expr {
	t.Helper()
	expr, err := condition.Parse(src)
	require.NoError(t, err)
	return expr
}

// S1: ends_when with per-key grouping.
func TestScenarioEndsWhenPerKeyGrouping(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GroupBy = []string{"request_id"}
	cfg.EndsWhen = mustExpr(t, "has(test_end)")

	r, err := New(cfg, condition.Default{}, nil, nil)
	require.NoError(t, err)

	input := []event.Event{
		ev(map[string]value.Value{"msg": value.String("m1"), "counter": value.Int(1), "request_id": value.String("1")}),
		ev(map[string]value.Value{"msg": value.String("m2"), "counter": value.Int(2), "request_id": value.String("2")}),
		ev(map[string]value.Value{"msg": value.String("m3"), "counter": value.Int(3), "request_id": value.String("1")}),
		ev(map[string]value.Value{"msg": value.String("m4"), "counter": value.Int(4), "request_id": value.String("1"), "test_end": value.String("yep")}),
		ev(map[string]value.Value{"msg": value.String("m5"), "counter": value.Int(5), "request_id": value.String("2"), "extra_field": value.String("value1"), "test_end": value.String("yep")}),
	}

	var emitted []event.Event
	for _, e := range input {
		out, err := r.HandleEvent(context.Background(), e)
		require.NoError(t, err)
		emitted = append(emitted, out...)
	}

	require.Len(t, emitted, 2)

	c0, _ := field(emitted[0], "counter").Int()
	require.Equal(t, int64(8), c0)
	m0, _ := field(emitted[0], "msg").String()
	require.Equal(t, "m1", m0)

	c1, _ := field(emitted[1], "counter").Int()
	require.Equal(t, int64(7), c1)
	m1, _ := field(emitted[1], "msg").String()
	require.Equal(t, "m2", m1)
	extra, _ := field(emitted[1], "extra_field").String()
	require.Equal(t, "value1", extra)
}

// S2: explicit merge strategies, including dropped contributions.
func TestScenarioExplicitMergeStrategies(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GroupBy = []string{"request_id"}
	cfg.EndsWhen = mustExpr(t, "has(test_end)")
	cfg.MergeStrategies = map[string]Strategy{
		"foo": StrategyConcat,
		"bar": StrategyArray,
		"baz": StrategyMax,
	}

	r, err := New(cfg, condition.Default{}, nil, nil)
	require.NoError(t, err)

	input := []event.Event{
		ev(map[string]value.Value{"request_id": value.String("1"), "foo": value.String("first foo"), "bar": value.String("first bar"), "baz": value.Int(2)}),
		ev(map[string]value.Value{"request_id": value.String("1"), "foo": value.String("second foo"), "bar": value.Int(2), "baz": value.String("not number")}),
		ev(map[string]value.Value{"request_id": value.String("1"), "foo": value.Int(10), "bar": value.String("third bar"), "baz": value.Int(3), "test_end": value.String("yep")}),
	}

	var emitted []event.Event
	for _, e := range input {
		out, err := r.HandleEvent(context.Background(), e)
		require.NoError(t, err)
		emitted = append(emitted, out...)
	}
	require.Len(t, emitted, 1)

	foo, _ := field(emitted[0], "foo").String()
	require.Equal(t, "first foo second foo", foo)

	bar, ok := field(emitted[0], "bar").Array()
	require.True(t, ok)
	require.Len(t, bar, 3)
	b0, _ := bar[0].String()
	require.Equal(t, "first bar", b0)
	b1, _ := bar[1].Int()
	require.Equal(t, int64(2), b1)
	b2, _ := bar[2].String()
	require.Equal(t, "third bar", b2)

	baz, _ := field(emitted[0], "baz").Int()
	require.Equal(t, int64(3), baz)
}

// S3: array vs concat over the same underlying sequence. A trailing
// scalar contribution under concat's array mode is absorbed as a
// single element, matching array's own behavior.
func TestScenarioArrayVsConcat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GroupBy = []string{"request_id"}
	cfg.EndsWhen = mustExpr(t, "has(test_end)")
	cfg.MergeStrategies = map[string]Strategy{
		"foo": StrategyArray,
		"bar": StrategyConcat,
	}

	r, err := New(cfg, condition.Default{}, nil, nil)
	require.NoError(t, err)

	mkArr := func(vals ...int64) value.Value {
		vs := make([]value.Value, len(vals))
		for i, n := range vals {
			vs[i] = value.Int(n)
		}
		return value.Array(vs)
	}

	input := []event.Event{
		ev(map[string]value.Value{"request_id": value.String("1"), "foo": mkArr(1, 3), "bar": mkArr(1, 3)}),
		ev(map[string]value.Value{"request_id": value.String("1"), "foo": mkArr(5, 7), "bar": mkArr(5, 7)}),
		ev(map[string]value.Value{"request_id": value.String("1"), "foo": value.String("done"), "bar": value.String("done"), "test_end": value.String("yep")}),
	}

	var emitted []event.Event
	for _, e := range input {
		out, err := r.HandleEvent(context.Background(), e)
		require.NoError(t, err)
		emitted = append(emitted, out...)
	}
	require.Len(t, emitted, 1)

	foo, ok := field(emitted[0], "foo").Array()
	require.True(t, ok)
	require.Len(t, foo, 3)

	bar, ok := field(emitted[0], "bar").Array()
	require.True(t, ok)
	require.Len(t, bar, 5)
	last, ok := bar[4].String()
	require.True(t, ok)
	require.Equal(t, "done", last)
}

// S4: stale flush fires the hook exactly once.
type countingHook struct{ n int }

func (h *countingHook) StaleEventFlushed() { h.n++ }

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func TestScenarioStaleFlush(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExpireAfter = 50 * time.Millisecond
	cfg.FlushPeriod = 10 * time.Millisecond

	clock := &fakeClock{now: time.Unix(0, 0)}
	hook := &countingHook{}
	r, err := New(cfg, condition.Default{}, clock, hook)
	require.NoError(t, err)

	_, err = r.HandleEvent(context.Background(), ev(map[string]value.Value{"x": value.Int(1)}))
	require.NoError(t, err)
	require.Equal(t, 1, r.ActiveGroups())

	clock.now = clock.now.Add(200 * time.Millisecond)
	emitted := r.Sweep()
	require.Len(t, emitted, 1)
	require.Equal(t, 1, hook.n)
	require.Equal(t, 0, r.ActiveGroups())
}

// S5: starts_when flushes any existing group for the key and begins a
// fresh one.
func TestScenarioStartsWhen(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StartsWhen = mustExpr(t, "begin == true")

	r, err := New(cfg, condition.Default{}, nil, nil)
	require.NoError(t, err)

	input := []event.Event{
		ev(map[string]value.Value{"begin": value.Bool(true), "x": value.Int(1)}),
		ev(map[string]value.Value{"x": value.Int(2)}),
		ev(map[string]value.Value{"begin": value.Bool(true), "x": value.Int(10)}),
	}

	var emitted []event.Event
	for _, e := range input {
		out, err := r.HandleEvent(context.Background(), e)
		require.NoError(t, err)
		emitted = append(emitted, out...)
	}
	require.Len(t, emitted, 1)
	x, _ := field(emitted[0], "x").Int()
	require.Equal(t, int64(3), x)
	begin, _ := field(emitted[0], "begin").Bool()
	require.True(t, begin)

	final := r.FlushAll()
	require.Len(t, final, 1)
	x, _ = field(final[0], "x").Int()
	require.Equal(t, int64(10), x)
}

// S6: end-of-stream flush emits pending groups without touching the
// stale-flush hook.
func TestScenarioEndOfStreamFlush(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GroupBy = []string{"request_id"}

	hook := &countingHook{}
	r, err := New(cfg, condition.Default{}, nil, hook)
	require.NoError(t, err)

	_, err = r.HandleEvent(context.Background(), ev(map[string]value.Value{"request_id": value.String("1")}))
	require.NoError(t, err)
	_, err = r.HandleEvent(context.Background(), ev(map[string]value.Value{"request_id": value.String("2")}))
	require.NoError(t, err)

	emitted := r.FlushAll()
	require.Len(t, emitted, 2)
	require.Equal(t, 0, hook.n)
	require.Equal(t, 0, r.ActiveGroups())
}

func TestConfigPreflightRejectsBothPredicates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StartsWhen = mustExpr(t, "begin == true")
	cfg.EndsWhen = mustExpr(t, "has(test_end)")
	require.Error(t, cfg.Preflight())
}

func TestConfigPreflightRejectsUnknownStrategy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeStrategies = map[string]Strategy{"foo": Strategy("bogus")}
	require.Error(t, cfg.Preflight())
}

func TestConfigPreflightRejectsNonPositiveDurations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExpireAfter = 0
	require.Error(t, cfg.Preflight())

	cfg = DefaultConfig()
	cfg.FlushPeriod = 0
	require.Error(t, cfg.Preflight())
}

// Boundary: empty group_by collapses every event into one group.
func TestEmptyGroupByCollapsesToOneGroup(t *testing.T) {
	cfg := DefaultConfig()
	r, err := New(cfg, condition.Default{}, nil, nil)
	require.NoError(t, err)

	_, err = r.HandleEvent(context.Background(), ev(map[string]value.Value{"request_id": value.String("1")}))
	require.NoError(t, err)
	_, err = r.HandleEvent(context.Background(), ev(map[string]value.Value{"request_id": value.String("2")}))
	require.NoError(t, err)

	require.Equal(t, 1, r.ActiveGroups())
}

// Boundary: ends_when matching with no live group emits a singleton.
func TestEndsWhenWithNoLiveGroupEmitsSingleton(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EndsWhen = mustExpr(t, "has(test_end)")
	r, err := New(cfg, condition.Default{}, nil, nil)
	require.NoError(t, err)

	emitted, err := r.HandleEvent(context.Background(), ev(map[string]value.Value{"test_end": value.String("yep"), "x": value.Int(1)}))
	require.NoError(t, err)
	require.Len(t, emitted, 1)
	x, _ := field(emitted[0], "x").Int()
	require.Equal(t, int64(1), x)
}

// Late-appearing fields seed fresh rather than retroactively absorbing
// earlier events (spec §9 Open Question).
func TestLateAppearingFieldSeedsFresh(t *testing.T) {
	cfg := DefaultConfig()
	r, err := New(cfg, condition.Default{}, nil, nil)
	require.NoError(t, err)

	_, err = r.HandleEvent(context.Background(), ev(map[string]value.Value{"x": value.Int(1)}))
	require.NoError(t, err)
	_, err = r.HandleEvent(context.Background(), ev(map[string]value.Value{"x": value.Int(2), "y": value.Int(100)}))
	require.NoError(t, err)

	emitted := r.FlushAll()
	require.Len(t, emitted, 1)
	y, _ := field(emitted[0], "y").Int()
	require.Equal(t, int64(100), y) // not summed with a phantom contribution from event 1
}
