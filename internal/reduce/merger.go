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
	"github.com/pkg/errors"

	"github.com/logreduce/reduced/internal/value"
)

// Strategy names the closed set of merge strategies a field may use.
// This is a flat string enum switched over by one dispatch table,
// deliberately avoiding a deep merger class hierarchy (see spec §9).
type Strategy string

// The closed set of merge strategies.
const (
	StrategyDiscard       Strategy = "discard"
	StrategyRetain        Strategy = "retain"
	StrategySum           Strategy = "sum"
	StrategyMax           Strategy = "max"
	StrategyMin           Strategy = "min"
	StrategyArray         Strategy = "array"
	StrategyConcat        Strategy = "concat"
	StrategyConcatNewline Strategy = "concat_newline"
	StrategyConcatRaw     Strategy = "concat_raw"
	StrategyShortestArray Strategy = "shortest_array"
	StrategyLongestArray  Strategy = "longest_array"
	StrategyFlatUnique    Strategy = "flat_unique"
)

// ValidStrategy reports whether s names a known strategy, for
// Config.Preflight to reject unknown tags at build time.
func ValidStrategy(s Strategy) bool {
	_, ok := mergerConstructors[s]
	return ok
}

// merger is the uniform capability set every strategy implements: its
// constructor seeds an initial value, add takes subsequent
// contributions, and finalize produces the output field value. No error
// is fatal: the caller logs a warning and omits the field when seeding
// or finalize fails, and drops only that contribution when add fails.
type merger interface {
	add(v value.Value) error
	finalize() (value.Value, error)
}

// mergerConstructors is the flat dispatch table keyed by strategy tag.
var mergerConstructors = map[Strategy]func(seed value.Value) (merger, error){
	StrategyDiscard:       newDiscardMerger,
	StrategyRetain:        newRetainMerger,
	StrategySum:           newSumMerger,
	StrategyMax:           newMinMaxMerger(false),
	StrategyMin:           newMinMaxMerger(true),
	StrategyArray:         newArrayMerger,
	StrategyConcat:        newConcatMerger(" "),
	StrategyConcatNewline: newConcatMerger("\n"),
	StrategyConcatRaw:     newConcatMerger(""),
	StrategyShortestArray: newShortestLongestMerger(true),
	StrategyLongestArray:  newShortestLongestMerger(false),
	StrategyFlatUnique:    newFlatUniqueMerger,
}

// newMerger constructs the merger for strategy s, seeded with v.
func newMerger(s Strategy, v value.Value) (merger, error) {
	ctor, ok := mergerConstructors[s]
	if !ok {
		return nil, errors.Errorf("unknown merge strategy %q", s)
	}
	return ctor(v)
}

// --- discard: first value wins ---

type discardMerger struct{ v value.Value }

func newDiscardMerger(seed value.Value) (merger, error) {
	return &discardMerger{v: seed}, nil
}

func (m *discardMerger) add(value.Value) error { return nil }

func (m *discardMerger) finalize() (value.Value, error) { return m.v, nil }

// --- retain: latest value wins ---

type retainMerger struct{ v value.Value }

func newRetainMerger(seed value.Value) (merger, error) {
	return &retainMerger{v: seed}, nil
}

func (m *retainMerger) add(v value.Value) error {
	m.v = v
	return nil
}

func (m *retainMerger) finalize() (value.Value, error) { return m.v, nil }

// --- sum: numeric running total, widening int->float as needed ---

type sumMerger struct {
	isFloat bool
	i       int64
	f       float64
}

func newSumMerger(seed value.Value) (merger, error) {
	m := &sumMerger{}
	if err := m.add(seed); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *sumMerger) add(v value.Value) error {
	if i, ok := v.Int(); ok {
		if m.isFloat {
			m.f += float64(i)
		} else {
			m.i += i
		}
		return nil
	}
	if f, ok := v.Float(); ok {
		if !m.isFloat {
			m.isFloat = true
			m.f = float64(m.i)
		}
		m.f += f
		return nil
	}
	return errors.Errorf("sum: value is not numeric (kind=%d)", v.Kind())
}

func (m *sumMerger) finalize() (value.Value, error) {
	if m.isFloat {
		return value.Float(m.f), nil
	}
	return value.Int(m.i), nil
}

// --- max/min: greatest/least of int, float, or timestamp ---

type minMaxMerger struct {
	wantMin bool
	v       value.Value
}

func newMinMaxMerger(wantMin bool) func(value.Value) (merger, error) {
	return func(seed value.Value) (merger, error) {
		if !isOrderable(seed) {
			return nil, errors.Errorf("max/min: seed value is not orderable (kind=%d)", seed.Kind())
		}
		return &minMaxMerger{wantMin: wantMin, v: seed}, nil
	}
}

func isOrderable(v value.Value) bool {
	if _, ok := v.AsFloat(); ok {
		return true
	}
	_, ok := v.Time()
	return ok
}

// compareOrderable returns -1/0/1 comparing a and b, or an error if
// their kinds are incompatible for comparison.
func compareOrderable(a, b value.Value) (int, error) {
	if at, aok := a.Time(); aok {
		bt, bok := b.Time()
		if !bok {
			return 0, errors.New("max/min: type mismatch (timestamp vs non-timestamp)")
		}
		switch {
		case at.Before(bt):
			return -1, nil
		case at.After(bt):
			return 1, nil
		default:
			return 0, nil
		}
	}
	af, aok := a.AsFloat()
	bf, bok := b.AsFloat()
	if !aok || !bok {
		return 0, errors.New("max/min: type mismatch")
	}
	switch {
	case af < bf:
		return -1, nil
	case af > bf:
		return 1, nil
	default:
		return 0, nil
	}
}

func (m *minMaxMerger) add(v value.Value) error {
	cmp, err := compareOrderable(v, m.v)
	if err != nil {
		return err
	}
	if (m.wantMin && cmp < 0) || (!m.wantMin && cmp > 0) {
		m.v = v
	}
	return nil
}

func (m *minMaxMerger) finalize() (value.Value, error) { return m.v, nil }

// --- array: append every contribution in arrival order ---

type arrayMerger struct{ items []value.Value }

func newArrayMerger(seed value.Value) (merger, error) {
	return &arrayMerger{items: []value.Value{seed}}, nil
}

func (m *arrayMerger) add(v value.Value) error {
	m.items = append(m.items, v)
	return nil
}

func (m *arrayMerger) finalize() (value.Value, error) {
	return value.Array(m.items), nil
}

// --- concat / concat_newline / concat_raw ---

type concatMerger struct {
	sep      string
	isArray  bool
	s        string
	elements []value.Value
}

func newConcatMerger(sep string) func(value.Value) (merger, error) {
	return func(seed value.Value) (merger, error) {
		m := &concatMerger{sep: sep}
		if err := m.seedFrom(seed); err != nil {
			return nil, err
		}
		return m, nil
	}
}

func (m *concatMerger) seedFrom(v value.Value) error {
	if s, ok := v.String(); ok {
		m.s = s
		return nil
	}
	if arr, ok := v.Array(); ok {
		m.isArray = true
		m.elements = append([]value.Value(nil), arr...)
		return nil
	}
	return errors.Errorf("concat: value is not a string or array (kind=%d)", v.Kind())
}

func (m *concatMerger) add(v value.Value) error {
	if m.isArray {
		if arr, ok := v.Array(); ok {
			m.elements = append(m.elements, arr...)
		} else {
			m.elements = append(m.elements, v)
		}
		return nil
	}
	s, ok := v.String()
	if !ok {
		return errors.New("concat: mixed string/array contributions")
	}
	m.s += m.sep + s
	return nil
}

func (m *concatMerger) finalize() (value.Value, error) {
	if m.isArray {
		return value.Array(m.elements), nil
	}
	return value.String(m.s), nil
}

// --- shortest_array / longest_array ---

type shortestLongestMerger struct {
	wantShortest bool
	v            []value.Value
}

func newShortestLongestMerger(wantShortest bool) func(value.Value) (merger, error) {
	return func(seed value.Value) (merger, error) {
		arr, ok := seed.Array()
		if !ok {
			return nil, errors.Errorf("shortest/longest_array: seed is not an array (kind=%d)", seed.Kind())
		}
		return &shortestLongestMerger{wantShortest: wantShortest, v: arr}, nil
	}
}

func (m *shortestLongestMerger) add(v value.Value) error {
	arr, ok := v.Array()
	if !ok {
		return errors.Errorf("shortest/longest_array: value is not an array (kind=%d)", v.Kind())
	}
	if (m.wantShortest && len(arr) < len(m.v)) || (!m.wantShortest && len(arr) > len(m.v)) {
		m.v = arr
	}
	return nil
}

func (m *shortestLongestMerger) finalize() (value.Value, error) {
	return value.Array(m.v), nil
}

// --- flat_unique: distinct scalars in first-seen order, flattening
// arrays and map values one level ---

type flatUniqueMerger struct {
	seen  map[uint64][]value.Value // hash bucket -> candidates, to tolerate collisions
	order []value.Value
}

func newFlatUniqueMerger(seed value.Value) (merger, error) {
	m := &flatUniqueMerger{seen: make(map[uint64][]value.Value)}
	if err := m.add(seed); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *flatUniqueMerger) add(v value.Value) error {
	switch v.Kind() {
	case value.KindArray:
		arr, _ := v.Array()
		for _, e := range arr {
			m.addScalar(e)
		}
	case value.KindMap:
		mv, _ := v.Map()
		for _, e := range mv {
			m.addScalar(e)
		}
	default:
		m.addScalar(v)
	}
	return nil
}

func (m *flatUniqueMerger) addScalar(v value.Value) {
	h := value.Hash(v)
	for _, existing := range m.seen[h] {
		if value.Equal(existing, v) {
			return
		}
	}
	m.seen[h] = append(m.seen[h], v)
	m.order = append(m.order, v)
}

func (m *flatUniqueMerger) finalize() (value.Value, error) {
	return value.Array(m.order), nil
}
