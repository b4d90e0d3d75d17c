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

// Package value defines the tagged-union value type shared by events,
// discriminants, and mergers.
package value

import (
	"fmt"
	"hash/fnv"
	"sort"
	"time"
)

// Kind identifies which variant of Value is populated.
type Kind int

// The closed set of value kinds, per spec.
const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindTime
	KindBytes
	KindString
	KindArray
	KindMap
)

// Value is a tagged union over the value kinds a log event's fields may
// hold. The zero Value is KindNull.
type Value struct {
	kind  Kind
	b     bool
	i     int64
	f     float64
	t     time.Time
	bytes []byte
	s     string
	arr   []Value
	m     map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a boolean.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// Int wraps a signed integer.
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// Float wraps a floating-point number.
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

// Time wraps a timestamp.
func Time(v time.Time) Value { return Value{kind: KindTime, t: v} }

// Bytes wraps a byte string.
func Bytes(v []byte) Value { return Value{kind: KindBytes, bytes: v} }

// String wraps a text string.
func String(v string) Value { return Value{kind: KindString, s: v} }

// Array wraps an ordered sequence of values.
func Array(v []Value) Value { return Value{kind: KindArray, arr: v} }

// Map wraps a string-keyed mapping of values.
func Map(v map[string]Value) Value { return Value{kind: KindMap, m: v} }

// Kind reports the variant currently held.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the null value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Bool returns the boolean payload; ok is false if v is not KindBool.
func (v Value) Bool() (val bool, ok bool) { return v.b, v.kind == KindBool }

// Int returns the integer payload; ok is false if v is not KindInt.
func (v Value) Int() (val int64, ok bool) { return v.i, v.kind == KindInt }

// Float returns the float payload; ok is false if v is not KindFloat.
func (v Value) Float() (val float64, ok bool) { return v.f, v.kind == KindFloat }

// AsFloat widens Int or Float to a float64; ok is false for any other kind.
func (v Value) AsFloat() (val float64, ok bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	default:
		return 0, false
	}
}

// Time returns the timestamp payload; ok is false if v is not KindTime.
func (v Value) Time() (val time.Time, ok bool) { return v.t, v.kind == KindTime }

// Bytes returns the byte-string payload; ok is false if v is not KindBytes.
func (v Value) Bytes() (val []byte, ok bool) { return v.bytes, v.kind == KindBytes }

// String returns the text payload; ok is false if v is not KindString.
func (v Value) String() (val string, ok bool) { return v.s, v.kind == KindString }

// Array returns the array payload; ok is false if v is not KindArray.
func (v Value) Array() (val []Value, ok bool) { return v.arr, v.kind == KindArray }

// Map returns the map payload; ok is false if v is not KindMap.
func (v Value) Map() (val map[string]Value, ok bool) { return v.m, v.kind == KindMap }

// Equal reports structural equality between two values.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindInt:
		return a.i == b.i
	case KindFloat:
		return a.f == b.f
	case KindTime:
		return a.t.Equal(b.t)
	case KindBytes:
		return string(a.bytes) == string(b.bytes)
	case KindString:
		return a.s == b.s
	case KindArray:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.m) != len(b.m) {
			return false
		}
		for k, av := range a.m {
			bv, ok := b.m[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Hash returns an order-sensitive structural hash of v, suitable for
// use as (part of) a map key via its string form, or combined into a
// composite discriminant hash.
func Hash(v Value) uint64 {
	h := fnv.New64a()
	hashInto(h, v)
	return h.Sum64()
}

func hashInto(h interface{ Write([]byte) (int, error) }, v Value) {
	write := func(b []byte) { _, _ = h.Write(b) }
	switch v.kind {
	case KindNull:
		write([]byte{0})
	case KindBool:
		if v.b {
			write([]byte{1, 1})
		} else {
			write([]byte{1, 0})
		}
	case KindInt:
		write([]byte{2})
		write([]byte(fmt.Sprintf("%d", v.i)))
	case KindFloat:
		write([]byte{3})
		write([]byte(fmt.Sprintf("%g", v.f)))
	case KindTime:
		write([]byte{4})
		write([]byte(v.t.UTC().Format(time.RFC3339Nano)))
	case KindBytes:
		write([]byte{5})
		write(v.bytes)
	case KindString:
		write([]byte{6})
		write([]byte(v.s))
	case KindArray:
		write([]byte{7})
		for _, e := range v.arr {
			hashInto(h, e)
		}
	case KindMap:
		write([]byte{8})
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			write([]byte(k))
			hashInto(h, v.m[k])
		}
	}
}

// FromAny converts a decoded-JSON value (as produced by
// encoding/json's default map[string]interface{} unmarshaling) into a
// Value. Numbers arrive as float64 per encoding/json's convention; a
// float64 with no fractional part becomes KindInt, matching how log
// producers emit integer fields. Strings matching RFC3339 are
// recognized as timestamps, since JSON has no native time type.
func FromAny(a interface{}) (Value, error) {
	switch x := a.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(x), nil
	case float64:
		if x == float64(int64(x)) {
			return Int(int64(x)), nil
		}
		return Float(x), nil
	case string:
		if t, err := time.Parse(time.RFC3339Nano, x); err == nil {
			return Time(t), nil
		}
		return String(x), nil
	case []interface{}:
		out := make([]Value, len(x))
		for i, e := range x {
			v, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			out[i] = v
		}
		return Array(out), nil
	case map[string]interface{}:
		out := make(map[string]Value, len(x))
		for k, e := range x {
			v, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			out[k] = v
		}
		return Map(out), nil
	default:
		return Value{}, fmt.Errorf("value: unsupported JSON-decoded type %T", a)
	}
}

// ToAny converts v into plain Go values suitable for encoding/json:
// map[string]interface{}, []interface{}, string, int64, float64, bool,
// or nil.
// Time is rendered as RFC3339Nano and Bytes as their raw string form,
// the inverse of FromAny's recognition rules.
func ToAny(v Value) interface{} {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindTime:
		return v.t.UTC().Format(time.RFC3339Nano)
	case KindBytes:
		return string(v.bytes)
	case KindString:
		return v.s
	case KindArray:
		out := make([]interface{}, len(v.arr))
		for i, e := range v.arr {
			out[i] = ToAny(e)
		}
		return out
	case KindMap:
		out := make(map[string]interface{}, len(v.m))
		for k, e := range v.m {
			out[k] = ToAny(e)
		}
		return out
	default:
		return nil
	}
}

// Lookup resolves a dotted field path against v, returning the null
// slot (ok=false) if v is not a Map or any segment is missing.
func Lookup(v Value, path string) (Value, bool) {
	cur := v
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '.' {
			segment := path[start:i]
			m, ok := cur.Map()
			if !ok {
				return Null(), false
			}
			next, ok := m[segment]
			if !ok {
				return Null(), false
			}
			cur = next
			start = i + 1
		}
	}
	return cur, true
}
