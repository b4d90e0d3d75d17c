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
	"sort"
	"strconv"
	"strings"

	"github.com/logreduce/reduced/internal/event"
	"github.com/logreduce/reduced/internal/value"
)

// Discriminant is the composite group key derived from a configured
// ordered list of field paths. A missing path contributes the null
// slot, distinct from a path that is present and holds an explicit
// null value — present tracks that distinction per slot. Equality and
// hashing are order-sensitive.
type Discriminant struct {
	slots   []value.Value
	present []bool
}

// discriminantOf extracts the Discriminant for e given the configured
// group-by paths. An empty paths list yields a fixed singleton shared
// by every event.
func discriminantOf(e event.Event, paths []string) Discriminant {
	if len(paths) == 0 {
		return Discriminant{}
	}
	slots := make([]value.Value, len(paths))
	present := make([]bool, len(paths))
	for i, p := range paths {
		v, ok := value.Lookup(e.Value, p)
		if ok {
			slots[i] = v
			present[i] = true
		} else {
			slots[i] = value.Null()
		}
	}
	return Discriminant{slots: slots, present: present}
}

// Equal reports whether two discriminants have element-wise equal
// slots, with a missing path never equal to a present-and-null one.
func (d Discriminant) Equal(o Discriminant) bool {
	if len(d.slots) != len(o.slots) {
		return false
	}
	for i := range d.slots {
		if d.present[i] != o.present[i] {
			return false
		}
		if d.present[i] && !value.Equal(d.slots[i], o.slots[i]) {
			return false
		}
	}
	return true
}

// key returns a canonical string encoding suitable for use as a Go map
// key, which also gives us free, order-sensitive hashing/equality. A
// missing slot and a present-and-null slot carry distinct presence
// tags so they never collide.
func (d Discriminant) key() string {
	if len(d.slots) == 0 {
		return ""
	}
	var b strings.Builder
	for i, s := range d.slots {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		if d.present[i] {
			b.WriteByte('p')
		} else {
			b.WriteByte('m')
		}
		b.WriteString(strconv.FormatUint(value.Hash(s), 36))
		b.WriteByte(':')
		b.WriteString(canonicalString(s))
	}
	return b.String()
}

// canonicalString renders a value for discriminant-key disambiguation
// (the hash alone is used for bucketing; this guards against the rare
// collision producing an incorrect merge of two distinct groups).
func canonicalString(v value.Value) string {
	switch v.Kind() {
	case value.KindNull:
		return "null"
	case value.KindBool:
		b, _ := v.Bool()
		return strconv.FormatBool(b)
	case value.KindInt:
		i, _ := v.Int()
		return strconv.FormatInt(i, 10)
	case value.KindFloat:
		f, _ := v.Float()
		return strconv.FormatFloat(f, 'g', -1, 64)
	case value.KindTime:
		t, _ := v.Time()
		return t.UTC().String()
	case value.KindBytes:
		b, _ := v.Bytes()
		return string(b)
	case value.KindString:
		s, _ := v.String()
		return s
	case value.KindArray:
		arr, _ := v.Array()
		var b strings.Builder
		b.WriteByte('[')
		for i, e := range arr {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(canonicalString(e))
		}
		b.WriteByte(']')
		return b.String()
	case value.KindMap:
		m, _ := v.Map()
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(canonicalString(m[k]))
		}
		b.WriteByte('}')
		return b.String()
	default:
		return ""
	}
}
