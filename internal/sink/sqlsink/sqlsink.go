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

// Package sqlsink implements reduce.Consumer as an upsert into a SQL
// table, shared by the postgres, redshift, and mysql sink packages. The
// dialects differ only in driver registration and placeholder syntax.
package sqlsink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/logreduce/reduced/internal/event"
	"github.com/logreduce/reduced/internal/reduce"
	"github.com/logreduce/reduced/internal/value"
)

// Placeholder renders the i'th (1-based) bind parameter for a dialect.
type Placeholder func(i int) string

// Dollar is the Postgres/Redshift placeholder style ($1, $2, ...).
func Dollar(i int) string { return fmt.Sprintf("$%d", i) }

// Question is the MySQL placeholder style (?, ?, ...).
func Question(int) string { return "?" }

// Sink upserts one row per consolidated event into a fixed table, one
// column per top-level field. Columns are discovered as fields arrive;
// a field not seen by the first row of a given run is still accepted
// since each Accept builds its own column list.
type Sink struct {
	db          *sql.DB
	table       string
	placeholder Placeholder
}

var _ reduce.Consumer = (*Sink)(nil)

// New constructs a Sink writing into table through db, using the given
// dialect's placeholder rendering.
func New(db *sql.DB, table string, placeholder Placeholder) *Sink {
	return &Sink{db: db, table: table, placeholder: placeholder}
}

// Accept implements reduce.Consumer by upserting e's fields as a single
// row, per spec §6 ("what happens to reduced events downstream is a
// deployment detail"). Non-map events are rejected: there is no row to
// upsert for a row with no fields.
func (s *Sink) Accept(ctx context.Context, e event.Event) error {
	fields, ok := e.Fields()
	if !ok {
		return errors.New("sqlsink: event has no top-level fields to write")
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names) // deterministic column order, easier to read in logs/tests

	query, args := buildUpsert(s.table, names, fields, s.placeholder)
	_, err := s.db.ExecContext(ctx, query, args...)
	return errors.Wrapf(err, "sqlsink: upserting into %s", s.table)
}

// buildUpsert renders an "UPSERT INTO table (cols) VALUES (binds)"
// statement and its positional arguments, mirroring the column-driven
// statement assembly of the teacher's upsertRow.
func buildUpsert(
	table string, names []string, fields map[string]value.Value, placeholder Placeholder,
) (string, []interface{}) {
	var stmt strings.Builder
	fmt.Fprintf(&stmt, "UPSERT INTO %s (", table)
	args := make([]interface{}, 0, len(names))
	for i, name := range names {
		if i > 0 {
			stmt.WriteString(", ")
		}
		stmt.WriteString(name)
		args = append(args, toScanArg(fields[name]))
	}
	stmt.WriteString(") VALUES (")
	for i := range names {
		if i > 0 {
			stmt.WriteString(", ")
		}
		stmt.WriteString(placeholder(i + 1))
	}
	stmt.WriteString(")")
	return stmt.String(), args
}

// toScanArg converts a Value into something database/sql knows how to
// bind. Arrays and maps are not representable as scalar SQL columns, so
// they are rendered as their JSON encoding.
func toScanArg(v value.Value) interface{} {
	switch v.Kind() {
	case value.KindNull:
		return nil
	case value.KindBool:
		b, _ := v.Bool()
		return b
	case value.KindInt:
		i, _ := v.Int()
		return i
	case value.KindFloat:
		f, _ := v.Float()
		return f
	case value.KindTime:
		t, _ := v.Time()
		return t
	case value.KindBytes:
		b, _ := v.Bytes()
		return b
	case value.KindString:
		s, _ := v.String()
		return s
	default:
		b, err := json.Marshal(value.ToAny(v))
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
