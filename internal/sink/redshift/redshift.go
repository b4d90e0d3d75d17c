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

// Package redshift opens a Redshift-backed sqlsink.Sink. Redshift speaks
// the Postgres wire protocol, so this reuses lib/pq, same as the
// teacher's sink.go did for its CockroachDB target.
package redshift

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq" // register the "postgres" driver
	"github.com/pkg/errors"

	"github.com/logreduce/reduced/internal/sink/sqlsink"
)

// Open connects to connString and returns a Sink writing into table.
func Open(ctx context.Context, connString, table string) (*sqlsink.Sink, func(), error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, nil, errors.Wrap(err, "redshift: opening connection")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, errors.Wrap(err, "redshift: ping")
	}
	return sqlsink.New(db, table, sqlsink.Dollar), func() { _ = db.Close() }, nil
}
