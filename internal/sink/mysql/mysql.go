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

// Package mysql opens a MySQL-backed sqlsink.Sink, grounded on the
// connection-opening shape of internal/util/stdpool's
// OpenMySQLAsTarget.
package mysql

import (
	"context"
	"database/sql"

	_ "github.com/go-sql-driver/mysql" // register the "mysql" driver
	"github.com/pkg/errors"

	"github.com/logreduce/reduced/internal/sink/sqlsink"
)

// Open connects to connString (a Go-MySQL-Driver DSN, e.g.
// "user:pass@tcp(host:3306)/dbname?sql_mode=ansi") and returns a Sink
// writing into table. sql_mode=ansi is recommended so identifiers can
// be double-quoted, matching the teacher's own MySQL connection setup.
func Open(ctx context.Context, connString, table string) (*sqlsink.Sink, func(), error) {
	db, err := sql.Open("mysql", connString)
	if err != nil {
		return nil, nil, errors.Wrap(err, "mysql: opening connection")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, errors.Wrap(err, "mysql: ping")
	}
	return sqlsink.New(db, table, sqlsink.Question), func() { _ = db.Close() }, nil
}
