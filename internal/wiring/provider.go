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

// Package wiring assembles a runnable reduce.Driver from a
// config.Config: the Producer, Consumer, metrics hook, and Reducer all
// get built and connected here, following the provider/injector split
// the rest of the codebase uses with google/wire.
package wiring

import (
	"context"
	"os"

	"github.com/google/wire"
	"github.com/pkg/errors"

	"github.com/logreduce/reduced/internal/condition"
	"github.com/logreduce/reduced/internal/config"
	"github.com/logreduce/reduced/internal/metrics"
	"github.com/logreduce/reduced/internal/reduce"
	"github.com/logreduce/reduced/internal/sink/console"
	"github.com/logreduce/reduced/internal/sink/mysql"
	"github.com/logreduce/reduced/internal/sink/postgres"
	"github.com/logreduce/reduced/internal/sink/redshift"
	"github.com/logreduce/reduced/internal/source/file"
)

// Set is used by Wire.
var Set = wire.NewSet(
	ProvideProducer,
	ProvideConsumer,
	ProvideReducer,
)

// ProvideProducer opens the configured event source.
func ProvideProducer(cfg *config.Config) (reduce.Producer, func(), error) {
	switch cfg.SourceKind {
	case config.SourceFile:
		if cfg.SourcePath == "-" || cfg.SourcePath == "" {
			return file.New(os.Stdin), func() {}, nil
		}
		f, err := os.Open(cfg.SourcePath)
		if err != nil {
			return nil, nil, errors.Wrap(err, "wiring: opening source file")
		}
		return file.New(f), func() { _ = f.Close() }, nil
	default:
		return nil, nil, errors.Errorf("wiring: unknown source %q", cfg.SourceKind)
	}
}

// ProvideConsumer opens the configured event sink.
func ProvideConsumer(ctx context.Context, cfg *config.Config) (reduce.Consumer, func(), error) {
	switch cfg.SinkKind {
	case config.SinkConsole:
		return console.New(os.Stdout), func() {}, nil
	case config.SinkPostgres:
		return postgres.Open(ctx, cfg.SinkConn, cfg.SinkTable)
	case config.SinkRedshift:
		return redshift.Open(ctx, cfg.SinkConn, cfg.SinkTable)
	case config.SinkMySQL:
		return mysql.Open(ctx, cfg.SinkConn, cfg.SinkTable)
	default:
		return nil, nil, errors.Errorf("wiring: unknown sink %q", cfg.SinkKind)
	}
}

// ProvideReducer constructs the Reducer with the Prometheus-backed hook
// installed, per spec §6.
func ProvideReducer(cfg *config.Config) (*reduce.Reducer, error) {
	metrics.Install()
	return reduce.New(cfg.Reduce, condition.Default{}, reduce.SystemClock, metrics.Hook{})
}
