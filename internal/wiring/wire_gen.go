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

//go:build !wireinject
// +build !wireinject

package wiring

import (
	"context"

	"github.com/logreduce/reduced/internal/config"
	"github.com/logreduce/reduced/internal/metrics"
	"github.com/logreduce/reduced/internal/reduce"
)

// Engine holds a fully wired Driver; Start returns the teardown for its
// collaborators separately.
type Engine struct {
	Driver *reduce.Driver
}

// Start builds a Driver from cfg: the Producer, Consumer, and Reducer
// in dependency order, unwinding already-opened collaborators if a
// later step fails.
func Start(ctx context.Context, cfg *config.Config) (*Engine, func(), error) {
	producer, cleanupProducer, err := ProvideProducer(cfg)
	if err != nil {
		return nil, nil, err
	}

	consumer, cleanupConsumer, err := ProvideConsumer(ctx, cfg)
	if err != nil {
		cleanupProducer()
		return nil, nil, err
	}

	reducer, err := ProvideReducer(cfg)
	if err != nil {
		cleanupConsumer()
		cleanupProducer()
		return nil, nil, err
	}

	driver := reduce.NewDriver(reducer, producer, consumer)
	driver.OnTick = metrics.SetActiveGroups

	cleanup := func() {
		cleanupConsumer()
		cleanupProducer()
	}
	return &Engine{Driver: driver}, cleanup, nil
}
