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

// Package metrics wires the reducer's observable counters into
// Prometheus, following the promauto package-level registration idiom.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/logreduce/reduced/internal/reduce"
)

var (
	staleFlushes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reduced_stale_flushes_total",
		Help: "the number of groups finalized because of the idle timeout",
	})
	activeGroups = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reduced_active_groups",
		Help: "the number of groups currently awaiting a flush",
	})
	mergeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reduced_merge_errors_total",
		Help: "the number of field merge, finalize, or seed errors dropped and logged",
	}, []string{"field"})
)

// Hook implements reduce.Hook by incrementing the stale-flush counter.
// The zero value is ready to use.
type Hook struct{}

var _ reduce.Hook = Hook{}

// StaleEventFlushed implements reduce.Hook.
func (Hook) StaleEventFlushed() {
	staleFlushes.Inc()
}

// Install registers this package's reduce.OnMergeError callback. Call
// it once during wiring, before the Driver starts.
func Install() {
	reduce.OnMergeError = MergeError
}

// SetActiveGroups publishes the current live group count. The Driver
// calls this once per loop iteration.
func SetActiveGroups(n int) {
	activeGroups.Set(float64(n))
}

// MergeError records a dropped merge/finalize/seed error for the named
// field. Field may be empty when the error is not field-scoped.
func MergeError(field string) {
	mergeErrors.WithLabelValues(field).Inc()
}
