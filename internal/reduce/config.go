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
	"time"

	"github.com/pkg/errors"

	"github.com/logreduce/reduced/internal/condition"
)

// Config is the reducer's build-time configuration, per spec §6.
type Config struct {
	// ExpireAfter is the group idle timeout. Default 30s.
	ExpireAfter time.Duration
	// FlushPeriod is the stale-sweep cadence. Default 1s.
	FlushPeriod time.Duration
	// GroupBy is the ordered list of field paths forming the
	// discriminant.
	GroupBy []string
	// MergeStrategies overrides the default merge strategy per field.
	MergeStrategies map[string]Strategy
	// EndsWhen and StartsWhen are mutually exclusive condition
	// expressions; at most one may be set.
	EndsWhen   condition.Expr
	StartsWhen condition.Expr
}

// DefaultConfig returns a Config with the defaults from spec §6.
func DefaultConfig() Config {
	return Config{
		ExpireAfter: 30 * time.Second,
		FlushPeriod: 1 * time.Second,
	}
}

// Preflight validates the configuration, returning a fatal
// configuration error (never a recoverable one) if it is malformed.
func (c Config) Preflight() error {
	if c.EndsWhen != nil && c.StartsWhen != nil {
		return errors.New("reduce: ends_when and starts_when are mutually exclusive")
	}
	if c.ExpireAfter <= 0 {
		return errors.New("reduce: expire_after_ms must be positive")
	}
	if c.FlushPeriod <= 0 {
		return errors.New("reduce: flush_period_ms must be positive")
	}
	for field, strat := range c.MergeStrategies {
		if !ValidStrategy(strat) {
			return errors.Errorf("reduce: field %q: unknown merge strategy %q", field, strat)
		}
	}
	return nil
}
