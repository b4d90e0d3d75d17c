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

// Package config contains the user-visible, pflag-bound configuration
// for running the reduction engine as a standalone process: which
// source and sink to wire up, in addition to the reduce.Config governing
// the reduction semantics.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/logreduce/reduced/internal/condition"
	"github.com/logreduce/reduced/internal/reduce"
)

// SourceKind selects which Producer implementation to wire up.
type SourceKind string

// The supported source kinds.
const (
	SourceFile SourceKind = "file"
)

// SinkKind selects which Consumer implementation to wire up.
type SinkKind string

// The supported sink kinds.
const (
	SinkConsole  SinkKind = "console"
	SinkPostgres SinkKind = "postgres"
	SinkRedshift SinkKind = "redshift"
	SinkMySQL    SinkKind = "mysql"
)

// Config is the top-level process configuration.
type Config struct {
	Reduce reduce.Config

	SourceKind SourceKind
	SourcePath string // "-" means stdin

	SinkKind  SinkKind
	SinkConn  string
	SinkTable string

	groupByCSV   string
	strategyCSVs []string
	endsWhenExpr string
	startsWhenExpr string
}

// Bind registers flags for every field. Bind wires flags to fields;
// Preflight validates and derives anything flags alone cannot express.
func (c *Config) Bind(flags *pflag.FlagSet) {
	flags.DurationVar(&c.Reduce.ExpireAfter, "expireAfter", 30*time.Second,
		"how long a group may sit idle before it is flushed")
	flags.DurationVar(&c.Reduce.FlushPeriod, "flushPeriod", 1*time.Second,
		"how often the idle-group sweep runs")
	flags.StringVar(&c.groupByCSV, "groupBy", "",
		"comma-separated list of field paths forming the group discriminant")
	flags.StringArrayVar(&c.strategyCSVs, "mergeStrategy", nil,
		"a field=strategy pair overriding the default merge strategy for that field; may be repeated")
	flags.StringVar(&c.endsWhenExpr, "endsWhen", "",
		"condition expression that, when true, ends and flushes the event's group")
	flags.StringVar(&c.startsWhenExpr, "startsWhen", "",
		"condition expression that, when true, flushes any existing group and starts a new one")

	flags.StringVar((*string)(&c.SourceKind), "source", string(SourceFile), "event source: file")
	flags.StringVar(&c.SourcePath, "sourcePath", "-", "path to the NDJSON event file, or - for stdin")

	flags.StringVar((*string)(&c.SinkKind), "sink", string(SinkConsole),
		"event sink: console, postgres, redshift, mysql")
	flags.StringVar(&c.SinkConn, "sinkConn", "", "sink connection string (unused for console)")
	flags.StringVar(&c.SinkTable, "sinkTable", "reduced_events", "sink table name (unused for console)")
}

// Preflight validates flag values and parses the derived condition
// expressions and field lists, returning a fatal configuration error if
// anything is malformed. It must be called exactly once, after Bind's
// flags have been parsed.
func (c *Config) Preflight() error {
	if c.groupByCSV != "" {
		for _, field := range strings.Split(c.groupByCSV, ",") {
			field = strings.TrimSpace(field)
			if field == "" {
				return errors.New("config: groupBy contains an empty field name")
			}
			c.Reduce.GroupBy = append(c.Reduce.GroupBy, field)
		}
	}

	if len(c.strategyCSVs) > 0 {
		c.Reduce.MergeStrategies = make(map[string]reduce.Strategy, len(c.strategyCSVs))
		for _, pair := range c.strategyCSVs {
			field, strat, ok := strings.Cut(pair, "=")
			if !ok {
				return errors.Errorf("config: mergeStrategy %q is not of the form field=strategy", pair)
			}
			c.Reduce.MergeStrategies[field] = reduce.Strategy(strat)
		}
	}

	if c.endsWhenExpr != "" {
		expr, err := condition.Parse(c.endsWhenExpr)
		if err != nil {
			return errors.Wrap(err, "config: endsWhen")
		}
		c.Reduce.EndsWhen = expr
	}
	if c.startsWhenExpr != "" {
		expr, err := condition.Parse(c.startsWhenExpr)
		if err != nil {
			return errors.Wrap(err, "config: startsWhen")
		}
		c.Reduce.StartsWhen = expr
	}

	if err := c.Reduce.Preflight(); err != nil {
		return err
	}

	switch c.SourceKind {
	case SourceFile:
	default:
		return errors.Errorf("config: unknown source %q", c.SourceKind)
	}

	switch c.SinkKind {
	case SinkConsole:
	case SinkPostgres, SinkRedshift, SinkMySQL:
		if c.SinkConn == "" {
			return errors.Errorf("config: sink %q requires --sinkConn", c.SinkKind)
		}
	default:
		return errors.Errorf("config: unknown sink %q", c.SinkKind)
	}

	return nil
}
