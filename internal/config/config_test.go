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

package config

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func bind(t *testing.T, args ...string) *Config {
	t.Helper()
	var c Config
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	c.Bind(flags)
	require.NoError(t, flags.Parse(args))
	return &c
}

func TestPreflightParsesGroupByAndStrategies(t *testing.T) {
	c := bind(t, "--groupBy=request_id,tenant", "--mergeStrategy=foo=concat", "--mergeStrategy=bar=max")
	require.NoError(t, c.Preflight())
	require.Equal(t, []string{"request_id", "tenant"}, c.Reduce.GroupBy)
	require.Len(t, c.Reduce.MergeStrategies, 2)
}

func TestPreflightParsesConditions(t *testing.T) {
	c := bind(t, "--endsWhen=has(test_end)")
	require.NoError(t, c.Preflight())
	require.NotNil(t, c.Reduce.EndsWhen)
}

func TestPreflightRejectsMalformedStrategyPair(t *testing.T) {
	c := bind(t, "--mergeStrategy=nopairhere")
	require.Error(t, c.Preflight())
}

func TestPreflightRejectsMalformedCondition(t *testing.T) {
	c := bind(t, "--endsWhen=has(")
	require.Error(t, c.Preflight())
}

func TestPreflightRejectsUnknownSink(t *testing.T) {
	c := bind(t, "--sink=carrier-pigeon")
	require.Error(t, c.Preflight())
}

func TestPreflightRequiresConnStringForSQLSinks(t *testing.T) {
	c := bind(t, "--sink=postgres")
	require.Error(t, c.Preflight())

	c = bind(t, "--sink=postgres", "--sinkConn=postgres://x")
	require.NoError(t, c.Preflight())
}

func TestPreflightDefaultsAreValid(t *testing.T) {
	c := bind(t)
	require.NoError(t, c.Preflight())
}
