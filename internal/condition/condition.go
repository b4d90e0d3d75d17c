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

// Package condition implements the small boolean expression language
// used for starts_when/ends_when predicates, and the Evaluator
// collaborator the reducer consults per event.
package condition

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/logreduce/reduced/internal/event"
)

// Expr is a compiled condition expression. The zero value (nil) means
// "no predicate configured."
type Expr interface {
	eval(e event.Event) (bool, error)
	String() string
}

// Evaluator evaluates an Expr against an Event without mutating it. A
// predicate that cannot be evaluated is treated as not matching, never
// as a fatal error (spec §7).
type Evaluator interface {
	Evaluate(ctx context.Context, e event.Event, expr Expr) (bool, error)
}

// Default is the standard, non-blocking Evaluator implementation. It
// has no state and is safe to share.
type Default struct{}

var _ Evaluator = Default{}

// Evaluate implements Evaluator.
func (Default) Evaluate(_ context.Context, e event.Event, expr Expr) (bool, error) {
	if expr == nil {
		return false, nil
	}
	ok, err := expr.eval(e)
	if err != nil {
		log.WithField("expr", expr.String()).WithError(err).
			Debug("condition evaluation error, treating as false")
		return false, nil
	}
	return ok, nil
}
