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
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/logreduce/reduced/internal/event"
)

// Producer is the lazy, possibly-infinite upstream event sequence. Next
// returns (zero, false, nil) at clean end-of-stream and (zero, false,
// err) on error; the Driver treats both the same way for the purposes
// of flushing, but propagates a non-nil err once flushing completes.
type Producer interface {
	Next(ctx context.Context) (event.Event, bool, error)
}

// Consumer accepts emitted log events.
type Consumer interface {
	Accept(ctx context.Context, e event.Event) error
}

// Driver is the cooperative loop of spec §4.5: a single goroutine that
// multiplexes the upstream producer with a periodic flush tick, routes
// arrivals through the Reducer, and yields emitted events downstream
// before advancing to the next iteration. It owns the Reducer
// exclusively; nothing else may touch it while Run is executing.
//
// This mirrors internal/source/cdc/resolver.go's readInto loop: a
// select over a ticker, a wakeup/arrival source, and a done channel.
type Driver struct {
	reducer  *Reducer
	producer Producer
	consumer Consumer

	// OnTick, if set, is called after every loop iteration with the
	// current live group count, for the reduced_active_groups gauge.
	OnTick func(activeGroups int)
}

// NewDriver constructs a Driver over the given Reducer, Producer, and
// Consumer.
func NewDriver(r *Reducer, p Producer, c Consumer) *Driver {
	return &Driver{reducer: r, producer: p, consumer: c}
}

func (d *Driver) reportTick() {
	if d.OnTick != nil {
		d.OnTick(d.reducer.ActiveGroups())
	}
}

// Run executes the cooperative loop until ctx is canceled or the
// upstream producer reaches end-of-stream, at which point every
// remaining group is flushed before Run returns. Dropping ctx cancels
// the driver promptly; in-flight group state is discarded without
// emission, per spec §5.
func (d *Driver) Run(ctx context.Context, flushPeriod time.Duration) error {
	ticker := time.NewTicker(flushPeriod)
	defer ticker.Stop()

	type arrival struct {
		e   event.Event
		ok  bool
		err error
	}
	arrivals := make(chan arrival)

	// The upstream read happens on its own goroutine so that the
	// select below can service a flush tick even while waiting on a
	// slow (or infinite-blocking) producer. The unbuffered channel
	// provides backpressure: the goroutine never reads the next
	// event until this loop has consumed the previous one.
	go func() {
		for {
			e, ok, err := d.producer.Next(ctx)
			select {
			case arrivals <- arrival{e, ok, err}:
			case <-ctx.Done():
				return
			}
			if !ok || err != nil {
				return
			}
		}
	}()

	for {
		select {
		case a := <-arrivals:
			if a.err != nil {
				if err := d.flushAllAndYield(ctx); err != nil {
					return err
				}
				return a.err
			}
			if !a.ok {
				return d.flushAllAndYield(ctx)
			}

			emitted, err := d.reducer.HandleEvent(ctx, a.e)
			if err != nil {
				log.WithError(err).Warn("error handling event; treating as no match")
			}
			if err := d.yield(ctx, emitted); err != nil {
				return err
			}
			d.reportTick()

		case <-ticker.C:
			emitted := d.reducer.Sweep()
			if err := d.yield(ctx, emitted); err != nil {
				return err
			}
			d.reportTick()

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (d *Driver) flushAllAndYield(ctx context.Context) error {
	return d.yield(ctx, d.reducer.FlushAll())
}

func (d *Driver) yield(ctx context.Context, events []event.Event) error {
	for _, e := range events {
		if err := d.consumer.Accept(ctx, e); err != nil {
			return err
		}
	}
	return nil
}
