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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/logreduce/reduced/internal/condition"
	"github.com/logreduce/reduced/internal/event"
	"github.com/logreduce/reduced/internal/value"
)

// sliceProducer yields a fixed slice of events, then end-of-stream.
type sliceProducer struct {
	events []event.Event
	pos    int
}

func (p *sliceProducer) Next(ctx context.Context) (event.Event, bool, error) {
	if p.pos >= len(p.events) {
		return event.Event{}, false, nil
	}
	e := p.events[p.pos]
	p.pos++
	return e, true, nil
}

// recordingConsumer collects every accepted event.
type recordingConsumer struct {
	mu     sync.Mutex
	events []event.Event
}

func (c *recordingConsumer) Accept(ctx context.Context, e event.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *recordingConsumer) snapshot() []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]event.Event(nil), c.events...)
}

func TestDriverRunFlushesOnEndOfStream(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GroupBy = []string{"request_id"}
	r, err := New(cfg, condition.Default{}, nil, nil)
	require.NoError(t, err)

	producer := &sliceProducer{events: []event.Event{
		ev(map[string]value.Value{"request_id": value.String("1"), "x": value.Int(1)}),
		ev(map[string]value.Value{"request_id": value.String("1"), "x": value.Int(2)}),
	}}
	consumer := &recordingConsumer{}

	d := NewDriver(r, producer, consumer)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = d.Run(ctx, time.Second)
	require.NoError(t, err)

	got := consumer.snapshot()
	require.Len(t, got, 1)
	x, _ := field(got[0], "x").Int()
	require.Equal(t, int64(3), x)
}

func TestDriverRunStopsOnContextCancel(t *testing.T) {
	cfg := DefaultConfig()
	r, err := New(cfg, condition.Default{}, nil, nil)
	require.NoError(t, err)

	blocking := &blockingProducer{unblock: make(chan struct{})}
	consumer := &recordingConsumer{}
	d := NewDriver(r, blocking, consumer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, time.Hour) }()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
	close(blocking.unblock)
}

// blockingProducer never returns from Next until unblock is closed or
// ctx is canceled, simulating an upstream with nothing to say yet.
type blockingProducer struct{ unblock chan struct{} }

func (p *blockingProducer) Next(ctx context.Context) (event.Event, bool, error) {
	select {
	case <-p.unblock:
		return event.Event{}, false, nil
	case <-ctx.Done():
		return event.Event{}, false, ctx.Err()
	}
}
