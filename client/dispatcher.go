// Copyright 2026 The Courier Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/courier-foundation/courier/wire"
)

// Filter selects the updates a handler receives. A nil Filter
// matches every update.
type Filter func(update *wire.Update) bool

// TypeFilter matches updates whose Type equals any of types.
func TypeFilter(types ...string) Filter {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return func(update *wire.Update) bool {
		_, ok := set[update.Type]
		return ok
	}
}

// Handler processes one update. The context is the client's run
// context; it is cancelled when the client disconnects. A returned
// error is reported on [Dispatcher.Errors] and does not affect other
// handlers or later updates.
type Handler func(ctx context.Context, update *wire.Update) error

// HandlerError is one isolated handler failure: a returned error or
// a recovered panic.
type HandlerError struct {
	// UpdateType is the Type of the update being handled.
	UpdateType string

	// Err is the handler's error, or a wrapped panic value.
	Err error
}

// Subscription is a registered handler. Cancel detaches it; updates
// already being dispatched may still reach the handler.
type Subscription struct {
	dispatcher *Dispatcher
	filter     Filter
	handler    Handler
	cancelled  bool
}

// Cancel removes the subscription. It is idempotent.
func (s *Subscription) Cancel() {
	s.dispatcher.mu.Lock()
	defer s.dispatcher.mu.Unlock()
	if s.cancelled {
		return
	}
	s.cancelled = true
	subs := s.dispatcher.subs
	for i, sub := range subs {
		if sub == s {
			s.dispatcher.subs = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
}

// Dispatcher delivers pushed updates to subscribed handlers, in
// arrival order, one update at a time. Handler failures are isolated:
// a handler that returns an error or panics never stops dispatch or
// other handlers, it is reported on [Dispatcher.Errors] instead.
//
// By default the handlers matching one update run sequentially in
// registration order. In concurrent mode they run in parallel;
// updates still dispatch one after another, so arrival order holds
// across updates either way.
type Dispatcher struct {
	logger     *slog.Logger
	concurrent bool

	queue chan wire.Update
	errs  chan HandlerError

	mu   sync.Mutex
	subs []*Subscription

	dropped atomic.Uint64

	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

func newDispatcher(logger *slog.Logger, queueSize int, concurrent bool) *Dispatcher {
	return &Dispatcher{
		logger:     logger,
		concurrent: concurrent,
		queue:      make(chan wire.Update, queueSize),
		errs:       make(chan HandlerError, 16),
	}
}

// On registers handler for the updates filter matches. Handlers
// registered earlier run earlier within one update (in sequential
// mode). Registration is allowed at any time, including before the
// client connects.
func (d *Dispatcher) On(filter Filter, handler Handler) *Subscription {
	sub := &Subscription{dispatcher: d, filter: filter, handler: handler}
	d.mu.Lock()
	d.subs = append(d.subs, sub)
	d.mu.Unlock()
	return sub
}

// Errors returns the channel handler failures are reported on. The
// channel is buffered and never closed; if nobody drains it, further
// failures are logged and dropped rather than blocking dispatch.
func (d *Dispatcher) Errors() <-chan HandlerError {
	return d.errs
}

// WaitFor blocks until an update matching filter is dispatched, and
// returns it. It observes only updates dispatched after the call.
func (d *Dispatcher) WaitFor(ctx context.Context, filter Filter) (*wire.Update, error) {
	matched := make(chan wire.Update, 1)
	sub := d.On(filter, func(ctx context.Context, update *wire.Update) error {
		select {
		case matched <- *update:
		default:
		}
		return nil
	})
	defer sub.Cancel()

	select {
	case update := <-matched:
		return &update, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// enqueue hands an update to the dispatch loop without ever blocking
// the caller. When the queue is full the oldest queued update is
// dropped to make room; the receive loop must never stall behind a
// slow handler.
func (d *Dispatcher) enqueue(update wire.Update) {
	for {
		select {
		case d.queue <- update:
			return
		default:
		}
		select {
		case dropped := <-d.queue:
			d.logger.Warn("update queue full, dropping oldest update",
				"dropped_type", dropped.Type,
				"total_dropped", d.dropped.Add(1),
			)
		default:
		}
	}
}

func (d *Dispatcher) start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.runCancel = cancel
	d.wg.Add(1)
	go d.run(ctx)
}

func (d *Dispatcher) stop() {
	if d.runCancel == nil {
		return
	}
	d.runCancel()
	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case update := <-d.queue:
			d.deliver(ctx, &update)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, update *wire.Update) {
	d.mu.Lock()
	matched := make([]*Subscription, 0, len(d.subs))
	for _, sub := range d.subs {
		if sub.filter == nil || sub.filter(update) {
			matched = append(matched, sub)
		}
	}
	d.mu.Unlock()

	if d.concurrent {
		var wg sync.WaitGroup
		for _, sub := range matched {
			wg.Add(1)
			go func(sub *Subscription) {
				defer wg.Done()
				d.invoke(ctx, sub, update)
			}(sub)
		}
		wg.Wait()
		return
	}
	for _, sub := range matched {
		d.invoke(ctx, sub, update)
	}
}

func (d *Dispatcher) invoke(ctx context.Context, sub *Subscription, update *wire.Update) {
	defer func() {
		if r := recover(); r != nil {
			d.report(update.Type, fmt.Errorf("handler panic: %v", r))
		}
	}()
	if err := sub.handler(ctx, update); err != nil {
		d.report(update.Type, err)
	}
}

func (d *Dispatcher) report(updateType string, err error) {
	select {
	case d.errs <- HandlerError{UpdateType: updateType, Err: err}:
	default:
		d.logger.Warn("handler error channel full, dropping report",
			"update_type", updateType, "error", err)
	}
}
