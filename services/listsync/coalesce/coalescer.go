// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package coalesce debounces snapshot submissions for one update stream so
// that only the latest one is ever applied.
//
// # State machine
//
//	Idle ──submit──▶ PendingScheduled ──quiescence──▶ Applying ──▶ Idle
//	                   ▲        │ submit                 │ submit
//	                   └────────┘◀───────────────────────┘
//
// Every submission gets a generation number. A submit while a producer is
// running cancels the producer's context and makes its generation stale; a
// stale result is dropped when it arrives, even if the producer ignored the
// cancellation. Results therefore reach the Applicator in submission order
// and never out of order.
//
// # Confinement
//
// One loop goroutine, started with Run, owns the timer, the generation
// counter and the Applicator calls. Producers run on their own goroutines
// and only talk to the loop through a channel.
package coalesce

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/listsync/services/listsync/apply"
	"github.com/AleutianAI/listsync/services/listsync/snapshot"
)

const submitBuffer = 64

type submission[S, I snapshot.Key] struct {
	producer Producer[S, I]
	ticket   *Ticket[S, I]
}

type flight[S, I snapshot.Key] struct {
	sub    submission[S, I]
	cancel context.CancelFunc
}

type producerResult[S, I snapshot.Key] struct {
	gen      uint64
	snap     *snapshot.Snapshot[S, I]
	err      error
	duration time.Duration
}

// Coalescer serializes and debounces updates for one stream.
//
// Thread Safety: Submit, SubmitSnapshot, Subscribe, State, Errors and Close
// are safe for concurrent use. Run must be called exactly once.
type Coalescer[S, I snapshot.Key] struct {
	app    *apply.Applicator[S, I]
	cfg    Config
	logger *slog.Logger

	submitCh chan submission[S, I]
	resultCh chan producerResult[S, I]
	errCh    chan error

	state   atomic.Int32
	running atomic.Bool

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}

	observers callbackList[func(Event[S, I])]
}

// New creates a Coalescer that applies through app.
//
// Description:
//
//	The coalescer does nothing until Run is started. Submissions made
//	before that are queued.
//
// Inputs:
//   - app: The Applicator that owns the baseline. Must not be nil.
//   - cfg: Configuration. Zero values use defaults.
//   - logger: Logger for stream events. If nil, uses slog.Default().
//
// Outputs:
//   - *Coalescer: The coalescer.
//   - error: Non-nil if configuration is invalid.
//
// Example:
//
//	c, err := coalesce.New(app, coalesce.Config{StreamID: "search"}, logger)
//	if err != nil {
//	    return err
//	}
//	go c.Run(ctx)
//	defer c.Close()
//	c.Submit(func(ctx context.Context) (*snapshot.Snapshot[string, string], error) {
//	    return search(ctx, query)
//	})
func New[S, I snapshot.Key](app *apply.Applicator[S, I], cfg Config, logger *slog.Logger) (*Coalescer[S, I], error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if app == nil {
		return nil, fmt.Errorf("%w: applicator must not be nil", ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coalescer[S, I]{
		app: app,
		cfg: cfg,
		logger: logger.With(
			slog.String("component", "coalescer"),
			slog.String("stream_id", cfg.StreamID),
		),
		submitCh: make(chan submission[S, I], submitBuffer),
		resultCh: make(chan producerResult[S, I]),
		errCh:    make(chan error, cfg.ErrorBuffer),
		closed:   make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// StreamID returns the configured stream ID.
func (c *Coalescer[S, I]) StreamID() string {
	return c.cfg.StreamID
}

// State returns the current state.
func (c *Coalescer[S, I]) State() State {
	return State(c.state.Load())
}

// Errors returns a channel of producer and apply failures.
//
// Sends never block: when the buffer is full the error is dropped and only
// logged. Apply rejections recovered by the reload fallback are not errors.
func (c *Coalescer[S, I]) Errors() <-chan error {
	return c.errCh
}

// Subscribe registers fn to be called after every apply or failure.
//
// fn runs on the loop goroutine and must return quickly. The returned
// function removes the subscription.
func (c *Coalescer[S, I]) Subscribe(fn func(Event[S, I])) (unsubscribe func()) {
	id := c.observers.add(fn)
	return func() { c.observers.remove(id) }
}

// Submit schedules p, superseding any pending or running submission.
//
// The returned Ticket reports the outcome. Submitting to a closed coalescer
// returns a ticket already resolved with OutcomeDropped and ErrClosed.
func (c *Coalescer[S, I]) Submit(p Producer[S, I]) *Ticket[S, I] {
	t := newTicket[S, I]()
	if p == nil {
		t.resolve(OutcomeFailed, apply.Result[S, I]{}, ErrNilProducer)
		return t
	}
	select {
	case <-c.closed:
		t.resolve(OutcomeDropped, apply.Result[S, I]{}, ErrClosed)
		return t
	default:
	}
	submissionsTotal.Inc()
	select {
	case c.submitCh <- submission[S, I]{producer: p, ticket: t}:
		// A send that raced with shutdown may land after the loop's final
		// drain, so whoever sees closed drains again.
		select {
		case <-c.closed:
			c.drain()
		default:
		}
	case <-c.closed:
		t.resolve(OutcomeDropped, apply.Result[S, I]{}, ErrClosed)
	}
	return t
}

// drain resolves every queued submission with OutcomeDropped.
func (c *Coalescer[S, I]) drain() {
	for {
		select {
		case sub := <-c.submitCh:
			sub.ticket.resolve(OutcomeDropped, apply.Result[S, I]{}, ErrClosed)
		default:
			return
		}
	}
}

// SubmitSnapshot schedules an already built snapshot.
func (c *Coalescer[S, I]) SubmitSnapshot(s *snapshot.Snapshot[S, I]) *Ticket[S, I] {
	return c.Submit(func(context.Context) (*snapshot.Snapshot[S, I], error) {
		return s, nil
	})
}

// Close stops the loop. Pending and running submissions resolve with
// OutcomeDropped. Close waits for the loop to exit if it is running.
func (c *Coalescer[S, I]) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
	if c.running.Load() {
		<-c.done
	}
	c.drain()
}

// Run executes the loop until ctx ends or Close is called. Either way the
// coalescer is closed afterwards and later submissions resolve with
// OutcomeDropped.
//
// Outputs:
//   - error: ErrAlreadyRunning on a second call, ctx.Err() when ctx ended,
//     nil after Close.
func (c *Coalescer[S, I]) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(c.done)

	var (
		gen      uint64
		pending  *submission[S, I]
		inflight *flight[S, I]
		timer    *time.Timer
		timerC   <-chan time.Time
	)

	stop := func(reason error) {
		if timer != nil {
			timer.Stop()
		}
		if pending != nil {
			pending.ticket.resolve(OutcomeDropped, apply.Result[S, I]{}, reason)
		}
		if inflight != nil {
			inflight.cancel()
			inflight.sub.ticket.resolve(OutcomeDropped, apply.Result[S, I]{}, reason)
		}
		c.drain()
		c.state.Store(int32(StateIdle))
	}

	c.logger.Debug("coalescer started", slog.Duration("quiescence", c.cfg.Quiescence))
	for {
		select {
		case <-ctx.Done():
			c.closeOnce.Do(func() { close(c.closed) })
			stop(ErrClosed)
			return ctx.Err()

		case <-c.closed:
			stop(ErrClosed)
			return nil

		case sub := <-c.submitCh:
			gen++
			sub.ticket.gen = gen
			if pending != nil {
				supersededTotal.WithLabelValues(StatePendingScheduled.String()).Inc()
				pending.ticket.resolve(OutcomeSuperseded, apply.Result[S, I]{}, nil)
			}
			if inflight != nil {
				supersededTotal.WithLabelValues(StateApplying.String()).Inc()
				inflight.cancel()
				inflight.sub.ticket.resolve(OutcomeSuperseded, apply.Result[S, I]{}, nil)
				inflight = nil
			}
			pending = &sub

			if timer == nil {
				timer = time.NewTimer(c.cfg.Quiescence)
				timerC = timer.C
			} else {
				timer.Reset(c.cfg.Quiescence)
				timerC = timer.C
			}
			c.state.Store(int32(StatePendingScheduled))

		case <-timerC:
			timerC = nil
			if pending == nil {
				continue
			}
			pctx, cancel := context.WithCancel(ctx)
			inflight = &flight[S, I]{sub: *pending, cancel: cancel}
			pending = nil
			c.state.Store(int32(StateApplying))
			go c.produce(pctx, inflight.sub)

		case r := <-c.resultCh:
			producerDuration.Observe(r.duration.Seconds())
			if inflight == nil || r.gen != inflight.sub.ticket.gen {
				staleResultsTotal.Inc()
				c.logger.Debug("discarding stale result", slog.Uint64("generation", r.gen))
				continue
			}
			f := inflight
			inflight = nil
			f.cancel()
			c.finish(ctx, f.sub.ticket, r)
			if pending == nil {
				c.state.Store(int32(StateIdle))
			}
		}
	}
}

// produce runs a producer and hands its result to the loop.
func (c *Coalescer[S, I]) produce(ctx context.Context, sub submission[S, I]) {
	start := time.Now()
	snap, err := runProducer(ctx, sub.producer)
	r := producerResult[S, I]{gen: sub.ticket.gen, snap: snap, err: err, duration: time.Since(start)}
	select {
	case c.resultCh <- r:
	case <-c.done:
	}
}

// runProducer calls p and converts a panic into an error.
func runProducer[S, I snapshot.Key](ctx context.Context, p Producer[S, I]) (snap *snapshot.Snapshot[S, I], err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("producer panicked: %v", r)
		}
	}()
	return p(ctx)
}

// finish applies a live producer result and resolves its ticket. Observers
// run before the ticket resolves.
func (c *Coalescer[S, I]) finish(ctx context.Context, t *Ticket[S, I], r producerResult[S, I]) {
	ev := Event[S, I]{StreamID: c.cfg.StreamID, Generation: t.gen}

	if r.err != nil {
		producerFailuresTotal.Inc()
		perr := &ProducerError{StreamID: c.cfg.StreamID, Generation: t.gen, Err: r.err}
		c.logger.Warn("producer failed, keeping current list",
			slog.Uint64("generation", t.gen),
			slog.String("error", r.err.Error()),
		)
		ev.Outcome, ev.Err = OutcomeFailed, perr
		c.report(perr)
		c.emit(ev)
		t.resolve(OutcomeFailed, apply.Result[S, I]{}, perr)
		return
	}

	res, err := c.app.Apply(ctx, r.snap, c.cfg.Mode)
	if err != nil {
		c.logger.Error("apply failed",
			slog.Uint64("generation", t.gen),
			slog.String("error", err.Error()),
		)
		ev.Outcome, ev.Err = OutcomeFailed, err
		c.report(err)
		c.emit(ev)
		t.resolve(OutcomeFailed, res, err)
		return
	}

	c.logger.Debug("snapshot applied",
		slog.Uint64("generation", t.gen),
		slog.String("mode", res.Mode.String()),
		slog.Bool("fell_back", res.FellBack),
	)
	ev.Outcome, ev.Snapshot, ev.Result = OutcomeApplied, r.snap, res
	c.emit(ev)
	t.resolve(OutcomeApplied, res, nil)
}

func (c *Coalescer[S, I]) report(err error) {
	select {
	case c.errCh <- err:
	default:
		c.logger.Warn("error channel full, dropping error", slog.String("error", err.Error()))
	}
}

func (c *Coalescer[S, I]) emit(ev Event[S, I]) {
	for _, fn := range c.observers.get() {
		fn(ev)
	}
}
