// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package coalesce

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/listsync/services/listsync/apply"
	"github.com/AleutianAI/listsync/services/listsync/snapshot"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrClosed is returned for submissions made to, or still pending in, a
	// closed coalescer.
	ErrClosed = errors.New("coalescer is closed")

	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("coalescer is already running")

	// ErrInvalidConfig is returned when configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNilProducer is returned for a nil producer.
	ErrNilProducer = errors.New("producer must not be nil")
)

// ProducerError wraps a failure reported by a snapshot producer.
//
// The coalescer never retries and never applies anything for a failed
// producer; the list keeps showing the previous baseline.
type ProducerError struct {
	// StreamID identifies the update stream.
	StreamID string

	// Generation is the submission's generation.
	Generation uint64

	// Err is the producer's error.
	Err error
}

// Error implements error.
func (e *ProducerError) Error() string {
	return fmt.Sprintf("stream %s: producer %d failed: %v", e.StreamID, e.Generation, e.Err)
}

// Unwrap returns the producer's error.
func (e *ProducerError) Unwrap() error {
	return e.Err
}

// -----------------------------------------------------------------------------
// Enums
// -----------------------------------------------------------------------------

// State is the coalescer's position in its per-stream state machine.
type State int32

const (
	// StateIdle means nothing is scheduled or running.
	StateIdle State = iota

	// StatePendingScheduled means a submission waits for the quiescence
	// delay to elapse.
	StatePendingScheduled

	// StateApplying means a producer is running or its snapshot is being
	// applied.
	StateApplying
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePendingScheduled:
		return "pending_scheduled"
	case StateApplying:
		return "applying"
	default:
		return "unknown"
	}
}

// Outcome is how a submission ended.
type Outcome int

const (
	// OutcomePending means the submission has not finished yet.
	OutcomePending Outcome = iota

	// OutcomeApplied means the submission's snapshot reached the list.
	OutcomeApplied

	// OutcomeSuperseded means a newer submission replaced this one. It is
	// not an error.
	OutcomeSuperseded

	// OutcomeFailed means the producer or the apply failed.
	OutcomeFailed

	// OutcomeDropped means the coalescer stopped before the submission ran.
	OutcomeDropped
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeApplied:
		return "applied"
	case OutcomeSuperseded:
		return "superseded"
	case OutcomeFailed:
		return "failed"
	case OutcomeDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if the outcome is final.
func (o Outcome) IsTerminal() bool {
	return o != OutcomePending
}

// -----------------------------------------------------------------------------
// Config
// -----------------------------------------------------------------------------

// Default values for Config.
const (
	DefaultQuiescence  = 300 * time.Millisecond
	DefaultErrorBuffer = 16
)

// Config configures a Coalescer.
type Config struct {
	// StreamID names the update stream in logs, events and errors.
	// Default: a random UUID.
	StreamID string

	// Quiescence is how long a submission waits for a newer one before its
	// producer starts.
	// Default: 300ms.
	Quiescence time.Duration

	// Mode is how applied snapshots reach the list.
	Mode apply.Mode

	// ErrorBuffer is the capacity of the Errors channel.
	// Default: 16.
	ErrorBuffer int
}

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.StreamID == "" {
		c.StreamID = uuid.NewString()
	}
	if c.Quiescence == 0 {
		c.Quiescence = DefaultQuiescence
	}
	if c.ErrorBuffer == 0 {
		c.ErrorBuffer = DefaultErrorBuffer
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Quiescence < 0 {
		return fmt.Errorf("%w: quiescence must not be negative, got %s", ErrInvalidConfig, c.Quiescence)
	}
	if c.ErrorBuffer < 0 {
		return fmt.Errorf("%w: error buffer must not be negative, got %d", ErrInvalidConfig, c.ErrorBuffer)
	}
	if c.Mode != apply.ModeAnimated && c.Mode != apply.ModeReload {
		return fmt.Errorf("%w: unknown mode %d", ErrInvalidConfig, c.Mode)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Producers, events and tickets
// -----------------------------------------------------------------------------

// Producer builds the snapshot for one submission.
//
// ctx is cancelled when a newer submission supersedes this one. A producer
// that ignores cancellation is harmless: its result is discarded on arrival.
type Producer[S, I snapshot.Key] func(ctx context.Context) (*snapshot.Snapshot[S, I], error)

// Event is delivered to subscribers after every apply or failure.
type Event[S, I snapshot.Key] struct {
	StreamID   string
	Generation uint64
	Outcome    Outcome

	// Snapshot is the applied snapshot. Nil unless Outcome is OutcomeApplied.
	Snapshot *snapshot.Snapshot[S, I]

	// Result describes the apply. Zero unless Outcome is OutcomeApplied.
	Result apply.Result[S, I]

	// Err is set when Outcome is OutcomeFailed.
	Err error
}

// Ticket tracks one submission.
type Ticket[S, I snapshot.Key] struct {
	gen  uint64
	done chan struct{}

	// Written once before done is closed.
	outcome Outcome
	result  apply.Result[S, I]
	err     error
}

func newTicket[S, I snapshot.Key]() *Ticket[S, I] {
	return &Ticket[S, I]{done: make(chan struct{})}
}

// resolve finalizes the ticket. Whoever dequeues or owns a submission calls
// it exactly once.
func (t *Ticket[S, I]) resolve(o Outcome, res apply.Result[S, I], err error) {
	t.outcome, t.result, t.err = o, res, err
	close(t.done)
}

// Done is closed once the submission has an outcome.
func (t *Ticket[S, I]) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the submission finishes or ctx ends.
//
// Outputs:
//   - Outcome: OutcomeApplied, OutcomeSuperseded (nil error), OutcomeFailed
//     (with a *ProducerError or apply error), or OutcomeDropped (ErrClosed).
//     OutcomePending when ctx ended first.
//   - error: As above, or ctx.Err().
func (t *Ticket[S, I]) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-t.done:
		return t.outcome, t.err
	case <-ctx.Done():
		return OutcomePending, ctx.Err()
	}
}

// Result returns the apply result. Only meaningful after Done is closed with
// OutcomeApplied.
func (t *Ticket[S, I]) Result() apply.Result[S, I] {
	select {
	case <-t.done:
		return t.result
	default:
		return apply.Result[S, I]{}
	}
}
