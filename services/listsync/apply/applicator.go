// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package apply

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/listsync/services/listsync/diff"
	"github.com/AleutianAI/listsync/services/listsync/snapshot"
)

// =============================================================================
// Modes
// =============================================================================

// Mode selects how a snapshot reaches the list.
type Mode int

const (
	// ModeAnimated applies the edit script as one batch.
	ModeAnimated Mode = iota

	// ModeReload replaces the list contents without animation.
	ModeReload
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeAnimated:
		return "animated"
	case ModeReload:
		return "reload"
	default:
		return "unknown"
	}
}

// ParseMode converts a configuration string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "animated":
		return ModeAnimated, nil
	case "reload":
		return ModeReload, nil
	default:
		return ModeAnimated, fmt.Errorf("unknown apply mode %q", s)
	}
}

// =============================================================================
// Config and Result
// =============================================================================

// Config configures an Applicator.
type Config struct {
	// Moves is passed to the diff engine. Default: diff.PreferMoves.
	Moves diff.MovePolicy

	// ComparePayloads enables reload detection by comparing payloads. When
	// false only explicit reload marks produce reload ops.
	ComparePayloads bool
}

// Result describes one Apply call.
type Result[S, I snapshot.Key] struct {
	// Mode is the mode that actually reached the list.
	Mode Mode

	// Script is the computed script. Nil for a plain reload.
	Script *diff.EditScript[S, I]

	// FellBack is true when an animated apply was replaced by a reload.
	FellBack bool

	// Err is the batch error that caused the fallback, if any.
	Err error

	// Duration covers diffing and applying.
	Duration time.Duration
}

// =============================================================================
// Applicator
// =============================================================================

// Applicator keeps a LiveList in step with a sequence of snapshots.
//
// It owns the last-applied baseline. The baseline only changes after the
// list has accepted the new snapshot, by batch or by reload.
//
// Thread Safety: Safe for concurrent use; calls are serialized.
type Applicator[S, I snapshot.Key] struct {
	list   LiveList[S, I]
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	baseline  *snapshot.Snapshot[S, I]
	populated bool
}

// New creates an Applicator for list.
//
// Inputs:
//   - list: The live list. Must not be nil.
//   - cfg: Diff settings.
//   - logger: Logger for fallbacks. If nil, uses slog.Default().
//
// Outputs:
//   - *Applicator: Starts with an empty baseline. The first Apply always
//     reloads, since nothing has been shown yet.
func New[S, I snapshot.Key](list LiveList[S, I], cfg Config, logger *slog.Logger) *Applicator[S, I] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applicator[S, I]{
		list:     list,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "applicator")),
		baseline: snapshot.Empty[S, I](),
	}
}

// Baseline returns the last snapshot the list accepted.
func (a *Applicator[S, I]) Baseline() *snapshot.Snapshot[S, I] {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.baseline
}

// Apply brings the list to next.
//
// Description:
//
//	In ModeAnimated the baseline is diffed against next and the script runs
//	as one batch. If the batch is rejected or the list diverges, the
//	Applicator logs a warning and reloads the list from next instead; the
//	Result reports FellBack and the batch error. ModeReload, and the very
//	first Apply, skip the diff and reload directly.
//
//	The baseline is replaced only once the list holds next.
//
// Inputs:
//   - ctx: Cancellation and trace context.
//   - next: The snapshot to show. Nil means empty.
//   - mode: Requested mode.
//
// Outputs:
//   - Result: What happened.
//   - error: diff.ErrInvalidSnapshot for a corrupt snapshot, ErrApplyFailed
//     when the reload failed, or a context error. The baseline is unchanged
//     on error.
func (a *Applicator[S, I]) Apply(ctx context.Context, next *snapshot.Snapshot[S, I], mode Mode) (Result[S, I], error) {
	ctx, span := startApplySpan(ctx, mode)
	defer span.End()

	a.mu.Lock()
	defer a.mu.Unlock()

	start := time.Now()
	if next == nil {
		next = snapshot.Empty[S, I]()
	}
	if err := ctx.Err(); err != nil {
		return Result[S, I]{Mode: mode}, err
	}
	if !a.populated {
		mode = ModeReload
	}

	res := Result[S, I]{Mode: mode}
	if mode == ModeAnimated {
		script, err := diff.Compute(a.baseline, next, a.diffOptions(next))
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return res, fmt.Errorf("diff: %w", err)
		}
		res.Script = script
		if err := ApplyScript(ctx, script, a.list); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			a.logger.Warn("batch rejected, falling back to reload",
				slog.String("error", err.Error()),
				slog.Int("ops", script.Len()),
			)
			applyFallbackTotal.Inc()
			res.Mode, res.FellBack, res.Err = ModeReload, true, err
		}
	}

	if res.Mode == ModeReload {
		if err := a.list.ReloadData(ctx, next); err != nil {
			span.SetStatus(codes.Error, err.Error())
			a.logger.Error("reload failed", slog.String("error", err.Error()))
			return res, fmt.Errorf("%w: %w", ErrApplyFailed, err)
		}
	}

	a.baseline = next
	a.populated = true
	res.Duration = time.Since(start)

	applyTotal.WithLabelValues(res.Mode.String()).Inc()
	applyDuration.Observe(res.Duration.Seconds())
	recordScriptSize(ctx, res.Script.Len(), res.FellBack)
	setApplySpanResult(span, res)

	a.logger.Debug("applied",
		slog.String("mode", res.Mode.String()),
		slog.Int("ops", res.Script.Len()),
		slog.Bool("fell_back", res.FellBack),
		slog.Duration("duration", res.Duration),
	)
	return res, nil
}

func (a *Applicator[S, I]) diffOptions(next *snapshot.Snapshot[S, I]) diff.Options[I] {
	opts := diff.Options[I]{Moves: a.cfg.Moves}
	if a.cfg.ComparePayloads {
		opts.Reload = diff.ReloadFromPayloads(a.baseline, next)
	}
	return opts
}
