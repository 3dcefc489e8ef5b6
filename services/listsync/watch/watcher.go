// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch feeds an update stream from a snapshot file on disk.
//
// The watcher observes the file's directory, so editors that save by
// renaming a temporary file over the original are seen too. Bursts of
// events are debounced; each quiet period submits one producer that reads
// the file. The coalescer then discards any read a newer one supersedes.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/listsync/services/listsync/coalesce"
	"github.com/AleutianAI/listsync/services/listsync/snapfile"
)

// ErrNoSink is returned when New is called without a Sink.
var ErrNoSink = errors.New("watch: sink must not be nil")

var (
	fileEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listsync_watch_events_total",
		Help: "File system events for watched snapshot files, by operation",
	}, []string{"op"})

	watchSubmitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listsync_watch_submits_total",
		Help: "Producers submitted after a debounced file change",
	})
)

// Sink receives producers. *coalesce.Coalescer[string, string] implements it.
type Sink interface {
	Submit(p coalesce.Producer[string, string]) *coalesce.Ticket[string, string]
}

// Options configures the Watcher.
type Options struct {
	// Debounce is how long to wait for more events before submitting.
	// Default: 100ms
	Debounce time.Duration

	// BufferSize is the capacity of the event channel.
	// Default: 64
	BufferSize int
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Debounce:   100 * time.Millisecond,
		BufferSize: 64,
	}
}

// Watcher watches one snapshot file.
//
// # Thread Safety
//
// Safe for concurrent use. Submissions happen on a single goroutine.
type Watcher struct {
	path     string
	loader   *snapfile.Loader
	sink     Sink
	debounce time.Duration
	logger   *slog.Logger

	fsw      *fsnotify.Watcher
	changes  chan fsnotify.Op
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	watching bool
	tickets  []*coalesce.Ticket[string, string]
}

// New creates a watcher for path.
//
// # Inputs
//
//   - path: The snapshot file. It does not need to exist yet.
//   - loader: Reads the file. Nil uses snapfile.NewLoader().
//   - sink: Receives one producer per debounced change.
//   - opts: Optional configuration (nil uses defaults).
//   - logger: Nil uses slog.Default().
//
// # Outputs
//
//   - *Watcher: Call Start to begin watching.
//   - error: ErrNoSink, or the fsnotify setup error.
func New(path string, loader *snapfile.Loader, sink Sink, opts *Options, logger *slog.Logger) (*Watcher, error) {
	if sink == nil {
		return nil, ErrNoSink
	}
	if opts == nil {
		defaults := DefaultOptions()
		opts = &defaults
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultOptions().Debounce
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultOptions().BufferSize
	}
	if loader == nil {
		loader = snapfile.NewLoader()
	}
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:     abs,
		loader:   loader,
		sink:     sink,
		debounce: opts.Debounce,
		logger:   logger.With(slog.String("component", "watch"), slog.String("path", abs)),
		fsw:      fsw,
		changes:  make(chan fsnotify.Op, opts.BufferSize),
		done:     make(chan struct{}),
	}, nil
}

// Start submits the current file contents and begins watching.
//
// # Description
//
// Spawns two goroutines: one converts fsnotify events for the file into
// changes, the other debounces them and submits producers. Both exit when
// Stop is called or ctx is cancelled.
//
// # Outputs
//
//   - error: Non-nil if the directory could not be watched.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = true
	w.mu.Unlock()

	if err := w.fsw.Add(filepath.Dir(w.path)); err != nil {
		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}

	w.submit()
	go w.processEvents(ctx)
	go w.debounceLoop(ctx)
	return nil
}

// Stop stops the watcher. Submitted producers are not cancelled.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.fsw.Close()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

// IsWatching returns true if the watcher is active.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.watching
}

// maxTickets bounds how many recent tickets a Watcher remembers.
const maxTickets = 64

// Tickets returns the tickets of the most recent submissions, oldest first.
func (w *Watcher) Tickets() []*coalesce.Ticket[string, string] {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*coalesce.Ticket[string, string], len(w.tickets))
	copy(out, w.tickets)
	return out
}

func (w *Watcher) submit() {
	t := w.sink.Submit(w.loader.Producer(w.path))
	watchSubmitsTotal.Inc()
	w.mu.Lock()
	w.tickets = append(w.tickets, t)
	if len(w.tickets) > maxTickets {
		w.tickets = append(w.tickets[:0], w.tickets[len(w.tickets)-maxTickets:]...)
	}
	w.mu.Unlock()
}

// processEvents forwards events for the watched file to the debouncer.
func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			fileEventsTotal.WithLabelValues(opLabel(event.Op)).Inc()
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			select {
			case w.changes <- event.Op:
			default:
				// A flush is already due; the dropped event adds nothing.
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", slog.String("error", err.Error()))
		}
	}
}

// debounceLoop submits one producer after each quiet period.
func (w *Watcher) debounceLoop(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time
	pending := 0

	stop := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			stop()
			return
		case <-w.done:
			stop()
			return
		case op := <-w.changes:
			pending++
			w.logger.Debug("snapshot file changed", slog.String("op", op.String()))
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			stop()
			w.logger.Debug("submitting snapshot file", slog.Int("events", pending))
			pending = 0
			w.submit()
		}
	}
}

func opLabel(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Write):
		return "write"
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	default:
		return "chmod"
	}
}
