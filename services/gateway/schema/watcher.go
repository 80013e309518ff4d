// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package schema

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// PushFunc is called with a debounced change notification.
type PushFunc func(ctx context.Context)

// Watcher re-pushes the schema when the file on disk changes.
//
// The parent directory is watched rather than the file itself so that
// editors which replace the file via rename keep triggering events.
// Changes are debounced; rapid successive writes produce one push.
//
// Thread Safety: Safe for concurrent use. The push callback runs on a
// single goroutine.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	push     PushFunc
	debounce time.Duration
	logger   *slog.Logger

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOptions configures the Watcher.
type WatcherOptions struct {
	// DebounceWindow is how long to wait for further writes before
	// pushing. Default: 500ms.
	DebounceWindow time.Duration

	// Logger for watch events.
	Logger *slog.Logger
}

// NewWatcher creates a watcher for the schema file at path. push is called
// after each debounced change.
func NewWatcher(path string, push PushFunc, opts *WatcherOptions) (*Watcher, error) {
	if opts == nil {
		opts = &WatcherOptions{}
	}
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = 500 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		path:     filepath.Clean(path),
		watcher:  fsw,
		push:     push,
		debounce: opts.DebounceWindow,
		logger:   opts.Logger.With(slog.String("component", "schema_watcher")),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. The loop exits when Stop is called or the context
// is canceled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	go w.loop(ctx)
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()
	})
}

func (w *Watcher) loop(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				// Drain a fired-but-unread timer so Reset cannot leave a
				// stale tick that ends the debounce window early.
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			w.logger.Info("schema file changed, re-pushing", slog.String("path", w.path))
			w.push(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("schema watch error", slog.String("error", err.Error()))
		}
	}
}
