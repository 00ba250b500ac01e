// Copyright 2025 Tom Barlow
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

package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/tombee/hostagent/internal/log"
)

// Options configures a Watcher.
type Options struct {
	// Debounce is the quiet period before a change is reported. Default: 500ms
	Debounce time.Duration

	// MinInterval is the minimum spacing between change notifications.
	// Default: 2s
	MinInterval time.Duration

	Logger *slog.Logger
}

// Watcher reports changes to a single file.
type Watcher struct {
	path    string
	fsw     *fsnotify.Watcher
	opts    Options
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New starts watching the directory containing path. The file itself
// does not have to exist yet.
func New(path string, opts Options) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(absPath), err)
	}

	return &Watcher{
		path:    absPath,
		fsw:     fsw,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Every(opts.MinInterval), 1),
		logger:  log.WithComponent(opts.Logger, "watch").With(slog.String("path", absPath)),
	}, nil
}

// Path returns the absolute path of the watched file.
func (w *Watcher) Path() string {
	return w.path
}

// Run delivers change notifications to onChange until ctx is cancelled.
// onChange runs on a single goroutine, so calls never overlap. Run
// releases the watch before returning and must be called only once.
func (w *Watcher) Run(ctx context.Context, onChange func(context.Context, *Event)) error {
	defer w.fsw.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	changes := make(chan *Event, 1)
	debouncer := NewDebouncer(w.opts.Debounce, func(ev *Event) {
		select {
		case changes <- ev:
		default:
			// A queued notification re-reads the file anyway.
		}
	})
	defer debouncer.Stop(false)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.dispatch(ctx, changes, onChange)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	w.logger.Info("configuration watcher started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("configuration watcher stopped")
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("fsnotify event channel closed")
			}
			if ev := w.convert(event); ev != nil {
				configEvents.WithLabelValues(ev.Op).Inc()
				debouncer.Add(ev)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("fsnotify error channel closed")
			}
			configErrors.Inc()
			w.logger.Error("configuration watcher error", log.Error(err))
		}
	}
}

func (w *Watcher) dispatch(ctx context.Context, changes <-chan *Event, onChange func(context.Context, *Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-changes:
			if err := w.limiter.Wait(ctx); err != nil {
				return
			}
			configChanges.Inc()
			w.logger.Info("configuration changed", "op", ev.Op)
			onChange(ctx, ev)
		}
	}
}

// convert maps an fsnotify event on the watched file to an Event. Events
// for other files in the directory and bare chmods return nil.
func (w *Watcher) convert(event fsnotify.Event) *Event {
	if filepath.Clean(event.Name) != w.path {
		return nil
	}

	var op string
	switch {
	case event.Has(fsnotify.Remove):
		op = EventDeleted
	case event.Has(fsnotify.Rename):
		op = EventRenamed
	case event.Has(fsnotify.Create):
		op = EventCreated
	case event.Has(fsnotify.Write):
		op = EventModified
	default:
		log.Trace(w.logger, "ignoring event", slog.String("op", event.Op.String()))
		return nil
	}

	var size int64
	var mtime time.Time
	if op == EventCreated || op == EventModified {
		if info, err := os.Stat(w.path); err == nil {
			size = info.Size()
			mtime = info.ModTime()
		}
	}
	return NewEvent(w.path, op, size, mtime)
}
