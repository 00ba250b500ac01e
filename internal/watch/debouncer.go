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
	"sync"
	"time"
)

// Debouncer holds back events until no new event for the same path has
// arrived for the window duration, then delivers the last one.
type Debouncer struct {
	mu        sync.Mutex
	window    time.Duration
	timers    map[string]*debounceTimer
	onFlush   func(*Event)
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

type debounceTimer struct {
	timer *time.Timer
	last  *Event
}

// NewDebouncer creates a debouncer that calls onFlush with the latest
// event of each burst.
func NewDebouncer(window time.Duration, onFlush func(*Event)) *Debouncer {
	return &Debouncer{
		window:    window,
		timers:    make(map[string]*debounceTimer),
		onFlush:   onFlush,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Add records an event and restarts the timer of its path.
func (d *Debouncer) Add(ev *Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	select {
	case <-d.stopCh:
		return
	default:
	}

	path := ev.Path
	dt, exists := d.timers[path]
	if exists {
		dt.timer.Stop()
		dt.last = ev
	} else {
		dt = &debounceTimer{last: ev}
		d.timers[path] = dt
	}

	dt.timer = time.AfterFunc(d.window, func() {
		d.flush(path)
	})
}

func (d *Debouncer) flush(path string) {
	d.mu.Lock()
	dt, exists := d.timers[path]
	if !exists {
		d.mu.Unlock()
		return
	}
	delete(d.timers, path)
	d.mu.Unlock()

	// Outside the lock: onFlush may block on a reload.
	if d.onFlush != nil && dt.last != nil {
		d.onFlush(dt.last)
	}
}

// Stop cancels pending timers. Held events are dropped unless flush is
// true, in which case they are delivered before Stop returns.
func (d *Debouncer) Stop(flush bool) {
	d.mu.Lock()

	select {
	case <-d.stopCh:
		d.mu.Unlock()
		return
	default:
		close(d.stopCh)
	}

	var pending []*Event
	for path, dt := range d.timers {
		dt.timer.Stop()
		pending = append(pending, dt.last)
		delete(d.timers, path)
	}
	d.mu.Unlock()

	if flush && d.onFlush != nil {
		for _, ev := range pending {
			d.onFlush(ev)
		}
	}

	close(d.stoppedCh)
}

// Wait blocks until the debouncer has stopped.
func (d *Debouncer) Wait() {
	<-d.stoppedCh
}

// Pending returns the number of paths with a held event.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}
