package console

import (
	"sync"
	"time"
)

const defaultSearchDelay = 300 * time.Millisecond

type stopper interface {
	Stop() bool
}

type afterFunc func(delay time.Duration, fn func()) stopper

func realAfterFunc(delay time.Duration, fn func()) stopper {
	return time.AfterFunc(delay, fn)
}

// debouncer runs only the most recent trigger, once delay has passed without
// another one. A timer that fired while being replaced is ignored through the
// generation check.
type debouncer struct {
	mu         sync.Mutex
	delay      time.Duration
	after      afterFunc
	timer      stopper
	generation uint64
	stopped    bool
}

func newDebouncer(delay time.Duration, after afterFunc) *debouncer {
	if delay <= 0 {
		delay = defaultSearchDelay
	}
	if after == nil {
		after = realAfterFunc
	}
	return &debouncer{delay: delay, after: after}
}

func (d *debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.generation++
	generation := d.generation
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = d.after(d.delay, func() {
		d.mu.Lock()
		if d.stopped || generation != d.generation {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		fn()
	})
}

// Stop cancels any pending trigger and ignores later ones.
func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.generation++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
