package utils

import (
	"sync"
	"time"
)

type DebouncedFunction func()

// Debouncer runs a function once calls to Trigger have gone quiet for the
// configured duration
type Debouncer struct {
	m        sync.Mutex
	f        DebouncedFunction
	duration time.Duration
	timer    *time.Timer
	stopped  bool
}

func NewDebouncer(f DebouncedFunction, duration time.Duration) *Debouncer {
	return &Debouncer{f: f, duration: duration}
}

func (d *Debouncer) Trigger() {
	d.m.Lock()
	defer d.m.Unlock()

	if d.stopped {
		return
	}

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.duration, d.execute)
}

func (d *Debouncer) execute() {
	d.m.Lock()
	if d.stopped {
		d.m.Unlock()
		return
	}
	d.timer = nil
	d.m.Unlock()

	// f may block (the watcher hands events to a reader), so it is called
	// without holding the lock
	d.f()
}

// Stop cancels any pending call; later triggers are ignored
func (d *Debouncer) Stop() {
	d.m.Lock()
	defer d.m.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Debounce wraps f so that bursts of calls collapse into one
func Debounce(f DebouncedFunction, duration time.Duration) DebouncedFunction {
	return NewDebouncer(f, duration).Trigger
}
