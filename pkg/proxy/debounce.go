package proxy

import (
	"sync"
	"time"
)

// DefaultDebounce is the write-back window for multivalue attributes.
const DefaultDebounce = 1500 * time.Millisecond

// Debouncer coalesces calls per key: fn runs once the key has been quiet for
// the window. Each Trigger restarts the window.
type Debouncer struct {
	window time.Duration

	mu      sync.Mutex
	pending map[string]*debounced
}

type debounced struct {
	timer *time.Timer
	fn    func()
	// fired is set once the timer callback owns the entry; done closes when
	// that callback returns.
	fired bool
	done  chan struct{}
}

// NewDebouncer returns a Debouncer. A non-positive window runs fn immediately.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{window: window, pending: make(map[string]*debounced)}
}

// Trigger schedules fn for key, replacing any pending call. A call that has
// already fired is left to finish.
func (d *Debouncer) Trigger(key string, fn func()) {
	if d.window <= 0 {
		fn()
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pending[key]; ok && !p.fired {
		p.timer.Stop()
	}
	entry := &debounced{fn: fn, done: make(chan struct{})}
	entry.timer = time.AfterFunc(d.window, func() {
		defer close(entry.done)
		d.mu.Lock()
		if d.pending[key] != entry {
			d.mu.Unlock()
			return
		}
		entry.fired = true
		d.mu.Unlock()

		fn()

		d.mu.Lock()
		if d.pending[key] == entry {
			delete(d.pending, key)
		}
		d.mu.Unlock()
	})
	d.pending[key] = entry
}

// Pending reports the number of scheduled or running calls.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Flush runs every pending call now and waits for calls whose timer already
// fired.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	var fns []func()
	var running []chan struct{}
	for key, p := range d.pending {
		if !p.fired && p.timer.Stop() {
			fns = append(fns, p.fn)
			delete(d.pending, key)
			continue
		}
		running = append(running, p.done)
	}
	d.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	for _, done := range running {
		<-done
	}
}

// Stop drops every pending call. Calls already running are not interrupted.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, key)
	}
}
