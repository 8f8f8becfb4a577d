package prompt

import "sync"

// Queue holds widget updates posted by other goroutines (the event bus,
// write-back error handlers) until the editor loop runs them. Its Dispatch
// method is a data.Dispatcher.
type Queue struct {
	mu  sync.Mutex
	fns []func()
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Dispatch queues fn. It never runs fn itself.
func (q *Queue) Dispatch(fn func()) {
	if fn == nil {
		return
	}
	q.mu.Lock()
	q.fns = append(q.fns, fn)
	q.mu.Unlock()
}

// Len reports the number of queued updates.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.fns)
}

// Drain runs queued updates in order on the calling goroutine, including
// updates queued while draining, and returns how many ran.
func (q *Queue) Drain() int {
	ran := 0
	for {
		q.mu.Lock()
		fns := q.fns
		q.fns = nil
		q.mu.Unlock()
		if len(fns) == 0 {
			return ran
		}
		for _, fn := range fns {
			fn()
		}
		ran += len(fns)
	}
}
