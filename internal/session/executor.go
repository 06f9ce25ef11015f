package session

import "sync"

// executor runs posted functions one at a time in post order on a drain
// goroutine that exists only while the queue is non-empty. post never runs a
// function on the caller's goroutine, so a device or network callback that
// posts is never held up by a slow handler such as teardown persistence.
// Functions posted from inside a running function are queued behind it.
type executor struct {
	mu      sync.Mutex
	queue   []func()
	running bool
}

func (e *executor) post(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue = append(e.queue, fn)
	if !e.running {
		e.running = true
		go e.drain()
	}
}

func (e *executor) drain() {
	for {
		e.mu.Lock()
		if len(e.queue) == 0 {
			e.running = false
			e.mu.Unlock()
			return
		}
		next := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		e.mu.Unlock()

		next()
	}
}
