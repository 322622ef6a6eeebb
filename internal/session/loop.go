package session

import "sync"

// loop runs posted functions one at a time, in order, on a single goroutine.
// The goroutine exists only while work is queued. post never blocks, so
// transport callbacks can hand events to the owner without waiting on it.
type loop struct {
	mu      sync.Mutex
	queue   []func()
	running bool
}

func (l *loop) post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.mu.Unlock()

	go l.drain()
}

// call runs fn on the loop and waits for it. It must not be used from a
// function already running on the loop.
func (l *loop) call(fn func()) {
	done := make(chan struct{})
	l.post(func() {
		defer close(done)
		fn()
	})
	<-done
}

func (l *loop) drain() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.running = false
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		fn()
	}
}
