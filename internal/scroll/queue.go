package scroll

import (
	"context"
	"sync"
	"sync/atomic"
)

// frameQueue is a bounded single-producer/single-consumer handoff between
// the capture and processing stages. When full, Push discards the oldest
// buffered frame so the freshest scroll position is always kept.
type frameQueue struct {
	ch        chan Frame
	closed    chan struct{}
	closeOnce sync.Once
	dropped   atomic.Uint64
}

func newFrameQueue(capacity int) *frameQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &frameQueue{
		ch:     make(chan Frame, capacity),
		closed: make(chan struct{}),
	}
}

// Push enqueues f without blocking. It returns the frame that was evicted to
// make room, if any.
func (q *frameQueue) Push(f Frame) (evicted Frame, didEvict bool) {
	for {
		select {
		case q.ch <- f:
			return evicted, didEvict
		default:
		}

		select {
		case old := <-q.ch:
			q.dropped.Add(1)
			evicted, didEvict = old, true
		default:
			// Consumer emptied a slot in between; retry the send
		}
	}
}

// Pop blocks until a frame is available. It returns false once ctx is done,
// stop is closed, or the queue is closed and empty.
func (q *frameQueue) Pop(ctx context.Context, stop <-chan struct{}) (Frame, bool) {
	select {
	case f := <-q.ch:
		return f, true
	case <-ctx.Done():
		return Frame{}, false
	case <-stop:
		return Frame{}, false
	case <-q.closed:
		select {
		case f := <-q.ch:
			return f, true
		default:
			return Frame{}, false
		}
	}
}

// Close wakes the consumer; buffered frames can still be popped
func (q *frameQueue) Close() {
	q.closeOnce.Do(func() {
		close(q.closed)
	})
}

// Len returns the number of buffered frames
func (q *frameQueue) Len() int {
	return len(q.ch)
}

// Dropped returns the number of frames evicted so far
func (q *frameQueue) Dropped() uint64 {
	return q.dropped.Load()
}
