package scroll

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"jordanella.com/scroll-stitch/internal/events"
	"jordanella.com/scroll-stitch/internal/logging"
)

// Scheduler drives an initialized session: a capture goroutine grabs frames
// at the session sample rate while the calling goroutine matches and
// stitches them. A slow matcher never delays capture; when processing falls
// behind, the oldest queued frame is dropped.
type Scheduler struct {
	engine *Engine
	logger *logging.Logger
}

// NewScheduler creates a scheduler for engine
func NewScheduler(engine *Engine) *Scheduler {
	engine.mu.Lock()
	logger := engine.logger
	engine.mu.Unlock()

	return &Scheduler{
		engine: engine,
		logger: logger.Named("ScrollScheduler"),
	}
}

// Run captures and processes frames until the session finalizes, is
// cleared, fails, or ctx is cancelled. Cancelling ctx finalizes the session
// with what has been stitched so far. Finalize and Clear may be called from
// other goroutines while Run is active.
func (s *Scheduler) Run(ctx context.Context) (*Screenshot, error) {
	h, err := s.engine.activeCapture()
	if err != nil {
		return nil, err
	}
	if !h.running.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%w: session %s is already scheduled", ErrInvalidRequest, h.sessionID)
	}
	defer h.running.Store(false)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := newFrameQueue(h.queueCapacity)
	log := s.logger.WithContext(map[string]interface{}{"session": h.sessionID})

	var (
		wg     sync.WaitGroup
		capErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer queue.Close()
		capErr = s.captureLoop(runCtx, h, queue, log)
	}()

	procErr := s.processLoop(runCtx, h, queue)

	cancel()
	wg.Wait()

	log.With(map[string]interface{}{"dropped": queue.Dropped()}).Debug("Scheduler stopped")

	switch {
	case h.stopped():
		return s.engine.collect(h)
	case ctx.Err() != nil:
		return s.engine.finishFor(h, ReasonCancelled)
	case procErr != nil:
		return nil, procErr
	case capErr != nil:
		return nil, capErr
	default:
		return s.engine.finishFor(h, ReasonCancelled)
	}
}

// captureLoop grabs a frame immediately and then once per interval. Only a
// fatal capture error ends it early.
func (s *Scheduler) captureLoop(ctx context.Context, h *captureHandle, queue *frameQueue, log *logging.ContextLogger) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		if h.stopped() || ctx.Err() != nil {
			return nil
		}

		frame, err := s.engine.grab(ctx, h)
		switch {
		case err == nil:
			if h.stopped() {
				return nil
			}
			if evicted, ok := queue.Push(frame); ok {
				total := h.dropped.Add(1)
				log.With(map[string]interface{}{"seq": evicted.Seq}).Debug("Dropped queued frame")
				s.engine.publish(events.NewFrameDroppedEvent(h.sessionID, evicted.Seq, total))
			}
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		case h.stopped():
			// The failure streak hit the limit and the session was aborted
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-h.done:
			return nil
		case <-ticker.C:
		}
	}
}

// processLoop handles queued frames in capture order until the session
// stops or the queue is drained after capture ended.
func (s *Scheduler) processLoop(ctx context.Context, h *captureHandle, queue *frameQueue) error {
	for {
		frame, ok := queue.Pop(ctx, h.done)
		if !ok {
			return nil
		}

		result, err := s.engine.HandleImage(frame)
		if err != nil {
			return err
		}
		if result.Finalized {
			return nil
		}
	}
}
