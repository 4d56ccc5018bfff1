// Package scroll runs scroll capture sessions: it captures a screen region
// repeatedly, finds how far the content moved between frames and stitches
// the newly revealed lines into one long image.
package scroll

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"jordanella.com/scroll-stitch/internal/cv"
	"jordanella.com/scroll-stitch/internal/events"
	"jordanella.com/scroll-stitch/internal/logging"
	"jordanella.com/scroll-stitch/internal/stitch"
)

// captureHandle is all the capture stage of a session may touch. It never
// holds the canvas.
type captureHandle struct {
	sessionID     string
	region        cv.Region
	interval      time.Duration
	queueCapacity int
	maxFailures   int

	seq      atomic.Uint64
	failures atomic.Int32
	dropped  atomic.Uint64
	running  atomic.Bool

	done     chan struct{}
	stopOnce sync.Once
	mu       sync.Mutex
	result   *Screenshot
	stopErr  error
}

func newCaptureHandle(sessionID string, region cv.Region, options Options) *captureHandle {
	return &captureHandle{
		sessionID:     sessionID,
		region:        region,
		interval:      options.Interval(),
		queueCapacity: options.QueueCapacity,
		maxFailures:   options.MaxCaptureFailures,
		done:          make(chan struct{}),
	}
}

// stop cancels capture and records how the session ended. Only the first
// call has an effect.
func (h *captureHandle) stop(result *Screenshot, err error) {
	h.stopOnce.Do(func() {
		h.mu.Lock()
		h.result = result
		h.stopErr = err
		h.mu.Unlock()
		close(h.done)
	})
}

func (h *captureHandle) stopped() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *captureHandle) outcome() (*Screenshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.stopErr
}

// session is the mutable aggregate of one capture session. It is only
// touched with Engine.mu held.
type session struct {
	id        string
	region    cv.Region
	direction cv.Direction
	options   Options
	display   cv.Display
	startedAt time.Time
	log       *logging.ContextLogger

	canvas     *stitch.Canvas
	last       *image.RGBA // Most recently accepted frame
	lastSeq    uint64      // Most recently handled frame
	frameCount int
	attempts   int
	idleCycles int

	reason  TerminationReason
	result  *Screenshot
	capture *captureHandle
}

func (s *session) checkFrame(img *image.RGBA) error {
	if img == nil {
		return cv.ErrInvalidImage
	}
	b := img.Bounds()
	if b.Min != (image.Point{}) {
		return fmt.Errorf("%w: frame origin %v", cv.ErrInvalidImage, b.Min)
	}
	if b.Dx() != s.region.Width || b.Dy() != s.region.Height {
		return fmt.Errorf("%w: frame is %dx%d, region is %dx%d",
			cv.ErrDimensionMismatch, b.Dx(), b.Dy(), s.region.Width, s.region.Height)
	}
	if len(img.Pix) < b.Dy()*img.Stride || img.Stride < b.Dx()*4 {
		return fmt.Errorf("%w: pixel buffer shorter than bounds", cv.ErrInvalidImage)
	}
	return nil
}

// Engine owns at most one capture session at a time
type Engine struct {
	source   cv.FrameSource
	resolver cv.DisplayResolver
	logger   *logging.Logger
	bus      events.EventBus

	mu      sync.Mutex
	state   State
	sess    *session
	softErr error
}

// NewEngine creates an engine. resolver may be nil, in which case the
// region itself is reported as the display.
func NewEngine(source cv.FrameSource, resolver cv.DisplayResolver) *Engine {
	return &Engine{
		source:   source,
		resolver: resolver,
		logger:   logging.NewLogger("ScrollEngine"),
	}
}

// WithLogger sets the engine logger
func (e *Engine) WithLogger(logger *logging.Logger) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logger = logger
	return e
}

// WithEventBus publishes session events to bus
func (e *Engine) WithEventBus(bus events.EventBus) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bus = bus
	return e
}

// State returns the current lifecycle state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Init starts a new session. It fails with ErrInvalidRequest when the region
// or options are invalid, or while another session is still active or has
// an uncollected result.
func (e *Engine) Init(region cv.Region, direction cv.Direction, options Options) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateIdle {
		return fmt.Errorf("%w: session %s is %s", ErrInvalidRequest, e.sess.id, e.state)
	}
	if err := region.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if direction != cv.Vertical && direction != cv.Horizontal {
		return fmt.Errorf("%w: unknown direction %v", ErrInvalidRequest, direction)
	}

	options = options.withDefaults()
	if err := options.Validate(); err != nil {
		return err
	}

	display := cv.Display{Bounds: region.Rect(), Scale: 1.0}
	if e.resolver != nil {
		d, err := e.resolver.ResolveDisplay(region)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		display = d
	}

	id := uuid.NewString()
	e.sess = &session{
		id:        id,
		region:    region,
		direction: direction,
		options:   options,
		display:   display,
		startedAt: time.Now(),
		log:       e.logger.WithContext(map[string]interface{}{"session": id}),
		canvas:    stitch.NewCanvas(direction, region.Cross(direction)),
		capture:   newCaptureHandle(id, region, options),
	}
	e.state = StateInitialized
	e.softErr = nil

	e.sess.log.With(map[string]interface{}{
		"region":    region.String(),
		"direction": direction.String(),
		"display":   display.Index,
	}).Info("Session initialized")
	e.publish(events.NewSessionInitializedEvent(id, region.String(), direction.String(), display.Index))

	return nil
}

// NewFrame wraps an externally captured image as the next frame of the
// active session.
func (e *Engine) NewFrame(img *image.RGBA) (Frame, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess == nil || (e.state != StateInitialized && e.state != StateRunning) {
		return Frame{}, ErrNoActiveSession
	}

	h := e.sess.capture
	return Frame{
		SessionID: h.sessionID,
		Seq:       h.seq.Add(1),
		Timestamp: time.Now(),
		Image:     img,
	}, nil
}

// CaptureFrame grabs one frame of the session region. The first frame of a
// session seeds the canvas directly; later frames are returned for
// HandleImage. Grab errors are ErrCaptureFailed. A first frame that cannot
// seed the canvas aborts the session with ErrProcessingFailed.
func (e *Engine) CaptureFrame(ctx context.Context) (Frame, error) {
	h, err := e.activeCapture()
	if err != nil {
		return Frame{}, err
	}

	frame, err := e.grab(ctx, h)
	if err != nil {
		return Frame{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateInitialized && e.sess.capture == h {
		if _, err := e.handleLocked(frame); err != nil {
			return Frame{}, err
		}
	}

	return frame, nil
}

// activeCapture returns the capture handle of the active session
func (e *Engine) activeCapture() (*captureHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess == nil || (e.state != StateInitialized && e.state != StateRunning) {
		return nil, ErrNoActiveSession
	}
	if e.source == nil {
		return nil, fmt.Errorf("%w: engine has no frame source", ErrInvalidRequest)
	}
	return e.sess.capture, nil
}

// grab captures a frame for h without touching session state. It is the
// only engine call the capture stage makes.
func (e *Engine) grab(ctx context.Context, h *captureHandle) (Frame, error) {
	if h.stopped() {
		return Frame{}, fmt.Errorf("%w: session %s stopped", ErrNoActiveSession, h.sessionID)
	}

	img, err := e.source.Grab(ctx, h.region)
	if err != nil {
		if ctx.Err() != nil {
			return Frame{}, ctx.Err()
		}
		n := int(h.failures.Add(1))
		return Frame{}, e.captureFailed(h, err, n)
	}
	h.failures.Store(0)

	if h.stopped() {
		return Frame{}, fmt.Errorf("%w: session %s stopped", ErrNoActiveSession, h.sessionID)
	}

	return Frame{
		SessionID: h.sessionID,
		Seq:       h.seq.Add(1),
		Timestamp: time.Now(),
		Image:     img,
	}, nil
}

// captureFailed records a failed grab and aborts the session once the
// failure streak reaches the limit.
func (e *Engine) captureFailed(h *captureHandle, cause error, n int) error {
	err := fmt.Errorf("%w: %v", ErrCaptureFailed, cause)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess == nil || e.sess.capture != h {
		return err
	}

	e.softErr = err
	e.sess.log.With(map[string]interface{}{
		"consecutive": n,
		"error":       cause.Error(),
	}).Warn("Frame capture failed")
	e.publish(events.NewCaptureFailedEvent(h.sessionID, cause, n))

	if n >= h.maxFailures {
		fatal := fmt.Errorf("%w: %d consecutive failures, last: %v", ErrCaptureFailed, n, cause)
		e.abortLocked(ReasonCaptureFailed, fatal)
		return fatal
	}

	return err
}

// HandleImage matches frame against the last accepted frame and appends the
// newly revealed lines. Stalls and failed matches are not errors; they count
// towards the end-of-content limit. A corrupt frame aborts the session with
// ErrProcessingFailed.
func (e *Engine) HandleImage(frame Frame) (MatchResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess == nil || (e.state != StateInitialized && e.state != StateRunning) {
		return MatchResult{}, ErrNoActiveSession
	}
	if frame.SessionID != e.sess.id || frame.Seq == 0 {
		return MatchResult{}, fmt.Errorf("%w: frame %d does not belong to session %s",
			ErrInvalidRequest, frame.Seq, e.sess.id)
	}

	return e.handleLocked(frame)
}

func (e *Engine) handleLocked(frame Frame) (MatchResult, error) {
	s := e.sess

	// Already handled, e.g. the frame that seeded the canvas in CaptureFrame
	if frame.Seq <= s.lastSeq {
		return MatchResult{Stalled: true}, nil
	}
	s.lastSeq = frame.Seq

	if err := s.checkFrame(frame.Image); err != nil {
		return MatchResult{}, e.processingFailed(frame, err)
	}

	s.attempts++
	length := s.region.Length(s.direction)

	var result MatchResult
	if s.last == nil {
		width, height, err := s.canvas.Seed(frame.Image)
		if err != nil {
			return MatchResult{}, e.processingFailed(frame, err)
		}

		s.last = frame.Image
		s.frameCount = 1
		e.state = StateRunning

		result = MatchResult{Matched: true, Offset: length, HasOffset: true, Similarity: 100, Appended: length}
		e.publish(events.NewFrameAcceptedEvent(s.id, frame.Seq, length, 100, width, height))
	} else {
		m, err := cv.FindScrollOffset(s.last, frame.Image, s.direction, &s.options.Match)
		if err != nil {
			return MatchResult{}, e.processingFailed(frame, err)
		}

		switch {
		case m.Duplicate:
			s.idleCycles++
			result = MatchResult{Offset: m.Offset, HasOffset: true, Similarity: m.Similarity, Stalled: true}
			e.publish(events.NewFrameStalledEvent(s.id, frame.Seq, s.idleCycles))

		case !m.Matched:
			s.idleCycles++
			result = MatchResult{Similarity: m.Similarity}
			if s.log.Enabled(logging.LogLevelDebug) {
				s.log.With(map[string]interface{}{
					"seq":        frame.Seq,
					"similarity": fmt.Sprintf("%.1f", m.Similarity),
				}).Debug("Frame rejected")
			}
			e.publish(events.NewFrameRejectedEvent(s.id, frame.Seq, m.Similarity, s.idleCycles))

		default:
			width, height, err := s.canvas.Append(frame.Image, m.Offset)
			if err != nil {
				return MatchResult{}, e.processingFailed(frame, err)
			}

			s.last = frame.Image
			s.frameCount++
			s.idleCycles = 0

			result = MatchResult{
				Matched:    true,
				Offset:     m.Offset,
				HasOffset:  true,
				Similarity: m.Similarity,
				Appended:   length - m.Offset,
			}
			if s.log.Enabled(logging.LogLevelDebug) {
				s.log.With(map[string]interface{}{
					"seq":    frame.Seq,
					"offset": m.Offset,
					"length": s.canvas.Lines(),
				}).Debug("Frame accepted")
			}
			e.publish(events.NewFrameAcceptedEvent(s.id, frame.Seq, m.Offset, m.Similarity, width, height))
		}
	}

	switch {
	case s.attempts >= s.options.MaxScrollAttempts:
		e.finalizeLocked(ReasonMaxAttempts)
		result.Finalized = true
	case s.options.MaxIdleCycles > 0 && s.idleCycles >= s.options.MaxIdleCycles:
		e.finalizeLocked(ReasonEndOfContent)
		result.Finalized = true
	}

	return result, nil
}

func (e *Engine) processingFailed(frame Frame, cause error) error {
	err := fmt.Errorf("%w: frame %d: %v", ErrProcessingFailed, frame.Seq, cause)
	e.abortLocked(ReasonProcessingFailed, err)
	return err
}

// Size returns the current canvas dimensions
func (e *Engine) Size() (width, height int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateInitialized, StateRunning:
		width, height = e.sess.canvas.Size()
		return width, height, nil
	case StateFinalized:
		return e.sess.result.Width, e.sess.result.Height, nil
	default:
		return 0, 0, ErrNoActiveSession
	}
}

// Finalize ends the session and returns the stitched screenshot. If the
// session already finalized on its own, the stored result is returned. The
// engine is Idle afterwards.
func (e *Engine) Finalize() (*Screenshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateFinalized:
		shot := e.sess.result
		e.resetLocked()
		return shot, nil

	case StateRunning:
		shot := e.finalizeLocked(ReasonExplicit)
		e.resetLocked()
		return shot, nil

	case StateInitialized:
		id := e.sess.id
		err := fmt.Errorf("%w: session %s has no frames", ErrNoActiveSession, id)
		e.sess.capture.stop(nil, err)
		e.resetLocked()
		return nil, err

	default:
		return nil, ErrNoActiveSession
	}
}

// Clear discards the session, if any, and returns the engine to Idle. A
// running scheduler stops capturing before its next tick. Safe to call at
// any time and more than once.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess == nil {
		e.state = StateIdle
		return
	}

	s := e.sess
	e.state = StateCleared
	s.reason = ReasonCleared
	s.capture.stop(nil, ErrCleared)

	s.log.Info("Session cleared")
	e.publish(events.NewSessionClearedEvent(s.id))

	e.resetLocked()
	e.softErr = nil
}

// Status returns session progress. A capture failure is reported by the
// first Status call after it happened.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{State: e.state, LastError: e.softErr}
	e.softErr = nil

	if s := e.sess; s != nil {
		st.SessionID = s.id
		st.FrameCount = s.frameCount
		st.Attempts = s.attempts
		st.IdleCycles = s.idleCycles
		st.CaptureFailures = int(s.capture.failures.Load())
		st.DroppedFrames = s.capture.dropped.Load()
		if s.result != nil {
			st.Width, st.Height = s.result.Width, s.result.Height
		} else {
			st.Width, st.Height = s.canvas.Size()
		}
	}

	return st
}

// finalizeLocked builds the screenshot and moves to StateFinalized
func (e *Engine) finalizeLocked(reason TerminationReason) *Screenshot {
	s := e.sess

	img := s.canvas.Image()
	shot := &Screenshot{
		ID:         s.id,
		Image:      img,
		Width:      img.Bounds().Dx(),
		Height:     img.Bounds().Dy(),
		FrameCount: s.frameCount,
		Direction:  s.direction,
		Region:     s.region,
		Display:    s.display,
		Reason:     reason,
		StartedAt:  s.startedAt,
		FinishedAt: time.Now(),

		DroppedFrames: s.capture.dropped.Load(),
	}

	s.reason = reason
	s.result = shot
	s.canvas.Reset()
	s.last = nil
	e.state = StateFinalized
	s.capture.stop(shot, nil)

	s.log.With(map[string]interface{}{
		"reason":      string(reason),
		"frame_count": shot.FrameCount,
		"attempts":    s.attempts,
		"dropped":     shot.DroppedFrames,
		"width":       shot.Width,
		"height":      shot.Height,
	}).Info("Session finalized")
	e.publish(events.NewSessionFinalizedEvent(s.id, string(reason), shot.FrameCount, shot.Width, shot.Height))

	return shot
}

// abortLocked ends the session on a fatal error, discarding its state
func (e *Engine) abortLocked(reason TerminationReason, err error) {
	s := e.sess
	s.reason = reason
	s.capture.stop(nil, err)

	s.log.With(map[string]interface{}{"reason": string(reason)}).Error("Session aborted", err)
	e.publish(events.NewSessionAbortedEvent(s.id, string(reason), err))

	e.resetLocked()
	e.softErr = err
}

func (e *Engine) resetLocked() {
	e.sess = nil
	e.state = StateIdle
}

// finishFor finalizes the session owning h with reason, if it is still
// active, and returns its outcome.
func (e *Engine) finishFor(h *captureHandle, reason TerminationReason) (*Screenshot, error) {
	e.mu.Lock()
	if e.sess != nil && e.sess.capture == h {
		switch e.state {
		case StateRunning:
			e.finalizeLocked(reason)
		case StateInitialized:
			h.stop(nil, fmt.Errorf("%w: session %s has no frames", ErrNoActiveSession, h.sessionID))
			e.resetLocked()
		}
	}
	e.mu.Unlock()

	return e.collect(h)
}

// collect returns the outcome of the stopped session owning h, releasing
// the engine if the result is still waiting to be collected.
func (e *Engine) collect(h *captureHandle) (*Screenshot, error) {
	shot, err := h.outcome()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess != nil && e.sess.capture == h && e.state == StateFinalized {
		e.resetLocked()
	}
	if shot == nil && err == nil {
		err = ErrNoActiveSession
	}
	return shot, err
}

func (e *Engine) publish(event events.Event) {
	if e.bus != nil {
		e.bus.PublishAsync(event)
	}
}
