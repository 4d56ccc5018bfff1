package scroll

import (
	"errors"
	"fmt"
	"image"
	"time"

	"jordanella.com/scroll-stitch/internal/cv"
)

// Error types
var (
	// ErrInvalidRequest marks caller mistakes: bad region or options, or a
	// second Init while a session is active.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrCaptureFailed wraps frame source failures
	ErrCaptureFailed = errors.New("capture failed")

	// ErrProcessingFailed marks matcher or compositor faults; the session
	// is aborted.
	ErrProcessingFailed = errors.New("processing failed")

	// ErrNoActiveSession is returned when no session has been initialized
	ErrNoActiveSession = errors.New("no active session")

	// ErrCleared is returned by a running scheduler when Clear is called
	ErrCleared = errors.New("session cleared")
)

// State is the lifecycle state of the engine
type State int

const (
	StateIdle State = iota
	StateInitialized
	StateRunning
	StateFinalized
	StateCleared
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateFinalized:
		return "finalized"
	case StateCleared:
		return "cleared"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// TerminationReason records why a session ended
type TerminationReason string

const (
	ReasonNone             TerminationReason = ""
	ReasonExplicit         TerminationReason = "explicit"
	ReasonMaxAttempts      TerminationReason = "max_attempts"
	ReasonEndOfContent     TerminationReason = "end_of_content"
	ReasonCancelled        TerminationReason = "cancelled"
	ReasonCleared          TerminationReason = "cleared"
	ReasonCaptureFailed    TerminationReason = "capture_failed"
	ReasonProcessingFailed TerminationReason = "processing_failed"
)

// Frame is one captured buffer. The pipeline hands frames from stage to
// stage; the image must not be modified after capture.
type Frame struct {
	SessionID string
	Seq       uint64
	Timestamp time.Time
	Image     *image.RGBA
}

// MatchResult describes what happened to a handled frame
type MatchResult struct {
	Matched    bool
	Offset     int  // Overlap with the previous accepted frame
	HasOffset  bool // Offset is meaningful
	Similarity float64

	Stalled   bool // Frame showed no new content
	Appended  int  // Lines added to the canvas
	Finalized bool // The session finalized after this frame
}

// Screenshot is the stitched result of a session
type Screenshot struct {
	ID         string
	Image      *image.RGBA
	Width      int
	Height     int
	FrameCount int
	Direction  cv.Direction
	Region     cv.Region
	Display    cv.Display
	Reason     TerminationReason
	StartedAt  time.Time
	FinishedAt time.Time

	// Frames evicted from the scheduler queue before they were processed
	DroppedFrames uint64
}

// Status is a snapshot of session progress
type Status struct {
	State           State
	SessionID       string
	FrameCount      int
	Attempts        int
	IdleCycles      int
	Width           int
	Height          int
	CaptureFailures int
	DroppedFrames   uint64

	// LastError holds a capture failure since the previous Status call
	LastError error
}
