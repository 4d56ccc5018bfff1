package database

import (
	"errors"
	"time"
)

// ErrSessionNotFound is returned when no session row has the given ID
var ErrSessionNotFound = errors.New("capture session not found")

// CaptureSession is the stored summary of a finished capture session
type CaptureSession struct {
	ID           string    `db:"id"`
	StartedAt    time.Time `db:"started_at"`
	FinishedAt   time.Time `db:"finished_at"`
	Region       string    `db:"region"`
	Direction    string    `db:"direction"`
	DisplayIndex int       `db:"display_index"`
	FrameCount   int       `db:"frame_count"`
	Width        int       `db:"width"`
	Height       int       `db:"height"`
	Reason       string    `db:"reason"`
	OutputPath   *string   `db:"output_path"`
}

// Duration returns how long the session ran
func (s *CaptureSession) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// SessionError is a capture or processing failure recorded for a session
type SessionError struct {
	ID           int64     `db:"id"`
	SessionID    string    `db:"session_id"`
	ErrorType    string    `db:"error_type"`
	ErrorMessage string    `db:"error_message"`
	IsFatal      bool      `db:"is_fatal"`
	OccurredAt   time.Time `db:"occurred_at"`
}
