package scroll

import (
	"fmt"
	"time"

	"jordanella.com/scroll-stitch/internal/cv"
)

// Options configures a capture session
type Options struct {
	SampleRate        float64 // Captures per second
	MatchThreshold    uint8   // 1-100, minimum similarity percentage to accept a match
	MaxScrollAttempts int     // Hard cap on processed frames

	// Consecutive stalled or unmatched frames after which the session
	// finalizes on its own (end of content).
	MaxIdleCycles int

	// Consecutive capture failures after which the session is aborted
	MaxCaptureFailures int

	// Frames buffered between capture and processing
	QueueCapacity int

	// Matcher tunables; Threshold is taken from MatchThreshold
	Match cv.ScrollMatchConfig
}

// DefaultOptions returns recommended session settings
func DefaultOptions() Options {
	return Options{
		SampleRate:         5,
		MatchThreshold:     90,
		MaxScrollAttempts:  300,
		MaxIdleCycles:      10,
		MaxCaptureFailures: 3,
		QueueCapacity:      3,
		Match:              *cv.DefaultScrollMatchConfig(),
	}
}

// withDefaults fills the optional fields left at zero
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxIdleCycles == 0 {
		o.MaxIdleCycles = def.MaxIdleCycles
	}
	if o.MaxCaptureFailures == 0 {
		o.MaxCaptureFailures = def.MaxCaptureFailures
	}
	if o.QueueCapacity == 0 {
		o.QueueCapacity = def.QueueCapacity
	}
	if o.Match == (cv.ScrollMatchConfig{}) {
		o.Match = def.Match
	}
	if o.Match.SampleStride == 0 {
		o.Match.SampleStride = def.Match.SampleStride
	}
	if o.Match.DuplicateSimilarity == 0 {
		o.Match.DuplicateSimilarity = def.Match.DuplicateSimilarity
	}
	o.Match.Threshold = float64(o.MatchThreshold)
	return o
}

// Validate checks that options describe a usable session
func (o Options) Validate() error {
	switch {
	case o.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate must be positive, got %v", ErrInvalidRequest, o.SampleRate)
	case o.MatchThreshold == 0 || o.MatchThreshold > 100:
		return fmt.Errorf("%w: match threshold must be in 1-100, got %d", ErrInvalidRequest, o.MatchThreshold)
	case o.MaxScrollAttempts <= 0:
		return fmt.Errorf("%w: max scroll attempts must be positive, got %d", ErrInvalidRequest, o.MaxScrollAttempts)
	case o.MaxIdleCycles < 0, o.MaxCaptureFailures < 0, o.QueueCapacity < 0:
		return fmt.Errorf("%w: negative limit", ErrInvalidRequest)
	case o.Match.DuplicateSimilarity < 0 || o.Match.DuplicateSimilarity > 100:
		return fmt.Errorf("%w: duplicate similarity must be in 0-100", ErrInvalidRequest)
	}
	return nil
}

// Interval returns the time between captures
func (o Options) Interval() time.Duration {
	if o.SampleRate <= 0 {
		return time.Second
	}
	return time.Duration(float64(time.Second) / o.SampleRate)
}
