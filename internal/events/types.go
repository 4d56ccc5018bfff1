package events

import "time"

// EventType represents different types of events in the system
type EventType string

const (
	// Session lifecycle events
	EventTypeSessionInitialized EventType = "session.initialized"
	EventTypeSessionFinalized   EventType = "session.finalized"
	EventTypeSessionCleared     EventType = "session.cleared"
	EventTypeSessionAborted     EventType = "session.aborted"

	// Frame events
	EventTypeFrameAccepted EventType = "frame.accepted"
	EventTypeFrameStalled  EventType = "frame.stalled"
	EventTypeFrameRejected EventType = "frame.rejected"
	EventTypeFrameDropped  EventType = "frame.dropped"

	// Capture events
	EventTypeCaptureFailed EventType = "capture.failed"
)

// AllEventTypes lists every event type the engine emits
var AllEventTypes = []EventType{
	EventTypeSessionInitialized,
	EventTypeSessionFinalized,
	EventTypeSessionCleared,
	EventTypeSessionAborted,
	EventTypeFrameAccepted,
	EventTypeFrameStalled,
	EventTypeFrameRejected,
	EventTypeFrameDropped,
	EventTypeCaptureFailed,
}

// Event represents a system event with metadata
type Event struct {
	Type      EventType              // Type of event
	Source    string                 // Component that emitted event (e.g., "engine", "scheduler")
	SessionID string                 // Capture session the event belongs to
	Timestamp time.Time              // When the event occurred
	Data      map[string]interface{} // Event-specific data
}

// EventHandler is a function that processes an event
type EventHandler func(Event)

// SubscriptionID uniquely identifies a subscription
type SubscriptionID int64

// EventBus defines the interface for event pub/sub
type EventBus interface {
	// Subscribe registers a handler for a specific event type
	Subscribe(eventType EventType, handler EventHandler) SubscriptionID

	// Unsubscribe removes a subscription by ID
	Unsubscribe(id SubscriptionID)

	// Publish queues an event, blocking while the queue is full
	Publish(event Event)

	// PublishAsync queues an event, dropping it if the queue is full
	PublishAsync(event Event) bool

	// Stop stops the event bus and drains remaining events
	Stop()
}

// Helper functions to create common events

// NewSessionInitializedEvent creates a session initialized event
func NewSessionInitializedEvent(sessionID, region, direction string, display int) Event {
	return Event{
		Type:      EventTypeSessionInitialized,
		Source:    "engine",
		SessionID: sessionID,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"region":    region,
			"direction": direction,
			"display":   display,
		},
	}
}

// NewFrameAcceptedEvent creates a frame accepted event
func NewFrameAcceptedEvent(sessionID string, seq uint64, offset int, similarity float64, width, height int) Event {
	return Event{
		Type:      EventTypeFrameAccepted,
		Source:    "engine",
		SessionID: sessionID,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"seq":        seq,
			"offset":     offset,
			"similarity": similarity,
			"width":      width,
			"height":     height,
		},
	}
}

// NewFrameStalledEvent creates an event for a frame with no scroll progress
func NewFrameStalledEvent(sessionID string, seq uint64, idleCycles int) Event {
	return Event{
		Type:      EventTypeFrameStalled,
		Source:    "engine",
		SessionID: sessionID,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"seq":         seq,
			"idle_cycles": idleCycles,
		},
	}
}

// NewFrameRejectedEvent creates an event for a frame that matched no offset
func NewFrameRejectedEvent(sessionID string, seq uint64, similarity float64, idleCycles int) Event {
	return Event{
		Type:      EventTypeFrameRejected,
		Source:    "engine",
		SessionID: sessionID,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"seq":         seq,
			"similarity":  similarity,
			"idle_cycles": idleCycles,
		},
	}
}

// NewFrameDroppedEvent creates an event for a frame dropped under backpressure
func NewFrameDroppedEvent(sessionID string, seq uint64, totalDropped uint64) Event {
	return Event{
		Type:      EventTypeFrameDropped,
		Source:    "scheduler",
		SessionID: sessionID,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"seq":           seq,
			"total_dropped": totalDropped,
		},
	}
}

// NewCaptureFailedEvent creates a capture failure event
func NewCaptureFailedEvent(sessionID string, err error, consecutive int) Event {
	return Event{
		Type:      EventTypeCaptureFailed,
		Source:    "engine",
		SessionID: sessionID,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"error":       err.Error(),
			"consecutive": consecutive,
		},
	}
}

// NewSessionFinalizedEvent creates a session finalized event
func NewSessionFinalizedEvent(sessionID, reason string, frameCount, width, height int) Event {
	return Event{
		Type:      EventTypeSessionFinalized,
		Source:    "engine",
		SessionID: sessionID,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"reason":      reason,
			"frame_count": frameCount,
			"width":       width,
			"height":      height,
		},
	}
}

// NewSessionClearedEvent creates a session cleared event
func NewSessionClearedEvent(sessionID string) Event {
	return Event{
		Type:      EventTypeSessionCleared,
		Source:    "engine",
		SessionID: sessionID,
		Timestamp: time.Now(),
	}
}

// NewSessionAbortedEvent creates an event for a session ended by a fatal error
func NewSessionAbortedEvent(sessionID, reason string, err error) Event {
	data := map[string]interface{}{
		"reason": reason,
	}
	if err != nil {
		data["error"] = err.Error()
	}

	return Event{
		Type:      EventTypeSessionAborted,
		Source:    "engine",
		SessionID: sessionID,
		Timestamp: time.Now(),
		Data:      data,
	}
}
