package database

import (
	"fmt"

	"jordanella.com/scroll-stitch/internal/events"
	"jordanella.com/scroll-stitch/internal/logging"
)

// ErrorRecorder stores capture failures and aborted sessions published on
// the event bus.
type ErrorRecorder struct {
	db              *DB
	eventBus        events.EventBus
	logger          *logging.Logger
	subscriptionIDs []events.SubscriptionID
}

// NewErrorRecorder subscribes to failure events on eventBus
func NewErrorRecorder(db *DB, eventBus events.EventBus, logger *logging.Logger) *ErrorRecorder {
	r := &ErrorRecorder{
		db:       db,
		eventBus: eventBus,
		logger:   logger,
	}

	r.subscriptionIDs = append(r.subscriptionIDs,
		eventBus.Subscribe(events.EventTypeCaptureFailed, r.handleEvent),
		eventBus.Subscribe(events.EventTypeSessionAborted, r.handleEvent),
	)

	return r
}

func (r *ErrorRecorder) handleEvent(event events.Event) {
	message, _ := event.Data["error"].(string)
	fatal := event.Type == events.EventTypeSessionAborted
	if fatal {
		message = fmt.Sprintf("%v: %s", event.Data["reason"], message)
	}

	if _, err := r.db.LogSessionError(event.SessionID, string(event.Type), message, fatal); err != nil {
		r.logger.Error("Failed to record session error", err)
	}
}

// Close unsubscribes from the event bus
func (r *ErrorRecorder) Close() {
	for _, id := range r.subscriptionIDs {
		r.eventBus.Unsubscribe(id)
	}
	r.subscriptionIDs = nil
}
