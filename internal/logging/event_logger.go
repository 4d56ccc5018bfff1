package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"jordanella.com/scroll-stitch/internal/events"
)

// EventLogger subscribes to the event bus and writes every event to a log file
type EventLogger struct {
	logger          *Logger
	eventBus        events.EventBus
	subscriptionIDs []events.SubscriptionID
	logFile         *os.File
}

// NewEventLogger creates an event logger writing to logDir/events_<timestamp>.log
func NewEventLogger(eventBus events.EventBus, logDir string) (*EventLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	logPath := filepath.Join(logDir, fmt.Sprintf("events_%s.log", timestamp))
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	el := &EventLogger{
		logger:   NewLogger("EventLogger").SetMinLevel(LogLevelDebug).SetOutput(logFile),
		eventBus: eventBus,
		logFile:  logFile,
	}

	for _, eventType := range events.AllEventTypes {
		el.subscriptionIDs = append(el.subscriptionIDs, eventBus.Subscribe(eventType, el.handleEvent))
	}

	return el, nil
}

// Path returns the log file path
func (el *EventLogger) Path() string {
	return el.logFile.Name()
}

// handleEvent logs a single event. Per-frame events are written at debug level.
func (el *EventLogger) handleEvent(event events.Event) {
	context := map[string]interface{}{
		"source":  event.Source,
		"session": event.SessionID,
	}
	for k, v := range event.Data {
		context[k] = v
	}

	message := fmt.Sprintf("Event: %s", event.Type)
	switch event.Type {
	case events.EventTypeFrameAccepted, events.EventTypeFrameStalled, events.EventTypeFrameDropped:
		el.logger.DebugWithContext(message, context)
	case events.EventTypeCaptureFailed, events.EventTypeFrameRejected:
		el.logger.WarnWithContext(message, context)
	case events.EventTypeSessionAborted:
		el.logger.ErrorWithContext(message, nil, context)
	default:
		el.logger.InfoWithContext(message, context)
	}
}

// Close unsubscribes from the bus and closes the log file
func (el *EventLogger) Close() error {
	for _, id := range el.subscriptionIDs {
		el.eventBus.Unsubscribe(id)
	}
	el.subscriptionIDs = nil

	if el.logFile != nil {
		return el.logFile.Close()
	}
	return nil
}
