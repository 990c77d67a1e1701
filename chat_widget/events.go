package chat_widget

import "time"

type EventType string

const (
	// Conversation events
	EventMessageSent     EventType = "message_sent"
	EventStreamStarted   EventType = "stream_started"
	EventMessageDelta    EventType = "message_delta"
	EventStreamCompleted EventType = "stream_completed"
	EventStreamFailed    EventType = "stream_failed"
	EventSessionRestart  EventType = "session_restarted"

	// Error and retry events
	EventErrorClassified    EventType = "error_classified"
	EventRetryState         EventType = "retry_state"
	EventAutoRetryFired     EventType = "auto_retry_fired"
	EventAutoRetryCancelled EventType = "auto_retry_cancelled"
	EventManualRetry        EventType = "manual_retry"
)

type Event struct {
	Type      EventType      `json:"type"`
	SessionID string         `json:"session_id"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Events returns the event channel for external listeners. It is closed by Close.
func (w *Widget) Events() <-chan *Event {
	return w.eventChan
}

// emitEvent sends an event to the event channel (non-blocking)
func (w *Widget) emitEvent(eventType EventType, data map[string]any) {
	w.eventsMu.RLock()
	defer w.eventsMu.RUnlock()

	if w.eventsClosed {
		return
	}

	event := &Event{
		Type:      eventType,
		SessionID: w.SessionID(),
		Timestamp: time.Now(),
		Data:      data,
	}

	select {
	case w.eventChan <- event:
	default:
		// Channel full, drop event to avoid blocking
	}
}

func (w *Widget) closeEvents() {
	w.eventsMu.Lock()
	defer w.eventsMu.Unlock()

	if !w.eventsClosed {
		w.eventsClosed = true
		close(w.eventChan)
	}
}
