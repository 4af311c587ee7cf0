package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	EventBookingCreated = "booking_created"
	EventBookingQueued  = "booking_queued"
	EventBookingSynced  = "booking_synced"
	EventSyncCompleted  = "sync_completed"
)

// BookingEventPayload describes a booking as it moves through the offline queue.
type BookingEventPayload struct {
	LocalID     int64     `json:"local_id,omitempty"`
	RemoteID    string    `json:"remote_id,omitempty"`
	TutorID     string    `json:"tutor_id"`
	UserID      string    `json:"user_id"`
	Subject     string    `json:"subject"`
	ScheduledAt time.Time `json:"scheduled_at"`
	// DeleteFailed is set when the remote create succeeded but the local row
	// could not be removed; the booking may be sent again by a later pass.
	DeleteFailed bool `json:"delete_failed,omitempty"`
}

// SyncCompletedPayload summarizes one sync pass.
type SyncCompletedPayload struct {
	Attempted      int           `json:"attempted"`
	Synced         int           `json:"synced"`
	Failed         int           `json:"failed"`
	DeleteFailures int           `json:"delete_failures"`
	Duration       time.Duration `json:"duration"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish runs every handler of the event type synchronously and joins
// their errors. A failing handler does not stop the others.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishJSON encodes the payload and publishes it under eventType.
// A nil bus drops the event.
func (b *EventBus) PublishJSON(eventType string, payload any) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
}
