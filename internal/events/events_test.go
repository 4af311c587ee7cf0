package events

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received *Event
	var callCount int

	handler := func(event *Event) error {
		received = event
		callCount++
		return nil
	}

	bus.Subscribe("test_event", handler)

	payload := map[string]string{"foo": "bar"}
	err := bus.PublishJSON("test_event", payload)
	if err != nil {
		t.Fatalf("PublishJSON failed: %v", err)
	}

	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}

	if received.Type != "test_event" {
		t.Errorf("expected type test_event, got %s", received.Type)
	}

	var decoded map[string]string
	if err := json.Unmarshal(received.Payload, &decoded); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}

	if decoded["foo"] != "bar" {
		t.Errorf("expected foo=bar, got %s", decoded["foo"])
	}
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	var count1, count2 int

	bus.Subscribe("event", func(_ *Event) error { count1++; return nil })
	bus.Subscribe("event", func(_ *Event) error { count2++; return nil })

	if err := bus.Publish(&Event{Type: "event"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if count1 != 1 || count2 != 1 {
		t.Errorf("expected both handlers to be called once, got %d and %d", count1, count2)
	}
}

func TestEventBusNoSubscribers(t *testing.T) {
	bus := NewEventBus()
	if err := bus.Publish(&Event{Type: "unknown"}); err != nil {
		t.Errorf("Publish failed: %v", err)
	}
	err := bus.PublishJSON("unknown", nil)
	if err != nil {
		t.Errorf("PublishJSON failed: %v", err)
	}
}

func TestPublishJSONEncodesPayload(t *testing.T) {
	bus := NewEventBus()
	var got *Event
	bus.Subscribe(EventBookingQueued, func(e *Event) error {
		got = e
		return nil
	})

	if err := bus.PublishJSON(EventBookingQueued, BookingEventPayload{LocalID: 123, Subject: "Algebra"}); err != nil {
		t.Fatalf("PublishJSON failed: %v", err)
	}
	if got == nil {
		t.Fatal("handler was not called")
	}
	if got.CreatedAt.IsZero() {
		t.Errorf("expected CreatedAt to be set")
	}

	var decoded BookingEventPayload
	if err := json.Unmarshal(got.Payload, &decoded); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if decoded.LocalID != 123 || decoded.Subject != "Algebra" {
		t.Errorf("unexpected decoded payload: %+v", decoded)
	}
}

func TestPublishJSONUnencodable(t *testing.T) {
	bus := NewEventBus()
	if err := bus.PublishJSON(EventBookingQueued, make(chan int)); err == nil {
		t.Error("expected encode error for channel payload")
	}
}

func TestEventBusHandlerErrorsJoined(t *testing.T) {
	bus := NewEventBus()
	boom := errors.New("boom")
	var secondCalled bool

	bus.Subscribe(EventBookingQueued, func(_ *Event) error { return boom })
	bus.Subscribe(EventBookingQueued, func(_ *Event) error { secondCalled = true; return nil })

	err := bus.PublishJSON(EventBookingQueued, BookingEventPayload{LocalID: 1})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined handler error, got %v", err)
	}
	if !secondCalled {
		t.Errorf("expected second handler to run after first failed")
	}
}

func TestNilBusPublishJSON(t *testing.T) {
	var bus *EventBus
	if err := bus.PublishJSON(EventSyncCompleted, SyncCompletedPayload{Synced: 1}); err != nil {
		t.Errorf("nil bus should be a no-op, got %v", err)
	}
}
