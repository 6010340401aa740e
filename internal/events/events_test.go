package events

import (
	"testing"
	"time"
)

func TestEventBus_PublishSubscribe(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch := bus.Subscribe(EventUploadProgress)

	bus.Publish(&UploadEvent{
		BaseEvent: NewBase(EventUploadProgress),
		BatchID:   "batch-1",
		Percent:   42,
	})

	select {
	case received := <-ch:
		ev, ok := received.(*UploadEvent)
		if !ok {
			t.Fatal("Expected UploadEvent")
		}
		if ev.BatchID != "batch-1" {
			t.Errorf("Expected batch id 'batch-1', got '%s'", ev.BatchID)
		}
		if ev.Percent != 42 {
			t.Errorf("Expected 42%%, got %d", ev.Percent)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Timeout waiting for event")
	}
}

func TestEventBus_SubscribeAllReceivesEveryType(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	all := bus.SubscribeAll()
	bus.Publish(&ModeChangedEvent{BaseEvent: NewBase(EventModeChanged), From: "ocr", To: "notes"})
	bus.Publish(&ExportEvent{BaseEvent: NewBase(EventExportCompleted), Name: "a.md"})

	for _, want := range []EventType{EventModeChanged, EventExportCompleted} {
		select {
		case ev := <-all:
			if ev.Type() != want {
				t.Errorf("Expected %s, got %s", want, ev.Type())
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("Timeout waiting for %s", want)
		}
	}
}

func TestEventBus_DropsWhenFull(t *testing.T) {
	bus := NewEventBus(1)
	defer bus.Close()

	_ = bus.Subscribe(EventFilesChanged)
	for i := 0; i < 3; i++ {
		bus.Publish(&FilesChangedEvent{BaseEvent: NewBase(EventFilesChanged), Count: i})
	}

	if got := bus.GetDroppedEventCount(); got != 2 {
		t.Errorf("Expected 2 dropped events, got %d", got)
	}
}

func TestEventBus_ClosedBusIgnoresPublish(t *testing.T) {
	bus := NewEventBus(1)
	ch := bus.Subscribe(EventBatchFailed)
	bus.Close()
	bus.Close()

	bus.Publish(&BatchFailedEvent{BaseEvent: NewBase(EventBatchFailed)})

	if _, ok := <-ch; ok {
		t.Error("Expected closed channel after Close")
	}

	late := bus.Subscribe(EventBatchFailed)
	if _, ok := <-late; ok {
		t.Error("Expected subscription on closed bus to be closed")
	}
}

func TestEventBus_NilSafe(t *testing.T) {
	var bus *EventBus
	bus.Publish(&ModeChangedEvent{BaseEvent: NewBase(EventModeChanged)})
}
