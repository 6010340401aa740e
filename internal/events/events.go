// Package events provides the in-process event bus used by the session state
// machine and the orchestrator. Frontends (the CLI progress UI, the shell)
// subscribe to it instead of polling state.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/babara6666/PDF-OCR-batch/internal/constants"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	// Session events
	EventModeChanged  EventType = "mode_changed"  // Active mode switched (state was reset)
	EventFilesChanged EventType = "files_changed" // Staged file set mutated
	EventSessionReset EventType = "session_reset" // Explicit reset action

	// Batch lifecycle events
	EventUploadStarted   EventType = "upload_started"   // Request snapshot taken, in-flight guard set
	EventUploadProgress  EventType = "upload_progress"  // Byte progress moved the percentage
	EventUploadSent      EventType = "upload_sent"      // Body fully written, waiting for the backend
	EventBatchCompleted  EventType = "batch_completed"  // BatchResponse received
	EventBatchFailed     EventType = "batch_failed"     // Top-level failure
	EventExportCompleted EventType = "export_completed" // Export sink accepted a file
	EventExportFailed    EventType = "export_failed"    // Best-effort export failed
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// NewBase returns a BaseEvent stamped with the current time.
func NewBase(t EventType) BaseEvent {
	return BaseEvent{EventType: t, Time: time.Now()}
}

// ModeChangedEvent is published when the active mode switches.
type ModeChangedEvent struct {
	BaseEvent
	From string
	To   string
}

// FilesChangedEvent is published when the staged set changes.
type FilesChangedEvent struct {
	BaseEvent
	Count      int
	TotalBytes int64
	Rejected   int // Candidates skipped by the type allowlist in this action
	Duplicates int // Candidates dropped as duplicates in this action
}

// UploadEvent covers upload_started, upload_progress and upload_sent.
type UploadEvent struct {
	BaseEvent
	BatchID   string
	Mode      string
	FileCount int
	Percent   int // 0..100, bytes sent
	Timeout   time.Duration
}

// BatchCompletedEvent is published when a BatchResponse arrives.
type BatchCompletedEvent struct {
	BaseEvent
	BatchID   string
	Total     int
	Succeeded int
	Failed    int
	Duration  time.Duration
}

// BatchFailedEvent is published on a top-level failure.
type BatchFailedEvent struct {
	BaseEvent
	BatchID string
	Kind    string // "server", "transport", "request"
	Error   error
}

// ExportEvent is published by the export service.
type ExportEvent struct {
	BaseEvent
	Name     string // Export filename
	Location string // Where the sink stored it; empty on failure
	Bytes    int
	Error    error
}

// EventBus manages event subscriptions and publishing
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event // Subscribers to all events
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64 // Count of dropped events due to full buffers
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	if bufferSize > constants.EventBusMaxBuffer {
		bufferSize = constants.EventBusMaxBuffer
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		all:         make([]chan Event, 0),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to all events
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish sends an event to all subscribers without blocking. Events are
// dropped (and counted) when a subscriber buffer is full.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}

	for _, ch := range eb.all {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// Close shuts down the event bus and closes all channels
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	eb.closed = true

	for _, channels := range eb.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}

	for _, ch := range eb.all {
		close(ch)
	}
}

// UnsubscribeAll removes a subscription channel from every event type.
func (eb *EventBus) UnsubscribeAll(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	for eventType, subscribers := range eb.subscribers {
		for i, subCh := range subscribers {
			if subCh == ch {
				subscribers[i] = subscribers[len(subscribers)-1]
				eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
				break
			}
		}
	}

	for i, subCh := range eb.all {
		if subCh == ch {
			eb.all[i] = eb.all[len(eb.all)-1]
			eb.all = eb.all[:len(eb.all)-1]
			break
		}
	}
}

// GetDroppedEventCount returns the total number of events dropped due to full buffers
func (eb *EventBus) GetDroppedEventCount() int64 {
	return eb.droppedEvents.Load()
}
