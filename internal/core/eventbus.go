package core

import "sync"

// EventType defines the type of event being published.
type EventType string

const (
	ServoToggledEvent      EventType = "ServoToggled"
	LEDToggledEvent        EventType = "LEDToggled"
	SoundToggledEvent      EventType = "SoundToggled"
	BrightnessChangedEvent EventType = "BrightnessChanged"
	PlaybackRestartedEvent EventType = "PlaybackRestarted"
	StatusEvent            EventType = "Status"
)

// AllEvents lists every event type the controller publishes.
var AllEvents = []EventType{
	ServoToggledEvent,
	LEDToggledEvent,
	SoundToggledEvent,
	BrightnessChangedEvent,
	PlaybackRestartedEvent,
	StatusEvent,
}

// Event is the envelope for all system events.
type Event struct {
	Type    EventType
	Payload interface{}
}

// ToggleChange is the payload of the *Toggled events.
type ToggleChange struct {
	On bool `json:"on"`
}

// BrightnessChange is the payload of BrightnessChangedEvent.
type BrightnessChange struct {
	Level  int   `json:"level"`
	Driver uint8 `json:"driver"`
}

// Subscriber is a channel that receives events.
type Subscriber chan Event

// EventBus fans events out to subscribers without ever blocking the publisher.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
}

// NewEventBus creates a new EventBus.
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
	}
}

// Subscribe returns a channel that receives events of the given types.
func (eb *EventBus) Subscribe(eventTypes ...EventType) Subscriber {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(Subscriber, 64)
	for _, t := range eventTypes {
		eb.subscribers[t] = append(eb.subscribers[t], ch)
	}
	return ch
}

// Unsubscribe detaches ch from the given types.
func (eb *EventBus) Unsubscribe(ch Subscriber, eventTypes ...EventType) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for _, t := range eventTypes {
		subs := eb.subscribers[t]
		for i, sub := range subs {
			if sub == ch {
				eb.subscribers[t] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers event to every subscriber of its type. A subscriber whose
// buffer is full misses the event; the control loop must never wait here.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for _, sub := range eb.subscribers[event.Type] {
		select {
		case sub <- event:
		default:
		}
	}
}
