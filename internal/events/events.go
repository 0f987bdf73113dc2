package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// AllEvents subscribes a handler to every event type.
const AllEvents = "*"

// Event is a domain event with a JSON payload.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the payload into out.
func (e Event) Decode(out any) error {
	return json.Unmarshal(e.Payload, out)
}

type EventHandler func(event Event) error

// EventBus is an in-process pub/sub. Handlers run synchronously on the publisher's goroutine.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	seq         atomic.Int64
	logger      zerolog.Logger
}

func NewEventBus(logger *zerolog.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[string][]EventHandler),
		logger:      logger.With().Str("component", "events").Logger(),
	}
}

func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish delivers the event to type subscribers, then to AllEvents subscribers.
// Handler errors are logged and do not stop delivery.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.subscribers[AllEvents]...)
	b.mu.RUnlock()

	if event.ID == 0 {
		event.ID = b.seq.Add(1)
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		if err := handler(event); err != nil {
			b.logger.Warn().Err(err).Str("event", event.Type).Int64("event_id", event.ID).Msg("Event handler failed")
		}
	}
}

// PublishJSON marshals payload and publishes it under eventType.
func (b *EventBus) PublishJSON(eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	b.Publish(Event{Type: eventType, Payload: data})
	return nil
}
