// Package events provides the in-process event manager feeding the
// browser-side checklist widget.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventType identifies a class of event
type EventType string

const (
	// ChecklistSaved fires after a checklist state blob is written for a deal
	ChecklistSaved EventType = "checklist.saved"
	// RatesFetched fires after a successful rate snapshot fan-out
	RatesFetched EventType = "rates.fetched"
)

// Event is a single emitted event
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Source    string                 `json:"source"`
	Timestamp string                 `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// Manager fans events out to subscribers. Subscriber channels are buffered;
// events are dropped rather than blocking the emitter.
type Manager struct {
	mu          sync.RWMutex
	subscribers map[string]chan *Event
	log         zerolog.Logger
}

// NewManager creates a new event manager
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		subscribers: make(map[string]chan *Event),
		log:         log.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a new subscriber and returns its ID and channel.
// The caller must Unsubscribe when done.
func (m *Manager) Subscribe(buffer int) (string, <-chan *Event) {
	if buffer <= 0 {
		buffer = 16
	}

	id := uuid.New().String()
	ch := make(chan *Event, buffer)

	m.mu.Lock()
	m.subscribers[id] = ch
	m.mu.Unlock()

	m.log.Debug().Str("subscriber", id).Msg("Subscriber registered")
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel
func (m *Manager) Unsubscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ch, ok := m.subscribers[id]; ok {
		delete(m.subscribers, id)
		close(ch)
		m.log.Debug().Str("subscriber", id).Msg("Subscriber removed")
	}
}

// Emit delivers an event to all subscribers without blocking
func (m *Manager) Emit(eventType EventType, source string, payload map[string]interface{}) {
	event := &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for id, ch := range m.subscribers {
		select {
		case ch <- event:
		default:
			m.log.Warn().
				Str("subscriber", id).
				Str("event_type", string(eventType)).
				Msg("Subscriber channel full, dropping event")
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers)
}
