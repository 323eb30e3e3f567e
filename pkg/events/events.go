package events

import (
	"sync"
	"time"
)

// Type names one observable moment in the runtime lifecycle.
type Type string

const (
	TypeInteractionStarted Type = "interaction.started"
	TypeToolCallRequested  Type = "tool.requested"
	TypeToolCallCompleted  Type = "tool.completed"
	TypeHandoffOccurred    Type = "handoff.occurred"
	TypeCostUpdated        Type = "cost.updated"
	TypeTurnEnded          Type = "turn.ended"
	TypeSessionCreated     Type = "session.created"
	TypeSessionClosed      Type = "session.closed"
)

// Event is one structured runtime notification. Payload keys vary by type.
type Event struct {
	Type      Type                   `json:"type"`
	SessionID string                 `json:"session_id,omitempty"`
	AgentID   string                 `json:"agent_id,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Handler receives emitted events. Handlers run on the emitting goroutine
// and must not block.
type Handler func(Event)

// Wildcard subscribes a handler to every event type.
const Wildcard = Type("*")

// Emitter fans events out to registered handlers. The runtime core only
// ever emits; rendering belongs to whoever subscribes.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
}

// NewEmitter creates an emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[Type][]Handler)}
}

// On registers a handler for one event type, or all types via Wildcard.
func (e *Emitter) On(t Type, handler Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[t] = append(e.handlers[t], handler)
}

// Off removes all handlers for an event type.
func (e *Emitter) Off(t Type) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.handlers, t)
}

// Emit delivers an event to its type's handlers and all wildcard handlers,
// in registration order. A zero Timestamp is stamped at emit time.
func (e *Emitter) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	e.mu.RLock()
	handlers := make([]Handler, 0, len(e.handlers[event.Type])+len(e.handlers[Wildcard]))
	handlers = append(handlers, e.handlers[event.Type]...)
	handlers = append(handlers, e.handlers[Wildcard]...)
	e.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}
