package run

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/stingersec/stinger/pkg/history"
)

// QueueMode selects how prompts submitted while a session is busy are
// handled.
type QueueMode int

const (
	// QueueFIFO runs queued prompts strictly in submission order.
	QueueFIFO QueueMode = iota

	// QueueReplace drops waiting prompts so only the newest runs once the
	// session is free. The turn already running is unaffected.
	QueueReplace
)

// Config is the immutable per-session configuration, fixed at creation.
// Nothing here is read from ambient process state during execution.
type Config struct {
	// MaxInteractions caps reasoning steps per turn. Zero means no cap.
	MaxInteractions int

	// PriceCeiling in USD. Zero means unlimited.
	PriceCeiling float64

	// RetryAttempts bounds inference retries per interaction.
	RetryAttempts int

	// Model overrides the agent definition's model when non-empty.
	Model string

	// QueueMode governs prompts submitted while the session is busy.
	QueueMode QueueMode
}

// HandoffRecord is an audit entry for one agent swap. It never drives
// control flow.
type HandoffRecord struct {
	From        string
	To          string
	Interaction int
	At          time.Time
}

// Session is one independent conversation: its transcript, its active
// agent, and its lifecycle flags. History and ActiveAgent are owned
// exclusively by the goroutine running the session's turns; only the
// cancel flag and the state label may be touched from outside.
type Session struct {
	ID      string
	Config  Config
	History *history.History

	activeAgent string
	turns       int
	handoffs    []HandoffRecord

	cancelled atomic.Bool

	stateMu sync.RWMutex
	state   TurnState
}

// NewSession creates a session starting at the given agent.
func NewSession(agentID string, cfg Config) *Session {
	return &Session{
		ID:          uuid.New().String(),
		Config:      cfg,
		History:     history.New(),
		activeAgent: agentID,
		state:       StateAwaitingInput,
	}
}

// ActiveAgent returns the id of the agent currently holding the session.
func (s *Session) ActiveAgent() string {
	return s.activeAgent
}

// setActiveAgent swaps the active agent and records the handoff.
func (s *Session) setActiveAgent(to string, interaction int) {
	s.handoffs = append(s.handoffs, HandoffRecord{
		From:        s.activeAgent,
		To:          to,
		Interaction: interaction,
		At:          time.Now(),
	})
	s.activeAgent = to
}

// Handoffs returns the audit trail of agent swaps.
func (s *Session) Handoffs() []HandoffRecord {
	out := make([]HandoffRecord, len(s.handoffs))
	copy(out, s.handoffs)
	return out
}

// Turns returns how many turns this session has run.
func (s *Session) Turns() int {
	return s.turns
}

// Cancel raises the cooperative cancellation flag. The running turn
// observes it at the next safe point.
func (s *Session) Cancel() {
	s.cancelled.Store(true)
}

// Cancelled reports whether cancellation has been requested.
func (s *Session) Cancelled() bool {
	return s.cancelled.Load()
}

// clearCancel resets the flag so the next turn starts clean.
func (s *Session) clearCancel() {
	s.cancelled.Store(false)
}

// State returns the session's current lifecycle state.
func (s *Session) State() TurnState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *Session) setState(st TurnState) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
}
