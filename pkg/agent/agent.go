package agent

import (
	"errors"
	"fmt"
)

// SessionContext is the read-only view of a session that dynamic
// instructions may consult.
type SessionContext struct {
	SessionID string
	Turn      int
	Vars      map[string]string
}

// InstructionsFunc computes instructions from session context.
type InstructionsFunc func(SessionContext) string

// Definition describes one agent: its instructions, model, and the tool and
// handoff names it may use. Definitions are immutable once registered; agents
// reference each other only by id through the Registry, never by pointer.
type Definition struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	Model             string           `json:"model"`
	Instructions      string           `json:"instructions,omitempty"`
	InstructionsFunc  InstructionsFunc `json:"-"`
	Temperature       float64          `json:"temperature,omitempty"`
	MaxTokens         int              `json:"max_tokens,omitempty"`
	Tools             []string         `json:"tools,omitempty"`
	Handoffs          []string         `json:"handoffs,omitempty"`
	ParallelToolCalls bool             `json:"parallel_tool_calls,omitempty"`
}

// Validate checks a definition before registration.
func (d Definition) Validate() error {
	if d.ID == "" {
		return errors.New("agent id is required")
	}
	if d.Name == "" {
		return errors.New("agent name is required")
	}
	if d.Model == "" {
		return errors.New("agent model is required")
	}
	if d.Instructions == "" && d.InstructionsFunc == nil {
		return fmt.Errorf("agent %s needs instructions or an instructions function", d.ID)
	}
	if d.Temperature < 0 || d.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1, got: %f", d.Temperature)
	}
	if d.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative, got: %d", d.MaxTokens)
	}
	return nil
}

// RenderInstructions resolves the effective instructions for a session.
// A dynamic instructions function wins over static text.
func (d Definition) RenderInstructions(sc SessionContext) string {
	if d.InstructionsFunc != nil {
		return d.InstructionsFunc(sc)
	}
	return d.Instructions
}

// CanHandOffTo reports whether target is in this agent's handoff set.
func (d Definition) CanHandOffTo(target string) bool {
	for _, h := range d.Handoffs {
		if h == target {
			return true
		}
	}
	return false
}
