package history

import (
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a single tool invocation requested by an assistant message.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// Message is one conversation entry. Tool result messages carry the
// ToolCallID of the call they answer.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Sender     string     `json:"sender,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// NewToolCallID generates a short unique id for a tool call.
func NewToolCallID() string {
	id, err := gonanoid.New(12)
	if err != nil {
		// nanoid only fails when the system RNG does
		return "call_fallback"
	}
	return "call_" + id
}

// UserMessage builds a user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content, Timestamp: time.Now()}
}

// AssistantMessage builds an assistant message attributed to an agent.
func AssistantMessage(sender, content string, calls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, Sender: sender, ToolCalls: calls, Timestamp: time.Now()}
}

// ToolMessage builds a tool result message answering a specific call.
func ToolMessage(callID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID, Timestamp: time.Now()}
}

// History is the ordered, append-only conversation of one session.
//
// A History is exclusively owned by the session task that mutates it; it is
// never shared across sessions, so it carries no lock. The only permitted
// mutations are Append and Rollback to a previously taken Checkpoint.
type History struct {
	messages []Message
}

// New creates an empty history.
func New() *History {
	return &History{}
}

// From creates a history seeded with existing messages.
func From(messages []Message) *History {
	h := &History{messages: make([]Message, len(messages))}
	copy(h.messages, messages)
	return h
}

// Append adds messages at the end, stamping any zero timestamps.
func (h *History) Append(msgs ...Message) {
	for _, m := range msgs {
		if m.Timestamp.IsZero() {
			m.Timestamp = time.Now()
		}
		h.messages = append(h.messages, m)
	}
}

// Len returns the number of committed messages.
func (h *History) Len() int {
	return len(h.messages)
}

// Messages returns a copy of all committed messages.
func (h *History) Messages() []Message {
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Since returns a copy of the messages appended at or after index n.
func (h *History) Since(n int) []Message {
	if n < 0 {
		n = 0
	}
	if n > len(h.messages) {
		n = len(h.messages)
	}
	out := make([]Message, len(h.messages)-n)
	copy(out, h.messages[n:])
	return out
}

// Last returns the most recent message, if any.
func (h *History) Last() (Message, bool) {
	if len(h.messages) == 0 {
		return Message{}, false
	}
	return h.messages[len(h.messages)-1], true
}

// Checkpoint marks the current committed length for a later Rollback.
func (h *History) Checkpoint() int {
	return len(h.messages)
}

// Rollback truncates the history back to a checkpoint taken earlier.
// Checkpoints beyond the current length are ignored; history never grows
// through Rollback.
func (h *History) Rollback(cp int) {
	if cp < 0 {
		cp = 0
	}
	if cp < len(h.messages) {
		h.messages = h.messages[:cp]
	}
}
