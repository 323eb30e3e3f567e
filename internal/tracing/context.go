package tracing

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	traceIDKey   contextKey = "trace_id"
	sessionIDKey contextKey = "session_id"
	turnIDKey    contextKey = "turn_id"
	agentIDKey   contextKey = "agent_id"
)

// TraceContext bundles the identifiers a log line or span should carry.
type TraceContext struct {
	TraceID   string
	SessionID string
	TurnID    string
	AgentID   string
}

// NewTraceID generates a fresh trace ID.
func NewTraceID() string {
	return uuid.New().String()
}

// NewTurnID generates a fresh turn ID.
func NewTurnID() string {
	return uuid.New().String()
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

func WithTurnID(ctx context.Context, turnID string) context.Context {
	return context.WithValue(ctx, turnIDKey, turnID)
}

func WithAgentID(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, agentIDKey, agentID)
}

func GetTraceID(ctx context.Context) string {
	return stringValue(ctx, traceIDKey)
}

func GetSessionID(ctx context.Context) string {
	return stringValue(ctx, sessionIDKey)
}

func GetTurnID(ctx context.Context) string {
	return stringValue(ctx, turnIDKey)
}

func GetAgentID(ctx context.Context) string {
	return stringValue(ctx, agentIDKey)
}

// FromContext collects all trace identifiers present in the context.
func FromContext(ctx context.Context) TraceContext {
	return TraceContext{
		TraceID:   GetTraceID(ctx),
		SessionID: GetSessionID(ctx),
		TurnID:    GetTurnID(ctx),
		AgentID:   GetAgentID(ctx),
	}
}

// PropagateToAgent derives a context for an agent taking over a session. The
// trace ID is preserved; the agent ID is replaced.
func PropagateToAgent(ctx context.Context, agentID string) context.Context {
	if GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, NewTraceID())
	}
	return WithAgentID(ctx, agentID)
}

func stringValue(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
