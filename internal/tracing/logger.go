package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// LoggerFromContext returns the base logger annotated with whatever trace
// identifiers the context carries.
func LoggerFromContext(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)

	logger := base
	if tc.TraceID != "" {
		logger = logger.With().Str("trace_id", tc.TraceID).Logger()
	}
	if tc.SessionID != "" {
		logger = logger.With().Str("session_id", tc.SessionID).Logger()
	}
	if tc.TurnID != "" {
		logger = logger.With().Str("turn_id", tc.TurnID).Logger()
	}
	if tc.AgentID != "" {
		logger = logger.With().Str("agent_id", tc.AgentID).Logger()
	}
	return logger
}
