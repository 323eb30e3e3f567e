package run

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/stingersec/stinger/internal/observability"
	"github.com/stingersec/stinger/internal/tracing"
	"github.com/stingersec/stinger/pkg/events"
	"github.com/stingersec/stinger/pkg/history"
)

// Querier is an optional retrieval backend. A returned excerpt is injected
// into the active agent's instructions for the first interaction of a turn.
type Querier interface {
	Query(ctx context.Context, text string) (string, error)
}

// BudgetChecker decides whether a session's spend has hit its ceiling.
// Satisfied by cost.Ledger.
type BudgetChecker interface {
	Exceeded(sessionID string, ceiling float64) bool
	SessionUSD(sessionID string) float64
}

// Controller repeats interactions until the active agent signals
// completion or a limit or cancellation fires.
type Controller struct {
	engine  *Engine
	budget  BudgetChecker
	emitter *events.Emitter
	memory  Querier
}

// NewController builds a turn controller. memory may be nil.
func NewController(engine *Engine, budget BudgetChecker, emitter *events.Emitter, memory Querier) *Controller {
	return &Controller{
		engine:  engine,
		budget:  budget,
		emitter: emitter,
		memory:  memory,
	}
}

// RunTurn appends the user prompt and drives interactions to a terminal
// state. Every terminal state carries the messages committed during the
// turn; an ERROR outcome additionally carries the cause in Err.
func (c *Controller) RunTurn(ctx context.Context, sess *Session, prompt string) TurnOutcome {
	turnID := tracing.NewTurnID()
	ctx = tracing.WithSessionID(ctx, sess.ID)
	ctx = tracing.WithTurnID(ctx, turnID)

	ctx, span := tracing.StartSpan(
		ctx,
		"stinger.run",
		"run.turn",
		attribute.String("session_id", sess.ID),
		attribute.String("turn_id", turnID),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, log.Logger)

	sess.clearCancel()
	sess.turns++
	checkpoint := sess.History.Checkpoint()
	usdBefore := c.budget.SessionUSD(sess.ID)

	sess.History.Append(history.UserMessage(prompt))

	extraContext := c.recallContext(ctx, prompt, logger)

	interactions := 0
	for {
		if state, stop := c.checkLimits(sess, interactions); stop {
			return c.finish(sess, checkpoint, usdBefore, interactions, state, nil, logger)
		}

		c.emitter.Emit(events.Event{
			Type:      events.TypeInteractionStarted,
			SessionID: sess.ID,
			AgentID:   sess.ActiveAgent(),
			Payload:   map[string]interface{}{"interaction": interactions},
		})

		outcome, err := c.engine.RunInteraction(ctx, sess, extraContext)
		extraContext = ""
		interactions++

		if err != nil {
			return c.finish(sess, checkpoint, usdBefore, interactions, StateError, err, logger)
		}

		if outcome.Kind == OutcomeTerminal {
			return c.finish(sess, checkpoint, usdBefore, interactions, StateDone, nil, logger)
		}
	}
}

// checkLimits applies the pre-interaction safety checks in precedence
// order: cancellation, then budget, then the interaction cap.
func (c *Controller) checkLimits(sess *Session, interactions int) (TurnState, bool) {
	if sess.Cancelled() {
		return StateCancelled, true
	}
	if c.budget.Exceeded(sess.ID, sess.Config.PriceCeiling) {
		return StateBudgetExceeded, true
	}
	if sess.Config.MaxInteractions > 0 && interactions >= sess.Config.MaxInteractions {
		return StateMaxTurnsExceeded, true
	}
	return "", false
}

// recallContext asks the retrieval backend for prior-conversation context.
// Retrieval failure is logged and skipped, never fatal to the turn.
func (c *Controller) recallContext(ctx context.Context, prompt string, logger zerolog.Logger) string {
	if c.memory == nil {
		return ""
	}

	excerpt, err := c.memory.Query(ctx, prompt)
	if err != nil {
		logger.Warn().Err(err).Msg("Memory recall failed, continuing without context")
		return ""
	}
	if excerpt == "" {
		return ""
	}
	return "Relevant context from previous sessions:\n" + excerpt
}

func (c *Controller) finish(sess *Session, checkpoint int, usdBefore float64, interactions int, state TurnState, cause error, logger zerolog.Logger) TurnOutcome {
	sess.setState(state)

	outcome := TurnOutcome{
		State:        state,
		Messages:     sess.History.Since(checkpoint),
		CostDelta:    c.budget.SessionUSD(sess.ID) - usdBefore,
		Interactions: interactions,
		Err:          cause,
	}

	observability.RecordTurn(string(state))
	c.emitter.Emit(events.Event{
		Type:      events.TypeTurnEnded,
		SessionID: sess.ID,
		AgentID:   sess.ActiveAgent(),
		Payload: map[string]interface{}{
			"state":        string(state),
			"interactions": interactions,
			"cost_delta":   outcome.CostDelta,
		},
	})

	evt := logger.Info()
	if cause != nil {
		evt = logger.Error().Err(cause)
	}
	evt.
		Str("state", string(state)).
		Int("interactions", interactions).
		Float64("cost_delta", outcome.CostDelta).
		Msg("Turn ended")

	sess.setState(StateAwaitingInput)
	return outcome
}
