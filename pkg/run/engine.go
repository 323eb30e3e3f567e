package run

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/stingersec/stinger/internal/observability"
	"github.com/stingersec/stinger/internal/tracing"
	"github.com/stingersec/stinger/pkg/agent"
	"github.com/stingersec/stinger/pkg/events"
	"github.com/stingersec/stinger/pkg/inference"
	"github.com/stingersec/stinger/pkg/tool"
)

const (
	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 8 * time.Second
)

// GatewayProvider resolves the gateway serving a model.
type GatewayProvider interface {
	ForModel(model string) (inference.Gateway, error)
}

// UsageRecorder prices token usage. Satisfied by cost.Ledger.
type UsageRecorder interface {
	Record(sessionID, model string, inputTokens, outputTokens int) float64
}

// Engine drives one reasoning+act cycle: one inference, its tool dispatch,
// and a possible agent handoff.
type Engine struct {
	agents     *agent.Registry
	tools      *tool.Registry
	dispatcher *tool.Dispatcher
	gateways   GatewayProvider
	ledger     UsageRecorder
	emitter    *events.Emitter
}

// NewEngine wires an engine over its collaborators and registers a handoff
// tool for every agent that appears as someone's handoff target.
func NewEngine(agents *agent.Registry, tools *tool.Registry, gateways GatewayProvider, ledger UsageRecorder, emitter *events.Emitter) (*Engine, error) {
	if err := registerHandoffTools(agents, tools); err != nil {
		return nil, err
	}

	return &Engine{
		agents:     agents,
		tools:      tools,
		dispatcher: tool.NewDispatcher(tools),
		gateways:   gateways,
		ledger:     ledger,
		emitter:    emitter,
	}, nil
}

// registerHandoffTools adds transfer_to_<id> for each distinct handoff
// target across the registry. Already-registered ones are left alone so
// engines can be rebuilt over a shared tool registry.
func registerHandoffTools(agents *agent.Registry, tools *tool.Registry) error {
	seen := map[string]bool{}
	for _, def := range agents.List() {
		for _, target := range def.Handoffs {
			if seen[target] {
				continue
			}
			seen[target] = true

			targetDef, err := agents.Get(target)
			if err != nil {
				return fmt.Errorf("handoff target %s: %w", target, err)
			}
			handoff := tool.Handoff(targetDef.ID, targetDef.Name)
			if tools.Get(handoff.Name) != nil {
				continue
			}
			if err := tools.Register(handoff); err != nil {
				return err
			}
		}
	}
	return nil
}

// RunInteraction performs exactly one inference for the session's active
// agent, dispatches any requested tool calls, and resolves a handoff if one
// of the results carries one. extraContext, when non-empty, is appended to
// the agent's instructions for this interaction only (memory injection).
func (e *Engine) RunInteraction(ctx context.Context, sess *Session, extraContext string) (InteractionOutcome, error) {
	start := time.Now()

	ctx, span := tracing.StartSpan(
		ctx,
		"stinger.run",
		"run.interaction",
		attribute.String("session_id", sess.ID),
		attribute.String("agent_id", sess.ActiveAgent()),
	)
	defer span.End()
	ctx = tracing.WithAgentID(ctx, sess.ActiveAgent())

	def, err := e.agents.Get(sess.ActiveAgent())
	if err != nil {
		return InteractionOutcome{}, fmt.Errorf("active agent: %w", err)
	}

	schemas, err := e.schemasFor(def)
	if err != nil {
		return InteractionOutcome{}, err
	}

	model := def.Model
	if sess.Config.Model != "" {
		model = sess.Config.Model
	}

	gateway, err := e.gateways.ForModel(model)
	if err != nil {
		return InteractionOutcome{}, err
	}

	instructions := def.RenderInstructions(agent.SessionContext{
		SessionID: sess.ID,
		Turn:      sess.Turns(),
	})
	if extraContext != "" {
		instructions = instructions + "\n\n" + extraContext
	}

	sess.setState(StateInferring)

	completion, err := e.inferWithRetry(ctx, gateway, inference.Request{
		Model:        model,
		Instructions: instructions,
		Messages:     sess.History.Messages(),
		Tools:        schemas,
		Temperature:  def.Temperature,
		MaxTokens:    def.MaxTokens,
	}, sess.Config.RetryAttempts)
	if err != nil {
		return InteractionOutcome{}, err
	}

	usd := e.ledger.Record(sess.ID, model, completion.Usage.InputTokens, completion.Usage.OutputTokens)
	e.emitter.Emit(events.Event{
		Type:      events.TypeCostUpdated,
		SessionID: sess.ID,
		AgentID:   def.ID,
		Payload: map[string]interface{}{
			"usd":           usd,
			"input_tokens":  completion.Usage.InputTokens,
			"output_tokens": completion.Usage.OutputTokens,
		},
	})

	assistant := completion.Message
	assistant.Sender = def.ID
	sess.History.Append(assistant)

	defer func() {
		observability.RecordInteraction(def.ID, time.Since(start))
	}()

	if len(assistant.ToolCalls) == 0 {
		return InteractionOutcome{Kind: OutcomeTerminal}, nil
	}

	sess.setState(StateExecutingTools)
	for _, call := range assistant.ToolCalls {
		e.emitter.Emit(events.Event{
			Type:      events.TypeToolCallRequested,
			SessionID: sess.ID,
			AgentID:   def.ID,
			Payload:   map[string]interface{}{"tool": call.Name, "call_id": call.ID},
		})
	}

	dispatched := e.dispatcher.Dispatch(ctx, assistant.ToolCalls, sess.Cancelled)
	for _, msg := range dispatched.Messages {
		sess.History.Append(msg)
		e.emitter.Emit(events.Event{
			Type:      events.TypeToolCallCompleted,
			SessionID: sess.ID,
			AgentID:   def.ID,
			Payload:   map[string]interface{}{"call_id": msg.ToolCallID},
		})
	}

	if dispatched.Handoff != "" {
		return e.resolveHandoff(sess, def, dispatched.Handoff)
	}

	return InteractionOutcome{Kind: OutcomeToolCalls, Calls: assistant.ToolCalls}, nil
}

// resolveHandoff swaps the active agent. The swap happens after every tool
// result of the interaction is already in History, and appends nothing
// itself.
func (e *Engine) resolveHandoff(sess *Session, from agent.Definition, target string) (InteractionOutcome, error) {
	if !from.CanHandOffTo(target) || !e.agents.Exists(target) {
		return InteractionOutcome{}, fmt.Errorf("%w: %s -> %s", ErrInvalidHandoffTarget, from.ID, target)
	}

	sess.setState(StateHandingOff)
	sess.setActiveAgent(target, sess.Turns())

	observability.RecordHandoff(from.ID, target)
	e.emitter.Emit(events.Event{
		Type:      events.TypeHandoffOccurred,
		SessionID: sess.ID,
		AgentID:   target,
		Payload:   map[string]interface{}{"from": from.ID, "to": target},
	})

	log.Info().
		Str("session_id", sess.ID).
		Str("from", from.ID).
		Str("to", target).
		Msg("Agent handoff")

	return InteractionOutcome{Kind: OutcomeHandoff, NextAgent: target}, nil
}

// schemasFor builds the tool schema set the agent may call: its registered
// tools plus one handoff tool per reachable agent.
func (e *Engine) schemasFor(def agent.Definition) ([]tool.Schema, error) {
	names := make([]string, 0, len(def.Tools)+len(def.Handoffs))
	names = append(names, def.Tools...)
	for _, target := range def.Handoffs {
		names = append(names, tool.HandoffPrefix+target)
	}
	return e.tools.Schemas(names)
}

// inferWithRetry calls the gateway with bounded exponential backoff on
// retryable failures. attempts caps total tries; values below 1 mean a
// single try.
func (e *Engine) inferWithRetry(ctx context.Context, gateway inference.Gateway, req inference.Request, attempts int) (*inference.Completion, error) {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	delay := retryBaseDelay

	for attempt := 1; attempt <= attempts; attempt++ {
		start := time.Now()
		completion, err := gateway.Infer(ctx, req)
		observability.RecordInference(gateway.Provider(), time.Since(start), err == nil)
		if err == nil {
			return completion, nil
		}
		lastErr = err

		if !inference.IsRetryable(err) || attempt == attempts {
			break
		}

		observability.RecordInferenceRetry(gateway.Provider())
		logger := tracing.LoggerFromContext(ctx, log.Logger)
		logger.Warn().
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Dur("backoff", delay).
			Err(err).
			Msg("Inference failed, retrying")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		delay *= 2
		if delay > retryMaxDelay {
			delay = retryMaxDelay
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrInferenceTransport, lastErr)
}
