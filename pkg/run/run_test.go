package run

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stingersec/stinger/pkg/agent"
	"github.com/stingersec/stinger/pkg/cost"
	"github.com/stingersec/stinger/pkg/events"
	"github.com/stingersec/stinger/pkg/history"
	"github.com/stingersec/stinger/pkg/inference"
	"github.com/stingersec/stinger/pkg/tool"
)

// scriptedGateway replays a fixed sequence of completions and records every
// request it receives.
type scriptedGateway struct {
	steps    []scriptStep
	requests []inference.Request
}

type scriptStep struct {
	content string
	calls   []history.ToolCall
	err     error
	usage   inference.Usage
}

func (g *scriptedGateway) Provider() string { return "scripted" }

func (g *scriptedGateway) Infer(ctx context.Context, req inference.Request) (*inference.Completion, error) {
	g.requests = append(g.requests, req)

	idx := len(g.requests) - 1
	if idx >= len(g.steps) {
		idx = len(g.steps) - 1
	}
	step := g.steps[idx]

	if step.err != nil {
		return nil, step.err
	}

	usage := step.usage
	if usage == (inference.Usage{}) {
		usage = inference.Usage{InputTokens: 10, OutputTokens: 5}
	}

	return &inference.Completion{
		Message: history.AssistantMessage("", step.content, step.calls),
		Usage:   usage,
	}, nil
}

func (g *scriptedGateway) InferStream(ctx context.Context, req inference.Request) (*inference.Stream, error) {
	ch := make(chan inference.Chunk, 1)
	ch <- inference.Chunk{Done: true}
	close(ch)
	return &inference.Stream{C: ch}, nil
}

type staticProvider struct{ gw inference.Gateway }

func (p staticProvider) ForModel(string) (inference.Gateway, error) { return p.gw, nil }

type fixture struct {
	agents     *agent.Registry
	tools      *tool.Registry
	gateway    *scriptedGateway
	ledger     *cost.Ledger
	emitter    *events.Emitter
	controller *Controller
}

func newFixture(t *testing.T, steps []scriptStep) *fixture {
	t.Helper()

	agents := agent.NewRegistry()
	recon := agent.Definition{
		ID: "recon", Name: "Recon Agent", Model: "gpt-4o",
		Instructions: "You enumerate the target.",
		Tools:        []string{"echo"},
		Handoffs:     []string{"exploit"},
	}
	exploit := agent.Definition{
		ID: "exploit", Name: "Exploit Agent", Model: "gpt-4o",
		Instructions: "You exploit the findings.",
	}
	require.NoError(t, agents.Register(recon))
	require.NoError(t, agents.Register(exploit))

	tools := tool.NewRegistry()
	require.NoError(t, tools.Register(tool.Definition{
		Name:        "echo",
		Description: "Echoes its input.",
		Parameters: []tool.Parameter{
			{Name: "text", Type: "string", Description: "Text to echo", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (tool.Result, error) {
			text, _ := args["text"].(string)
			return tool.Result{Output: text}, nil
		},
	}))

	gateway := &scriptedGateway{steps: steps}
	ledger := cost.NewLedger(cost.DefaultRateTable())
	emitter := events.NewEmitter()

	engine, err := NewEngine(agents, tools, staticProvider{gateway}, ledger, emitter)
	require.NoError(t, err)

	return &fixture{
		agents:     agents,
		tools:      tools,
		gateway:    gateway,
		ledger:     ledger,
		emitter:    emitter,
		controller: NewController(engine, ledger, emitter, nil),
	}
}

func echoCall(id, text string) history.ToolCall {
	return history.ToolCall{ID: id, Name: "echo", Arguments: map[string]interface{}{"text": text}}
}

func TestSingleAgentNoTools(t *testing.T) {
	f := newFixture(t, []scriptStep{
		{content: "Nothing further to do."},
	})
	sess := NewSession("recon", Config{RetryAttempts: 1})

	outcome := f.controller.RunTurn(context.Background(), sess, "scan the host")

	assert.Equal(t, StateDone, outcome.State)
	assert.Equal(t, 1, outcome.Interactions)
	require.Len(t, outcome.Messages, 2)
	assert.Equal(t, history.RoleUser, outcome.Messages[0].Role)
	assert.Equal(t, history.RoleAssistant, outcome.Messages[1].Role)
	assert.Equal(t, "recon", outcome.Messages[1].Sender)
	assert.Equal(t, 2, sess.History.Len())
	assert.Equal(t, StateAwaitingInput, sess.State())
}

func TestToolResultsPrecedeNextInference(t *testing.T) {
	f := newFixture(t, []scriptStep{
		{content: "Running two probes.", calls: []history.ToolCall{
			echoCall("c1", "first"),
			echoCall("c2", "second"),
		}},
		{content: "Both probes done."},
	})
	sess := NewSession("recon", Config{RetryAttempts: 1})

	outcome := f.controller.RunTurn(context.Background(), sess, "probe")

	assert.Equal(t, StateDone, outcome.State)
	assert.Equal(t, 2, outcome.Interactions)

	// user, assistant(+2 calls), tool, tool, assistant
	msgs := sess.History.Messages()
	require.Len(t, msgs, 5)
	assert.Equal(t, history.RoleTool, msgs[2].Role)
	assert.Equal(t, "c1", msgs[2].ToolCallID)
	assert.Equal(t, "first", msgs[2].Content)
	assert.Equal(t, history.RoleTool, msgs[3].Role)
	assert.Equal(t, "c2", msgs[3].ToolCallID)

	// The second inference request must already contain both tool results.
	require.Len(t, f.gateway.requests, 2)
	second := f.gateway.requests[1]
	require.Len(t, second.Messages, 4)
	assert.Equal(t, history.RoleTool, second.Messages[2].Role)
	assert.Equal(t, history.RoleTool, second.Messages[3].Role)
}

func TestHandoffPreservesHistory(t *testing.T) {
	f := newFixture(t, []scriptStep{
		{content: "Escalating.", calls: []history.ToolCall{
			{ID: "c1", Name: "transfer_to_exploit", Arguments: map[string]interface{}{}},
		}},
		{content: "Exploit complete."},
	})
	sess := NewSession("recon", Config{RetryAttempts: 1})

	outcome := f.controller.RunTurn(context.Background(), sess, "go")

	assert.Equal(t, StateDone, outcome.State)
	assert.Equal(t, "exploit", sess.ActiveAgent())

	// user, assistant, tool(handoff result), assistant; the swap itself
	// appended nothing.
	msgs := sess.History.Messages()
	require.Len(t, msgs, 4)
	assert.Contains(t, msgs[2].Content, "Exploit Agent")

	// The next interaction ran with the target agent's instructions over
	// the same transcript.
	require.Len(t, f.gateway.requests, 2)
	assert.Equal(t, "You exploit the findings.", f.gateway.requests[1].Instructions)
	assert.Len(t, f.gateway.requests[1].Messages, 3)

	handoffs := sess.Handoffs()
	require.Len(t, handoffs, 1)
	assert.Equal(t, "recon", handoffs[0].From)
	assert.Equal(t, "exploit", handoffs[0].To)
}

func TestMaxInteractions(t *testing.T) {
	// The agent never stops asking for tools.
	f := newFixture(t, []scriptStep{
		{content: "again", calls: []history.ToolCall{echoCall("c1", "x")}},
	})
	sess := NewSession("recon", Config{MaxInteractions: 3, RetryAttempts: 1})

	outcome := f.controller.RunTurn(context.Background(), sess, "loop")

	assert.Equal(t, StateMaxTurnsExceeded, outcome.State)
	assert.Equal(t, 3, outcome.Interactions)
	assert.Len(t, f.gateway.requests, 3)
}

func TestBudgetCeiling(t *testing.T) {
	// One interaction burns ~$2.50; the ceiling stops the second.
	f := newFixture(t, []scriptStep{
		{content: "expensive", calls: []history.ToolCall{echoCall("c1", "x")},
			usage: inference.Usage{InputTokens: 1_000_000, OutputTokens: 0}},
	})
	sess := NewSession("recon", Config{PriceCeiling: 1.0, RetryAttempts: 1})

	outcome := f.controller.RunTurn(context.Background(), sess, "spend")

	assert.Equal(t, StateBudgetExceeded, outcome.State)
	assert.Len(t, f.gateway.requests, 1)
	assert.Greater(t, outcome.CostDelta, 1.0)
}

func TestCancellationMidTurn(t *testing.T) {
	f := newFixture(t, []scriptStep{
		{content: "working", calls: []history.ToolCall{echoCall("c1", "x")}},
	})
	sess := NewSession("recon", Config{RetryAttempts: 1})

	// Cancel from inside the tool handler: the dispatcher finishes the
	// running call, and the controller observes the flag before the next
	// interaction.
	require.NoError(t, f.tools.Register(tool.Definition{
		Name:        "cancel_self",
		Description: "Cancels the session.",
		Handler: func(ctx context.Context, args map[string]interface{}) (tool.Result, error) {
			sess.Cancel()
			return tool.Result{Output: "cancelled"}, nil
		},
	}))
	f.gateway.steps = []scriptStep{
		{content: "working", calls: []history.ToolCall{
			{ID: "c1", Name: "cancel_self", Arguments: map[string]interface{}{}},
		}},
	}

	// Widen the agent's tool set for this test.
	def, err := f.agents.Get("recon")
	require.NoError(t, err)
	def.Tools = append(def.Tools, "cancel_self")
	agents := agent.NewRegistry()
	require.NoError(t, agents.Register(def))
	exploit, err := f.agents.Get("exploit")
	require.NoError(t, err)
	require.NoError(t, agents.Register(exploit))
	engine, err := NewEngine(agents, f.tools, staticProvider{f.gateway}, f.ledger, f.emitter)
	require.NoError(t, err)
	controller := NewController(engine, f.ledger, f.emitter, nil)

	outcome := controller.RunTurn(context.Background(), sess, "go")

	assert.Equal(t, StateCancelled, outcome.State)
	// user, assistant, tool, all fully committed, nothing half-written.
	assert.Equal(t, 3, sess.History.Len())
	assert.Len(t, f.gateway.requests, 1)
}

func TestInferenceRetry(t *testing.T) {
	t.Run("transient failure then success", func(t *testing.T) {
		f := newFixture(t, []scriptStep{
			{err: errors.New("server overloaded")},
			{content: "recovered"},
		})
		sess := NewSession("recon", Config{RetryAttempts: 3})

		outcome := f.controller.RunTurn(context.Background(), sess, "go")

		assert.Equal(t, StateDone, outcome.State)
		assert.Len(t, f.gateway.requests, 2)
	})

	t.Run("exhausted retries surface as transport error", func(t *testing.T) {
		f := newFixture(t, []scriptStep{
			{err: errors.New("server overloaded")},
		})
		sess := NewSession("recon", Config{RetryAttempts: 2})

		outcome := f.controller.RunTurn(context.Background(), sess, "go")

		assert.Equal(t, StateError, outcome.State)
		assert.ErrorIs(t, outcome.Err, ErrInferenceTransport)
		assert.Len(t, f.gateway.requests, 2)
		// The user prompt stays committed even on error.
		assert.Equal(t, 1, sess.History.Len())
	})

	t.Run("non-retryable failure is not retried", func(t *testing.T) {
		f := newFixture(t, []scriptStep{
			{err: errors.New("invalid api key")},
		})
		sess := NewSession("recon", Config{RetryAttempts: 3})

		outcome := f.controller.RunTurn(context.Background(), sess, "go")

		assert.Equal(t, StateError, outcome.State)
		assert.Len(t, f.gateway.requests, 1)
	})
}

func TestInvalidHandoffTarget(t *testing.T) {
	f := newFixture(t, []scriptStep{
		{content: "escaping", calls: []history.ToolCall{
			{ID: "c1", Name: "rogue_transfer", Arguments: map[string]interface{}{}},
		}},
	})

	// A tool whose result names an unreachable agent.
	require.NoError(t, f.tools.Register(tool.Definition{
		Name:        "rogue_transfer",
		Description: "Hands off to an agent outside the handoff set.",
		Handler: func(ctx context.Context, args map[string]interface{}) (tool.Result, error) {
			return tool.Result{Output: "{}", HandoffTo: "ghost"}, nil
		},
	}))

	def, err := f.agents.Get("recon")
	require.NoError(t, err)
	def.Tools = append(def.Tools, "rogue_transfer")
	agents := agent.NewRegistry()
	require.NoError(t, agents.Register(def))
	exploit, err := f.agents.Get("exploit")
	require.NoError(t, err)
	require.NoError(t, agents.Register(exploit))

	engine, err := NewEngine(agents, f.tools, staticProvider{f.gateway}, f.ledger, f.emitter)
	require.NoError(t, err)
	controller := NewController(engine, f.ledger, f.emitter, nil)

	sess := NewSession("recon", Config{RetryAttempts: 1})
	outcome := controller.RunTurn(context.Background(), sess, "go")

	assert.Equal(t, StateError, outcome.State)
	assert.ErrorIs(t, outcome.Err, ErrInvalidHandoffTarget)
	assert.Equal(t, "recon", sess.ActiveAgent())
}

func TestUnknownToolIsData(t *testing.T) {
	f := newFixture(t, []scriptStep{
		{content: "trying", calls: []history.ToolCall{
			{ID: "c1", Name: "no_such_tool", Arguments: map[string]interface{}{}},
		}},
		{content: "adjusted"},
	})
	sess := NewSession("recon", Config{RetryAttempts: 1})

	outcome := f.controller.RunTurn(context.Background(), sess, "go")

	// The model sees the error payload and self-corrects.
	assert.Equal(t, StateDone, outcome.State)
	msgs := sess.History.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "Error: Tool no_such_tool not found.", msgs[2].Content)
}

func TestTurnEvents(t *testing.T) {
	f := newFixture(t, []scriptStep{
		{content: "working", calls: []history.ToolCall{echoCall("c1", "x")}},
		{content: "done"},
	})

	var types []events.Type
	f.emitter.On(events.Wildcard, func(ev events.Event) {
		types = append(types, ev.Type)
	})

	sess := NewSession("recon", Config{RetryAttempts: 1})
	f.controller.RunTurn(context.Background(), sess, "go")

	assert.Contains(t, types, events.TypeInteractionStarted)
	assert.Contains(t, types, events.TypeToolCallRequested)
	assert.Contains(t, types, events.TypeToolCallCompleted)
	assert.Contains(t, types, events.TypeCostUpdated)
	assert.Equal(t, events.TypeTurnEnded, types[len(types)-1])
}

type staticQuerier struct{ excerpt string }

func (q staticQuerier) Query(ctx context.Context, text string) (string, error) {
	return q.excerpt, nil
}

func TestMemoryInjection(t *testing.T) {
	f := newFixture(t, []scriptStep{
		{content: "with context", calls: []history.ToolCall{echoCall("c1", "x")}},
		{content: "done"},
	})

	engine, err := NewEngine(f.agents, f.tools, staticProvider{f.gateway}, f.ledger, f.emitter)
	require.NoError(t, err)
	controller := NewController(engine, f.ledger, f.emitter, staticQuerier{excerpt: "port 8080 was open last time"})

	sess := NewSession("recon", Config{RetryAttempts: 1})
	controller.RunTurn(context.Background(), sess, "rescan")

	require.Len(t, f.gateway.requests, 2)
	// Injected into the first interaction's instructions only.
	assert.Contains(t, f.gateway.requests[0].Instructions, "port 8080 was open last time")
	assert.NotContains(t, f.gateway.requests[1].Instructions, "port 8080")
}
