package run

import "github.com/stingersec/stinger/pkg/history"

// TurnState is the session state machine. A turn moves through the working
// states and always lands on exactly one terminal state.
type TurnState string

const (
	StateAwaitingInput    TurnState = "AWAITING_INPUT"
	StateInferring        TurnState = "INFERRING"
	StateExecutingTools   TurnState = "EXECUTING_TOOLS"
	StateHandingOff       TurnState = "HANDING_OFF"
	StateDone             TurnState = "DONE"
	StateCancelled        TurnState = "CANCELLED"
	StateBudgetExceeded   TurnState = "BUDGET_EXCEEDED"
	StateMaxTurnsExceeded TurnState = "MAX_TURNS_EXCEEDED"
	StateError            TurnState = "ERROR"
)

// Terminal reports whether the state ends a turn.
func (s TurnState) Terminal() bool {
	switch s {
	case StateDone, StateCancelled, StateBudgetExceeded, StateMaxTurnsExceeded, StateError:
		return true
	default:
		return false
	}
}

// OutcomeKind tags what one interaction resolved to.
type OutcomeKind int

const (
	// OutcomeTerminal: the agent produced a plain reply with no tool
	// calls and no handoff. The turn is complete.
	OutcomeTerminal OutcomeKind = iota

	// OutcomeToolCalls: tools ran and their results are in History. The
	// same agent reasons again next interaction.
	OutcomeToolCalls

	// OutcomeHandoff: control moved to NextAgent. History is untouched
	// by the swap itself.
	OutcomeHandoff
)

// InteractionOutcome is the tagged result of one reasoning+act cycle.
type InteractionOutcome struct {
	Kind      OutcomeKind
	NextAgent string
	Calls     []history.ToolCall
}

// TurnOutcome reports how a turn ended. Messages holds only what this turn
// appended; the full transcript stays on the session.
type TurnOutcome struct {
	State        TurnState
	Messages     []history.Message
	CostDelta    float64
	Interactions int
	Err          error
}
