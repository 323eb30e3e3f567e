package run

import "errors"

var (
	// ErrUnknownTool marks a model-requested tool missing from the
	// registry. The dispatcher folds it into the transcript as data; the
	// sentinel exists for callers inspecting tool error payloads.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidHandoffTarget marks a handoff to an agent the active
	// agent may not reach, or that does not exist. Fatal to the
	// interaction.
	ErrInvalidHandoffTarget = errors.New("invalid handoff target")

	// ErrInferenceTransport marks an inference failure that survived the
	// retry budget. Fatal to the interaction.
	ErrInferenceTransport = errors.New("inference transport failure")
)
