package inference

import (
	"context"

	"github.com/stingersec/stinger/pkg/history"
	"github.com/stingersec/stinger/pkg/tool"
)

// Request is one model call. Instructions become the system prompt;
// Messages is the transcript so far; Tools is the schema set the model may
// call into.
type Request struct {
	Model        string
	Instructions string
	Messages     []history.Message
	Tools        []tool.Schema
	Temperature  float64
	MaxTokens    int
}

// Usage reports the token footprint of a single completion.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Completion is the model's reply. Message is an assistant message whose
// ToolCalls, when present, the caller must dispatch before the next call.
type Completion struct {
	Message history.Message
	Usage   Usage
}

// Chunk is one streamed text fragment. Done marks the end of the stream;
// a Done chunk carries no text.
type Chunk struct {
	Text string
	Done bool
}

// Stream delivers completion text incrementally. Consume C until a Done
// chunk or channel close, then check Err.
type Stream struct {
	C   <-chan Chunk
	err error
}

// Err returns the error that terminated the stream, if any. Valid only
// after C is drained.
func (s *Stream) Err() error {
	return s.err
}

// Gateway abstracts a model provider. Implementations are stateless and
// safe for concurrent use.
type Gateway interface {
	// Provider names the backing service, e.g. "anthropic" or "openai".
	Provider() string

	// Infer makes exactly one model call.
	Infer(ctx context.Context, req Request) (*Completion, error)

	// InferStream makes one model call and streams the text back. Tool
	// calls are not surfaced on streams; use Infer for tool-bearing
	// interactions.
	InferStream(ctx context.Context, req Request) (*Stream, error)
}
