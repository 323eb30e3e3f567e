package tool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stingersec/stinger/internal/observability"
	"github.com/stingersec/stinger/pkg/history"
)

const (
	// DefaultToolTimeout bounds a single tool execution unless the
	// definition sets its own timeout.
	DefaultToolTimeout = 30 * time.Second

	// maxOutputSize caps tool output folded into the transcript.
	maxOutputSize = 10 * 1024
)

// CancelCheck reports whether the session has been asked to stop. The
// dispatcher consults it between tool calls, never mid-call.
type CancelCheck func() bool

// DispatchResult carries the tool messages to fold into the transcript, in
// the same order the model requested the calls. Handoff holds the target
// agent of the last handoff result seen, if any. Partial is set when
// cancellation stopped the batch before every call ran.
type DispatchResult struct {
	Messages []history.Message
	Handoff  string
	Partial  bool
}

// Dispatcher executes the tool calls of one inference step against a
// registry.
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher creates a dispatcher backed by the given registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Dispatch runs the calls and returns one tool message per call, folded in
// request order. Tools registered Concurrent run as a batch when they are
// adjacent in the request; everything else runs sequentially so
// order-dependent side effects such as shell state stay coherent.
//
// Execution failures are data: an unknown tool, a validation failure, or a
// handler error each produce an error-payload tool message and the batch
// continues. Only cancellation stops the batch early.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []history.ToolCall, cancelled CancelCheck) DispatchResult {
	result := DispatchResult{
		Messages: make([]history.Message, 0, len(calls)),
	}

	i := 0
	for i < len(calls) {
		if cancelled != nil && cancelled() {
			result.Partial = true
			log.Info().
				Int("completed", len(result.Messages)).
				Int("requested", len(calls)).
				Msg("Tool dispatch stopped by cancellation")
			return result
		}

		batch := d.concurrentBatch(calls[i:])
		if len(batch) > 1 {
			for _, res := range d.executeParallel(ctx, batch) {
				d.fold(&result, res)
			}
			i += len(batch)
			continue
		}

		d.fold(&result, d.executeOne(ctx, calls[i]))
		i++
	}

	return result
}

// concurrentBatch returns the longest prefix of calls whose tools are all
// registered Concurrent. A batch of one means sequential execution.
func (d *Dispatcher) concurrentBatch(calls []history.ToolCall) []history.ToolCall {
	n := 0
	for _, call := range calls {
		def := d.registry.Get(call.Name)
		if def == nil || !def.Concurrent {
			break
		}
		n++
	}
	if n < 2 {
		return calls[:1]
	}
	return calls[:n]
}

// executeParallel runs a batch of concurrent-safe calls and returns results
// indexed by request position, regardless of completion order.
func (d *Dispatcher) executeParallel(ctx context.Context, batch []history.ToolCall) []Result {
	results := make([]Result, len(batch))

	var wg sync.WaitGroup
	for idx, call := range batch {
		wg.Add(1)
		go func(idx int, call history.ToolCall) {
			defer wg.Done()
			results[idx] = d.executeOne(ctx, call)
		}(idx, call)
	}
	wg.Wait()

	return results
}

// fold appends the tool message for one result and records a handoff if the
// result carries one. When several handoffs occur in one step the last one
// wins.
func (d *Dispatcher) fold(dr *DispatchResult, res Result) {
	dr.Messages = append(dr.Messages, history.ToolMessage(res.callID, res.Output))
	if res.HandoffTo != "" {
		dr.Handoff = res.HandoffTo
	}
}

// executeOne resolves, validates, and runs a single tool call. It always
// returns a Result whose Output is safe to fold into the transcript.
func (d *Dispatcher) executeOne(ctx context.Context, call history.ToolCall) Result {
	start := time.Now()

	def := d.registry.Get(call.Name)
	if def == nil {
		log.Warn().Str("tool", call.Name).Msg("Model requested unknown tool")
		observability.RecordToolExecution(call.Name, time.Since(start), false)
		return Result{
			callID: call.ID,
			Output: fmt.Sprintf("Error: Tool %s not found.", call.Name),
		}
	}

	if err := d.registry.ValidateArgs(call.Name, call.Arguments); err != nil {
		log.Warn().Str("tool", call.Name).Err(err).Msg("Tool argument validation failed")
		observability.RecordToolExecution(call.Name, time.Since(start), false)
		return Result{
			callID: call.ID,
			Output: fmt.Sprintf("Error: invalid arguments for %s: %v", call.Name, err),
		}
	}

	timeout := DefaultToolTimeout
	if def.Timeout > 0 {
		timeout = def.Timeout
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Debug().Str("tool", call.Name).Str("call_id", call.ID).Msg("Executing tool")

	resultChan := make(chan Result, 1)
	errChan := make(chan error, 1)

	go func() {
		res, err := def.Handler(timeoutCtx, call.Arguments)
		if err != nil {
			errChan <- err
			return
		}
		resultChan <- res
	}()

	select {
	case res := <-resultChan:
		duration := time.Since(start)
		res.callID = call.ID
		res.Output = truncateOutput(res.Output)
		observability.RecordToolExecution(call.Name, duration, true)
		log.Debug().
			Str("tool", call.Name).
			Dur("duration", duration).
			Msg("Tool execution completed")
		return res

	case err := <-errChan:
		duration := time.Since(start)
		observability.RecordToolExecution(call.Name, duration, false)
		log.Error().
			Str("tool", call.Name).
			Dur("duration", duration).
			Err(err).
			Msg("Tool execution failed")
		return Result{
			callID: call.ID,
			Output: fmt.Sprintf("Error executing %s: %v", call.Name, err),
		}

	case <-timeoutCtx.Done():
		duration := time.Since(start)
		observability.RecordToolExecution(call.Name, duration, false)
		log.Error().
			Str("tool", call.Name).
			Dur("duration", duration).
			Msg("Tool execution timeout")
		return Result{
			callID: call.ID,
			Output: fmt.Sprintf("Error: %s timed out after %v", call.Name, timeout),
		}
	}
}

func truncateOutput(output string) string {
	if len(output) <= maxOutputSize {
		return output
	}
	log.Warn().
		Int("original", len(output)).
		Int("limit", maxOutputSize).
		Msg("Tool output truncated")
	return output[:maxOutputSize] + "\n... [output truncated]"
}
