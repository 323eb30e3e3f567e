package inference

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/stingersec/stinger/pkg/history"
)

// OpenAIGateway talks to the OpenAI Chat Completions API.
type OpenAIGateway struct {
	client openai.Client
}

// NewOpenAIGateway creates a gateway authenticated with the given key.
// Extra options override client defaults, e.g. the base URL.
func NewOpenAIGateway(apiKey string, opts ...option.RequestOption) *OpenAIGateway {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAIGateway{
		client: openai.NewClient(opts...),
	}
}

func (g *OpenAIGateway) Provider() string {
	return "openai"
}

func (g *OpenAIGateway) Infer(ctx context.Context, req Request) (*Completion, error) {
	params, err := g.buildParams(req)
	if err != nil {
		return nil, err
	}

	response, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}

	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}
	choice := response.Choices[0]

	var toolCalls []history.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]interface{}
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			return nil, fmt.Errorf("failed to parse tool arguments: %w", err)
		}
		toolCalls = append(toolCalls, history.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	return &Completion{
		Message: history.AssistantMessage("", choice.Message.Content, toolCalls),
		Usage: Usage{
			InputTokens:  int(response.Usage.PromptTokens),
			OutputTokens: int(response.Usage.CompletionTokens),
		},
	}, nil
}

func (g *OpenAIGateway) InferStream(ctx context.Context, req Request) (*Stream, error) {
	params, err := g.buildParams(req)
	if err != nil {
		return nil, err
	}

	events := g.client.Chat.Completions.NewStreaming(ctx, params)

	ch := make(chan Chunk)
	stream := &Stream{C: ch}

	go func() {
		defer close(ch)

		for events.Next() {
			chunk := events.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if text := chunk.Choices[0].Delta.Content; text != "" {
				select {
				case ch <- Chunk{Text: text}:
				case <-ctx.Done():
					stream.err = ctx.Err()
					return
				}
			}
		}

		if err := events.Err(); err != nil {
			stream.err = err
			return
		}
		if err := ctx.Err(); err != nil {
			stream.err = err
			return
		}

		select {
		case ch <- Chunk{Done: true}:
		case <-ctx.Done():
			stream.err = ctx.Err()
		}
	}()

	return stream, nil
}

func (g *OpenAIGateway) buildParams(req Request) (openai.ChatCompletionNewParams, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}

	if req.Instructions != "" {
		messages = append(messages, openai.SystemMessage(req.Instructions))
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case history.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))

		case history.RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				toolCalls := make([]openai.ChatCompletionMessageToolCall, 0, len(msg.ToolCalls))
				for _, tc := range msg.ToolCalls {
					argsJSON, err := json.Marshal(tc.Arguments)
					if err != nil {
						return openai.ChatCompletionNewParams{}, fmt.Errorf("failed to marshal tool arguments: %w", err)
					}
					toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCall{
						ID:   tc.ID,
						Type: "function",
						Function: openai.ChatCompletionMessageToolCallFunction{
							Name:      tc.Name,
							Arguments: string(argsJSON),
						},
					})
				}
				assistantMsg := openai.ChatCompletionMessage{
					Role:      "assistant",
					Content:   msg.Content,
					ToolCalls: toolCalls,
				}
				messages = append(messages, assistantMsg.ToParam())
				continue
			}
			messages = append(messages, openai.AssistantMessage(msg.Content))

		case history.RoleTool:
			messages = append(messages, openai.ToolMessage(msg.ToolCallID, msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}

	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, 0, len(req.Tools))
		for _, schema := range req.Tools {
			tools = append(tools, openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        schema.Name,
					Description: openai.String(schema.Description),
					Parameters:  openai.FunctionParameters(schema.InputSchema),
				},
			})
		}
		params.Tools = tools
	}

	return params, nil
}
