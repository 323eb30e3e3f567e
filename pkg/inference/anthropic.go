package inference

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/stingersec/stinger/pkg/history"
)

const anthropicDefaultMaxTokens = 4096

// AnthropicGateway talks to the Anthropic Messages API.
type AnthropicGateway struct {
	client anthropic.Client
}

// NewAnthropicGateway creates a gateway authenticated with the given key.
// Extra options override client defaults, e.g. the base URL.
func NewAnthropicGateway(apiKey string, opts ...option.RequestOption) *AnthropicGateway {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &AnthropicGateway{
		client: anthropic.NewClient(opts...),
	}
}

func (g *AnthropicGateway) Provider() string {
	return "anthropic"
}

func (g *AnthropicGateway) Infer(ctx context.Context, req Request) (*Completion, error) {
	params := g.buildParams(req)

	response, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}

	content := ""
	var toolCalls []history.ToolCall

	for _, block := range response.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			content += b.Text
		case anthropic.ToolUseBlock:
			var args map[string]interface{}
			if err := json.Unmarshal([]byte(b.JSON.Input.Raw()), &args); err != nil {
				return nil, fmt.Errorf("failed to parse tool input: %w", err)
			}
			toolCalls = append(toolCalls, history.ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: args,
			})
		}
	}

	return &Completion{
		Message: history.AssistantMessage("", content, toolCalls),
		Usage: Usage{
			InputTokens:  int(response.Usage.InputTokens),
			OutputTokens: int(response.Usage.OutputTokens),
		},
	}, nil
}

func (g *AnthropicGateway) InferStream(ctx context.Context, req Request) (*Stream, error) {
	params := g.buildParams(req)

	events := g.client.Messages.NewStreaming(ctx, params)

	ch := make(chan Chunk)
	stream := &Stream{C: ch}

	go func() {
		defer close(ch)

		for events.Next() {
			event := events.Current()
			switch e := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if text := e.Delta.Text; text != "" {
					select {
					case ch <- Chunk{Text: text}:
					case <-ctx.Done():
						stream.err = ctx.Err()
						return
					}
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

func (g *AnthropicGateway) buildParams(req Request) anthropic.MessageNewParams {
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))

	for _, msg := range req.Messages {
		switch msg.Role {
		case history.RoleTool:
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))

		case history.RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				blocks := []anthropic.ContentBlockParamUnion{}
				if msg.Content != "" {
					blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
				}
				for _, tc := range msg.ToolCalls {
					blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
				}
				messages = append(messages, anthropic.MessageParam{
					Role:    anthropic.MessageParamRoleAssistant,
					Content: blocks,
				})
				continue
			}
			messages = append(messages, anthropic.MessageParam{
				Role: anthropic.MessageParamRoleAssistant,
				Content: []anthropic.ContentBlockParamUnion{
					anthropic.NewTextBlock(msg.Content),
				},
			})

		case history.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}

	if req.Instructions != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.Instructions},
		}
	}

	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	if len(req.Tools) > 0 {
		tools := make([]anthropic.ToolUnionParam, 0, len(req.Tools))
		for _, schema := range req.Tools {
			toolParam := anthropic.ToolParam{
				Name:        schema.Name,
				Description: anthropic.String(schema.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: schema.InputSchema["properties"],
				},
			}
			if required, ok := schema.InputSchema["required"].([]string); ok {
				toolParam.InputSchema.Required = required
			}
			tools = append(tools, anthropic.ToolUnionParam{OfTool: &toolParam})
		}
		params.Tools = tools
	}

	return params
}
