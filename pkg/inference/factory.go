package inference

import (
	"fmt"
	"strings"
	"sync"
)

// Credentials holds the provider API keys available to the factory. An
// empty key disables that provider.
type Credentials struct {
	AnthropicAPIKey string
	OpenAIAPIKey    string
}

// Factory hands out gateways keyed by model name. Gateways are built
// lazily and shared across sessions.
type Factory struct {
	creds Credentials

	mu        sync.Mutex
	anthropic *AnthropicGateway
	openai    *OpenAIGateway
}

// NewFactory creates a factory over the given credentials.
func NewFactory(creds Credentials) *Factory {
	return &Factory{creds: creds}
}

// ForModel returns the gateway serving the given model. Claude models route
// to Anthropic, everything else to OpenAI.
func (f *Factory) ForModel(model string) (Gateway, error) {
	if model == "" {
		return nil, fmt.Errorf("model cannot be empty")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if strings.HasPrefix(model, "claude") {
		if f.creds.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("no anthropic credentials configured for model %s", model)
		}
		if f.anthropic == nil {
			f.anthropic = NewAnthropicGateway(f.creds.AnthropicAPIKey)
		}
		return f.anthropic, nil
	}

	if f.creds.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("no openai credentials configured for model %s", model)
	}
	if f.openai == nil {
		f.openai = NewOpenAIGateway(f.creds.OpenAIAPIKey)
	}
	return f.openai, nil
}
