package llmclient

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIProvider is an alternate backend for either agent role — the engine
// doesn't care which vendor a role's Provider wraps (§4.11 treats transport
// as opaque). No config key selects it; cmd/planengine wires Anthropic only.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	return &OpenAIProvider{client: openai.NewClient(option.WithAPIKey(apiKey)), model: model}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (string, error) {
	model := p.model
	if req.Model != "" {
		model = req.Model
	}
	messages := []openai.ChatCompletionMessageParamUnion{}
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.User))

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai completion: no choices returned")
	}
	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return "", &RefusalError{Provider: p.Name(), Reason: choice.FinishReason}
	}
	return choice.Message.Content, nil
}
