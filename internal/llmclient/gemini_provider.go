package llmclient

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider wraps Google's genai SDK. Kept alongside the Anthropic and
// OpenAI adapters so plan_review/task_check can be routed to a third vendor
// without touching engine code — only the code that builds Client, which in
// cmd/planengine wires Anthropic only.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiProvider{client: client, model: model}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Complete(ctx context.Context, req Request) (string, error) {
	model := p.model
	if req.Model != "" {
		model = req.Model
	}
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	resp, err := p.client.Models.GenerateContent(ctx, model, genai.Text(req.User), config)
	if err != nil {
		return "", fmt.Errorf("gemini completion: %w", err)
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", &RefusalError{Provider: p.Name(), Reason: string(resp.Candidates[0].FinishReason)}
	}
	return resp.Text(), nil
}
