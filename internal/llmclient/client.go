package llmclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dagrunner/planengine/internal/contracts"
	"github.com/dagrunner/planengine/internal/metrics"
	"github.com/dagrunner/planengine/internal/model"
	"github.com/dagrunner/planengine/internal/store"
	"github.com/dagrunner/planengine/internal/tokenizer"
)

// Client drives one LM exchange end to end: truncate-and-send, extract JSON
// from prose, run the caller's normalize/validate pair, and persist exactly
// one LlmCall row whether the exchange succeeded or not (§4.11).
type Client struct {
	store            *store.Store
	providers        map[model.Agent]Provider
	logger           *zap.Logger
	metrics          *metrics.Collector
	tokens           *tokenizer.Estimator
	maxPromptChars   int
	maxResponseChars int
	now              func() time.Time
}

// New builds a Client. providers maps each driven agent (xiaobo, xiaojing)
// to the backend that serves it; callers may point both at the same
// Provider instance if they share a model. met may be nil, in which case
// Call records no metrics.
func New(s *store.Store, providers map[model.Agent]Provider, maxPromptChars, maxResponseChars int, logger *zap.Logger, met *metrics.Collector) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		store:            s,
		providers:        providers,
		logger:           logger,
		metrics:          met,
		tokens:           tokenizer.NewEstimator("cl100k_base"),
		maxPromptChars:   maxPromptChars,
		maxResponseChars: maxResponseChars,
		now:              time.Now,
	}
}

// CallParams is one request to an LM agent. Normalize and Validate are the
// contracts-package pair for whatever schema the caller expects back
// (NormalizeXiaoboAction+ValidateXiaoboAction, or the review equivalents);
// Client runs them after extracting JSON from the raw response so the
// persisted LlmCall row carries both the parsed and normalized shapes.
type CallParams struct {
	PlanID        *string
	TaskID        *string
	Agent         model.Agent
	Scope         model.Scope
	Model         string
	SystemPrompt  string
	UserPrompt    string
	Timeout       time.Duration
	Attempt       int
	ReviewAttempt int
	RetryReason   string
	Normalize     func(map[string]any) map[string]any
	Validate      func(map[string]any) error
}

// Result is what the caller needs to decide the next state transition.
type Result struct {
	LlmCallID      string
	Raw            string
	Parsed         map[string]any
	Normalized     map[string]any
	ValidatorError *string
	ErrorCode      *model.ErrorCode
}

// Call sends one prompt to the agent's configured provider and persists
// telemetry regardless of outcome. The returned error is non-nil only for
// infrastructure failures (unconfigured provider, store write failure);
// LM-level failures (timeout, refusal, unparseable response) are reported
// via Result.ErrorCode with err == nil so callers apply §7's error table
// uniformly instead of branching on two failure channels.
func (c *Client) Call(ctx context.Context, p CallParams) (*Result, error) {
	provider, ok := c.providers[p.Agent]
	if !ok {
		return nil, fmt.Errorf("llmclient: no provider configured for agent %q", p.Agent)
	}

	sys, promptTruncated := truncate(p.SystemPrompt, c.maxPromptChars)
	user, userTruncated := truncate(p.UserPrompt, c.maxPromptChars)
	promptTruncated = promptTruncated || userTruncated

	callCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	callStart := c.now()
	raw, callErr := provider.Complete(callCtx, Request{Model: p.Model, System: sys, User: user})
	callDuration := c.now().Sub(callStart)

	res := &Result{LlmCallID: uuid.NewString()}
	call := model.LlmCall{
		LlmCallID:     res.LlmCallID,
		CreatedAt:     c.now(),
		PlanID:        p.PlanID,
		TaskID:        p.TaskID,
		Agent:         p.Agent,
		Scope:         p.Scope,
		PromptText:    sys + "\n\n" + user,
		Attempt:       p.Attempt,
		ReviewAttempt: p.ReviewAttempt,
		RetryReason:   p.RetryReason,
		PromptTruncated: promptTruncated,
		PromptTokens:  c.tokens.Count(sys) + c.tokens.Count(user),
	}

	switch {
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		code := model.CodeLLMTimeout
		msg := "llm call exceeded configured timeout"
		call.ErrorCode, call.ErrorMessage = &code, &msg
		res.ErrorCode = &code
	case isRefusal(callErr):
		code := model.CodeLLMRefusal
		msg := callErr.Error()
		call.ErrorCode, call.ErrorMessage = &code, &msg
		res.ErrorCode = &code
	case callErr != nil:
		code := model.CodeLLMUnparseable
		msg := callErr.Error()
		call.ErrorCode, call.ErrorMessage = &code, &msg
		res.ErrorCode = &code
	default:
		respTruncated := contracts.LooksTruncated(raw)
		truncatedRaw, capTruncated := truncate(raw, c.maxResponseChars)
		raw = truncatedRaw
		call.ResponseTruncated = respTruncated || capTruncated
		res.Raw = raw

		parsed, extractErr := contracts.ExtractJSONObject(raw)
		if extractErr != nil {
			code := model.CodeLLMUnparseable
			msg := extractErr.Error()
			call.ErrorCode, call.ErrorMessage = &code, &msg
			res.ErrorCode = &code
			break
		}
		call.ParsedJSON = parsed
		res.Parsed = parsed

		normalized := parsed
		if p.Normalize != nil {
			normalized = p.Normalize(parsed)
		}
		call.NormalizedJSON = normalized
		res.Normalized = normalized

		if p.Validate != nil {
			if err := p.Validate(normalized); err != nil {
				code := model.CodeLLMUnparseable
				msg := err.Error()
				call.ValidatorError = &msg
				call.ErrorCode = &code
				res.ValidatorError = &msg
				res.ErrorCode = &code
			}
		}
	}
	call.ResponseText = raw
	call.ResponseTokens = c.tokens.Count(raw)

	if c.metrics != nil {
		outcome := "ok"
		if res.ErrorCode != nil {
			outcome = string(*res.ErrorCode)
		}
		c.metrics.RecordLLMCall(string(p.Agent), string(p.Scope), outcome, callDuration, len(sys)+len(user), len(raw))
	}

	if err := c.store.InsertLlmCall(ctx, nil, call); err != nil {
		return nil, fmt.Errorf("persist llm call: %w", err)
	}
	return res, nil
}

func truncate(s string, max int) (string, bool) {
	if max <= 0 || len(s) <= max {
		return s, false
	}
	return s[:max], true
}

func isRefusal(err error) bool {
	var re *RefusalError
	return errors.As(err, &re)
}
