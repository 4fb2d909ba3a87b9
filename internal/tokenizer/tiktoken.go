// Package tokenizer estimates prompt/response token counts for LM calls.
// Every provider wired into llmclient (Anthropic, OpenAI, Gemini) bills
// tokens differently and none of their SDKs expose a client-side counter,
// so the engine uses tiktoken's cl100k_base encoding as a single consistent
// yardstick for the llm_calls.prompt_tokens/response_tokens columns and for
// the executor/reviewer's pre-flight context-budget checks. The numbers are
// an estimate, not a bill.
package tokenizer

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator counts tokens against a fixed encoding, lazily initialized
// because tiktoken-go downloads its BPE ranks on first use.
type Estimator struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
	initErr  error
}

// NewEstimator builds an Estimator for the given tiktoken encoding name.
// cl100k_base covers every chat-style model the engine talks to closely
// enough for budget estimation.
func NewEstimator(encoding string) *Estimator {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	return &Estimator{encoding: encoding}
}

func (e *Estimator) init() error {
	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding(e.encoding)
		if err != nil {
			e.initErr = err
			return
		}
		e.enc = enc
	})
	return e.initErr
}

// Count returns the token count of text, or 0 if the encoding failed to
// load (e.g. offline with no cached ranks file) — callers treat 0 as
// "unknown" rather than failing the LM call over a telemetry side-channel.
func (e *Estimator) Count(text string) int {
	if err := e.init(); err != nil {
		return 0
	}
	return len(e.enc.Encode(text, nil, nil))
}
