package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator counts tokens for pre-flight cost projection. It uses the
// cl100k_base encoding when available and falls back to the chars/4
// heuristic when the encoding cannot be loaded (offline builds).
type Estimator struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewEstimator returns a lazy token estimator.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// Count estimates the token count of text.
func (e *Estimator) Count(text string) int {
	if text == "" {
		return 0
	}
	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		if err == nil {
			e.enc = enc
		}
	})
	if e.enc != nil {
		return len(e.enc.Encode(text, nil, nil))
	}
	return (len(text) + 3) / 4
}

// CountRequest estimates the prompt plus a completion allowance. Metadata
// responses are JSON documents; a half-prompt allowance with a floor has
// proven a workable projection.
func (e *Estimator) CountRequest(prompt, system string) int {
	promptTokens := e.Count(prompt) + e.Count(system)
	completion := promptTokens / 2
	if completion < 256 {
		completion = 256
	}
	return promptTokens + completion
}
