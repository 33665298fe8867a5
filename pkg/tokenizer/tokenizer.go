package tokenizer

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator counts tokens in text for a given model.
type Estimator interface {
	Count(model, text string) int
}

// TiktokenEstimator resolves a BPE encoder per model, caching encoders
// across calls. Unknown models fall back to the configured encoding,
// and if no encoding can be loaded at all, to a chars/4 heuristic.
type TiktokenEstimator struct {
	fallbackEncoding string

	mu       sync.Mutex
	encoders map[string]*tiktoken.Tiktoken
}

func NewTiktokenEstimator(fallbackEncoding string) *TiktokenEstimator {
	if fallbackEncoding == "" {
		fallbackEncoding = "cl100k_base"
	}
	return &TiktokenEstimator{
		fallbackEncoding: fallbackEncoding,
		encoders:         make(map[string]*tiktoken.Tiktoken),
	}
}

func (e *TiktokenEstimator) Count(model, text string) int {
	if text == "" {
		return 0
	}
	enc := e.encoderFor(model)
	if enc == nil {
		return heuristicCount(text)
	}
	return len(enc.Encode(text, nil, nil))
}

func (e *TiktokenEstimator) encoderFor(model string) *tiktoken.Tiktoken {
	e.mu.Lock()
	defer e.mu.Unlock()

	if enc, ok := e.encoders[model]; ok {
		return enc
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(e.fallbackEncoding)
		if err != nil {
			// Cache the miss so we do not retry on every call.
			e.encoders[model] = nil
			return nil
		}
	}
	e.encoders[model] = enc
	return enc
}

// heuristicCount approximates tokens as one per 4 characters, rounding up.
func heuristicCount(text string) int {
	n := len(text)
	count := (n + 3) / 4
	if count < 1 {
		count = 1
	}
	return count
}
