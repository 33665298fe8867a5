package llm

import (
	"context"
	"errors"
)

// ErrTurnCanceled is returned when a request is aborted because the
// owning session was closed mid-turn.
var ErrTurnCanceled = errors.New("turn canceled: session closed")

// TokenEstimator counts tokens in a piece of text for a given model.
type TokenEstimator interface {
	Count(model, text string) int
}

// UsageSink receives per-call token counts and exposes the abort flag
// of the turn the call belongs to. The turn context implements this.
type UsageSink interface {
	RecordTokens(promptTokens, completionTokens int)
	Canceled() bool
}

// MeteredProvider wraps another provider, estimating prompt and
// completion tokens for every call and recording them into the sink.
// It refuses to issue a request once the sink reports cancellation, so
// a disconnected session never pays for a wasted completion.
type MeteredProvider struct {
	inner     LLMProvider
	estimator TokenEstimator
	model     string
	sink      UsageSink
}

var _ LLMProvider = &MeteredProvider{}

func NewMeteredProvider(inner LLMProvider, estimator TokenEstimator, model string, sink UsageSink) *MeteredProvider {
	return &MeteredProvider{
		inner:     inner,
		estimator: estimator,
		model:     model,
		sink:      sink,
	}
}

func (m *MeteredProvider) Chat(ctx context.Context, history []Message, options ...Option) (string, error) {
	if m.sink.Canceled() {
		return "", ErrTurnCanceled
	}

	promptTokens := 0
	for _, msg := range history {
		promptTokens += m.estimator.Count(m.model, msg.Content)
	}

	reply, err := m.inner.Chat(ctx, history, options...)
	if err != nil {
		return "", err
	}

	completionTokens := m.estimator.Count(m.model, reply)
	m.sink.RecordTokens(promptTokens, completionTokens)

	return reply, nil
}

func (m *MeteredProvider) Generate(ctx context.Context, prompt string, options ...Option) (string, error) {
	return m.Chat(ctx, []Message{{Role: "user", Content: prompt}}, options...)
}
