package llm

import (
	"context"
	"encoding/json"

	"biographer/pkg/limiter"
	"biographer/pkg/llm/llmerrors"
	"biographer/pkg/tokens"
)

// rateLimitClient wraps a Client, reserving estimated prompt tokens from a
// bucket before each call. Exhausted budgets surface as rate-limit errors,
// which the interview components absorb via their deterministic fallbacks.
type rateLimitClient struct {
	inner   Client
	limiter *limiter.Limiter
	counter *tokens.Counter
}

// WithRateLimit wraps a client with token-bucket rate limiting. A nil
// counter falls back to character-based token estimates.
func WithRateLimit(inner Client, l *limiter.Limiter, counter *tokens.Counter) Client {
	return &rateLimitClient{inner: inner, limiter: l, counter: counter}
}

func (r *rateLimitClient) reserve(in CompletionRequest) error {
	estimate := 0
	for i := range in.Messages {
		estimate += r.counter.Count(in.Messages[i].Content)
	}
	if err := r.limiter.Reserve(estimate); err != nil {
		return llmerrors.New(llmerrors.ErrorTypeRateLimit, err)
	}
	return nil
}

func (r *rateLimitClient) Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error) {
	if err := r.reserve(in); err != nil {
		return CompletionResponse{}, err
	}
	return r.inner.Complete(ctx, in)
}

func (r *rateLimitClient) CompleteStructured(ctx context.Context, in CompletionRequest, schema StructuredSchema) (json.RawMessage, error) {
	if err := r.reserve(in); err != nil {
		return nil, err
	}
	return r.inner.CompleteStructured(ctx, in, schema)
}

func (r *rateLimitClient) ModelName() string {
	return r.inner.ModelName()
}
