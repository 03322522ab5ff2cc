package llm

import (
	"context"
	"encoding/json"
	"time"

	"biographer/pkg/llm/llmerrors"
	"biographer/pkg/metrics"
	"biographer/pkg/tokens"
)

type componentKeyType struct{}

//nolint:gochecknoglobals // Context key must be a package-level singleton.
var componentKey = componentKeyType{}

// WithComponent tags the context with the name of the component making the
// call, for metrics labeling.
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// ComponentFromContext returns the component tag, or "unknown".
func ComponentFromContext(ctx context.Context) string {
	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		return component
	}
	return "unknown"
}

// metricsClient wraps a Client, recording request outcomes and approximate
// token usage.
type metricsClient struct {
	inner    Client
	recorder metrics.Recorder
	counter  *tokens.Counter
}

// WithMetrics wraps a client with metrics recording. A nil counter falls
// back to character-based token estimates.
func WithMetrics(inner Client, recorder metrics.Recorder, counter *tokens.Counter) Client {
	return &metricsClient{inner: inner, recorder: recorder, counter: counter}
}

func (m *metricsClient) observe(ctx context.Context, in CompletionRequest, responseText string, err error, duration time.Duration) {
	component := ComponentFromContext(ctx)
	model := m.inner.ModelName()

	if err != nil {
		m.recorder.ObserveRequest(model, component, false, llmerrors.TypeOf(err).String(), duration)
		return
	}
	m.recorder.ObserveRequest(model, component, true, "", duration)

	promptTokens := 0
	for i := range in.Messages {
		promptTokens += m.counter.Count(in.Messages[i].Content)
	}
	m.recorder.ObserveTokens(model, component, promptTokens, m.counter.Count(responseText))
}

func (m *metricsClient) Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error) {
	start := time.Now()
	resp, err := m.inner.Complete(ctx, in)
	m.observe(ctx, in, resp.Content, err, time.Since(start))
	return resp, err
}

func (m *metricsClient) CompleteStructured(ctx context.Context, in CompletionRequest, schema StructuredSchema) (json.RawMessage, error) {
	start := time.Now()
	payload, err := m.inner.CompleteStructured(ctx, in, schema)
	m.observe(ctx, in, string(payload), err, time.Since(start))
	return payload, err
}

func (m *metricsClient) ModelName() string {
	return m.inner.ModelName()
}
