package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// UsageSummary represents aggregated token usage for the biographer,
// optionally broken down by component.
type UsageSummary struct {
	Component        string `json:"component,omitempty"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
	TotalTokens      int64  `json:"total_tokens"`
}

// QueryService queries aggregated usage metrics from a Prometheus server
// that scrapes the biographer.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{Address: prometheusURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}
	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

func (q *QueryService) sum(ctx context.Context, query string) (int64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("query %q failed: %w", query, err)
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return int64(vector[0].Value), nil
	}
	return 0, nil
}

// GetUsage retrieves total token usage across all components.
func (q *QueryService) GetUsage(ctx context.Context) (*UsageSummary, error) {
	summary := &UsageSummary{}

	prompt, err := q.sum(ctx, `sum(biographer_llm_tokens_total{type="prompt"})`)
	if err != nil {
		return nil, err
	}
	summary.PromptTokens = prompt

	completion, err := q.sum(ctx, `sum(biographer_llm_tokens_total{type="completion"})`)
	if err != nil {
		return nil, err
	}
	summary.CompletionTokens = completion

	summary.TotalTokens = prompt + completion
	return summary, nil
}

// GetUsageByComponent retrieves token usage broken down by component
// (selector, contextualizer, analyzer, converse).
func (q *QueryService) GetUsageByComponent(ctx context.Context) (map[string]*UsageSummary, error) {
	result := make(map[string]*UsageSummary)

	componentsResult, _, err := q.queryAPI.Query(ctx, `group by (component) (biographer_llm_tokens_total)`, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query components: %w", err)
	}

	var components []string
	if vector, ok := componentsResult.(model.Vector); ok {
		for _, sample := range vector {
			if name, ok := sample.Metric["component"]; ok {
				components = append(components, string(name))
			}
		}
	}

	for _, component := range components {
		summary := &UsageSummary{Component: component}

		prompt, err := q.sum(ctx, fmt.Sprintf(`sum(biographer_llm_tokens_total{component=%q, type="prompt"})`, component))
		if err != nil {
			return nil, err
		}
		summary.PromptTokens = prompt

		completion, err := q.sum(ctx, fmt.Sprintf(`sum(biographer_llm_tokens_total{component=%q, type="completion"})`, component))
		if err != nil {
			return nil, err
		}
		summary.CompletionTokens = completion

		summary.TotalTokens = prompt + completion
		result[component] = summary
	}

	return result, nil
}
