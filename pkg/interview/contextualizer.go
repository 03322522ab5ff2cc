package interview

import (
	"context"
	"strings"

	"biographer/pkg/llm"
	"biographer/pkg/llm/llmerrors"
	"biographer/pkg/logx"
	"biographer/pkg/metrics"
)

// contextWindow is how many recent transcript entries the rephrasing prompt
// sees.
const contextWindow = 3

// Contextualizer rewrites a selected question so it flows naturally from the
// recent conversation.
type Contextualizer struct {
	client   llm.Client
	recorder metrics.Recorder
	logger   *logx.Logger

	intervieweeName string
	deceasedName    string
}

// NewContextualizer creates a contextualizer. recorder may be nil.
func NewContextualizer(client llm.Client, recorder metrics.Recorder, intervieweeName, deceasedName string) *Contextualizer {
	if recorder == nil {
		recorder = metrics.NopRecorder{}
	}
	return &Contextualizer{
		client:          client,
		recorder:        recorder,
		logger:          logx.NewLogger("contextualizer"),
		intervieweeName: intervieweeName,
		deceasedName:    deceasedName,
	}
}

// Contextualize returns the model's rephrasing of questionText, trimmed. On
// any failure, or an empty reply, the original text is returned unchanged.
// No other side effects.
func (c *Contextualizer) Contextualize(ctx context.Context, state *InterviewState, questionText string) string {
	prompt := strings.NewReplacer(
		"{recent_context}", renderTranscript(state.Window(contextWindow)),
		"{question}", questionText,
		"{interviewee_name}", c.intervieweeName,
		"{deceased_name}", c.deceasedName,
	).Replace(ContextualizationPromptTemplate)

	req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewSystemMessage(prompt)})
	req.Temperature = llm.TemperatureJudgment

	resp, err := c.client.Complete(llm.WithComponent(ctx, "contextualizer"), req)
	if err != nil {
		c.logger.Warn("contextualization failed, keeping original text: %v", err)
		c.recorder.RecordFallback("contextualizer", llmerrors.TypeOf(err).String())
		return questionText
	}

	rephrased := strings.TrimSpace(resp.Content)
	if rephrased == "" {
		c.recorder.RecordFallback("contextualizer", llmerrors.ErrorTypeEmptyResponse.String())
		return questionText
	}
	return rephrased
}
