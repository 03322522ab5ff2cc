package interview

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"biographer/pkg/llm"
	"biographer/pkg/llm/llmerrors"
	"biographer/pkg/logx"
	"biographer/pkg/metrics"
	"biographer/pkg/tools"
)

// maxAnswersBeforeForcedComplete gates the count-based completion policy: a
// question with this many recorded answers is marked complete regardless of
// the latest judgement, so a single question can never stall the interview.
const maxAnswersBeforeForcedComplete = 2

// forcedCompleteNote is appended to the analysis when completion is forced
// by the answer count.
const forcedCompleteNote = " (Marked complete after answer limit reached)"

// AnswerAnalysis is the structured judgement of one answer.
type AnswerAnalysis struct {
	CompletenessPercentage int    `json:"completeness_percentage"`
	QualityScore           int    `json:"quality_score"`
	Status                 Status `json:"status"`
	BriefAnalysis          string `json:"brief_analysis"`
	FollowUpNeeded         bool   `json:"follow_up_needed"`
}

// analysisSchema is the schema the structured completion must satisfy.
func analysisSchema() llm.StructuredSchema {
	return llm.StructuredSchema{
		Name:        "answer_analysis",
		Description: "Structured judgement of how well an answer addresses a biographical interview question",
		Schema: tools.InputSchema{
			Type: "object",
			Properties: map[string]tools.Property{
				"completeness_percentage": {
					Type:        "integer",
					Description: "How fully the answer addresses the question (0-100)",
				},
				"quality_score": {
					Type:        "integer",
					Description: "Quality rating of the answer (1-10)",
				},
				"status": {
					Type:        "string",
					Description: "Overall status of the question based on the answer",
					Enum:        []string{"complete", "partial", "not_started"},
				},
				"brief_analysis": {
					Type:        "string",
					Description: "Brief analysis of the answer quality and completeness",
				},
				"follow_up_needed": {
					Type:        "boolean",
					Description: "Whether a follow-up question would be beneficial",
				},
			},
			Required: []string{"completeness_percentage", "quality_score", "status", "brief_analysis", "follow_up_needed"},
		},
	}
}

// Analyzer judges the latest user utterance against the current question and
// advances the question's status.
type Analyzer struct {
	client   llm.Client
	recorder metrics.Recorder
	logger   *logx.Logger
}

// NewAnalyzer creates an analyzer. recorder may be nil.
func NewAnalyzer(client llm.Client, recorder metrics.Recorder) *Analyzer {
	if recorder == nil {
		recorder = metrics.NopRecorder{}
	}
	return &Analyzer{
		client:   client,
		recorder: recorder,
		logger:   logx.NewLogger("analyzer"),
	}
}

// Analyze evaluates the most recent unconsumed user utterance against the
// current question. No-op when there is no current question or no new
// utterance. The answer is appended exactly once before any status decision.
//
// Completion is count-gated and monotonic: the record becomes complete when
// the judgement says so or when it has accumulated enough answers, and a
// complete record never moves backward.
func (a *Analyzer) Analyze(ctx context.Context, state *InterviewState) {
	record, ok := state.CurrentQuestion()
	if !ok || record.Status == StatusComplete {
		return
	}
	utterance, fresh := state.LatestUserUtterance()
	if !fresh || strings.TrimSpace(utterance.Content) == "" {
		return
	}

	result := a.judge(ctx, record.Text, utterance.Content)

	// Append first, then decide.
	record.Answers = append(record.Answers, utterance.Content)
	record.Analysis = result.BriefAnalysis
	state.markAnalyzed(utterance)

	switch {
	case result.Status == StatusComplete:
		record.setStatus(StatusComplete)
	case len(record.Answers) >= maxAnswersBeforeForcedComplete:
		record.Analysis += forcedCompleteNote
		record.setStatus(StatusComplete)
	case result.Status == StatusPartial:
		record.setStatus(StatusPartial)
		if result.FollowUpNeeded {
			record.FollowUpCount++
		}
	default:
		record.setStatus(StatusInProgress)
	}

	if record.Status == StatusComplete {
		state.CurrentQuestionID = 0
	}
	a.logger.Debug("question %d analyzed: status=%s completeness=%d", record.ID, record.Status, result.CompletenessPercentage)
}

// judge runs the structured completion, substituting the fixed lenient
// fallback on any failure so analysis errors never surface to the caller.
func (a *Analyzer) judge(ctx context.Context, questionText, answer string) AnswerAnalysis {
	prompt := strings.NewReplacer(
		"{question}", questionText,
		"{answer}", answer,
	).Replace(AnalysisPromptTemplate)

	req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewSystemMessage(prompt)})
	req.Temperature = llm.TemperatureJudgment

	payload, err := a.client.CompleteStructured(llm.WithComponent(ctx, "analyzer"), req, analysisSchema())
	if err != nil {
		return a.fallback(err)
	}

	var result AnswerAnalysis
	if err := json.Unmarshal(payload, &result); err != nil {
		return a.fallback(llmerrors.Newf(llmerrors.ErrorTypeSchemaViolation, "analysis payload did not match schema: %v", err))
	}
	if result.Status != StatusComplete && result.Status != StatusPartial && result.Status != StatusNotStarted {
		return a.fallback(llmerrors.Newf(llmerrors.ErrorTypeSchemaViolation, "analysis returned unknown status %q", result.Status))
	}
	return result
}

func (a *Analyzer) fallback(err error) AnswerAnalysis {
	a.logger.Warn("answer analysis failed, using fallback judgement: %v", err)
	a.recorder.RecordFallback("analyzer", llmerrors.TypeOf(err).String())
	return AnswerAnalysis{
		CompletenessPercentage: 50,
		QualityScore:           5,
		Status:                 StatusPartial,
		BriefAnalysis:          fmt.Sprintf("Analysis error: %v", err),
		FollowUpNeeded:         false,
	}
}
