package interview

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"biographer/pkg/llm"
	"biographer/pkg/llm/llmerrors"
	"biographer/pkg/logx"
	"biographer/pkg/metrics"
)

// BootstrapThreshold is the transcript length above which model-assisted
// selection and contextualization are enabled. Below it the conversation is
// too young to provide useful context, so deterministic first-in-source-order
// choices are used instead.
const BootstrapThreshold = 2

// selectionWindow is how many recent transcript entries the selection prompt
// sees.
const selectionWindow = 5

// Selector chooses the next not-started question by ascending priority,
// delegating ties to the model once the conversation has enough context.
type Selector struct {
	client   llm.Client
	recorder metrics.Recorder
	logger   *logx.Logger
}

// NewSelector creates a selector. recorder may be nil.
func NewSelector(client llm.Client, recorder metrics.Recorder) *Selector {
	if recorder == nil {
		recorder = metrics.NopRecorder{}
	}
	return &Selector{
		client:   client,
		recorder: recorder,
		logger:   logx.NewLogger("selector"),
	}
}

// Select picks the next question. It returns the active record and whether
// it was newly selected this call. A nil record means no not-started
// question remains at any priority level.
//
// Re-invoking with an unchanged state returns the same current question
// without side effects.
func (s *Selector) Select(ctx context.Context, state *InterviewState) (*QuestionRecord, bool) {
	if current, ok := state.CurrentQuestion(); ok && current.Status != StatusComplete {
		return current, false
	}

	for _, priority := range prioritiesOf(state) {
		candidates := notStartedAt(state, priority)
		if len(candidates) == 0 {
			continue
		}

		chosen := candidates[0]
		if len(state.Messages) > BootstrapThreshold && len(candidates) > 1 {
			if picked, err := s.selectWithModel(ctx, state, priority, candidates); err != nil {
				s.logger.Warn("model selection failed, falling back to source order: %v", err)
				s.recorder.RecordFallback("selector", llmerrors.TypeOf(err).String())
			} else {
				chosen = picked
			}
		}

		chosen.setStatus(StatusInProgress)
		now := time.Now().UTC()
		chosen.LastAsked = &now
		state.CurrentQuestionID = chosen.ID
		s.logger.Debug("selected question %d (priority %d)", chosen.ID, chosen.Priority)
		return chosen, true
	}

	return nil, false
}

// selectWithModel asks the model to pick among same-priority candidates. The
// reply must contain a candidate id; anything else is a malformed-id error
// and the caller falls back deterministically.
func (s *Selector) selectWithModel(ctx context.Context, state *InterviewState, priority int, candidates []*QuestionRecord) (*QuestionRecord, error) {
	lines := make([]string, 0, len(candidates))
	for _, c := range candidates {
		lines = append(lines, fmt.Sprintf("ID: %d - %s", c.ID, c.Text))
	}

	prompt := strings.NewReplacer(
		"{conversation_context}", renderTranscript(state.Window(selectionWindow)),
		"{priority}", strconv.Itoa(priority),
		"{questions_text}", strings.Join(lines, "\n"),
	).Replace(SelectionPromptTemplate)

	req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewSystemMessage(prompt)})
	req.Temperature = llm.TemperatureJudgment

	resp, err := s.client.Complete(llm.WithComponent(ctx, "selector"), req)
	if err != nil {
		return nil, err
	}

	id, err := parseQuestionID(resp.Content)
	if err != nil {
		return nil, err
	}
	for _, c := range candidates {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, llmerrors.Newf(llmerrors.ErrorTypeMalformedID, "model chose id %d, not a candidate", id)
}

// parseQuestionID extracts the first integer from the model's reply.
func parseQuestionID(content string) (int, error) {
	fields := strings.FieldsFunc(strings.TrimSpace(content), func(r rune) bool {
		return r < '0' || r > '9'
	})
	for _, field := range fields {
		if id, err := strconv.Atoi(field); err == nil {
			return id, nil
		}
	}
	return 0, llmerrors.Newf(llmerrors.ErrorTypeMalformedID, "no question id in reply %q", content)
}

// prioritiesOf returns the distinct priority levels present in the session's
// records, ascending.
func prioritiesOf(state *InterviewState) []int {
	seen := make(map[int]bool)
	var out []int
	for _, record := range state.Questions {
		if !seen[record.Priority] {
			seen[record.Priority] = true
			out = append(out, record.Priority)
		}
	}
	sort.Ints(out)
	return out
}

// notStartedAt returns the not-started records at a priority level, in
// source order.
func notStartedAt(state *InterviewState, priority int) []*QuestionRecord {
	var out []*QuestionRecord
	for _, record := range state.Questions {
		if record.Priority == priority && record.Status == StatusNotStarted {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}
