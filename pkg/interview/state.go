// Package interview implements the biographical interview core: the
// per-session question lifecycle, priority-based selection, LLM-assisted
// rephrasing and answer analysis, and the orchestrating state machine.
package interview

import (
	"time"

	"github.com/google/uuid"

	"biographer/pkg/llm"
	"biographer/pkg/questionbank"
)

// Status is the lifecycle state of a question. Transitions are forward-only:
// not_started → {in_progress, partial} → complete. Complete is terminal.
type Status string

const (
	// StatusNotStarted means the question has not been asked yet.
	StatusNotStarted Status = "not_started"
	// StatusInProgress means the question has been asked and awaits an answer.
	StatusInProgress Status = "in_progress"
	// StatusPartial means the answer so far is incomplete.
	StatusPartial Status = "partial"
	// StatusComplete means the question is adequately answered. Terminal.
	StatusComplete Status = "complete"
)

// rank orders statuses for the forward-only transition check.
func (s Status) rank() int {
	switch s {
	case StatusNotStarted:
		return 0
	case StatusInProgress, StatusPartial:
		return 1
	case StatusComplete:
		return 2
	default:
		return -1
	}
}

// CanTransitionTo reports whether moving from s to next is a legal forward
// transition. in_progress and partial are interchangeable; complete never
// regresses.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return true
	}
	if s == StatusComplete {
		return false
	}
	return next.rank() >= s.rank()
}

// EndInterviewMarker is the internal transcript sentinel an external runtime
// may inject to request termination; it is removed before the closing
// message is appended.
const EndInterviewMarker = "__END_INTERVIEW__"

// QuestionRecord tracks one question through the session.
type QuestionRecord struct {
	ID            int
	Text          string
	Priority      int
	Status        Status
	Answers       []string
	Analysis      string
	FollowUpCount int
	LastAsked     *time.Time

	// seq is the bank source position, used for deterministic tie-breaking.
	seq int
}

// setStatus applies a forward-only status change; illegal transitions
// (including any regression out of complete) are ignored.
func (q *QuestionRecord) setStatus(next Status) {
	if q.Status.CanTransitionTo(next) {
		q.Status = next
	}
}

// Message is one transcript entry. ToolCalls is set on assistant messages
// that requested tools; ToolResults on the user-role messages answering them.
type Message struct {
	ID          string
	Role        llm.CompletionRole
	Content     string
	ToolCalls   []llm.ToolCall
	ToolResults []llm.ToolResult
	Timestamp   time.Time
}

// NewMessage creates a transcript entry with a fresh id.
func NewMessage(role llm.CompletionRole, content string) Message {
	return Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// InterviewState is the per-session aggregate: transcript, question records,
// current-question pointer, and termination flags. One instance per session,
// keyed by ElderID; mutated only by the orchestrator pipeline.
//
//nolint:revive // interview.InterviewState reads fine at call sites that alias the package.
type InterviewState struct {
	SessionID string
	ElderID   string

	Messages          []Message
	Questions         map[int]*QuestionRecord
	CurrentQuestionID int // 0 means none
	Finished          bool
	IsLastStep        bool

	// lastAnalyzedMsgID marks the user utterance most recently consumed by
	// the analyzer, so re-running analysis without new input is a no-op.
	lastAnalyzedMsgID string
}

// NewInterviewState creates an empty session keyed by elderID.
func NewInterviewState(elderID string) *InterviewState {
	return &InterviewState{
		SessionID: uuid.New().String(),
		ElderID:   elderID,
		Questions: make(map[int]*QuestionRecord),
	}
}

// EnsureQuestions populates the question map from the bank exactly once, on
// first access when empty. Later calls never re-initialize.
func (s *InterviewState) EnsureQuestions(bank *questionbank.Bank, subject questionbank.SubjectInfo) {
	if len(s.Questions) > 0 {
		return
	}
	for i, q := range bank.Questions() {
		s.Questions[q.ID] = &QuestionRecord{
			ID:       q.ID,
			Text:     questionbank.Personalize(q.Text, subject),
			Priority: q.Priority,
			Status:   StatusNotStarted,
			seq:      i,
		}
	}
}

// AppendMessage adds a transcript entry and returns it.
func (s *InterviewState) AppendMessage(msg Message) Message {
	s.Messages = append(s.Messages, msg)
	return msg
}

// CurrentQuestion returns the active question record, if any.
func (s *InterviewState) CurrentQuestion() (*QuestionRecord, bool) {
	if s.CurrentQuestionID == 0 {
		return nil, false
	}
	record, ok := s.Questions[s.CurrentQuestionID]
	return record, ok
}

// AllComplete reports whether every question record is complete. Vacuously
// true for an empty map, so a session over an empty bank finishes
// immediately after its first selection step.
func (s *InterviewState) AllComplete() bool {
	for _, record := range s.Questions {
		if record.Status != StatusComplete {
			return false
		}
	}
	return true
}

// LatestUserUtterance returns the most recent user message, and whether it
// has not yet been consumed by the analyzer.
func (s *InterviewState) LatestUserUtterance() (Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == llm.RoleUser && len(s.Messages[i].ToolResults) == 0 {
			msg := s.Messages[i]
			return msg, msg.ID != s.lastAnalyzedMsgID
		}
	}
	return Message{}, false
}

// markAnalyzed records that the given user utterance has been consumed.
func (s *InterviewState) markAnalyzed(msg Message) {
	s.lastAnalyzedMsgID = msg.ID
}

// Finish terminates the session: removes any end-interview markers from the
// transcript, sets Finished, and appends the closing message. Finished is
// monotonic, so the closing message is emitted exactly once no matter how
// many paths request termination.
func (s *InterviewState) Finish(closingMessage string) bool {
	if s.Finished {
		return false
	}
	kept := s.Messages[:0]
	for _, msg := range s.Messages {
		if msg.Content != EndInterviewMarker {
			kept = append(kept, msg)
		}
	}
	s.Messages = kept
	s.Finished = true
	s.CurrentQuestionID = 0
	s.AppendMessage(NewMessage(llm.RoleAssistant, closingMessage))
	return true
}

// Window returns the last n transcript entries.
func (s *InterviewState) Window(n int) []Message {
	if len(s.Messages) <= n {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-n:]
}
