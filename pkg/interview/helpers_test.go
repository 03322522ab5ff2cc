package interview

import (
	"encoding/json"
	"fmt"
	"testing"

	"biographer/pkg/llm"
	"biographer/pkg/questionbank"
)

const testBankYAML = `
- question: "What year was {name} born?"
  priority: 0
- question: "Where did {name} grow up?"
  priority: 0
- question: "What did {name} do for work?"
  priority: 1
- question: "How would {name} want to be remembered?"
  priority: 2
`

func testSubject() questionbank.SubjectInfo {
	return questionbank.SubjectInfo{
		Name:              "Robert Chen",
		IntervieweeName:   "Sarah Chen",
		PronounSubject:    "he",
		PronounObject:     "him",
		PronounPossessive: "his",
	}
}

func testBank(t *testing.T) *questionbank.Bank {
	t.Helper()
	bank, err := questionbank.Parse([]byte(testBankYAML))
	if err != nil {
		t.Fatalf("failed to parse test bank: %v", err)
	}
	return bank
}

// newTestState returns a session with questions initialized from the test
// bank.
func newTestState(t *testing.T) *InterviewState {
	t.Helper()
	state := NewInterviewState("elder-1")
	state.EnsureQuestions(testBank(t), testSubject())
	return state
}

// seedTranscript appends n alternating user/assistant filler messages.
func seedTranscript(state *InterviewState, n int) {
	for i := 0; i < n; i++ {
		role := llm.RoleUser
		if i%2 == 1 {
			role = llm.RoleAssistant
		}
		state.AppendMessage(NewMessage(role, fmt.Sprintf("filler %d", i)))
	}
}

func analysisPayload(t *testing.T, status Status, followUp bool) json.RawMessage {
	t.Helper()
	payload, err := json.Marshal(AnswerAnalysis{
		CompletenessPercentage: 80,
		QualityScore:           7,
		Status:                 status,
		BriefAnalysis:          "solid answer",
		FollowUpNeeded:         followUp,
	})
	if err != nil {
		t.Fatal(err)
	}
	return payload
}

func countClosingMessages(state *InterviewState) int {
	closing := ClosingMessage("Sarah Chen", "Robert Chen")
	count := 0
	for _, msg := range state.Messages {
		if msg.Content == closing {
			count++
		}
	}
	return count
}
