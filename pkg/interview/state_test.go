package interview

import (
	"strings"
	"testing"

	"biographer/pkg/llm"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusNotStarted, StatusInProgress, true},
		{StatusNotStarted, StatusPartial, true},
		{StatusNotStarted, StatusComplete, true},
		{StatusInProgress, StatusPartial, true},
		{StatusPartial, StatusInProgress, true},
		{StatusInProgress, StatusComplete, true},
		{StatusComplete, StatusComplete, true},
		{StatusComplete, StatusPartial, false},
		{StatusComplete, StatusNotStarted, false},
		{StatusComplete, StatusInProgress, false},
		{StatusInProgress, StatusNotStarted, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestSetStatusNeverRegressesComplete(t *testing.T) {
	record := &QuestionRecord{ID: 1, Status: StatusComplete}
	record.setStatus(StatusNotStarted)
	record.setStatus(StatusPartial)
	if record.Status != StatusComplete {
		t.Errorf("complete regressed to %s", record.Status)
	}
}

func TestEnsureQuestionsInitializesOnce(t *testing.T) {
	state := NewInterviewState("elder-1")
	bank := testBank(t)

	state.EnsureQuestions(bank, testSubject())
	if len(state.Questions) != 4 {
		t.Fatalf("expected 4 questions, got %d", len(state.Questions))
	}

	state.Questions[1].Status = StatusComplete
	state.EnsureQuestions(bank, testSubject())
	if state.Questions[1].Status != StatusComplete {
		t.Error("EnsureQuestions re-initialized an existing record")
	}
}

func TestEnsureQuestionsPersonalizes(t *testing.T) {
	state := newTestState(t)
	if !strings.Contains(state.Questions[1].Text, "Robert Chen") {
		t.Errorf("question text not personalized: %q", state.Questions[1].Text)
	}
}

func TestAllCompleteVacuousOnEmptyMap(t *testing.T) {
	state := NewInterviewState("elder-1")
	if !state.AllComplete() {
		t.Error("empty question map should be vacuously complete")
	}
}

func TestFinishEmitsClosingOnce(t *testing.T) {
	state := newTestState(t)
	state.AppendMessage(NewMessage(llm.RoleUser, "hello"))
	state.AppendMessage(NewMessage(llm.RoleUser, EndInterviewMarker))
	closing := ClosingMessage("Sarah Chen", "Robert Chen")

	if !state.Finish(closing) {
		t.Fatal("first Finish should report true")
	}
	if state.Finish(closing) {
		t.Error("second Finish should be a no-op")
	}

	if !state.Finished {
		t.Error("Finished not set")
	}
	if state.CurrentQuestionID != 0 {
		t.Error("current question not cleared")
	}
	if countClosingMessages(state) != 1 {
		t.Errorf("expected exactly one closing message, got %d", countClosingMessages(state))
	}
	for _, msg := range state.Messages {
		if msg.Content == EndInterviewMarker {
			t.Error("end-interview marker not removed")
		}
	}
}

func TestLatestUserUtteranceSkipsToolResults(t *testing.T) {
	state := newTestState(t)
	state.AppendMessage(NewMessage(llm.RoleUser, "my answer"))
	toolMsg := NewMessage(llm.RoleUser, "")
	toolMsg.ToolResults = []llm.ToolResult{{ToolCallID: "tc1", Content: "out"}}
	state.AppendMessage(toolMsg)

	msg, fresh := state.LatestUserUtterance()
	if msg.Content != "my answer" {
		t.Errorf("got %q, want the real utterance", msg.Content)
	}
	if !fresh {
		t.Error("unconsumed utterance should be fresh")
	}

	state.markAnalyzed(msg)
	if _, fresh := state.LatestUserUtterance(); fresh {
		t.Error("utterance should be stale after markAnalyzed")
	}
}

func TestWindow(t *testing.T) {
	state := NewInterviewState("elder-1")
	seedTranscript(state, 6)

	if got := len(state.Window(3)); got != 3 {
		t.Errorf("Window(3) returned %d messages", got)
	}
	if got := len(state.Window(10)); got != 6 {
		t.Errorf("Window(10) returned %d messages, want all 6", got)
	}
	last := state.Window(1)[0]
	if last.Content != "filler 5" {
		t.Errorf("window not taken from the tail: %q", last.Content)
	}
}
