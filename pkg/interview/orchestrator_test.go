package interview

import (
	"context"
	"errors"
	"strings"
	"testing"

	"biographer/pkg/llm"
	"biographer/pkg/questionbank"
)

func newTestOrchestrator(t *testing.T, mock *llm.MockClient, bank *questionbank.Bank) *Orchestrator {
	t.Helper()
	state := NewInterviewState("elder-1")
	o, err := NewOrchestrator(mock, bank, state, Options{
		Subject:         testSubject(),
		IntervieweeName: "Sarah Chen",
		DeceasedName:    "Robert Chen",
	})
	if err != nil {
		t.Fatalf("NewOrchestrator failed: %v", err)
	}
	return o
}

func TestFirstTurnEmitsWelcomeWithoutModelCalls(t *testing.T) {
	mock := llm.NewMockClient(nil, nil)
	o := newTestOrchestrator(t, mock, testBank(t))

	replies, err := o.HandleUserTurn(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("HandleUserTurn failed: %v", err)
	}
	if len(replies) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(replies))
	}
	if !strings.Contains(replies[0].Content, "Sarah Chen") || !strings.Contains(replies[0].Content, "Robert Chen") {
		t.Errorf("welcome missing names: %q", replies[0].Content)
	}
	if mock.CompleteCalls != 0 || mock.StructuredCalls != 0 {
		t.Errorf("welcome turn made model calls: %d complete, %d structured", mock.CompleteCalls, mock.StructuredCalls)
	}
}

func TestSecondTurnPresentsContextualizedQuestion(t *testing.T) {
	mock := llm.NewMockClient(
		[]llm.CompletionResponse{{Content: "Speaking of that, where did Robert grow up?"}},
		nil,
	).WithStructured(analysisPayload(t, StatusComplete, false))
	o := newTestOrchestrator(t, mock, testBank(t))
	ctx := context.Background()

	if _, err := o.HandleUserTurn(ctx, "Hello"); err != nil {
		t.Fatal(err)
	}
	replies, err := o.HandleUserTurn(ctx, "He was my grandfather, born in 1925.")
	if err != nil {
		t.Fatalf("HandleUserTurn failed: %v", err)
	}

	if o.SessionState().Questions[1].Status != StatusComplete {
		t.Errorf("first question status = %s, want complete", o.SessionState().Questions[1].Status)
	}
	if len(replies) != 1 || replies[0].Content != "Speaking of that, where did Robert grow up?" {
		t.Errorf("unexpected replies: %+v", replies)
	}
	if current := o.SessionState().CurrentQuestionID; current != 2 {
		t.Errorf("current question = %d, want 2", current)
	}
}

func TestGeneralTurnToolLoop(t *testing.T) {
	// Turn: analysis keeps the question partial, so no new selection; the
	// general turn requests a tool, then concludes with plain text.
	toolCall := llm.ToolCall{ID: "tc1", Name: "list_questions", Parameters: map[string]any{}}
	mock := llm.NewMockClient(
		[]llm.CompletionResponse{
			{Content: "", ToolCalls: []llm.ToolCall{toolCall}},
			{Content: "Tell me more about that."},
		},
		nil,
	).WithStructured(analysisPayload(t, StatusPartial, true))
	o := newTestOrchestrator(t, mock, testBank(t))
	ctx := context.Background()

	if _, err := o.HandleUserTurn(ctx, "Hello"); err != nil {
		t.Fatal(err)
	}
	replies, err := o.HandleUserTurn(ctx, "Hmm, not sure.")
	if err != nil {
		t.Fatalf("HandleUserTurn failed: %v", err)
	}

	if mock.CompleteCalls != 2 {
		t.Errorf("expected 2 conversational calls, got %d", mock.CompleteCalls)
	}
	var sawToolResult bool
	for _, msg := range replies {
		if len(msg.ToolResults) > 0 {
			sawToolResult = true
		}
	}
	if !sawToolResult {
		t.Error("tool results not appended to transcript")
	}
	final := replies[len(replies)-1]
	if final.Role != llm.RoleAssistant || final.Content != "Tell me more about that." {
		t.Errorf("unexpected final message: %+v", final)
	}
}

func TestLastStepSuppressesToolCall(t *testing.T) {
	toolCall := llm.ToolCall{ID: "tc1", Name: "list_questions", Parameters: map[string]any{}}
	mock := llm.NewMockClient(
		[]llm.CompletionResponse{{ToolCalls: []llm.ToolCall{toolCall}}},
		nil,
	).WithStructured(analysisPayload(t, StatusPartial, true))
	o := newTestOrchestrator(t, mock, testBank(t))
	ctx := context.Background()

	if _, err := o.HandleUserTurn(ctx, "Hello"); err != nil {
		t.Fatal(err)
	}
	o.SessionState().IsLastStep = true

	replies, err := o.HandleUserTurn(ctx, "Hmm, not sure.")
	if err != nil {
		t.Fatalf("HandleUserTurn failed: %v", err)
	}
	final := replies[len(replies)-1]
	if final.Content != ApologyMessage {
		t.Errorf("expected apology, got %q", final.Content)
	}
	if mock.CompleteCalls != 1 {
		t.Errorf("tool should not have been dispatched: %d calls", mock.CompleteCalls)
	}
}

func TestAllCompleteFinishesWithSingleClosing(t *testing.T) {
	mock := llm.NewMockClient(nil, nil)
	o := newTestOrchestrator(t, mock, testBank(t))
	state := o.SessionState()
	state.EnsureQuestions(testBank(t), testSubject())
	for _, record := range state.Questions {
		record.Status = StatusComplete
	}
	seedTranscript(state, 2)
	ctx := context.Background()

	if _, err := o.HandleUserTurn(ctx, "Anything else?"); err != nil {
		t.Fatalf("HandleUserTurn failed: %v", err)
	}
	if !state.Finished {
		t.Error("session not finished with all questions complete")
	}
	if state.CurrentQuestionID != 0 {
		t.Error("current question not cleared")
	}
	if countClosingMessages(state) != 1 {
		t.Errorf("closing messages = %d, want 1", countClosingMessages(state))
	}

	// Further turns never emit a second closing message.
	if _, err := o.HandleUserTurn(ctx, "Hello again"); err != nil {
		t.Fatalf("post-finish turn failed: %v", err)
	}
	if countClosingMessages(state) != 1 {
		t.Errorf("closing messages after extra turn = %d, want 1", countClosingMessages(state))
	}
	if mock.CompleteCalls != 0 || mock.StructuredCalls != 0 {
		t.Errorf("finished session made model calls: %d/%d", mock.CompleteCalls, mock.StructuredCalls)
	}
}

func TestEmptyBankFinishesImmediately(t *testing.T) {
	emptyBank, err := questionbank.Parse([]byte("[]"))
	if err != nil {
		t.Fatalf("failed to parse empty bank: %v", err)
	}
	mock := llm.NewMockClient(nil, nil)
	o := newTestOrchestrator(t, mock, emptyBank)

	replies, err := o.HandleUserTurn(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("HandleUserTurn failed: %v", err)
	}
	if !o.SessionState().Finished {
		t.Error("empty bank should finish the session immediately")
	}
	if len(replies) != 1 || countClosingMessages(o.SessionState()) != 1 {
		t.Errorf("expected exactly the closing message, got %+v", replies)
	}
}

func TestEndInterviewToolFinishesSession(t *testing.T) {
	toolCall := llm.ToolCall{ID: "tc1", Name: "end_interview", Parameters: map[string]any{"reason": "enough"}}
	mock := llm.NewMockClient(
		[]llm.CompletionResponse{{ToolCalls: []llm.ToolCall{toolCall}}},
		nil,
	).WithStructured(analysisPayload(t, StatusPartial, true))
	o := newTestOrchestrator(t, mock, testBank(t))
	ctx := context.Background()

	if _, err := o.HandleUserTurn(ctx, "Hello"); err != nil {
		t.Fatal(err)
	}
	if _, err := o.HandleUserTurn(ctx, "I think we're done."); err != nil {
		t.Fatalf("HandleUserTurn failed: %v", err)
	}

	state := o.SessionState()
	if !state.Finished {
		t.Error("end_interview did not finish the session")
	}
	if countClosingMessages(state) != 1 {
		t.Errorf("closing messages = %d, want 1", countClosingMessages(state))
	}
	if mock.CompleteCalls != 1 {
		t.Errorf("loop continued after end_interview: %d calls", mock.CompleteCalls)
	}
}

func TestToolDispatchProtocolViolation(t *testing.T) {
	o := newTestOrchestrator(t, llm.NewMockClient(nil, nil), testBank(t))
	o.SessionState().AppendMessage(NewMessage(llm.RoleUser, "not an assistant message"))
	o.current = StateToolDispatch

	_, err := o.processToolDispatch(context.Background())
	if !errors.Is(err, ErrProtocolViolation) {
		t.Errorf("expected ErrProtocolViolation, got %v", err)
	}
}

func TestTransitionTableRejectsInvalidMoves(t *testing.T) {
	o := newTestOrchestrator(t, llm.NewMockClient(nil, nil), testBank(t))
	o.current = StateAnalyzeAnswer
	if err := o.transitionTo(StateDone); err == nil {
		t.Error("ANALYZE_ANSWER -> DONE should be rejected")
	}
	if err := o.transitionTo(StateSelectQuestion); err != nil {
		t.Errorf("legal transition rejected: %v", err)
	}
}

func TestToolIterationBudget(t *testing.T) {
	toolCall := llm.ToolCall{ID: "tc", Name: "list_questions", Parameters: map[string]any{}}
	// The model asks for tools forever.
	responses := make([]llm.CompletionResponse, 0, DefaultMaxToolIterations+2)
	for i := 0; i < DefaultMaxToolIterations+2; i++ {
		responses = append(responses, llm.CompletionResponse{ToolCalls: []llm.ToolCall{toolCall}})
	}
	mock := llm.NewMockClient(responses, nil).WithStructured(analysisPayload(t, StatusPartial, true))
	o := newTestOrchestrator(t, mock, testBank(t))
	ctx := context.Background()

	if _, err := o.HandleUserTurn(ctx, "Hello"); err != nil {
		t.Fatal(err)
	}
	replies, err := o.HandleUserTurn(ctx, "Hmm.")
	if err != nil {
		t.Fatalf("HandleUserTurn failed: %v", err)
	}
	final := replies[len(replies)-1]
	if final.Content != ApologyMessage {
		t.Errorf("expected apology after iteration budget, got %q", final.Content)
	}
}
