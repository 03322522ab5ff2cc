package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"biographer/pkg/interview"
	"biographer/pkg/llm"
	"biographer/pkg/questionbank"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleState(t *testing.T) *interview.InterviewState {
	t.Helper()
	bank, err := questionbank.Parse([]byte(`
- question: "What year was {name} born?"
  priority: 0
- question: "Where did {name} grow up?"
  priority: 1
`))
	if err != nil {
		t.Fatal(err)
	}
	state := interview.NewInterviewState("elder-7")
	state.EnsureQuestions(bank, questionbank.SubjectInfo{Name: "Robert Chen"})
	state.AppendMessage(interview.NewMessage(llm.RoleUser, "Hello"))
	state.AppendMessage(interview.NewMessage(llm.RoleAssistant, "Welcome"))
	record := state.Questions[1]
	record.Status = interview.StatusPartial
	record.Answers = []string{"1925, I think"}
	record.Analysis = "needs detail"
	now := time.Now().UTC()
	record.LastAsked = &now
	return state
}

func TestSaveAndReadSession(t *testing.T) {
	store := openTestStore(t)
	state := sampleState(t)
	ctx := context.Background()

	if err := store.SaveSession(ctx, state); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	sessions, err := store.SessionsByElder(ctx, "elder-7")
	if err != nil {
		t.Fatalf("SessionsByElder failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != state.SessionID {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}
	if sessions[0].Finished {
		t.Error("session should not be finished")
	}

	messages, err := store.Messages(ctx, state.SessionID)
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	if len(messages) != 2 || messages[0].Content != "Hello" || messages[1].Role != "assistant" {
		t.Errorf("unexpected messages: %+v", messages)
	}

	questions, err := store.Questions(ctx, state.SessionID)
	if err != nil {
		t.Fatalf("Questions failed: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(questions))
	}
	first := questions[0]
	if first.Status != "partial" || len(first.Answers) != 1 || first.Answers[0] != "1925, I think" {
		t.Errorf("unexpected snapshot: %+v", first)
	}
	if first.LastAsked == nil {
		t.Error("last_asked not persisted")
	}
}

func TestSaveSessionUpsert(t *testing.T) {
	store := openTestStore(t)
	state := sampleState(t)
	ctx := context.Background()

	if err := store.SaveSession(ctx, state); err != nil {
		t.Fatal(err)
	}

	state.AppendMessage(interview.NewMessage(llm.RoleUser, "One more thing"))
	state.Finished = true
	if err := store.SaveSession(ctx, state); err != nil {
		t.Fatalf("second SaveSession failed: %v", err)
	}

	sessions, err := store.SessionsByElder(ctx, "elder-7")
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 {
		t.Fatalf("upsert created %d sessions", len(sessions))
	}
	if !sessions[0].Finished {
		t.Error("finished flag not updated")
	}

	messages, err := store.Messages(ctx, state.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 3 {
		t.Errorf("expected 3 messages after re-save, got %d", len(messages))
	}
}
