package interview

import (
	"context"
	"errors"
	"testing"

	"biographer/pkg/llm"
)

func TestSelectorPicksFirstInSourceOrderEarly(t *testing.T) {
	state := newTestState(t)
	seedTranscript(state, 2) // at the bootstrap threshold, no model call
	mock := llm.NewMockClient(nil, nil)
	selector := NewSelector(mock, nil)

	record, selectedNew := selector.Select(context.Background(), state)
	if record == nil || !selectedNew {
		t.Fatal("expected a new selection")
	}
	if record.ID != 1 {
		t.Errorf("selected id %d, want first priority-0 question", record.ID)
	}
	if record.Status != StatusInProgress {
		t.Errorf("selected record status = %s, want in_progress", record.Status)
	}
	if state.CurrentQuestionID != record.ID {
		t.Error("current question pointer not set")
	}
	if record.LastAsked == nil {
		t.Error("LastAsked not stamped")
	}
	if mock.CompleteCalls != 0 {
		t.Errorf("expected no model calls, got %d", mock.CompleteCalls)
	}
}

func TestSelectorPriorityOrdering(t *testing.T) {
	state := newTestState(t)
	seedTranscript(state, 2)
	selector := NewSelector(llm.NewMockClient(nil, nil), nil)

	// While a priority-0 question is not started, nothing above is chosen.
	record, _ := selector.Select(context.Background(), state)
	if record.Priority != 0 {
		t.Fatalf("selected priority %d while priority 0 available", record.Priority)
	}

	for _, r := range state.Questions {
		if r.Priority == 0 {
			r.Status = StatusComplete
		}
	}
	state.CurrentQuestionID = 0
	record, _ = selector.Select(context.Background(), state)
	if record == nil || record.Priority != 1 {
		t.Fatalf("expected priority-1 selection, got %+v", record)
	}
}

func TestSelectorNeverReturnsStartedQuestion(t *testing.T) {
	state := newTestState(t)
	seedTranscript(state, 2)
	state.Questions[1].Status = StatusPartial
	state.Questions[2].Status = StatusComplete
	selector := NewSelector(llm.NewMockClient(nil, nil), nil)

	record, _ := selector.Select(context.Background(), state)
	if record == nil {
		t.Fatal("expected a selection")
	}
	if record.ID == 1 || record.ID == 2 {
		t.Errorf("selected question %d whose status was not not_started", record.ID)
	}
}

func TestSelectorModelDisambiguation(t *testing.T) {
	state := newTestState(t)
	seedTranscript(state, 4) // past the bootstrap threshold
	mock := llm.NewMockClient([]llm.CompletionResponse{{Content: "2"}}, nil)
	selector := NewSelector(mock, nil)

	record, _ := selector.Select(context.Background(), state)
	if record == nil || record.ID != 2 {
		t.Fatalf("expected model-chosen id 2, got %+v", record)
	}
	if mock.CompleteCalls != 1 {
		t.Errorf("expected 1 model call, got %d", mock.CompleteCalls)
	}
}

func TestSelectorFallbackOnModelError(t *testing.T) {
	state := newTestState(t)
	seedTranscript(state, 4)
	mock := llm.NewMockClient(nil, []error{errors.New("boom")})
	selector := NewSelector(mock, nil)

	record, _ := selector.Select(context.Background(), state)
	if record == nil || record.ID != 1 {
		t.Fatalf("expected deterministic fallback to id 1, got %+v", record)
	}
}

func TestSelectorFallbackOnUnknownID(t *testing.T) {
	state := newTestState(t)
	seedTranscript(state, 4)
	mock := llm.NewMockClient([]llm.CompletionResponse{{Content: "999"}}, nil)
	selector := NewSelector(mock, nil)

	record, _ := selector.Select(context.Background(), state)
	if record == nil || record.ID != 1 {
		t.Fatalf("expected fallback to id 1 on unknown id, got %+v", record)
	}
}

func TestSelectorIdempotentWithoutAnalysis(t *testing.T) {
	state := newTestState(t)
	seedTranscript(state, 2)
	mock := llm.NewMockClient(nil, nil)
	selector := NewSelector(mock, nil)

	first, selectedNew := selector.Select(context.Background(), state)
	if !selectedNew {
		t.Fatal("first call should select")
	}
	second, selectedNew := selector.Select(context.Background(), state)
	if selectedNew {
		t.Error("second call should not re-select")
	}
	if second == nil || second.ID != first.ID {
		t.Errorf("current question changed: %v -> %v", first.ID, second.ID)
	}
	if mock.CompleteCalls != 0 {
		t.Errorf("idempotent re-select made %d model calls", mock.CompleteCalls)
	}
}

func TestSelectorNoneWhenAllComplete(t *testing.T) {
	state := newTestState(t)
	for _, record := range state.Questions {
		record.Status = StatusComplete
	}
	selector := NewSelector(llm.NewMockClient(nil, nil), nil)

	record, selectedNew := selector.Select(context.Background(), state)
	if record != nil || selectedNew {
		t.Errorf("expected no selection, got %+v", record)
	}
}

func TestParseQuestionID(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"3", 3, false},
		{" 12 \n", 12, false},
		{"ID: 7", 7, false},
		{"The best question is 4.", 4, false},
		{"none of these", 0, true},
		{"", 0, true},
	}
	for _, tc := range cases {
		got, err := parseQuestionID(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseQuestionID(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("parseQuestionID(%q) = %d, %v; want %d", tc.in, got, err, tc.want)
		}
	}
}
