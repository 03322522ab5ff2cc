package interview

import (
	"context"
	"errors"
	"testing"

	"biographer/pkg/llm"
)

func TestContextualizeReturnsTrimmedRephrasing(t *testing.T) {
	state := newTestState(t)
	seedTranscript(state, 4)
	mock := llm.NewMockClient([]llm.CompletionResponse{{Content: "  Speaking of that, where did he grow up?  \n"}}, nil)
	c := NewContextualizer(mock, nil, "Sarah Chen", "Robert Chen")

	got := c.Contextualize(context.Background(), state, "Where did Robert Chen grow up?")
	if got != "Speaking of that, where did he grow up?" {
		t.Errorf("Contextualize = %q", got)
	}
}

func TestContextualizeFallsBackOnError(t *testing.T) {
	state := newTestState(t)
	mock := llm.NewMockClient(nil, []error{errors.New("timeout")})
	c := NewContextualizer(mock, nil, "Sarah Chen", "Robert Chen")

	original := "Where did Robert Chen grow up?"
	if got := c.Contextualize(context.Background(), state, original); got != original {
		t.Errorf("expected original text on failure, got %q", got)
	}
}

func TestContextualizeFallsBackOnEmptyReply(t *testing.T) {
	state := newTestState(t)
	mock := llm.NewMockClient([]llm.CompletionResponse{{Content: "   "}}, nil)
	c := NewContextualizer(mock, nil, "Sarah Chen", "Robert Chen")

	original := "Where did Robert Chen grow up?"
	if got := c.Contextualize(context.Background(), state, original); got != original {
		t.Errorf("expected original text on empty reply, got %q", got)
	}
}
