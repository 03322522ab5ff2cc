package anthropicclient

import (
	"strings"
	"testing"

	"biographer/pkg/llm"
)

func TestPrepareExtractsSystemPrompt(t *testing.T) {
	messages := []llm.CompletionMessage{
		llm.NewSystemMessage("You are an interviewer."),
		llm.NewSystemMessage("Be gentle."),
		llm.NewUserMessage("Hello"),
	}

	systemPrompt, alternating, err := prepare(messages)
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if !strings.Contains(systemPrompt, "You are an interviewer.") || !strings.Contains(systemPrompt, "Be gentle.") {
		t.Errorf("system prompt missing parts: %q", systemPrompt)
	}
	if len(alternating) != 1 || alternating[0].Role != llm.RoleUser {
		t.Errorf("expected single user message, got %+v", alternating)
	}
}

func TestPrepareMergesConsecutiveUserMessages(t *testing.T) {
	messages := []llm.CompletionMessage{
		llm.NewUserMessage("first"),
		llm.NewUserMessage("second"),
		llm.NewAssistantMessage("reply"),
		llm.NewUserMessage("third"),
	}

	_, alternating, err := prepare(messages)
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if len(alternating) != 3 {
		t.Fatalf("expected 3 merged messages, got %d", len(alternating))
	}
	if !strings.Contains(alternating[0].Content, "first") || !strings.Contains(alternating[0].Content, "second") {
		t.Errorf("consecutive user messages not merged: %q", alternating[0].Content)
	}
	for i, msg := range alternating {
		wantAssistant := i%2 == 1
		if wantAssistant != (msg.Role == llm.RoleAssistant) {
			t.Errorf("message %d breaks alternation: role=%s", i, msg.Role)
		}
	}
}

func TestPrepareRejectsEmptyConversation(t *testing.T) {
	if _, _, err := prepare([]llm.CompletionMessage{llm.NewSystemMessage("only system")}); err == nil {
		t.Error("expected error for conversation with no user messages")
	}
}

func TestPrepareRejectsAssistantFirst(t *testing.T) {
	messages := []llm.CompletionMessage{
		llm.NewAssistantMessage("hi"),
		llm.NewUserMessage("hello"),
	}
	if _, _, err := prepare(messages); err == nil {
		t.Error("expected error when conversation starts with assistant message")
	}
}

func TestPrepareRejectsAssistantLast(t *testing.T) {
	messages := []llm.CompletionMessage{
		llm.NewUserMessage("hello"),
		llm.NewAssistantMessage("hi"),
	}
	if _, _, err := prepare(messages); err == nil {
		t.Error("expected error when conversation ends with assistant message")
	}
}

func TestFlattenRendersToolTraffic(t *testing.T) {
	msg := llm.CompletionMessage{
		Role:    llm.RoleAssistant,
		Content: "Let me check.",
		ToolCalls: []llm.ToolCall{
			{ID: "tc1", Name: "list_questions", Parameters: map[string]any{}},
		},
	}

	text := flatten(&msg)
	if !strings.Contains(text, "Let me check.") {
		t.Errorf("flatten dropped content: %q", text)
	}
	if !strings.Contains(text, "list_questions") {
		t.Errorf("flatten dropped tool call: %q", text)
	}
}
