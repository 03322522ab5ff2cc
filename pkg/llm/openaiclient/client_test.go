package openaiclient

import (
	"strings"
	"testing"

	"biographer/pkg/llm"
	"biographer/pkg/tools"
)

func TestRenderInputLabelsRoles(t *testing.T) {
	messages := []llm.CompletionMessage{
		llm.NewSystemMessage("You are an interviewer."),
		llm.NewUserMessage("Hello"),
		llm.NewAssistantMessage("Hi there"),
	}

	input := renderInput(messages)
	if !strings.Contains(input, "System: You are an interviewer.") {
		t.Errorf("system message not labelled: %q", input)
	}
	if !strings.Contains(input, "Assistant: Hi there") {
		t.Errorf("assistant message not labelled: %q", input)
	}
	if !strings.Contains(input, "Hello") {
		t.Errorf("user message dropped: %q", input)
	}
}

func TestRenderInputIncludesToolResults(t *testing.T) {
	messages := []llm.CompletionMessage{
		{Role: llm.RoleUser, ToolResults: []llm.ToolResult{
			{ToolCallID: "tc1", Content: "3 questions available"},
		}},
	}

	input := renderInput(messages)
	if !strings.Contains(input, "Tool result (tc1)") || !strings.Contains(input, "3 questions available") {
		t.Errorf("tool result not rendered: %q", input)
	}
}

func TestConvertPropertyToSchemaNested(t *testing.T) {
	prop := tools.Property{
		Type:        "array",
		Description: "question ids",
		Items:       &tools.Property{Type: "integer"},
	}

	schema := convertPropertyToSchema(&prop)
	if schema["type"] != "array" {
		t.Errorf("expected array type, got %v", schema["type"])
	}
	items, ok := schema["items"].(map[string]interface{})
	if !ok || items["type"] != "integer" {
		t.Errorf("items not converted: %v", schema["items"])
	}
}

func TestFunctionToolCarriesSchema(t *testing.T) {
	schema := tools.InputSchema{
		Type: "object",
		Properties: map[string]tools.Property{
			"question_id": {Type: "integer", Description: "bank id"},
		},
		Required: []string{"question_id"},
	}

	tool := functionTool("select_question", "Select the next question", schema)
	if tool.OfFunction == nil {
		t.Fatal("expected function tool")
	}
	if tool.OfFunction.Name != "select_question" {
		t.Errorf("unexpected tool name: %s", tool.OfFunction.Name)
	}
	params := map[string]interface{}(tool.OfFunction.Parameters)
	if params["type"] != "object" {
		t.Errorf("unexpected parameters type: %v", params["type"])
	}
}
