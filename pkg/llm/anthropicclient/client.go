// Package anthropicclient provides the Anthropic Claude implementation of
// the llm.Client interface.
package anthropicclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"biographer/pkg/llm"
	"biographer/pkg/llm/llmerrors"
	"biographer/pkg/tools"
)

// Client wraps the Anthropic API client to implement llm.Client.
type Client struct {
	client anthropic.Client
	model  anthropic.Model
}

// New creates a Claude client for the given model.
func New(apiKey, model string) *Client {
	return &Client{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}
}

// flatten renders tool calls and tool results as text so the history stays
// a plain user/assistant exchange at the API boundary.
func flatten(msg *llm.CompletionMessage) string {
	parts := make([]string, 0, 1+len(msg.ToolCalls)+len(msg.ToolResults))
	if msg.Content != "" {
		parts = append(parts, msg.Content)
	}
	for i := range msg.ToolCalls {
		call := &msg.ToolCalls[i]
		args, _ := json.Marshal(call.Parameters)
		parts = append(parts, fmt.Sprintf("[requested tool %s with %s]", call.Name, args))
	}
	for i := range msg.ToolResults {
		result := &msg.ToolResults[i]
		label := "tool result"
		if result.IsError {
			label = "tool error"
		}
		parts = append(parts, fmt.Sprintf("[%s for %s: %s]", label, result.ToolCallID, result.Content))
	}
	return strings.Join(parts, "\n")
}

// prepare extracts system messages into a single system prompt and merges
// consecutive non-assistant messages so the remainder strictly alternates
// user/assistant and ends with a user message, as the API requires.
func prepare(messages []llm.CompletionMessage) (systemPrompt string, alternating []llm.CompletionMessage, err error) {
	var systemParts []string
	var rest []llm.CompletionMessage

	for i := range messages {
		msg := &messages[i]
		if msg.Role == llm.RoleSystem {
			systemParts = append(systemParts, msg.Content)
		} else {
			rest = append(rest, *msg)
		}
	}
	systemPrompt = strings.Join(systemParts, "\n\n")

	if len(rest) == 0 {
		return "", nil, fmt.Errorf("must have at least one non-system message")
	}

	var merged []llm.CompletionMessage
	var userParts []string
	for i := range rest {
		msg := &rest[i]
		if msg.Role == llm.RoleAssistant {
			if len(userParts) > 0 {
				merged = append(merged, llm.NewUserMessage(strings.Join(userParts, "\n\n")))
				userParts = nil
			}
			merged = append(merged, llm.NewAssistantMessage(flatten(msg)))
		} else {
			userParts = append(userParts, flatten(msg))
		}
	}
	if len(userParts) > 0 {
		merged = append(merged, llm.NewUserMessage(strings.Join(userParts, "\n\n")))
	}

	if merged[0].Role != llm.RoleUser {
		return "", nil, fmt.Errorf("first message must be user role, got: %s", merged[0].Role)
	}
	if merged[len(merged)-1].Role != llm.RoleUser {
		return "", nil, fmt.Errorf("last message must be user role, got: %s", merged[len(merged)-1].Role)
	}

	return systemPrompt, merged, nil
}

func schemaToParams(schema tools.InputSchema) (properties any, required []string) {
	if len(schema.Properties) > 0 {
		props := make(map[string]any)
		for name := range schema.Properties {
			prop := schema.Properties[name]
			propMap := map[string]any{"type": prop.Type}
			if prop.Description != "" {
				propMap["description"] = prop.Description
			}
			if len(prop.Enum) > 0 {
				propMap["enum"] = prop.Enum
			}
			props[name] = propMap
		}
		properties = props
	}
	return properties, schema.Required
}

func (c *Client) buildParams(in llm.CompletionRequest) (anthropic.MessageNewParams, error) {
	systemPrompt, alternating, err := prepare(in.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, llmerrors.Newf(llmerrors.ErrorTypeBadPrompt, "message preparation failed: %v", err)
	}

	messages := make([]anthropic.MessageParam, 0, len(alternating))
	for i := range alternating {
		msg := &alternating[i]
		messages = append(messages, anthropic.MessageParam{
			Role:    anthropic.MessageParamRole(msg.Role),
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)},
		})
	}

	params := anthropic.MessageNewParams{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   int64(in.MaxTokens),
		Temperature: anthropic.Float(float64(in.Temperature)),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt, Type: "text"}}
	}

	if len(in.Tools) > 0 {
		toolParams := make([]anthropic.ToolUnionParam, 0, len(in.Tools))
		for i := range in.Tools {
			tool := &in.Tools[i]
			properties, required := schemaToParams(tool.InputSchema)
			toolParams = append(toolParams, anthropic.ToolUnionParamOfTool(anthropic.ToolInputSchemaParam{
				Type:       "object",
				Properties: properties,
				Required:   required,
			}, tool.Name))
		}
		params.Tools = toolParams
		params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}

	return params, nil
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	params, err := c.buildParams(in)
	if err != nil {
		return llm.CompletionResponse{}, err
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return llm.CompletionResponse{}, llmerrors.Newf(llmerrors.ErrorTypeEmptyResponse, "empty response from Claude API")
	}

	var responseText string
	var toolCalls []llm.ToolCall
	for i := range resp.Content {
		block := &resp.Content[i]
		switch block.Type {
		case "text":
			responseText += block.AsText().Text
		case "tool_use":
			toolUse := block.AsToolUse()
			var args map[string]any
			if err := json.Unmarshal(toolUse.Input, &args); err != nil {
				return llm.CompletionResponse{}, fmt.Errorf("failed to parse tool input: %w", err)
			}
			toolCalls = append(toolCalls, llm.ToolCall{ID: toolUse.ID, Name: toolUse.Name, Parameters: args})
		}
	}

	return llm.CompletionResponse{
		Content:    responseText,
		ToolCalls:  toolCalls,
		StopReason: string(resp.StopReason),
	}, nil
}

// CompleteStructured implements llm.Client. Claude has no native JSON-schema
// response mode, so the schema is presented as a single tool the model is
// forced to call; the tool input is the structured payload.
func (c *Client) CompleteStructured(ctx context.Context, in llm.CompletionRequest, schema llm.StructuredSchema) (json.RawMessage, error) {
	params, err := c.buildParams(in)
	if err != nil {
		return nil, err
	}

	properties, required := schemaToParams(schema.Schema)
	params.Tools = []anthropic.ToolUnionParam{
		anthropic.ToolUnionParamOfTool(anthropic.ToolInputSchemaParam{
			Type:       "object",
			Properties: properties,
			Required:   required,
		}, schema.Name),
	}
	params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyError(err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return nil, llmerrors.Newf(llmerrors.ErrorTypeEmptyResponse, "empty response from Claude API")
	}

	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "tool_use" {
			toolUse := block.AsToolUse()
			if toolUse.Name == schema.Name {
				return json.RawMessage(toolUse.Input), nil
			}
		}
	}

	return nil, llmerrors.Newf(llmerrors.ErrorTypeSchemaViolation, "model did not call the %s tool", schema.Name)
}

// ModelName returns the model name for this client.
func (c *Client) ModelName() string {
	return string(c.model)
}

func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return llmerrors.New(llmerrors.ErrorTypeTransient, err)
	}
	return llmerrors.New(llmerrors.TypeOf(err), fmt.Errorf("anthropic API call failed: %w", err))
}
