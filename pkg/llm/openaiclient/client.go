// Package openaiclient provides the OpenAI implementation of the llm.Client
// interface using the official OpenAI Go package.
package openaiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"biographer/pkg/llm"
	"biographer/pkg/llm/llmerrors"
	"biographer/pkg/tools"
)

// Client wraps the official OpenAI Go client to implement llm.Client.
type Client struct {
	client openai.Client
	model  string
}

// New creates an OpenAI client for the given model.
func New(apiKey, model string) *Client {
	return &Client{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// convertPropertyToSchema recursively converts a Property to OpenAI schema format.
func convertPropertyToSchema(prop *tools.Property) map[string]interface{} {
	schema := map[string]interface{}{
		"type":        prop.Type,
		"description": prop.Description,
	}
	if len(prop.Enum) > 0 {
		schema["enum"] = prop.Enum
	}
	if prop.Type == "array" && prop.Items != nil {
		schema["items"] = convertPropertyToSchema(prop.Items)
	}
	if prop.Type == "object" && prop.Properties != nil {
		properties := make(map[string]interface{})
		for name, childProp := range prop.Properties {
			if childProp != nil {
				properties[name] = convertPropertyToSchema(childProp)
			}
		}
		schema["properties"] = properties
	}
	return schema
}

func functionTool(name, description string, schema tools.InputSchema) responses.ToolUnionParam {
	properties := make(map[string]interface{})
	for propName, prop := range schema.Properties {
		properties[propName] = convertPropertyToSchema(&prop)
	}
	return responses.ToolUnionParam{
		OfFunction: &responses.FunctionToolParam{
			Name:        name,
			Description: openai.String(description),
			Parameters: openai.FunctionParameters(map[string]interface{}{
				"type":       "object",
				"properties": properties,
				"required":   schema.Required,
			}),
		},
	}
}

// renderInput folds the conversation into a single input string for the
// Responses API, labelling non-user turns.
func renderInput(messages []llm.CompletionMessage) string {
	var sb strings.Builder
	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			fmt.Fprintf(&sb, "System: %s\n\n", msg.Content)
		case llm.RoleAssistant:
			fmt.Fprintf(&sb, "Assistant: %s\n\n", msg.Content)
			for j := range msg.ToolCalls {
				call := &msg.ToolCalls[j]
				args, _ := json.Marshal(call.Parameters)
				fmt.Fprintf(&sb, "Assistant called tool %s with %s\n\n", call.Name, args)
			}
		default:
			if msg.Content != "" {
				fmt.Fprintf(&sb, "%s\n\n", msg.Content)
			}
			for j := range msg.ToolResults {
				result := &msg.ToolResults[j]
				fmt.Fprintf(&sb, "Tool result (%s): %s\n\n", result.ToolCallID, result.Content)
			}
		}
	}
	return strings.TrimSuffix(sb.String(), "\n\n")
}

func (c *Client) newResponse(ctx context.Context, in llm.CompletionRequest, extraTools []responses.ToolUnionParam) (*responses.Response, error) {
	params := responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(int64(in.MaxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(renderInput(in.Messages))},
	}

	toolParams := make([]responses.ToolUnionParam, 0, len(in.Tools)+len(extraTools))
	for i := range in.Tools {
		tool := &in.Tools[i]
		toolParams = append(toolParams, functionTool(tool.Name, tool.Description, tool.InputSchema))
	}
	toolParams = append(toolParams, extraTools...)
	if len(toolParams) > 0 {
		params.Tools = toolParams
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return nil, classifyError(err)
	}
	if resp == nil {
		return nil, llmerrors.Newf(llmerrors.ErrorTypeEmptyResponse, "empty response from OpenAI Responses API")
	}
	return resp, nil
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	resp, err := c.newResponse(ctx, in, nil)
	if err != nil {
		return llm.CompletionResponse{}, err
	}

	var toolCalls []llm.ToolCall
	for i := range resp.Output {
		item := &resp.Output[i]
		if item.Type != "function_call" {
			continue
		}
		funcItem := item.AsFunctionCall()
		var parameters map[string]interface{}
		if funcItem.Arguments != "" {
			if err := json.Unmarshal([]byte(funcItem.Arguments), &parameters); err != nil {
				continue
			}
		}
		toolCalls = append(toolCalls, llm.ToolCall{
			ID:         funcItem.ID,
			Name:       funcItem.Name,
			Parameters: parameters,
		})
	}

	content := resp.OutputText()
	if content == "" && len(toolCalls) == 0 {
		return llm.CompletionResponse{}, llmerrors.Newf(llmerrors.ErrorTypeEmptyResponse, "OpenAI returned no text and no tool calls")
	}

	return llm.CompletionResponse{
		Content:   content,
		ToolCalls: toolCalls,
	}, nil
}

// CompleteStructured implements llm.Client. The schema is exposed as a single
// function the model is instructed to call; the call arguments are the
// structured payload.
func (c *Client) CompleteStructured(ctx context.Context, in llm.CompletionRequest, schema llm.StructuredSchema) (json.RawMessage, error) {
	forced := in
	forced.Tools = nil
	forced.Messages = append(append([]llm.CompletionMessage{}, in.Messages...),
		llm.NewSystemMessage(fmt.Sprintf("Respond only by calling the %s function.", schema.Name)))

	resp, err := c.newResponse(ctx, forced, []responses.ToolUnionParam{
		functionTool(schema.Name, schema.Description, schema.Schema),
	})
	if err != nil {
		return nil, err
	}

	for i := range resp.Output {
		item := &resp.Output[i]
		if item.Type != "function_call" {
			continue
		}
		funcItem := item.AsFunctionCall()
		if funcItem.Name != schema.Name || funcItem.Arguments == "" {
			continue
		}
		if !json.Valid([]byte(funcItem.Arguments)) {
			return nil, llmerrors.Newf(llmerrors.ErrorTypeSchemaViolation, "malformed %s arguments", schema.Name)
		}
		return json.RawMessage(funcItem.Arguments), nil
	}

	// Some models answer with raw JSON text instead of calling the function.
	if text := strings.TrimSpace(resp.OutputText()); json.Valid([]byte(text)) && text != "" {
		return json.RawMessage(text), nil
	}

	return nil, llmerrors.Newf(llmerrors.ErrorTypeSchemaViolation, "model did not call the %s function", schema.Name)
}

// ModelName returns the model name for this client.
func (c *Client) ModelName() string {
	return c.model
}

func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return llmerrors.New(llmerrors.ErrorTypeTransient, err)
	}
	return llmerrors.New(llmerrors.TypeOf(err), fmt.Errorf("OpenAI Responses API failed: %w", err))
}
