// Package ollamaclient provides the Ollama implementation of the llm.Client
// interface for locally hosted models.
package ollamaclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"biographer/pkg/llm"
	"biographer/pkg/llm/llmerrors"
	"biographer/pkg/tools"
)

// Client wraps the Ollama API client to implement llm.Client.
type Client struct {
	client *api.Client
	model  string
}

// New creates an Ollama client for the given model. hostURL is the Ollama
// server URL, e.g. "http://localhost:11434".
func New(hostURL, model string) *Client {
	parsedURL, err := url.Parse(hostURL)
	if err != nil {
		parsedURL, _ = url.Parse("http://localhost:11434")
	}
	return &Client{
		client: api.NewClient(parsedURL, http.DefaultClient),
		model:  model,
	}
}

// convertMessages converts our message format to Ollama's Message format.
// Tool results become separate messages with role "tool".
func convertMessages(messages []llm.CompletionMessage) ([]api.Message, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("message list cannot be empty")
	}

	result := make([]api.Message, 0, len(messages))
	for i := range messages {
		msg := &messages[i]

		ollamaMsg := api.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
		if len(msg.ToolCalls) > 0 {
			ollamaMsg.ToolCalls = make([]api.ToolCall, len(msg.ToolCalls))
			for j := range msg.ToolCalls {
				tc := &msg.ToolCalls[j]
				ollamaMsg.ToolCalls[j] = api.ToolCall{
					ID: tc.ID,
					Function: api.ToolCallFunction{
						Name:      tc.Name,
						Arguments: api.ToolCallFunctionArguments(tc.Parameters),
					},
				}
			}
		}

		if len(msg.ToolResults) > 0 {
			for j := range msg.ToolResults {
				tr := &msg.ToolResults[j]
				result = append(result, api.Message{
					Role:       "tool",
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}
			if msg.Content != "" {
				result = append(result, ollamaMsg)
			}
			continue
		}

		result = append(result, ollamaMsg)
	}
	return result, nil
}

func convertProperty(prop *tools.Property) api.ToolProperty {
	ollamaProp := api.ToolProperty{
		Type:        api.PropertyType{prop.Type},
		Description: prop.Description,
	}
	if len(prop.Enum) > 0 {
		enumVals := make([]any, len(prop.Enum))
		for i, v := range prop.Enum {
			enumVals[i] = v
		}
		ollamaProp.Enum = enumVals
	}
	if prop.Items != nil {
		ollamaProp.Items = convertProperty(prop.Items)
	}
	return ollamaProp
}

func convertTools(toolDefs []tools.ToolDefinition) api.Tools {
	ollamaTools := make(api.Tools, len(toolDefs))
	for i := range toolDefs {
		td := &toolDefs[i]
		properties := make(map[string]api.ToolProperty)
		for name := range td.InputSchema.Properties {
			prop := td.InputSchema.Properties[name]
			properties[name] = convertProperty(&prop)
		}
		ollamaTools[i] = api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        td.Name,
				Description: td.Description,
				Parameters: api.ToolFunctionParameters{
					Type:       td.InputSchema.Type,
					Properties: properties,
					Required:   td.InputSchema.Required,
				},
			},
		}
	}
	return ollamaTools
}

func (o *Client) chat(ctx context.Context, in llm.CompletionRequest, format json.RawMessage) (api.ChatResponse, error) {
	messages, err := convertMessages(in.Messages)
	if err != nil {
		return api.ChatResponse{}, llmerrors.Newf(llmerrors.ErrorTypeBadPrompt, "message conversion error: %v", err)
	}

	stream := false
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   &stream,
		Format:   format,
		Options: map[string]any{
			"temperature": in.Temperature,
			"num_predict": in.MaxTokens,
		},
	}
	if len(in.Tools) > 0 {
		req.Tools = convertTools(in.Tools)
	}

	var response api.ChatResponse
	err = o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return api.ChatResponse{}, classifyError(err)
	}
	return response, nil
}

// Complete implements llm.Client.
func (o *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	response, err := o.chat(ctx, in, nil)
	if err != nil {
		return llm.CompletionResponse{}, err
	}

	result := llm.CompletionResponse{
		Content:    response.Message.Content,
		StopReason: stopReason(&response),
	}
	for i := range response.Message.ToolCalls {
		call := &response.Message.ToolCalls[i]
		id := call.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		result.ToolCalls = append(result.ToolCalls, llm.ToolCall{
			ID:         id,
			Name:       call.Function.Name,
			Parameters: map[string]any(call.Function.Arguments),
		})
	}
	return result, nil
}

// CompleteStructured implements llm.Client using Ollama's structured output
// format, which accepts a JSON schema.
func (o *Client) CompleteStructured(ctx context.Context, in llm.CompletionRequest, schema llm.StructuredSchema) (json.RawMessage, error) {
	schemaJSON, err := json.Marshal(schemaToMap(schema.Schema))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s schema: %w", schema.Name, err)
	}

	structured := in
	structured.Tools = nil
	response, err := o.chat(ctx, structured, schemaJSON)
	if err != nil {
		return nil, err
	}

	content := response.Message.Content
	if !json.Valid([]byte(content)) {
		return nil, llmerrors.Newf(llmerrors.ErrorTypeSchemaViolation, "Ollama returned non-JSON payload for %s", schema.Name)
	}
	return json.RawMessage(content), nil
}

func schemaToMap(in tools.InputSchema) map[string]any {
	properties := make(map[string]any)
	for name, prop := range in.Properties {
		properties[name] = propertyToMap(&prop)
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   in.Required,
	}
}

func propertyToMap(prop *tools.Property) map[string]any {
	m := map[string]any{"type": prop.Type}
	if prop.Description != "" {
		m["description"] = prop.Description
	}
	if len(prop.Enum) > 0 {
		m["enum"] = prop.Enum
	}
	if prop.Items != nil {
		m["items"] = propertyToMap(prop.Items)
	}
	if prop.Properties != nil {
		nested := make(map[string]any)
		for name, child := range prop.Properties {
			if child != nil {
				nested[name] = propertyToMap(child)
			}
		}
		m["properties"] = nested
	}
	return m
}

// ModelName returns the model name for this client.
func (o *Client) ModelName() string {
	return o.model
}

func stopReason(resp *api.ChatResponse) string {
	if !resp.Done {
		return "incomplete"
	}
	switch resp.DoneReason {
	case "stop", "":
		return "end_turn"
	case "length":
		return "max_tokens"
	default:
		return resp.DoneReason
	}
}

func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return llmerrors.New(llmerrors.ErrorTypeTransient, err)
	}
	return llmerrors.New(llmerrors.TypeOf(err), fmt.Errorf("Ollama API call failed: %w", err))
}
