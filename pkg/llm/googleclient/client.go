// Package googleclient provides the Google Gemini implementation of the
// llm.Client interface.
package googleclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"biographer/pkg/llm"
	"biographer/pkg/llm/llmerrors"
	"biographer/pkg/tools"
)

// Client wraps the Google GenAI client to implement llm.Client.
type Client struct {
	client *genai.Client
	apiKey string
	model  string
}

// New creates a Gemini client for the given model. The underlying API client
// is created lazily because genai.NewClient requires a context.
func New(apiKey, model string) *Client {
	return &Client{
		apiKey: apiKey,
		model:  model,
	}
}

func (g *Client) ensureClient(ctx context.Context) error {
	if g.client != nil {
		return nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return llmerrors.Newf(llmerrors.ErrorTypeAuth, "failed to create Gemini client: %v", err)
	}
	g.client = client
	return nil
}

// convertMessages converts our message format to Gemini's Content format.
// Returns the contents array and an optional system instruction.
func convertMessages(messages []llm.CompletionMessage) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("message list cannot be empty")
	}

	var systemInstruction string
	var contents []*genai.Content

	for i := range messages {
		msg := &messages[i]

		if msg.Role == llm.RoleSystem {
			if systemInstruction != "" {
				systemInstruction += "\n\n" + msg.Content
			} else {
				systemInstruction = msg.Content
			}
			continue
		}

		var role string
		switch msg.Role {
		case llm.RoleUser:
			role = "user"
		case llm.RoleAssistant:
			role = "model"
		default:
			return nil, "", fmt.Errorf("unsupported message role: %s", msg.Role)
		}

		var parts []*genai.Part
		if msg.Content != "" {
			parts = append(parts, &genai.Part{Text: msg.Content})
		}
		for j := range msg.ToolCalls {
			tc := &msg.ToolCalls[j]
			parts = append(parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					Name: tc.Name,
					Args: tc.Parameters,
					ID:   tc.ID,
				},
			})
		}
		for j := range msg.ToolResults {
			tr := &msg.ToolResults[j]
			// Gemini matches responses by function name, carried in ToolCallID.
			if tr.ToolCallID == "" {
				continue
			}
			parts = append(parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					Name: tr.ToolCallID,
					Response: map[string]interface{}{
						"content":  tr.Content,
						"is_error": tr.IsError,
					},
				},
			})
		}

		if len(parts) > 0 {
			contents = append(contents, &genai.Content{Role: role, Parts: parts})
		}
	}

	return contents, systemInstruction, nil
}

// convertSchema recursively converts a Property to Gemini schema format.
func convertSchema(prop *tools.Property) *genai.Schema {
	schema := &genai.Schema{Description: prop.Description}

	switch prop.Type {
	case "string":
		schema.Type = genai.TypeString
	case "number":
		schema.Type = genai.TypeNumber
	case "integer":
		schema.Type = genai.TypeInteger
	case "boolean":
		schema.Type = genai.TypeBoolean
	case "array":
		schema.Type = genai.TypeArray
		if prop.Items != nil {
			schema.Items = convertSchema(prop.Items)
		}
	case "object":
		schema.Type = genai.TypeObject
		if prop.Properties != nil {
			properties := make(map[string]*genai.Schema)
			for name, childProp := range prop.Properties {
				if childProp != nil {
					properties[name] = convertSchema(childProp)
				}
			}
			schema.Properties = properties
		}
	default:
		schema.Type = genai.TypeString
	}

	if len(prop.Enum) > 0 {
		schema.Enum = prop.Enum
	}
	return schema
}

func objectSchema(in tools.InputSchema) *genai.Schema {
	properties := make(map[string]*genai.Schema)
	for name, prop := range in.Properties {
		properties[name] = convertSchema(&prop)
	}
	return &genai.Schema{
		Type:       genai.TypeObject,
		Properties: properties,
		Required:   in.Required,
	}
}

func (g *Client) baseConfig(in llm.CompletionRequest, systemInstruction string) *genai.GenerateContentConfig {
	temperature := in.Temperature
	//nolint:gosec // MaxTokens validated at higher layer
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(in.MaxTokens),
	}
	if systemInstruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		}
	}
	return config
}

// Complete implements llm.Client.
func (g *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if err := g.ensureClient(ctx); err != nil {
		return llm.CompletionResponse{}, err
	}

	contents, systemInstruction, err := convertMessages(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.Newf(llmerrors.ErrorTypeBadPrompt, "message conversion error: %v", err)
	}

	config := g.baseConfig(in, systemInstruction)
	if len(in.Tools) > 0 {
		declarations := make([]*genai.FunctionDeclaration, len(in.Tools))
		for i := range in.Tools {
			tool := &in.Tools[i]
			declarations[i] = &genai.FunctionDeclaration{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  objectSchema(tool.InputSchema),
			}
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: declarations}}
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if result == nil {
		return llm.CompletionResponse{}, llmerrors.Newf(llmerrors.ErrorTypeEmptyResponse, "empty response from Gemini API")
	}

	response := llm.CompletionResponse{
		Content:    result.Text(),
		StopReason: "end_turn",
	}
	if functionCalls := result.FunctionCalls(); len(functionCalls) > 0 {
		response.ToolCalls = make([]llm.ToolCall, len(functionCalls))
		for i, call := range functionCalls {
			id := call.ID
			if id == "" {
				id = call.Name
			}
			response.ToolCalls[i] = llm.ToolCall{ID: id, Name: call.Name, Parameters: call.Args}
		}
	}
	return response, nil
}

// CompleteStructured implements llm.Client using Gemini's native JSON
// response schema support.
func (g *Client) CompleteStructured(ctx context.Context, in llm.CompletionRequest, schema llm.StructuredSchema) (json.RawMessage, error) {
	if err := g.ensureClient(ctx); err != nil {
		return nil, err
	}

	contents, systemInstruction, err := convertMessages(in.Messages)
	if err != nil {
		return nil, llmerrors.Newf(llmerrors.ErrorTypeBadPrompt, "message conversion error: %v", err)
	}

	config := g.baseConfig(in, systemInstruction)
	config.ResponseMIMEType = "application/json"
	config.ResponseSchema = objectSchema(schema.Schema)

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return nil, classifyError(err)
	}
	if result == nil {
		return nil, llmerrors.Newf(llmerrors.ErrorTypeEmptyResponse, "empty response from Gemini API")
	}

	text := result.Text()
	if !json.Valid([]byte(text)) {
		return nil, llmerrors.Newf(llmerrors.ErrorTypeSchemaViolation, "Gemini returned non-JSON payload for %s", schema.Name)
	}
	return json.RawMessage(text), nil
}

// ModelName returns the model name for this client.
func (g *Client) ModelName() string {
	return g.model
}

func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return llmerrors.New(llmerrors.ErrorTypeTransient, err)
	}
	return llmerrors.New(llmerrors.TypeOf(err), fmt.Errorf("Gemini API call failed: %w", err))
}
