package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// MockClient provides a controllable implementation of Client for testing.
type MockClient struct {
	responses         []CompletionResponse
	responseIndex     int
	structured        []json.RawMessage
	structuredIndex   int
	errs              []error
	errIndex          int
	CompleteCalls     int
	StructuredCalls   int
	LastRequest       CompletionRequest
	LastStructuredReq CompletionRequest
}

// NewMockClient creates a mock client with predefined responses. Errors are
// consumed before responses: a non-nil entry in errs fails the next call.
func NewMockClient(responses []CompletionResponse, errs []error) *MockClient {
	return &MockClient{responses: responses, errs: errs}
}

// WithStructured attaches predefined structured-output payloads.
func (m *MockClient) WithStructured(payloads ...json.RawMessage) *MockClient {
	m.structured = append(m.structured, payloads...)
	return m
}

func (m *MockClient) nextErr() error {
	if m.errIndex < len(m.errs) && m.errs[m.errIndex] != nil {
		err := m.errs[m.errIndex]
		m.errIndex++
		return err
	}
	if m.errIndex < len(m.errs) {
		m.errIndex++
	}
	return nil
}

// Complete returns the next predefined response or error.
func (m *MockClient) Complete(_ context.Context, in CompletionRequest) (CompletionResponse, error) {
	m.CompleteCalls++
	m.LastRequest = in

	if err := m.nextErr(); err != nil {
		return CompletionResponse{}, err
	}
	if m.responseIndex >= len(m.responses) {
		return CompletionResponse{}, fmt.Errorf("mock client: no more responses")
	}
	resp := m.responses[m.responseIndex]
	m.responseIndex++
	return resp, nil
}

// CompleteStructured returns the next predefined structured payload or error.
func (m *MockClient) CompleteStructured(_ context.Context, in CompletionRequest, _ StructuredSchema) (json.RawMessage, error) {
	m.StructuredCalls++
	m.LastStructuredReq = in

	if err := m.nextErr(); err != nil {
		return nil, err
	}
	if m.structuredIndex >= len(m.structured) {
		return nil, fmt.Errorf("mock client: no more structured payloads")
	}
	payload := m.structured[m.structuredIndex]
	m.structuredIndex++
	return payload, nil
}

// ModelName returns a fixed mock model name.
func (m *MockClient) ModelName() string {
	return "mock-model"
}
