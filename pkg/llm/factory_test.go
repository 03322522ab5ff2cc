package llm

import (
	"fmt"
	"testing"
)

func stubResolver(t *testing.T) Resolver {
	t.Helper()
	return func(model string) (string, string, string, error) {
		switch model {
		case "anthropic/claude-sonnet-4-5":
			return "anthropic", "claude-sonnet-4-5", "key-a", nil
		case "ollama/qwen3:8b":
			return "ollama", "qwen3:8b", "http://localhost:11434", nil
		case "mystery/model":
			return "mystery", "model", "", nil
		default:
			return "", "", "", fmt.Errorf("unknown model: %s", model)
		}
	}
}

func TestFactoryDispatch(t *testing.T) {
	var gotKey, gotModel string
	factory := NewFactory(ProviderClients{
		Anthropic: func(apiKey, model string) Client {
			gotKey, gotModel = apiKey, model
			return NewMockClient([]CompletionResponse{}, nil)
		},
	}, stubResolver(t))

	client, err := factory.NewClient("anthropic/claude-sonnet-4-5")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client == nil {
		t.Fatal("expected client")
	}
	if gotKey != "key-a" || gotModel != "claude-sonnet-4-5" {
		t.Errorf("constructor got (%q, %q)", gotKey, gotModel)
	}
}

func TestFactoryUnknownModel(t *testing.T) {
	factory := NewFactory(ProviderClients{}, stubResolver(t))
	if _, err := factory.NewClient("nope"); err == nil {
		t.Error("expected error for unknown model")
	}
}

func TestFactoryUnsupportedProvider(t *testing.T) {
	factory := NewFactory(ProviderClients{}, stubResolver(t))
	if _, err := factory.NewClient("mystery/model"); err == nil {
		t.Error("expected error for unsupported provider")
	}
}

func TestFactoryUnregisteredProvider(t *testing.T) {
	factory := NewFactory(ProviderClients{}, stubResolver(t))
	if _, err := factory.NewClient("ollama/qwen3:8b"); err == nil {
		t.Error("expected error when provider constructor is missing")
	}
}
