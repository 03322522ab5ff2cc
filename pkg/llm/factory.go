package llm

import (
	"fmt"
)

// ProviderClients holds constructors for each supported provider so the
// factory stays free of provider package imports and import cycles.
type ProviderClients struct {
	Anthropic func(apiKey, model string) Client
	OpenAI    func(apiKey, model string) Client
	Google    func(apiKey, model string) Client
	Ollama    func(hostURL, model string) Client
}

// Resolver maps a model identifier like "openai/gpt-4.1-nano" to its
// provider name, bare model name, and credential (API key, or host URL for
// ollama).
type Resolver func(model string) (provider, modelName, credential string, err error)

// Factory creates provider clients from model identifiers.
type Factory struct {
	providers ProviderClients
	resolve   Resolver
}

// NewFactory creates a factory.
func NewFactory(providers ProviderClients, resolve Resolver) *Factory {
	return &Factory{providers: providers, resolve: resolve}
}

// NewClient creates a raw client for the given model identifier.
func (f *Factory) NewClient(model string) (Client, error) {
	provider, modelName, credential, err := f.resolve(model)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve model %q: %w", model, err)
	}

	var construct func(string, string) Client
	switch provider {
	case "anthropic":
		construct = f.providers.Anthropic
	case "openai":
		construct = f.providers.OpenAI
	case "google":
		construct = f.providers.Google
	case "ollama":
		construct = f.providers.Ollama
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
	if construct == nil {
		return nil, fmt.Errorf("provider %s not registered", provider)
	}
	return construct(credential, modelName), nil
}
