// Package config provides configuration loading, validation, and management
// for the biographer.
//
// A single global Config instance is maintained in memory, protected by a
// mutex. GetConfig() returns the config BY VALUE (copy, not reference) so
// callers cannot mutate shared state; all loading goes through LoadConfig
// exactly once at bootstrap.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"biographer/pkg/logx"
)

// Provider identifiers for language model backends.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

// Environment variable names for provider credentials.
const (
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvGoogleAPIKey    = "GOOGLE_API_KEY"
	EnvOllamaHost      = "OLLAMA_HOST"
)

// Defaults applied when the config file omits a field.
const (
	DefaultModel     = "openai/gpt-4.1-nano"
	DefaultMaxSteps  = 25
	DefaultBankPath  = "questions.yaml"
	DefaultDBPath    = "biographer.db"
	SchemaVersion    = "1.0"
	DefaultMaxTokens = 4096
)

// SubjectConfig holds the names and pronouns used to personalize questions
// and messages. DeceasedName is the person the biography is about;
// IntervieweeName is the family member being interviewed.
type SubjectConfig struct {
	DeceasedName      string `json:"deceased_name"`
	IntervieweeName   string `json:"interviewee_name"`
	PronounSubject    string `json:"pronoun_subject"`
	PronounObject     string `json:"pronoun_object"`
	PronounPossessive string `json:"pronoun_possessive"`
	ElderID           string `json:"elder_id"` // Session partition key
}

// InterviewConfig holds interview pacing settings.
type InterviewConfig struct {
	// MaxSteps bounds the tool-call loop per turn; when the budget is about
	// to be exhausted the orchestrator suppresses further tool calls.
	MaxSteps int `json:"max_steps"`
	// MaxTokens caps each completion request.
	MaxTokens int `json:"max_tokens"`
	// BankPath points at the YAML question bank.
	BankPath string `json:"bank_path"`
	// MaxTokensPerMinute rate-limits model calls. Zero disables limiting.
	MaxTokensPerMinute int `json:"max_tokens_per_minute,omitempty"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	DBPath string `json:"db_path"`
}

// Config is the top-level biographer configuration.
type Config struct {
	Schema        string          `json:"schema_version"`
	Model         string          `json:"model"` // form: provider/model-name
	Subject       SubjectConfig   `json:"subject"`
	Interview     InterviewConfig `json:"interview"`
	Storage       StorageConfig   `json:"storage"`
	PrometheusURL string          `json:"prometheus_url,omitempty"`
}

//nolint:gochecknoglobals // Intentional singleton pattern for config management
var (
	config *Config
	logger *logx.Logger
	mu     sync.RWMutex
)

func getLogger() *logx.Logger {
	if logger == nil {
		logger = logx.NewLogger("config")
	}
	return logger
}

// LoadConfig reads and validates the config file, installing it as the
// process-wide configuration. Usually called once at startup.
func LoadConfig(path string) error {
	mu.Lock()
	defer mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := defaultConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config in %s: %w", path, err)
	}

	config = &cfg
	getLogger().Info("Config loaded: model=%s elder=%s", cfg.Model, cfg.Subject.ElderID)
	return nil
}

// SetConfig installs a configuration directly. Intended for tests and for
// callers that assemble configuration programmatically.
func SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	mu.Lock()
	defer mu.Unlock()
	config = &cfg
	return nil
}

// GetConfig returns the current configuration by value.
func GetConfig() (Config, error) {
	mu.RLock()
	defer mu.RUnlock()
	if config == nil {
		return Config{}, fmt.Errorf("config not loaded: call LoadConfig first")
	}
	return *config, nil
}

func defaultConfig() Config {
	return Config{
		Schema: SchemaVersion,
		Model:  DefaultModel,
		Subject: SubjectConfig{
			PronounSubject:    "they",
			PronounObject:     "them",
			PronounPossessive: "their",
		},
		Interview: InterviewConfig{
			MaxSteps:  DefaultMaxSteps,
			MaxTokens: DefaultMaxTokens,
			BankPath:  DefaultBankPath,
		},
		Storage: StorageConfig{DBPath: DefaultDBPath},
	}
}

// Validate checks the configuration for required fields.
func (c *Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if _, _, err := SplitModel(c.Model); err != nil {
		return err
	}
	if c.Subject.DeceasedName == "" {
		return fmt.Errorf("subject.deceased_name cannot be empty")
	}
	if c.Subject.IntervieweeName == "" {
		return fmt.Errorf("subject.interviewee_name cannot be empty")
	}
	if c.Interview.MaxSteps <= 0 {
		return fmt.Errorf("interview.max_steps must be positive")
	}
	return nil
}

// ProviderPattern maps a model-name prefix to its provider, used when a model
// is given without the provider/ qualifier.
type ProviderPattern struct {
	Prefix   string
	Provider string
}

//nolint:gochecknoglobals // Static inference table for bare model names.
var ProviderPatterns = []ProviderPattern{
	{"claude-", ProviderAnthropic},
	{"gpt-", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"o4", ProviderOpenAI},
	{"gemini-", ProviderGoogle},
	{"llama", ProviderOllama},
	{"qwen", ProviderOllama},
}

// SplitModel resolves a model identifier of the form "provider/model-name"
// into its provider and bare model name. Identifiers without a provider
// qualifier are resolved via prefix patterns.
func SplitModel(identifier string) (provider, model string, err error) {
	if before, after, found := strings.Cut(identifier, "/"); found {
		switch before {
		case ProviderAnthropic, ProviderOpenAI, ProviderGoogle, ProviderOllama:
			return before, after, nil
		default:
			return "", "", fmt.Errorf("unknown provider %q in model identifier %q", before, identifier)
		}
	}

	for i := range ProviderPatterns {
		if strings.HasPrefix(identifier, ProviderPatterns[i].Prefix) {
			return ProviderPatterns[i].Provider, identifier, nil
		}
	}

	return "", "", fmt.Errorf("unknown model %q: no provider qualifier or pattern match", identifier)
}

// GetAPIKey returns the credential for a provider. The secrets store is
// consulted first, then environment variables. Ollama has no API key; its
// host URL is returned instead.
func GetAPIKey(provider string) (string, error) {
	var envVar string
	switch provider {
	case ProviderAnthropic:
		envVar = EnvAnthropicAPIKey
	case ProviderOpenAI:
		envVar = EnvOpenAIAPIKey
	case ProviderGoogle:
		envVar = EnvGoogleAPIKey
	case ProviderOllama:
		host := os.Getenv(EnvOllamaHost)
		if host == "" {
			host = "http://localhost:11434"
		}
		return host, nil
	default:
		return "", fmt.Errorf("unknown provider: %s", provider)
	}

	if key, err := GetSecret(envVar); err == nil && key != "" {
		return key, nil
	}
	if key := os.Getenv(envVar); key != "" {
		return key, nil
	}

	return "", fmt.Errorf("API key not found: %s not in secrets store or environment", envVar)
}
