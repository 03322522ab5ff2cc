// Command biographer runs an interactive biographical interview session on
// the terminal. It loads configuration and the question bank, connects the
// configured language model provider, and persists the session transcript
// after every turn.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/term"

	"biographer/pkg/config"
	"biographer/pkg/interview"
	"biographer/pkg/limiter"
	"biographer/pkg/llm"
	"biographer/pkg/llm/anthropicclient"
	"biographer/pkg/llm/googleclient"
	"biographer/pkg/llm/ollamaclient"
	"biographer/pkg/llm/openaiclient"
	"biographer/pkg/logx"
	"biographer/pkg/metrics"
	"biographer/pkg/persistence"
	"biographer/pkg/questionbank"
	"biographer/pkg/tokens"
	"biographer/pkg/version"
)

func main() {
	var (
		configPath  = flag.String("config", "config.json", "Path to config file")
		bankPath    = flag.String("bank", "", "Path to question bank YAML (overrides config)")
		dbPath      = flag.String("db", "", "Path to session database (overrides config)")
		elderID     = flag.String("elder", "", "Elder/session partition id (overrides config)")
		debug       = flag.Bool("debug", false, "Enable debug logging")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("biographer %s\n", version.Version)
		fmt.Printf("  commit: %s\n", version.Commit)
		fmt.Printf("  built:  %s\n", version.Date)
		os.Exit(0)
	}

	if *debug {
		logx.SetDebug(true)
	}

	os.Exit(run(*configPath, *bankPath, *dbPath, *elderID))
}

// run contains the main application logic and returns an exit code, so
// defers execute before the process exits.
func run(configPath, bankPath, dbPath, elderID string) int {
	logger := logx.NewLogger("biographer")

	if err := config.LoadConfig(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	// Credentials may live in an encrypted secrets file next to the config;
	// fall back to environment variables when absent.
	projectDir := filepath.Dir(configPath)
	if err := handleSecretsDecryption(projectDir); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to handle secrets: %v\n", err)
		return 1
	}

	cfg, err := config.GetConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config unavailable: %v\n", err)
		return 1
	}
	if bankPath == "" {
		bankPath = cfg.Interview.BankPath
	}
	if dbPath == "" {
		dbPath = cfg.Storage.DBPath
	}
	if elderID == "" {
		elderID = cfg.Subject.ElderID
	}

	bank, err := questionbank.Load(bankPath)
	if err != nil {
		if errors.Is(err, questionbank.ErrBankMissing) {
			fmt.Fprintf(os.Stderr, "Question bank not found at %s - nothing to interview about\n", bankPath)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Failed to load question bank: %v\n", err)
		return 1
	}
	logger.Info("Loaded %d questions from %s", bank.Len(), bankPath)

	client, modelName, err := buildClient(cfg.Model)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create model client: %v\n", err)
		return 1
	}

	recorder := metrics.NewPrometheusRecorder()
	counter, err := tokens.NewCounter(modelName)
	if err != nil {
		logger.Warn("Token counter unavailable for %s: %v", modelName, err)
		counter = nil
	}
	client = llm.WithMetrics(client, recorder, counter)
	if tpm := cfg.Interview.MaxTokensPerMinute; tpm > 0 {
		client = llm.WithRateLimit(client, limiter.New(tpm), counter)
		logger.Info("Rate limiting model calls to %d tokens/minute", tpm)
	}

	store, err := persistence.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open session store: %v\n", err)
		return 1
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Warn("Failed to close session store: %v", closeErr)
		}
	}()

	subject := questionbank.SubjectInfo{
		Name:              cfg.Subject.DeceasedName,
		IntervieweeName:   cfg.Subject.IntervieweeName,
		PronounSubject:    cfg.Subject.PronounSubject,
		PronounObject:     cfg.Subject.PronounObject,
		PronounPossessive: cfg.Subject.PronounPossessive,
	}

	state := interview.NewInterviewState(elderID)
	orch, err := interview.NewOrchestrator(client, bank, state, interview.Options{
		Subject:         subject,
		IntervieweeName: cfg.Subject.IntervieweeName,
		DeceasedName:    cfg.Subject.DeceasedName,
		Recorder:        recorder,
		Counter:         counter,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create orchestrator: %v\n", err)
		return 1
	}

	fmt.Printf("📖 Biographer session %s (model: %s)\n", state.SessionID, cfg.Model)
	fmt.Println("Type your messages below. Ctrl-D or /quit to stop.")
	fmt.Println()

	if err := interviewLoop(orch, store, cfg.Interview.MaxSteps, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Interview failed: %v\n", err)
		return 1
	}

	printUsageSummary(cfg.PrometheusURL, logger)
	return 0
}

// interviewLoop reads user turns from stdin until the session finishes, the
// input stream ends, or the turn budget runs out. The session is saved after
// every turn so a crash never loses more than the in-flight turn.
func interviewLoop(orch *interview.Orchestrator, store *persistence.Store, maxTurns int, logger *logx.Logger) error {
	ctx := context.Background()
	scanner := bufio.NewScanner(os.Stdin)
	state := orch.SessionState()

	for turn := 1; ; turn++ {
		if maxTurns > 0 && turn >= maxTurns {
			state.IsLastStep = true
		}

		fmt.Print("You: ")
		if !scanner.Scan() {
			fmt.Println()
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			turn--
			continue
		}
		if input == "/quit" {
			break
		}

		replies, err := orch.HandleUserTurn(ctx, input)
		if err != nil {
			return fmt.Errorf("turn %d failed: %w", turn, err)
		}
		for _, msg := range replies {
			if msg.Role == llm.RoleAssistant && msg.Content != "" {
				fmt.Printf("\nInterviewer: %s\n\n", msg.Content)
			}
		}

		if err := store.SaveSession(ctx, state); err != nil {
			logger.Warn("Failed to save session: %v", err)
		}

		if state.Finished {
			break
		}
		if maxTurns > 0 && turn >= maxTurns {
			fmt.Println("Turn budget reached, ending session.")
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	if err := store.SaveSession(ctx, state); err != nil {
		logger.Warn("Failed to save session on exit: %v", err)
	}
	return nil
}

// buildClient resolves the configured model identifier and constructs the
// matching provider client. Returns the bare model name alongside the client
// for token counting.
func buildClient(model string) (llm.Client, string, error) {
	factory := llm.NewFactory(llm.ProviderClients{
		Anthropic: func(cred, model string) llm.Client { return anthropicclient.New(cred, model) },
		OpenAI:    func(cred, model string) llm.Client { return openaiclient.New(cred, model) },
		Google:    func(cred, model string) llm.Client { return googleclient.New(cred, model) },
		Ollama:    func(cred, model string) llm.Client { return ollamaclient.New(cred, model) },
	}, resolveModel)

	client, err := factory.NewClient(model)
	if err != nil {
		return nil, "", err
	}
	_, modelName, _ := config.SplitModel(model)
	return client, modelName, nil
}

// resolveModel adapts the config package's model parsing and credential
// lookup to the client factory.
func resolveModel(model string) (provider, modelName, credential string, err error) {
	provider, modelName, err = config.SplitModel(model)
	if err != nil {
		return "", "", "", err
	}
	credential, err = config.GetAPIKey(provider)
	if err != nil {
		return "", "", "", err
	}
	return provider, modelName, credential, nil
}

// handleSecretsDecryption prompts for the project password and loads the
// encrypted secrets file when one exists. Missing file is not an error.
func handleSecretsDecryption(projectDir string) error {
	if !config.SecretsFileExists(projectDir) {
		return nil
	}

	fmt.Print("🔐 Enter password to unlock credentials: ")
	password, err := term.ReadPassword(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	defer func() {
		for i := range password {
			password[i] = 0
		}
	}()

	if err := config.DecryptSecretsFile(projectDir, string(password)); err != nil {
		return err
	}
	fmt.Println("✅ Credentials unlocked")
	return nil
}

// printUsageSummary reports aggregate token usage from Prometheus when a
// query endpoint is configured.
func printUsageSummary(prometheusURL string, logger *logx.Logger) {
	if prometheusURL == "" {
		return
	}
	query, err := metrics.NewQueryService(prometheusURL)
	if err != nil {
		logger.Warn("Metrics query unavailable: %v", err)
		return
	}
	usage, err := query.GetUsage(context.Background())
	if err != nil {
		logger.Warn("Failed to query usage: %v", err)
		return
	}
	fmt.Printf("📊 Session usage: %d prompt tokens, %d completion tokens, %d total\n",
		usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)
}
