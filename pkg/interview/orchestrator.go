package interview

import (
	"context"
	"errors"
	"fmt"
	"time"

	"biographer/pkg/llm"
	"biographer/pkg/logx"
	"biographer/pkg/metrics"
	"biographer/pkg/questionbank"
	"biographer/pkg/tokens"
	"biographer/pkg/tools"
)

// State identifies a stage of the per-turn pipeline.
type State string

const (
	// StateAnalyzeAnswer judges the latest user utterance. Runs first every
	// turn; a no-op until a question is active.
	StateAnalyzeAnswer State = "ANALYZE_ANSWER"
	// StateSelectQuestion picks the next question or ends the session when
	// every question is complete.
	StateSelectQuestion State = "SELECT_QUESTION"
	// StateConverse produces the assistant's message for this turn.
	StateConverse State = "CONVERSE"
	// StateToolDispatch executes tools the model requested, then returns to
	// StateConverse.
	StateToolDispatch State = "TOOL_DISPATCH"
	// StateDone ends the turn.
	StateDone State = "DONE"
)

// TransitionTable lists the legal successor states for each state.
type TransitionTable map[State][]State

// ValidTransitions is the interview pipeline's transition table.
//
//nolint:gochecknoglobals // Shared immutable transition table.
var ValidTransitions = TransitionTable{
	StateAnalyzeAnswer:  {StateSelectQuestion},
	StateSelectQuestion: {StateConverse, StateDone},
	StateConverse:       {StateToolDispatch, StateDone},
	StateToolDispatch:   {StateConverse, StateDone},
	StateDone:           {},
}

// ErrProtocolViolation signals a transcript in an impossible shape: the last
// entry is not an assistant message where one is required. This is a broken
// invariant in the calling runtime, not a recoverable condition.
var ErrProtocolViolation = errors.New("transcript protocol violation")

// DefaultMaxToolIterations bounds the Converse ⇄ ToolDispatch cycle within a
// single turn.
const DefaultMaxToolIterations = 8

// Options configures an Orchestrator.
type Options struct {
	Subject           questionbank.SubjectInfo
	IntervieweeName   string
	DeceasedName      string
	Recorder          metrics.Recorder
	Counter           *tokens.Counter
	MaxToolIterations int
	// ContextTokenBudget trims the transcript passed to the general
	// conversational turn. Zero disables trimming.
	ContextTokenBudget int
}

// Orchestrator runs the per-turn state machine for one session.
type Orchestrator struct {
	client         llm.Client
	bank           *questionbank.Bank
	registry       *tools.Registry
	analyzer       *Analyzer
	selector       *Selector
	contextualizer *Contextualizer
	state          *InterviewState
	logger         *logx.Logger
	opts           Options

	current State
	table   TransitionTable

	// pending is the question selected this turn, still to be presented.
	pending *QuestionRecord
	// toolIterations counts ToolDispatch visits within the current turn.
	toolIterations int
}

// NewOrchestrator creates the pipeline for one session. The session's tool
// registry is built here so the tools share the same state instance.
func NewOrchestrator(client llm.Client, bank *questionbank.Bank, state *InterviewState, opts Options) (*Orchestrator, error) {
	if opts.Recorder == nil {
		opts.Recorder = metrics.NopRecorder{}
	}
	if opts.MaxToolIterations <= 0 {
		opts.MaxToolIterations = DefaultMaxToolIterations
	}

	registry, err := NewSessionRegistry(state, ClosingMessage(opts.IntervieweeName, opts.DeceasedName))
	if err != nil {
		return nil, fmt.Errorf("failed to build session tool registry: %w", err)
	}

	return &Orchestrator{
		client:         client,
		bank:           bank,
		registry:       registry,
		analyzer:       NewAnalyzer(client, opts.Recorder),
		selector:       NewSelector(client, opts.Recorder),
		contextualizer: NewContextualizer(client, opts.Recorder, opts.IntervieweeName, opts.DeceasedName),
		state:          state,
		logger:         logx.NewLogger("orchestrator"),
		opts:           opts,
		current:        StateDone,
		table:          ValidTransitions,
	}, nil
}

// SessionState returns the session state the orchestrator mutates.
func (o *Orchestrator) SessionState() *InterviewState {
	return o.state
}

// HandleUserTurn appends the user's utterance and runs the pipeline to
// completion, returning the messages appended after it.
func (o *Orchestrator) HandleUserTurn(ctx context.Context, userInput string) ([]Message, error) {
	o.state.AppendMessage(NewMessage(llm.RoleUser, userInput))
	mark := len(o.state.Messages)

	if err := o.runTurn(ctx); err != nil {
		return nil, err
	}
	return o.state.Messages[mark:], nil
}

// runTurn drives the state machine from AnalyzeAnswer to Done.
func (o *Orchestrator) runTurn(ctx context.Context) error {
	o.current = StateAnalyzeAnswer
	o.pending = nil
	o.toolIterations = 0

	for o.current != StateDone {
		next, err := o.processState(ctx)
		if err != nil {
			return err
		}
		if err := o.transitionTo(next); err != nil {
			return err
		}
	}
	return nil
}

// transitionTo validates the move against the transition table.
func (o *Orchestrator) transitionTo(next State) error {
	for _, allowed := range o.table[o.current] {
		if allowed == next {
			o.logger.Debug("%s -> %s", o.current, next)
			o.current = next
			return nil
		}
	}
	return fmt.Errorf("invalid state transition %s -> %s", o.current, next)
}

func (o *Orchestrator) processState(ctx context.Context) (State, error) {
	switch o.current {
	case StateAnalyzeAnswer:
		return o.processAnalyzeAnswer(ctx)
	case StateSelectQuestion:
		return o.processSelectQuestion(ctx)
	case StateConverse:
		return o.processConverse(ctx)
	case StateToolDispatch:
		return o.processToolDispatch(ctx)
	default:
		return StateDone, fmt.Errorf("no handler for state %s", o.current)
	}
}

func (o *Orchestrator) processAnalyzeAnswer(ctx context.Context) (State, error) {
	o.state.EnsureQuestions(o.bank, o.opts.Subject)
	o.analyzer.Analyze(ctx, o.state)
	return StateSelectQuestion, nil
}

func (o *Orchestrator) processSelectQuestion(ctx context.Context) (State, error) {
	if o.state.Finished {
		return StateDone, nil
	}

	record, selectedNew := o.selector.Select(ctx, o.state)
	if record == nil {
		if o.state.AllComplete() {
			o.state.Finish(ClosingMessage(o.opts.IntervieweeName, o.opts.DeceasedName))
			o.logger.Info("all questions complete, session %s finished", o.state.SessionID)
			return StateDone, nil
		}
		return StateConverse, nil
	}
	if selectedNew {
		o.pending = record
	}
	return StateConverse, nil
}

func (o *Orchestrator) processConverse(ctx context.Context) (State, error) {
	if o.state.Finished {
		return StateDone, nil
	}

	// First turn: fixed welcome, no model call.
	if len(o.state.Messages) == 1 {
		o.state.AppendMessage(NewMessage(llm.RoleAssistant, WelcomeMessage(o.opts.IntervieweeName, o.opts.DeceasedName)))
		return StateDone, nil
	}

	// A freshly selected question is presented directly, contextualized once
	// the conversation is past the bootstrap phase.
	if o.pending != nil {
		text := o.pending.Text
		if len(o.state.Messages) > BootstrapThreshold {
			text = o.contextualizer.Contextualize(ctx, o.state, text)
		}
		o.pending = nil
		o.state.AppendMessage(NewMessage(llm.RoleAssistant, text))
		return StateDone, nil
	}

	return o.generalTurn(ctx)
}

// generalTurn runs the open conversational completion with tools bound.
func (o *Orchestrator) generalTurn(ctx context.Context) (State, error) {
	messages := []llm.CompletionMessage{
		llm.NewSystemMessage(RenderSystemPrompt(time.Now(), o.opts.IntervieweeName, o.opts.DeceasedName)),
	}
	messages = append(messages, o.transcriptForModel()...)

	req := llm.NewCompletionRequest(messages)
	req.Tools = o.registry.Definitions()

	resp, err := o.client.Complete(llm.WithComponent(ctx, "converse"), req)
	if err != nil {
		return StateDone, fmt.Errorf("conversational turn failed: %w", err)
	}

	if len(resp.ToolCalls) > 0 {
		if o.state.IsLastStep {
			o.state.AppendMessage(NewMessage(llm.RoleAssistant, ApologyMessage))
			o.logger.Warn("step budget exhausted, suppressing tool call")
			return StateDone, nil
		}
		msg := NewMessage(llm.RoleAssistant, resp.Content)
		msg.ToolCalls = resp.ToolCalls
		o.state.AppendMessage(msg)
		return StateToolDispatch, nil
	}

	o.state.AppendMessage(NewMessage(llm.RoleAssistant, resp.Content))
	return StateDone, nil
}

func (o *Orchestrator) processToolDispatch(ctx context.Context) (State, error) {
	if len(o.state.Messages) == 0 {
		return StateDone, fmt.Errorf("%w: empty transcript at tool dispatch", ErrProtocolViolation)
	}
	last := o.state.Messages[len(o.state.Messages)-1]
	if last.Role != llm.RoleAssistant || len(last.ToolCalls) == 0 {
		return StateDone, fmt.Errorf("%w: expected assistant tool request, got %s message", ErrProtocolViolation, last.Role)
	}

	o.toolIterations++
	if o.toolIterations > o.opts.MaxToolIterations {
		o.state.AppendMessage(NewMessage(llm.RoleAssistant, ApologyMessage))
		o.logger.Warn("tool iteration budget (%d) exhausted", o.opts.MaxToolIterations)
		return StateDone, nil
	}

	results := make([]llm.ToolResult, 0, len(last.ToolCalls))
	for i := range last.ToolCalls {
		call := &last.ToolCalls[i]
		results = append(results, o.executeTool(ctx, call))
	}

	// end_interview finishes the session from inside the dispatch; the
	// closing message stays the final transcript entry and the results are
	// dropped since no further model call will consume them.
	if o.state.Finished {
		return StateDone, nil
	}

	msg := NewMessage(llm.RoleUser, "")
	msg.ToolResults = results
	o.state.AppendMessage(msg)
	return StateConverse, nil
}

func (o *Orchestrator) executeTool(ctx context.Context, call *llm.ToolCall) llm.ToolResult {
	tool, err := o.registry.Get(call.Name)
	if err != nil {
		return llm.ToolResult{ToolCallID: call.ID, Content: err.Error(), IsError: true}
	}

	out, err := tool.Exec(ctx, call.Parameters)
	if err != nil {
		o.logger.Warn("tool %s failed: %v", call.Name, err)
		return llm.ToolResult{ToolCallID: call.ID, Content: err.Error(), IsError: true}
	}
	return llm.ToolResult{ToolCallID: call.ID, Content: fmt.Sprintf("%v", out)}
}

// transcriptForModel converts the transcript to completion messages,
// trimming the oldest entries when a token budget is configured.
func (o *Orchestrator) transcriptForModel() []llm.CompletionMessage {
	transcript := o.state.Messages
	if budget := o.opts.ContextTokenBudget; budget > 0 {
		total := 0
		start := len(transcript)
		for i := len(transcript) - 1; i >= 0; i-- {
			total += o.opts.Counter.Count(transcript[i].Content)
			if total > budget && start < len(transcript) {
				break
			}
			start = i
		}
		transcript = transcript[start:]
	}

	out := make([]llm.CompletionMessage, 0, len(transcript))
	for _, msg := range transcript {
		out = append(out, llm.CompletionMessage{
			Role:        msg.Role,
			Content:     msg.Content,
			ToolCalls:   msg.ToolCalls,
			ToolResults: msg.ToolResults,
		})
	}
	return out
}
