package interview

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"biographer/pkg/tools"
)

// QuestionNotFound is returned by select_question for an unknown id.
const QuestionNotFound = "Question not found."

// listQuestionsTool lists the session's questions, optionally filtered by
// priority.
type listQuestionsTool struct {
	state *InterviewState
}

func (t *listQuestionsTool) Name() string { return "list_questions" }

func (t *listQuestionsTool) Definition() tools.ToolDefinition {
	return tools.ToolDefinition{
		Name:        "list_questions",
		Description: "List all biographical questions, optionally filtered by priority.",
		InputSchema: tools.InputSchema{
			Type: "object",
			Properties: map[string]tools.Property{
				"priority": {
					Type:        "integer",
					Description: "Priority level to filter by (0-5)",
				},
			},
		},
	}
}

func (t *listQuestionsTool) Exec(_ context.Context, args map[string]any) (any, error) {
	priority, hasPriority, err := intArg(args, "priority")
	if err != nil {
		return nil, err
	}

	records := make([]*QuestionRecord, 0, len(t.state.Questions))
	for _, record := range t.state.Questions {
		if hasPriority && record.Priority != priority {
			continue
		}
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].seq < records[j].seq })

	lines := make([]string, 0, len(records))
	for _, record := range records {
		lines = append(lines, fmt.Sprintf("ID: %d | %s", record.ID, record.Text))
	}
	return lines, nil
}

// selectQuestionTool returns a question's text by id.
type selectQuestionTool struct {
	state *InterviewState
}

func (t *selectQuestionTool) Name() string { return "select_question" }

func (t *selectQuestionTool) Definition() tools.ToolDefinition {
	return tools.ToolDefinition{
		Name:        "select_question",
		Description: "Select a question by ID and return its text.",
		InputSchema: tools.InputSchema{
			Type: "object",
			Properties: map[string]tools.Property{
				"id": {
					Type:        "string",
					Description: "ID of the question to select",
				},
			},
			Required: []string{"id"},
		},
	}
}

func (t *selectQuestionTool) Exec(_ context.Context, args map[string]any) (any, error) {
	raw, ok := args["id"]
	if !ok {
		return nil, fmt.Errorf("id argument is required")
	}

	var id int
	switch v := raw.(type) {
	case string:
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return QuestionNotFound, nil
		}
		id = parsed
	case float64:
		id = int(v)
	case int:
		id = v
	default:
		return nil, fmt.Errorf("id must be a string or number, got %T", raw)
	}

	record, ok := t.state.Questions[id]
	if !ok {
		return QuestionNotFound, nil
	}
	return record.Text, nil
}

// endInterviewTool terminates the session: it sets the finished flag and
// appends the closing message through InterviewState.Finish, which
// guarantees the message is emitted at most once.
type endInterviewTool struct {
	state          *InterviewState
	closingMessage string
}

func (t *endInterviewTool) Name() string { return "end_interview" }

func (t *endInterviewTool) Definition() tools.ToolDefinition {
	return tools.ToolDefinition{
		Name:        "end_interview",
		Description: "End the biographical interview when sufficient information has been gathered.",
		InputSchema: tools.InputSchema{
			Type: "object",
			Properties: map[string]tools.Property{
				"reason": {
					Type:        "string",
					Description: "Reason for ending the interview",
				},
			},
			Required: []string{"reason"},
		},
	}
}

func (t *endInterviewTool) Exec(_ context.Context, args map[string]any) (any, error) {
	reason, _ := args["reason"].(string)
	t.state.Finish(t.closingMessage)
	return fmt.Sprintf("Interview ended: %s", reason), nil
}

// intArg reads an optional integer argument that may arrive as a JSON
// number or a numeric string.
func intArg(args map[string]any, key string) (value int, present bool, err error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		return int(v), true, nil
	case int:
		return v, true, nil
	case string:
		parsed, convErr := strconv.Atoi(v)
		if convErr != nil {
			return 0, false, fmt.Errorf("%s must be an integer, got %q", key, v)
		}
		return parsed, true, nil
	default:
		return 0, false, fmt.Errorf("%s must be an integer, got %T", key, raw)
	}
}

// NewSessionRegistry builds the tool registry for one session's state.
func NewSessionRegistry(state *InterviewState, closingMessage string) (*tools.Registry, error) {
	registry := tools.NewRegistry()
	for _, tool := range []tools.Tool{
		&listQuestionsTool{state: state},
		&selectQuestionTool{state: state},
		&endInterviewTool{state: state, closingMessage: closingMessage},
	} {
		if err := registry.Register(tool); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
