// Package questionbank loads the ordered biographical question templates and
// personalizes their placeholder text for a given subject.
package questionbank

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrBankMissing indicates the question source file does not exist. There is
// no fallback question set; this is fatal at bootstrap.
var ErrBankMissing = errors.New("question bank source not found")

// Question is one template from the bank. Text may contain the placeholders
// {name}, {interviewee_name}, {pronoun_subject}, {pronoun_object} and
// {pronoun_possessive}.
type Question struct {
	ID       int    `yaml:"id,omitempty"`
	Text     string `yaml:"question"`
	Priority int    `yaml:"priority"`
}

// SubjectInfo holds the substitution values for question placeholders.
type SubjectInfo struct {
	Name              string
	IntervieweeName   string
	PronounSubject    string
	PronounObject     string
	PronounPossessive string
}

// Bank is the immutable, ordered question collection. Safe for concurrent
// reads once loaded.
type Bank struct {
	questions []Question
}

// Load reads the bank from a YAML file. Entries without an id are assigned
// sequential ids starting at 1 in source order.
func Load(path string) (*Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrBankMissing, path)
		}
		return nil, fmt.Errorf("failed to read question bank %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a bank from raw YAML.
func Parse(data []byte) (*Bank, error) {
	var questions []Question
	if err := yaml.Unmarshal(data, &questions); err != nil {
		return nil, fmt.Errorf("failed to parse question bank: %w", err)
	}

	seen := make(map[int]bool, len(questions))
	for i := range questions {
		if questions[i].ID == 0 {
			questions[i].ID = i + 1
		}
		if seen[questions[i].ID] {
			return nil, fmt.Errorf("duplicate question id %d", questions[i].ID)
		}
		seen[questions[i].ID] = true
		if strings.TrimSpace(questions[i].Text) == "" {
			return nil, fmt.Errorf("question %d has empty text", questions[i].ID)
		}
	}

	return &Bank{questions: questions}, nil
}

// Questions returns all questions in source order.
func (b *Bank) Questions() []Question {
	out := make([]Question, len(b.questions))
	copy(out, b.questions)
	return out
}

// ByPriority returns the questions at the given priority level, in source
// order.
func (b *Bank) ByPriority(priority int) []Question {
	var out []Question
	for _, q := range b.questions {
		if q.Priority == priority {
			out = append(out, q)
		}
	}
	return out
}

// Get returns the question with the given id.
func (b *Bank) Get(id int) (Question, bool) {
	for _, q := range b.questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// Priorities returns the distinct priority levels present in the bank,
// ascending (lower = asked earlier).
func (b *Bank) Priorities() []int {
	seen := make(map[int]bool)
	var out []int
	for _, q := range b.questions {
		if !seen[q.Priority] {
			seen[q.Priority] = true
			out = append(out, q.Priority)
		}
	}
	sort.Ints(out)
	return out
}

// Len returns the number of questions in the bank.
func (b *Bank) Len() int {
	return len(b.questions)
}

// Personalize substitutes the subject placeholders in text.
func Personalize(text string, subject SubjectInfo) string {
	return strings.NewReplacer(
		"{name}", subject.Name,
		"{interviewee_name}", subject.IntervieweeName,
		"{pronoun_subject}", subject.PronounSubject,
		"{pronoun_object}", subject.PronounObject,
		"{pronoun_possessive}", subject.PronounPossessive,
	).Replace(text)
}
