package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"aimon/app/client/gpt"
	"aimon/app/config"
	"aimon/app/storage"

	_ "embed"

	"github.com/samber/do"
)

//go:embed summary_prompt.txt
var summaryPromptTemplate string

var ErrNoMessages = errors.New("conversation has no messages")

// Generator is the external language-model capability the summarizer
// delegates to.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Service struct {
	generator    Generator
	promptBudget int
	llmTimeout   time.Duration
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewWithOptions(
		do.MustInvoke[*gpt.Client](di),
		cfg.Summary.PromptBudget,
		cfg.Summary.GetLLMTimeout(),
	), nil
}

func NewWithOptions(generator Generator, promptBudget int, llmTimeout time.Duration) *Service {
	return &Service{
		generator:    generator,
		promptBudget: promptBudget,
		llmTimeout:   llmTimeout,
	}
}

// Summarize builds a bounded prompt from the ordered message history and
// asks the model for a summary. Every failure is recoverable; the caller
// decides what to do with the task.
func (s *Service) Summarize(ctx context.Context, msgs []storage.Message) (string, error) {
	if len(msgs) == 0 {
		return "", ErrNoMessages
	}

	prompt := strings.ReplaceAll(summaryPromptTemplate, "{history}", s.formatHistory(msgs))

	ctx, cancel := context.WithTimeout(ctx, s.llmTimeout)
	defer cancel()

	result, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to generate summary: %w", err)
	}

	return strings.TrimSpace(result), nil
}

// formatHistory renders messages oldest to newest, dropping whole messages
// from the oldest end while the rendering exceeds the prompt budget. The
// newest message is always kept, truncated if it alone is over budget.
func (s *Service) formatHistory(msgs []storage.Message) string {
	lines := make([]string, 0, len(msgs))
	total := 0

	for _, msg := range msgs {
		line := fmt.Sprintf("%s: %s", msg.Sender, msg.Text)
		lines = append(lines, line)
		total += len(line) + 1
	}

	start := 0
	for start < len(lines)-1 && total > s.promptBudget {
		total -= len(lines[start]) + 1
		start++
	}

	result := strings.Join(lines[start:], "\n")
	if len(result) > s.promptBudget {
		result = result[:s.promptBudget]

		// the cut may land inside a multi-byte rune
		for len(result) > 0 && !utf8.ValidString(result) {
			result = result[:len(result)-1]
		}
	}

	return result
}
