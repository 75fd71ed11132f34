package suggest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"aimon/app/client/gpt"
	"aimon/app/config"
	"aimon/app/storage"

	_ "embed"

	"github.com/elliotchance/pie/v2"
	"github.com/samber/do"
)

//go:embed suggest_prompt.txt
var suggestPromptTemplate string

const (
	maxSuggestions = 3
	historyLimit   = 50
)

type Store interface {
	ListConversationMessages(ctx context.Context, conversationID string, limit int) ([]storage.Message, error)
}

type Service struct {
	store      Store
	generator  *gpt.Client
	llmTimeout time.Duration
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return &Service{
		store:      do.MustInvoke[*storage.Service](di),
		generator:  do.MustInvoke[*gpt.Client](di),
		llmTimeout: cfg.Summary.GetLLMTimeout(),
	}, nil
}

// Suggest produces up to three candidate replies for a conversation.
func (s *Service) Suggest(ctx context.Context, conversationID string) ([]string, error) {
	msgs, err := s.store.ListConversationMessages(ctx, conversationID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	if len(msgs) == 0 {
		return nil, fmt.Errorf("conversation %q has no messages", conversationID)
	}

	lines := pie.Map(msgs, func(msg storage.Message) string {
		return fmt.Sprintf("%s: %s", msg.Sender, msg.Text)
	})

	prompt := strings.ReplaceAll(suggestPromptTemplate, "{history}", strings.Join(lines, "\n"))

	ctx, cancel := context.WithTimeout(ctx, s.llmTimeout)
	defer cancel()

	result, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate suggestions: %w", err)
	}

	return ParseSuggestions(result), nil
}

// ParseSuggestions splits model output into at most three non-empty lines.
func ParseSuggestions(text string) []string {
	suggestions := pie.Filter(
		pie.Map(strings.Split(text, "\n"), strings.TrimSpace),
		func(line string) bool { return line != "" },
	)

	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}

	return suggestions
}
