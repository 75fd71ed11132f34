package gpt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"aimon/app/config"

	"github.com/samber/do"
	"github.com/sashabaranov/go-openai"
)

var (
	ErrTimeout  = errors.New("model call timed out")
	ErrUpstream = errors.New("model call failed")
	ErrEmpty    = errors.New("model returned empty output")
)

const maxCompletionTokens = 1000

type Client struct {
	client *openai.Client
	model  string
}

func NewClient(di *do.Injector) (*Client, error) {
	cfg := do.MustInvoke[*config.Config](di)

	clientConfig := openai.DefaultConfig(cfg.OpenAI.Token)

	clientConfig.BaseURL = cfg.OpenAI.BaseURL
	clientConfig.HTTPClient = &http.Client{
		Timeout: 30 * time.Second,
	}

	return &Client{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.OpenAI.Model,
	}, nil
}

// Generate sends a single-message completion request and returns the trimmed
// output. Callers bound the call with ctx; an exceeded deadline surfaces as
// ErrTimeout so it can be told apart from upstream failures.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	aiResponse, err := c.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			MaxCompletionTokens: maxCompletionTokens,
		},
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %w", ErrTimeout, err)
		}

		return "", fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	if len(aiResponse.Choices) == 0 {
		return "", ErrEmpty
	}

	result := strings.TrimSpace(aiResponse.Choices[0].Message.Content)
	if result == "" {
		return "", ErrEmpty
	}

	return result, nil
}
