package summary

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"aimon/app/client/gpt"
	"aimon/app/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	response string
	err      error

	gotPrompt string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.gotPrompt = prompt

	return f.response, f.err
}

func messages(texts ...string) []storage.Message {
	result := make([]storage.Message, 0, len(texts))

	for i, text := range texts {
		result = append(result, storage.Message{
			ID:             int64(i + 1),
			Sender:         "user",
			ConversationID: "conv-1",
			Text:           text,
		})
	}

	return result
}

func TestSummarizeEmptyConversation(t *testing.T) {
	svc := NewWithOptions(&fakeGenerator{}, 4000, time.Second)

	_, err := svc.Summarize(context.Background(), nil)
	require.ErrorIs(t, err, ErrNoMessages)
}

func TestSummarizeReturnsModelOutput(t *testing.T) {
	gen := &fakeGenerator{response: "  A short summary.  "}
	svc := NewWithOptions(gen, 4000, time.Second)

	result, err := svc.Summarize(context.Background(), messages("Hello", "How are you?", "Goodbye"))
	require.NoError(t, err)
	assert.Equal(t, "A short summary.", result)

	assert.Contains(t, gen.gotPrompt, "user: Hello")
	assert.Contains(t, gen.gotPrompt, "user: Goodbye")
}

func TestSummarizeKeepsMessageOrder(t *testing.T) {
	gen := &fakeGenerator{response: "ok"}
	svc := NewWithOptions(gen, 4000, time.Second)

	_, err := svc.Summarize(context.Background(), messages("first", "second", "third"))
	require.NoError(t, err)

	firstIdx := strings.Index(gen.gotPrompt, "first")
	thirdIdx := strings.Index(gen.gotPrompt, "third")
	require.GreaterOrEqual(t, firstIdx, 0)
	require.GreaterOrEqual(t, thirdIdx, 0)
	assert.Less(t, firstIdx, thirdIdx)
}

func TestSummarizeTruncatesFromOldestEnd(t *testing.T) {
	texts := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		texts = append(texts, fmt.Sprintf("message number %d with some padding text", i))
	}

	gen := &fakeGenerator{response: "ok"}
	svc := NewWithOptions(gen, 200, time.Second)

	_, err := svc.Summarize(context.Background(), messages(texts...))
	require.NoError(t, err)

	assert.NotContains(t, gen.gotPrompt, "message number 0 ")
	assert.Contains(t, gen.gotPrompt, "message number 19 ")
}

func TestFormatHistoryKeepsRunesWhole(t *testing.T) {
	svc := NewWithOptions(&fakeGenerator{response: "ok"}, 20, time.Second)

	// a single over-budget message whose byte cut would land mid-rune
	result := svc.formatHistory(messages(strings.Repeat("日", 10)))

	assert.LessOrEqual(t, len(result), 20)
	assert.True(t, utf8.ValidString(result), "truncation must not split a rune")
	assert.True(t, strings.HasPrefix(result, "user: 日"))
}

func TestSummarizeUpstreamError(t *testing.T) {
	gen := &fakeGenerator{err: gpt.ErrUpstream}
	svc := NewWithOptions(gen, 4000, time.Second)

	_, err := svc.Summarize(context.Background(), messages("Hello"))
	require.ErrorIs(t, err, gpt.ErrUpstream)
}

type blockingGenerator struct{}

func (blockingGenerator) Generate(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()

	return "", fmt.Errorf("%w: %w", gpt.ErrTimeout, ctx.Err())
}

func TestSummarizeBoundsModelCall(t *testing.T) {
	svc := NewWithOptions(blockingGenerator{}, 4000, 20*time.Millisecond)

	start := time.Now()
	_, err := svc.Summarize(context.Background(), messages("Hello"))

	require.ErrorIs(t, err, gpt.ErrTimeout)
	assert.Less(t, time.Since(start), time.Second, "summarizer must enforce its own timeout")
}
