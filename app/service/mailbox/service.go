package mailbox

import (
	"errors"
	"log/slog"
	"time"

	"aimon/app/config"

	"github.com/samber/do"
)

var (
	ErrBusy            = errors.New("a prompt is already pending")
	ErrNoPendingPrompt = errors.New("no pending prompt to resolve")
	ErrTimedOut        = errors.New("timed out waiting for response")
)

// BusyPolicy decides what Submit does while a previous prompt is still
// unresolved.
type BusyPolicy string

const (
	// BusyReject refuses the new prompt with ErrBusy.
	BusyReject BusyPolicy = "reject"
	// BusyReplace drops the outstanding prompt in favor of the new one.
	BusyReplace BusyPolicy = "replace"
)

// Service bridges synchronous prompt submitters with the external browser
// agent that polls for prompts and posts back responses. The slot lives only
// in memory: a process restart drops an in-flight prompt.
type Service struct {
	policy      BusyPolicy
	historySize int

	state State
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewWithOptions(BusyPolicy(cfg.Mailbox.OnBusy), cfg.Mailbox.HistorySize), nil
}

func NewWithOptions(policy BusyPolicy, historySize int) *Service {
	return &Service{
		policy:      policy,
		historySize: historySize,
	}
}

// Submit stores a prompt for the poller to pick up. While a prior prompt is
// unresolved the behavior depends on the configured busy policy.
func (s *Service) Submit(prompt string) error {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	if s.state.slot.pending && s.policy == BusyReject {
		return ErrBusy
	}

	if s.state.slot.pending {
		slog.Warn("Replacing outstanding prompt",
			"submitted_at", s.state.slot.submittedAt)
	}

	s.state.slot = promptSlot{
		prompt:      prompt,
		submittedAt: time.Now(),
		pending:     true,
	}

	return nil
}

// FetchPending returns the currently deliverable prompt without clearing it.
// The poller confirms receipt separately via Acknowledge, so a poller crash
// between the two calls does not lose the prompt.
func (s *Service) FetchPending() (string, bool) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	if !s.state.slot.pending || s.state.slot.acknowledged {
		return "", false
	}

	return s.state.slot.prompt, true
}

// Acknowledge marks the prompt as delivered so it is not handed out again.
// The submission timestamp survives for latency accounting.
func (s *Service) Acknowledge() {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	s.state.slot.acknowledged = true
}

// Resolve stores the poller's response and appends a history entry. Fails
// when nothing was submitted since the last resolution.
func (s *Service) Resolve(response string) error {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	if !s.state.slot.pending {
		return ErrNoPendingPrompt
	}

	s.state.slot.response = response
	s.state.slot.respondedAt = time.Now()
	s.state.slot.pending = false

	s.state.history = append(s.state.history, HistoryEntry{
		Prompt:      s.state.slot.prompt,
		Response:    response,
		SubmittedAt: s.state.slot.submittedAt,
		RespondedAt: s.state.slot.respondedAt,
	})
	if len(s.state.history) > s.historySize {
		s.state.history = s.state.history[len(s.state.history)-s.historySize:]
	}

	return nil
}

// RecordExchange appends a prompt/response pair that was answered outside
// the poller protocol, such as a direct model call. The slot is untouched.
func (s *Service) RecordExchange(prompt, response string) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	now := time.Now()

	s.state.history = append(s.state.history, HistoryEntry{
		Prompt:      prompt,
		Response:    response,
		SubmittedAt: now,
		RespondedAt: now,
	})
	if len(s.state.history) > s.historySize {
		s.state.history = s.state.history[len(s.state.history)-s.historySize:]
	}
}

// Clear resets the slot, recovering from a stuck or abandoned prompt.
func (s *Service) Clear(clearHistory bool) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	s.state.slot = promptSlot{}

	if clearHistory {
		s.state.history = nil
	}
}

func (s *Service) Status() Status {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	return Status{
		PromptPending: s.state.slot.pending,
		Acknowledged:  s.state.slot.acknowledged,
		SubmittedAt:   s.state.slot.submittedAt,
		RespondedAt:   s.state.slot.respondedAt,
		ResponseCount: len(s.state.history),
	}
}

func (s *Service) History() []HistoryEntry {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	result := make([]HistoryEntry, len(s.state.history))
	copy(result, s.state.history)

	return result
}

func (s *Service) currentResponse() (string, bool) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	if s.state.slot.respondedAt.IsZero() {
		return "", false
	}

	return s.state.slot.response, true
}
