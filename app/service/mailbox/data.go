package mailbox

import (
	"sync"
	"time"
)

// promptSlot is the single in-memory rendezvous point between prompt
// submitters and the external poller. Guarded by Service.mu as a whole, so
// no operation ever observes a half-written slot.
type promptSlot struct {
	prompt       string
	submittedAt  time.Time
	response     string
	respondedAt  time.Time
	acknowledged bool

	// pending is true from Submit until Resolve, including the window
	// after Acknowledge when the prompt is no longer deliverable.
	pending bool
}

type HistoryEntry struct {
	Prompt      string    `json:"prompt"`
	Response    string    `json:"response"`
	SubmittedAt time.Time `json:"submitted_at"`
	RespondedAt time.Time `json:"responded_at"`
}

type Status struct {
	PromptPending bool      `json:"prompt_pending"`
	Acknowledged  bool      `json:"acknowledged"`
	SubmittedAt   time.Time `json:"submitted_at,omitzero"`
	RespondedAt   time.Time `json:"responded_at,omitzero"`
	ResponseCount int       `json:"response_count"`
}

type State struct {
	mu      sync.Mutex
	slot    promptSlot
	history []HistoryEntry
}
