package storage

import (
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrClaimConflict = errors.New("task claim lost")
)

type Category string

const (
	CategoryQuestion     Category = "question"
	CategoryStatement    Category = "statement"
	CategoryUnclassified Category = "unclassified"
)

type SummaryStatus string

const (
	SummaryPending    SummaryStatus = "pending"
	SummaryProcessing SummaryStatus = "processing"
	SummaryCompleted  SummaryStatus = "completed"
	SummaryFailed     SummaryStatus = "failed"
)

type Message struct {
	ID             int64     `json:"id"`
	Sender         string    `json:"sender"`
	Platform       string    `json:"app"`
	ConversationID string    `json:"conversation_id"`
	Text           string    `json:"message"`
	ContactID      *int64    `json:"contact_id,omitempty"`
	Category       *Category `json:"category,omitempty"`
	ReceivedAt     time.Time `json:"created_at"`
}

type SummaryTask struct {
	ID             int64         `json:"id"`
	ConversationID string        `json:"conversation_id"`
	Status         SummaryStatus `json:"status"`
	Summary        *string       `json:"summary,omitempty"`
	FailReason     *string       `json:"fail_reason,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	ClaimedAt      *time.Time    `json:"claimed_at,omitempty"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
}

type FollowupTask struct {
	ID              int64     `json:"id"`
	SourceMessageID int64     `json:"source_message_id"`
	ConversationID  string    `json:"conversation_id"`
	Task            string    `json:"task"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

type Contact struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Handle string `json:"handle"`
}
