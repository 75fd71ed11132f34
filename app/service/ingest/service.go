package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"aimon/app/storage"

	"github.com/google/uuid"
	"github.com/samber/do"
)

var ErrInvalidMessage = errors.New("sender and app are required")

type Store interface {
	InsertMessage(ctx context.Context, sender, platform, conversationID, text string, contactID *int64) (storage.Message, error)
	ResolveContact(ctx context.Context, handle string) (*int64, error)
}

// Service is the single entry point platform adapters use to store a
// normalized message. Adapters deduplicate before calling it.
type Service struct {
	store Store
}

func New(di *do.Injector) (*Service, error) {
	return &Service{
		store: do.MustInvoke[*storage.Service](di),
	}, nil
}

// SubmitMessage stores a message, starting a new conversation when no id is
// given. Classification happens later in the scheduler sweep.
func (s *Service) SubmitMessage(
	ctx context.Context,
	sender, platform, conversationID, text string,
) (storage.Message, error) {
	if strings.TrimSpace(sender) == "" || strings.TrimSpace(platform) == "" {
		return storage.Message{}, ErrInvalidMessage
	}

	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	contactID, err := s.store.ResolveContact(ctx, sender)
	if err != nil {
		slog.Warn("Failed to resolve contact", "sender", sender, "error", err)
		contactID = nil
	}

	msg, err := s.store.InsertMessage(ctx, sender, platform, conversationID, text, contactID)
	if err != nil {
		return storage.Message{}, fmt.Errorf("failed to store message: %w", err)
	}

	return msg, nil
}
