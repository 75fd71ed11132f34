package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"aimon/app/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	contacts   map[string]int64
	resolveErr error

	inserted []storage.Message
}

func (f *fakeStore) InsertMessage(
	_ context.Context,
	sender, platform, conversationID, text string,
	contactID *int64,
) (storage.Message, error) {
	msg := storage.Message{
		ID:             int64(len(f.inserted) + 1),
		Sender:         sender,
		Platform:       platform,
		ConversationID: conversationID,
		Text:           text,
		ContactID:      contactID,
		ReceivedAt:     time.Now(),
	}
	f.inserted = append(f.inserted, msg)

	return msg, nil
}

func (f *fakeStore) ResolveContact(_ context.Context, handle string) (*int64, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}

	if id, ok := f.contacts[handle]; ok {
		return &id, nil
	}

	return nil, nil
}

func TestSubmitMessageValidation(t *testing.T) {
	svc := &Service{store: &fakeStore{}}

	_, err := svc.SubmitMessage(context.Background(), "", "sms", "", "hello")
	require.ErrorIs(t, err, ErrInvalidMessage)

	_, err = svc.SubmitMessage(context.Background(), "alice", "  ", "", "hello")
	require.ErrorIs(t, err, ErrInvalidMessage)
}

func TestSubmitMessageGeneratesConversationID(t *testing.T) {
	store := &fakeStore{}
	svc := &Service{store: store}

	msg, err := svc.SubmitMessage(context.Background(), "alice", "sms", "", "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ConversationID)

	msg2, err := svc.SubmitMessage(context.Background(), "alice", "sms", "", "hi again")
	require.NoError(t, err)
	assert.NotEqual(t, msg.ConversationID, msg2.ConversationID)
}

func TestSubmitMessageKeepsConversationID(t *testing.T) {
	store := &fakeStore{}
	svc := &Service{store: store}

	msg, err := svc.SubmitMessage(context.Background(), "alice", "sms", "conv-7", "hello")
	require.NoError(t, err)
	assert.Equal(t, "conv-7", msg.ConversationID)
}

func TestSubmitMessageAttachesContact(t *testing.T) {
	store := &fakeStore{contacts: map[string]int64{"alice": 42}}
	svc := &Service{store: store}

	msg, err := svc.SubmitMessage(context.Background(), "alice", "whatsapp", "conv-1", "hello")
	require.NoError(t, err)
	require.NotNil(t, msg.ContactID)
	assert.Equal(t, int64(42), *msg.ContactID)
}

func TestSubmitMessageToleratesContactLookupFailure(t *testing.T) {
	store := &fakeStore{resolveErr: errors.New("db down")}
	svc := &Service{store: store}

	msg, err := svc.SubmitMessage(context.Background(), "alice", "sms", "conv-1", "hello")
	require.NoError(t, err)
	assert.Nil(t, msg.ContactID)
}
