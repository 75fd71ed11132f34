package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"aimon/app/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu sync.Mutex

	messages  []storage.Message
	followups []storage.FollowupTask
	tasks     []storage.SummaryTask

	failCategoryFor map[int64]bool
	conflictClaims  map[int64]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		failCategoryFor: make(map[int64]bool),
		conflictClaims:  make(map[int64]bool),
	}
}

func (f *fakeStore) addMessage(id int64, conversationID, text string) {
	f.messages = append(f.messages, storage.Message{
		ID:             id,
		Sender:         "user",
		Platform:       "sms",
		ConversationID: conversationID,
		Text:           text,
	})
}

func (f *fakeStore) addTask(id int64, conversationID string, status storage.SummaryStatus, claimedAt *time.Time) {
	f.tasks = append(f.tasks, storage.SummaryTask{
		ID:             id,
		ConversationID: conversationID,
		Status:         status,
		ClaimedAt:      claimedAt,
	})
}

func (f *fakeStore) ListUnclassified(_ context.Context, limit int) ([]storage.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	result := make([]storage.Message, 0)

	for _, msg := range f.messages {
		if msg.Category == nil {
			result = append(result, msg)
		}

		if len(result) >= limit {
			break
		}
	}

	return result, nil
}

func (f *fakeStore) SetMessageCategory(_ context.Context, id int64, category storage.Category) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failCategoryFor[id] {
		return fmt.Errorf("update failed for message %d", id)
	}

	for i := range f.messages {
		if f.messages[i].ID == id {
			f.messages[i].Category = &category
			return nil
		}
	}

	return storage.ErrNotFound
}

func (f *fakeStore) InsertFollowupTask(_ context.Context, messageID int64, conversationID, task string) (storage.FollowupTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := storage.FollowupTask{
		ID:              int64(len(f.followups) + 1),
		SourceMessageID: messageID,
		ConversationID:  conversationID,
		Task:            task,
		Status:          "pending",
	}
	f.followups = append(f.followups, t)

	return t, nil
}

func (f *fakeStore) ListClaimableSummaryTasks(_ context.Context, staleBefore time.Time, limit int) ([]storage.SummaryTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	result := make([]storage.SummaryTask, 0)

	for _, task := range f.tasks {
		if claimable(task, staleBefore) {
			result = append(result, task)
		}

		if len(result) >= limit {
			break
		}
	}

	return result, nil
}

func claimable(task storage.SummaryTask, staleBefore time.Time) bool {
	if task.Status == storage.SummaryPending {
		return true
	}

	return task.Status == storage.SummaryProcessing &&
		task.ClaimedAt != nil && task.ClaimedAt.Before(staleBefore)
}

func (f *fakeStore) ClaimSummaryTask(_ context.Context, id int64, staleBefore time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conflictClaims[id] {
		return storage.ErrClaimConflict
	}

	for i := range f.tasks {
		if f.tasks[i].ID != id {
			continue
		}

		if !claimable(f.tasks[i], staleBefore) {
			return storage.ErrClaimConflict
		}

		now := time.Now()
		f.tasks[i].Status = storage.SummaryProcessing
		f.tasks[i].ClaimedAt = &now

		return nil
	}

	return storage.ErrClaimConflict
}

func (f *fakeStore) CompleteSummaryTask(_ context.Context, id int64, summary string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.tasks {
		if f.tasks[i].ID == id && f.tasks[i].Status == storage.SummaryProcessing {
			now := time.Now()
			f.tasks[i].Status = storage.SummaryCompleted
			f.tasks[i].Summary = &summary
			f.tasks[i].CompletedAt = &now

			return nil
		}
	}

	return storage.ErrClaimConflict
}

func (f *fakeStore) FailSummaryTask(_ context.Context, id int64, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.tasks {
		if f.tasks[i].ID == id && f.tasks[i].Status == storage.SummaryProcessing {
			f.tasks[i].Status = storage.SummaryFailed
			f.tasks[i].FailReason = &reason

			return nil
		}
	}

	return storage.ErrClaimConflict
}

func (f *fakeStore) ListConversationMessages(_ context.Context, conversationID string, _ int) ([]storage.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	result := make([]storage.Message, 0)

	for _, msg := range f.messages {
		if msg.ConversationID == conversationID {
			result = append(result, msg)
		}
	}

	return result, nil
}

func (f *fakeStore) task(id int64) storage.SummaryTask {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, task := range f.tasks {
		if task.ID == id {
			return task
		}
	}

	return storage.SummaryTask{}
}

func (f *fakeStore) category(id int64) *storage.Category {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, msg := range f.messages {
		if msg.ID == id {
			return msg.Category
		}
	}

	return nil
}

type fakeSummarizer struct {
	mu sync.Mutex

	response string
	err      error
	calls    int

	block chan struct{}
}

func (f *fakeSummarizer) Summarize(_ context.Context, _ []storage.Message) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.block != nil {
		<-f.block
	}

	return f.response, f.err
}

func (f *fakeSummarizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls
}

func newService(store *fakeStore, summarizer *fakeSummarizer) *Service {
	return NewWithOptions(store, summarizer, time.Second, 50, 5*time.Minute)
}

func TestClassifySweep(t *testing.T) {
	store := newFakeStore()
	store.addMessage(1, "conv-1", "Is this working?")
	store.addMessage(2, "conv-1", "All good")
	store.addMessage(3, "conv-2", "")

	svc := newService(store, &fakeSummarizer{response: "ok"})
	svc.RunOnce(context.Background())

	require.NotNil(t, store.category(1))
	assert.Equal(t, storage.CategoryQuestion, *store.category(1))
	assert.Equal(t, storage.CategoryStatement, *store.category(2))
	assert.Equal(t, storage.CategoryUnclassified, *store.category(3))
}

func TestClassifySweepIdempotent(t *testing.T) {
	store := newFakeStore()
	store.addMessage(1, "conv-1", "Please call Bob")

	svc := newService(store, &fakeSummarizer{response: "ok"})

	svc.RunOnce(context.Background())
	svc.RunOnce(context.Background())

	require.Len(t, store.followups, 1, "follow-up detection must run once per message")
	assert.Equal(t, int64(1), store.followups[0].SourceMessageID)
	assert.Contains(t, store.followups[0].Task, "call Bob")
}

func TestClassifySweepIsolatesFailures(t *testing.T) {
	store := newFakeStore()
	store.addMessage(1, "conv-1", "first message")
	store.addMessage(2, "conv-1", "second message")
	store.addMessage(3, "conv-1", "third message")
	store.failCategoryFor[2] = true

	svc := newService(store, &fakeSummarizer{response: "ok"})
	svc.RunOnce(context.Background())

	assert.NotNil(t, store.category(1))
	assert.Nil(t, store.category(2))
	assert.NotNil(t, store.category(3))
}

func TestSummarySweepCompletesTask(t *testing.T) {
	store := newFakeStore()
	store.addMessage(1, "conv-1", "Hello")
	store.addMessage(2, "conv-1", "How are you?")
	store.addTask(1, "conv-1", storage.SummaryPending, nil)

	svc := newService(store, &fakeSummarizer{response: "Hello and a check-in."})
	svc.RunOnce(context.Background())

	task := store.task(1)
	assert.Equal(t, storage.SummaryCompleted, task.Status)
	require.NotNil(t, task.Summary)
	assert.Equal(t, "Hello and a check-in.", *task.Summary)
	assert.NotNil(t, task.CompletedAt)
}

func TestSummarySweepCompletesDuplicateTasks(t *testing.T) {
	store := newFakeStore()
	store.addMessage(1, "conv-1", "Hello")
	store.addTask(1, "conv-1", storage.SummaryPending, nil)
	store.addTask(2, "conv-1", storage.SummaryPending, nil)

	svc := newService(store, &fakeSummarizer{response: "same conversation"})
	svc.RunOnce(context.Background())

	for _, id := range []int64{1, 2} {
		task := store.task(id)
		assert.Equal(t, storage.SummaryCompleted, task.Status)
		require.NotNil(t, task.Summary)
		assert.Equal(t, "same conversation", *task.Summary)
	}
}

func TestSummarySweepFailsTask(t *testing.T) {
	store := newFakeStore()
	store.addMessage(1, "conv-1", "Hello")
	store.addTask(1, "conv-1", storage.SummaryPending, nil)

	svc := newService(store, &fakeSummarizer{err: errors.New("model unavailable")})
	svc.RunOnce(context.Background())

	task := store.task(1)
	assert.Equal(t, storage.SummaryFailed, task.Status)
	require.NotNil(t, task.FailReason)
	assert.Contains(t, *task.FailReason, "model unavailable")
	assert.Nil(t, task.Summary)
}

func TestSummarySweepEmptyConversationFails(t *testing.T) {
	store := newFakeStore()
	store.addTask(1, "conv-empty", storage.SummaryPending, nil)

	summarizer := &fakeSummarizer{err: errors.New("conversation has no messages")}
	svc := newService(store, summarizer)
	svc.RunOnce(context.Background())

	assert.Equal(t, storage.SummaryFailed, store.task(1).Status)
}

func TestSummarySweepIsolatesFailures(t *testing.T) {
	store := newFakeStore()
	store.addMessage(1, "conv-1", "Hello")
	store.addMessage(2, "conv-2", "Hi there")
	store.addTask(1, "conv-1", storage.SummaryPending, nil)
	store.addTask(2, "conv-2", storage.SummaryPending, nil)
	store.conflictClaims[1] = true

	svc := newService(store, &fakeSummarizer{response: "fine"})
	svc.RunOnce(context.Background())

	assert.Equal(t, storage.SummaryPending, store.task(1).Status)
	assert.Equal(t, storage.SummaryCompleted, store.task(2).Status)
}

func TestSummarySweepReclaimsStaleTask(t *testing.T) {
	store := newFakeStore()
	store.addMessage(1, "conv-1", "Hello")

	staleClaim := time.Now().Add(-time.Hour)
	store.addTask(1, "conv-1", storage.SummaryProcessing, &staleClaim)

	svc := newService(store, &fakeSummarizer{response: "recovered"})
	svc.RunOnce(context.Background())

	task := store.task(1)
	assert.Equal(t, storage.SummaryCompleted, task.Status)
	require.NotNil(t, task.Summary)
	assert.Equal(t, "recovered", *task.Summary)
}

func TestSummarySweepSkipsFreshProcessingTask(t *testing.T) {
	store := newFakeStore()
	store.addMessage(1, "conv-1", "Hello")

	freshClaim := time.Now()
	store.addTask(1, "conv-1", storage.SummaryProcessing, &freshClaim)

	summarizer := &fakeSummarizer{response: "should not run"}
	svc := newService(store, summarizer)
	svc.RunOnce(context.Background())

	assert.Equal(t, storage.SummaryProcessing, store.task(1).Status)
	assert.Zero(t, summarizer.callCount())
}

func TestOverlappingRunsSkipped(t *testing.T) {
	store := newFakeStore()
	store.addMessage(1, "conv-1", "Hello")
	store.addTask(1, "conv-1", storage.SummaryPending, nil)

	summarizer := &fakeSummarizer{
		response: "slow",
		block:    make(chan struct{}),
	}
	svc := newService(store, summarizer)

	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.RunOnce(context.Background())
	}()

	// wait until the first run is inside the summarizer
	require.Eventually(t, func() bool {
		return summarizer.callCount() == 1
	}, time.Second, time.Millisecond)

	// the second run must be skipped, not queued
	svc.RunOnce(context.Background())
	assert.Equal(t, 1, summarizer.callCount())

	close(summarizer.block)
	<-done

	assert.Equal(t, storage.SummaryCompleted, store.task(1).Status)
}
