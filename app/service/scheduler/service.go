package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"aimon/app/config"
	"aimon/app/service/classify"
	"aimon/app/service/summary"
	"aimon/app/storage"

	"github.com/robfig/cron/v3"
	"github.com/samber/do"
)

const conversationHistoryLimit = 200

// Store is the slice of the storage surface the sweeps need. Narrow on
// purpose so tests can inject a fake.
type Store interface {
	ListUnclassified(ctx context.Context, limit int) ([]storage.Message, error)
	SetMessageCategory(ctx context.Context, id int64, category storage.Category) error
	InsertFollowupTask(ctx context.Context, messageID int64, conversationID, task string) (storage.FollowupTask, error)
	ListClaimableSummaryTasks(ctx context.Context, staleBefore time.Time, limit int) ([]storage.SummaryTask, error)
	ClaimSummaryTask(ctx context.Context, id int64, staleBefore time.Time) error
	CompleteSummaryTask(ctx context.Context, id int64, summary string) error
	FailSummaryTask(ctx context.Context, id int64, reason string) error
	ListConversationMessages(ctx context.Context, conversationID string, limit int) ([]storage.Message, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, msgs []storage.Message) (string, error)
}

// Service drives newly stored messages and pending summary tasks through
// classification, follow-up detection and summarization on a fixed interval.
type Service struct {
	store      Store
	summarizer Summarizer

	interval   time.Duration
	batchSize  int
	staleAfter time.Duration

	running atomic.Bool
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewWithOptions(
		do.MustInvoke[*storage.Service](di),
		do.MustInvoke[*summary.Service](di),
		cfg.Scheduler.GetInterval(),
		cfg.Scheduler.BatchSize,
		cfg.Scheduler.GetStaleAfter(),
	), nil
}

func NewWithOptions(
	store Store,
	summarizer Summarizer,
	interval time.Duration,
	batchSize int,
	staleAfter time.Duration,
) *Service {
	return &Service{
		store:      store,
		summarizer: summarizer,
		interval:   interval,
		batchSize:  batchSize,
		staleAfter: staleAfter,
	}
}

// Run blocks until ctx is cancelled, then lets an in-flight run finish so no
// task is left mid-transition.
func (s *Service) Run(ctx context.Context) {
	c := cron.New()

	_, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		s.RunOnce(ctx)
	})
	if err != nil {
		slog.Error("Failed to schedule sweeps", "error", err)
		return
	}

	c.Start()

	<-ctx.Done()

	stopCtx := c.Stop()
	<-stopCtx.Done()
}

// RunOnce executes one full run: classification and follow-up sweep, then the
// summary sweep. Overlapping runs are skipped, never queued, so two runs can
// never claim the same rows.
func (s *Service) RunOnce(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		slog.Warn("Previous sweep run still in progress, skipping")
		return
	}
	defer s.running.Store(false)

	start := time.Now()

	classified := s.classifySweep(ctx)
	summarized := s.summarySweep(ctx)

	if classified > 0 || summarized > 0 {
		slog.Info("Sweep run finished",
			"classified", classified,
			"summarized", summarized,
			"duration", time.Since(start))
	}
}

// classifySweep categorizes a batch of unclassified messages and records a
// follow-up task for actionable ones. Writing the category marks the message
// processed for both stages, so re-running is a no-op.
func (s *Service) classifySweep(ctx context.Context) int {
	msgs, err := s.store.ListUnclassified(ctx, s.batchSize)
	if err != nil {
		slog.Error("Failed to fetch unclassified messages", "error", err)
		return 0
	}

	processed := 0

	for _, msg := range msgs {
		category := classify.Classify(msg.Text)

		if err = s.store.SetMessageCategory(ctx, msg.ID, category); err != nil {
			slog.Error("Failed to set message category",
				"message_id", msg.ID,
				"error", err)
			continue
		}

		processed++

		task, ok := classify.DetectFollowup(msg.Text)
		if !ok {
			continue
		}

		if _, err = s.store.InsertFollowupTask(ctx, msg.ID, msg.ConversationID, task); err != nil {
			slog.Error("Failed to insert followup task",
				"message_id", msg.ID,
				"error", err)
		}
	}

	return processed
}

// summarySweep claims a batch of pending (or stale processing) summary tasks
// and completes or fails each one. A lost claim means another run owns the
// row; it is skipped without noise.
func (s *Service) summarySweep(ctx context.Context) int {
	staleBefore := time.Now().Add(-s.staleAfter)

	tasks, err := s.store.ListClaimableSummaryTasks(ctx, staleBefore, s.batchSize)
	if err != nil {
		slog.Error("Failed to fetch summary tasks", "error", err)
		return 0
	}

	processed := 0

	for _, task := range tasks {
		if err = s.store.ClaimSummaryTask(ctx, task.ID, staleBefore); err != nil {
			if !errors.Is(err, storage.ErrClaimConflict) {
				slog.Error("Failed to claim summary task",
					"task_id", task.ID,
					"error", err)
			}
			continue
		}

		s.processSummaryTask(ctx, task)
		processed++
	}

	return processed
}

func (s *Service) processSummaryTask(ctx context.Context, task storage.SummaryTask) {
	msgs, err := s.store.ListConversationMessages(ctx, task.ConversationID, conversationHistoryLimit)
	if err == nil {
		var text string

		text, err = s.summarizer.Summarize(ctx, msgs)
		if err == nil {
			if err = s.store.CompleteSummaryTask(ctx, task.ID, text); err != nil {
				slog.Error("Failed to complete summary task",
					"task_id", task.ID,
					"error", err)
			}
			return
		}
	}

	slog.Warn("Summary task failed",
		"task_id", task.ID,
		"conversation_id", task.ConversationID,
		"error", err)

	if failErr := s.store.FailSummaryTask(ctx, task.ID, err.Error()); failErr != nil {
		slog.Error("Failed to mark summary task failed",
			"task_id", task.ID,
			"error", failErr)
	}
}
