package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aimon/app/config"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/do"
)

var _ do.Shutdownable = (*Service)(nil)

type Service struct {
	pool *pgxpool.Pool
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)
	appCtx := do.MustInvoke[context.Context](di)

	dsn := fmt.Sprintf("postgres://%s:%s@%s/%s",
		cfg.DB.User, cfg.DB.Pass, cfg.DB.Host, cfg.DB.Database)

	pool, err := pgxpool.New(appCtx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create db pool: %w", err)
	}

	s := &Service{pool: pool}

	if err = s.migrate(appCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate db: %w", err)
	}

	return s, nil
}

func (s *Service) Shutdown() error {
	s.pool.Close()

	return nil
}

const messageColumns = "id, sender, app, message, conversation_id, contact_id, category, created_at"

func scanMessage(row pgx.Row) (Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.Sender, &m.Platform, &m.Text,
		&m.ConversationID, &m.ContactID, &m.Category, &m.ReceivedAt)

	return m, err
}

func (s *Service) InsertMessage(
	ctx context.Context,
	sender, platform, conversationID, text string,
	contactID *int64,
) (Message, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO chat (sender, app, message, conversation_id, contact_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+messageColumns,
		sender, platform, text, conversationID, contactID)

	msg, err := scanMessage(row)
	if err != nil {
		return Message{}, fmt.Errorf("failed to insert message: %w", err)
	}

	return msg, nil
}

func (s *Service) GetMessage(ctx context.Context, id int64) (Message, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+messageColumns+" FROM chat WHERE id = $1", id)

	msg, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("failed to get message: %w", err)
	}

	return msg, nil
}

func (s *Service) ListUnclassified(ctx context.Context, limit int) ([]Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM chat
		WHERE category IS NULL
		ORDER BY id ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unclassified messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

func (s *Service) SetMessageCategory(ctx context.Context, id int64, category Category) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE chat SET category = $2 WHERE id = $1", id, category)
	if err != nil {
		return fmt.Errorf("failed to set message category: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *Service) ListConversationMessages(
	ctx context.Context,
	conversationID string,
	limit int,
) ([]Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM chat
		WHERE conversation_id = $1
		ORDER BY created_at ASC
		LIMIT $2`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

func (s *Service) SearchMessages(ctx context.Context, query string, limit int) ([]Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM chat
		WHERE message ILIKE $1
		ORDER BY created_at DESC
		LIMIT $2`, "%"+query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

func collectMessages(rows pgx.Rows) ([]Message, error) {
	result := make([]Message, 0)

	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		result = append(result, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}

	return result, nil
}

func (s *Service) InsertFollowupTask(
	ctx context.Context,
	messageID int64,
	conversationID, task string,
) (FollowupTask, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO followup_tasks (source_message_id, conversation_id, task)
		VALUES ($1, $2, $3)
		RETURNING id, source_message_id, conversation_id, task, status, created_at`,
		messageID, conversationID, task)

	var t FollowupTask
	if err := row.Scan(&t.ID, &t.SourceMessageID, &t.ConversationID,
		&t.Task, &t.Status, &t.CreatedAt); err != nil {
		return FollowupTask{}, fmt.Errorf("failed to insert followup task: %w", err)
	}

	return t, nil
}

func (s *Service) ListConversationFollowups(
	ctx context.Context,
	conversationID string,
) ([]FollowupTask, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, source_message_id, conversation_id, task, status, created_at
		FROM followup_tasks
		WHERE conversation_id = $1
		ORDER BY created_at ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list followup tasks: %w", err)
	}
	defer rows.Close()

	result := make([]FollowupTask, 0)

	for rows.Next() {
		var t FollowupTask
		if err = rows.Scan(&t.ID, &t.SourceMessageID, &t.ConversationID,
			&t.Task, &t.Status, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan followup task: %w", err)
		}

		result = append(result, t)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read followup tasks: %w", err)
	}

	return result, nil
}

const summaryTaskColumns = "id, conversation_id, status, summary, fail_reason, created_at, claimed_at, completed_at"

func scanSummaryTask(row pgx.Row) (SummaryTask, error) {
	var t SummaryTask
	err := row.Scan(&t.ID, &t.ConversationID, &t.Status, &t.Summary,
		&t.FailReason, &t.CreatedAt, &t.ClaimedAt, &t.CompletedAt)

	return t, err
}

func (s *Service) CreateSummaryTask(ctx context.Context, conversationID string) (SummaryTask, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO summary_tasks (conversation_id)
		VALUES ($1)
		RETURNING `+summaryTaskColumns, conversationID)

	task, err := scanSummaryTask(row)
	if err != nil {
		return SummaryTask{}, fmt.Errorf("failed to create summary task: %w", err)
	}

	return task, nil
}

func (s *Service) GetSummaryTask(ctx context.Context, id int64) (SummaryTask, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+summaryTaskColumns+" FROM summary_tasks WHERE id = $1", id)

	task, err := scanSummaryTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return SummaryTask{}, ErrNotFound
	}
	if err != nil {
		return SummaryTask{}, fmt.Errorf("failed to get summary task: %w", err)
	}

	return task, nil
}

// ListClaimableSummaryTasks returns pending tasks plus processing tasks whose
// claim is older than staleBefore.
func (s *Service) ListClaimableSummaryTasks(
	ctx context.Context,
	staleBefore time.Time,
	limit int,
) ([]SummaryTask, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+summaryTaskColumns+`
		FROM summary_tasks
		WHERE status = 'pending'
		   OR (status = 'processing' AND claimed_at < $1)
		ORDER BY id ASC
		LIMIT $2`, staleBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list summary tasks: %w", err)
	}
	defer rows.Close()

	result := make([]SummaryTask, 0)

	for rows.Next() {
		task, err := scanSummaryTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan summary task: %w", err)
		}

		result = append(result, task)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read summary tasks: %w", err)
	}

	return result, nil
}

// ClaimSummaryTask transitions a task to processing. The status check and the
// transition happen in one statement so two sweeps can never claim the same
// row; the loser gets ErrClaimConflict.
func (s *Service) ClaimSummaryTask(ctx context.Context, id int64, staleBefore time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE summary_tasks
		SET status = 'processing', claimed_at = now()
		WHERE id = $1
		  AND (status = 'pending' OR (status = 'processing' AND claimed_at < $2))`,
		id, staleBefore)
	if err != nil {
		return fmt.Errorf("failed to claim summary task: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrClaimConflict
	}

	return nil
}

func (s *Service) CompleteSummaryTask(ctx context.Context, id int64, summary string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE summary_tasks
		SET status = 'completed', summary = $2, completed_at = now()
		WHERE id = $1 AND status = 'processing'`,
		id, summary)
	if err != nil {
		return fmt.Errorf("failed to complete summary task: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrClaimConflict
	}

	return nil
}

func (s *Service) FailSummaryTask(ctx context.Context, id int64, reason string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE summary_tasks
		SET status = 'failed', fail_reason = $2
		WHERE id = $1 AND status = 'processing'`,
		id, reason)
	if err != nil {
		return fmt.Errorf("failed to fail summary task: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrClaimConflict
	}

	return nil
}

// ResolveContact maps a platform handle to a contact id, if one is known.
func (s *Service) ResolveContact(ctx context.Context, handle string) (*int64, error) {
	var id int64

	err := s.pool.QueryRow(ctx,
		"SELECT id FROM contacts WHERE handle = $1", handle).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve contact: %w", err)
	}

	return &id, nil
}
