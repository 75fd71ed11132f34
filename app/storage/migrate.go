package storage

import (
	"context"
	"fmt"
	"log/slog"
)

// migrations are applied in order, once each, tracked in schema_migrations.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS contacts (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		handle TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS chat (
		id BIGSERIAL PRIMARY KEY,
		sender TEXT NOT NULL,
		app TEXT NOT NULL,
		message TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		contact_id BIGINT REFERENCES contacts(id),
		category TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS chat_conversation_idx ON chat (conversation_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS chat_unclassified_idx ON chat (id) WHERE category IS NULL`,
	`CREATE TABLE IF NOT EXISTS summary_tasks (
		id BIGSERIAL PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'processing', 'completed', 'failed')),
		summary TEXT,
		fail_reason TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		claimed_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS followup_tasks (
		id BIGSERIAL PRIMARY KEY,
		source_message_id BIGINT NOT NULL REFERENCES chat(id),
		conversation_id TEXT NOT NULL,
		task TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'done')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

func (s *Service) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	err = s.pool.QueryRow(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		version := i + 1

		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", version, err)
		}

		if _, err = tx.Exec(ctx, migrations[i]); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("failed to apply migration %d: %w", version, err)
		}

		if _, err = tx.Exec(ctx,
			"INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}

		if err = tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", version, err)
		}

		slog.Info("Applied migration", "version", version)
	}

	return nil
}
