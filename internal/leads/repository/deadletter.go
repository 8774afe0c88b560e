package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type DeadLetter struct {
	ID            uuid.UUID
	OriginalJobID string
	SourceQueue   string
	TaskType      string
	Data          []byte
	FailedAt      time.Time
	Error         string
	AttemptsMade  int
	RequeuedAt    *time.Time
}

type CreateDeadLetterParams struct {
	OriginalJobID string
	SourceQueue   string
	TaskType      string
	Data          []byte
	FailedAt      time.Time
	Error         string
	AttemptsMade  int
}

// CreateDeadLetter persists one exhausted job. The payload is stored
// verbatim so the job can be requeued later.
func (r *Repository) CreateDeadLetter(ctx context.Context, params CreateDeadLetterParams) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO dead_letters (id, original_job_id, source_queue, task_type, data, failed_at, error, attempts_made)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, uuid.New(), params.OriginalJobID, params.SourceQueue, params.TaskType, params.Data,
		params.FailedAt, params.Error, params.AttemptsMade)
	return err
}

func (r *Repository) GetDeadLetter(ctx context.Context, id uuid.UUID) (DeadLetter, error) {
	var entry DeadLetter
	err := r.pool.QueryRow(ctx, `
		SELECT id, original_job_id, source_queue, task_type, data, failed_at, error, attempts_made, requeued_at
		FROM dead_letters
		WHERE id = $1
	`, id).Scan(&entry.ID, &entry.OriginalJobID, &entry.SourceQueue, &entry.TaskType, &entry.Data,
		&entry.FailedAt, &entry.Error, &entry.AttemptsMade, &entry.RequeuedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return DeadLetter{}, ErrNotFound
	}
	return entry, err
}

// ListDeadLetters returns entries newest first, optionally only those not
// yet requeued.
func (r *Repository) ListDeadLetters(ctx context.Context, pendingOnly bool, limit int) ([]DeadLetter, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, original_job_id, source_queue, task_type, data, failed_at, error, attempts_made, requeued_at
		FROM dead_letters
		WHERE NOT $1::bool OR requeued_at IS NULL
		ORDER BY failed_at DESC
		LIMIT $2
	`, pendingOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]DeadLetter, 0)
	for rows.Next() {
		var entry DeadLetter
		if err := rows.Scan(&entry.ID, &entry.OriginalJobID, &entry.SourceQueue, &entry.TaskType, &entry.Data,
			&entry.FailedAt, &entry.Error, &entry.AttemptsMade, &entry.RequeuedAt); err != nil {
			return nil, err
		}
		items = append(items, entry)
	}
	return items, rows.Err()
}

func (r *Repository) MarkDeadLetterRequeued(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE dead_letters SET requeued_at = now() WHERE id = $1 AND requeued_at IS NULL
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
