package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-engine/internal/model"
)

// AttemptRepository handles exam attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, student_id, content, question_type, difficulty, duration_seconds,
	question_ids::text[], status, started_at, finished_at, score, time_spent_seconds`

// Create inserts a new attempt row.
func (r *AttemptRepository) Create(ctx context.Context, a *model.AttemptRecord) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exam_attempts (id, student_id, content, question_type, difficulty, duration_seconds, question_ids, total_questions, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::uuid[], $8, $9)
		 RETURNING started_at`,
		a.ID, a.StudentID, a.Content, string(a.QuestionType), a.Difficulty, a.DurationSeconds,
		a.QuestionIDs, len(a.QuestionIDs), model.AttemptStatusInProgress,
	).Scan(&a.StartedAt)
}

// GetByID retrieves one attempt.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.AttemptRecord, error) {
	a := &model.AttemptRecord{}
	err := r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts WHERE id = $1`, id,
	).Scan(&a.ID, &a.StudentID, &a.Content, &a.QuestionType, &a.Difficulty, &a.DurationSeconds,
		&a.QuestionIDs, &a.Status, &a.StartedAt, &a.FinishedAt, &a.Score, &a.TimeSpentSeconds)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListByStudent retrieves a student's attempts, newest first.
func (r *AttemptRepository) ListByStudent(ctx context.Context, studentID, limit int) ([]model.AttemptRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM exam_attempts
		 WHERE student_id = $1
		 ORDER BY started_at DESC
		 LIMIT $2`, studentID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.AttemptRecord
	for rows.Next() {
		var a model.AttemptRecord
		if err := rows.Scan(&a.ID, &a.StudentID, &a.Content, &a.QuestionType, &a.Difficulty, &a.DurationSeconds,
			&a.QuestionIDs, &a.Status, &a.StartedAt, &a.FinishedAt, &a.Score, &a.TimeSpentSeconds); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// Abandon marks an in-progress attempt as abandoned.
func (r *AttemptRepository) Abandon(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET status = $1, finished_at = $2
		 WHERE id = $3 AND status = $4`,
		model.AttemptStatusAbandoned, time.Now(), id, model.AttemptStatusInProgress)
	return err
}

// GetSnapshot returns the last persisted autosave snapshot of an attempt.
// pgx.ErrNoRows means none was ever saved.
func (r *AttemptRepository) GetSnapshot(ctx context.Context, id uuid.UUID) (*model.Snapshot, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx,
		`SELECT payload FROM attempt_snapshots WHERE attempt_id = $1`, id,
	).Scan(&raw)
	if err != nil {
		return nil, err
	}
	var s model.Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
