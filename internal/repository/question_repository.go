package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-engine/internal/model"
)

// QuestionRepository handles question bank data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

const questionColumns = `id::text, question_text, question_type, options, correct_answer, explanation`

// PickForConfig draws a random set of questions matching the requested
// content, type and difficulty. Empty type or difficulty match anything.
func (r *QuestionRepository) PickForConfig(ctx context.Context, cfg model.ExamConfig) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+`
		 FROM questions
		 WHERE content = $1
		   AND ($2 = '' OR question_type = $2)
		   AND ($3 = '' OR difficulty = $3)
		 ORDER BY random()
		 LIMIT $4`,
		cfg.Content, string(cfg.Type), cfg.Difficulty, cfg.QuestionCount,
	)
	if err != nil {
		return nil, err
	}
	return collectQuestions(rows)
}

// ListByIDs retrieves questions by id, in the order given.
func (r *QuestionRepository) ListByIDs(ctx context.Context, ids []string) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+`
		 FROM questions
		 WHERE id = ANY($1::uuid[])`, ids,
	)
	if err != nil {
		return nil, err
	}
	questions, err := collectQuestions(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]model.Question, len(questions))
	for _, q := range questions {
		byID[q.ID.String()] = q
	}
	ordered := make([]model.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := byID[id]; ok {
			ordered = append(ordered, q)
		}
	}
	return ordered, nil
}

// BulkCreate inserts questions with COPY and returns the number written.
func (r *QuestionRepository) BulkCreate(ctx context.Context, content, difficulty string, questions []model.Question) (int64, error) {
	rows := make([][]any, 0, len(questions))
	for _, q := range questions {
		qt := q.Type
		if qt == "" {
			qt = model.QuestionTypeMultipleChoice
		}
		correct := q.CorrectOption
		if correct == "" {
			correct = q.CorrectAnswer
		}
		rows = append(rows, []any{content, string(qt), difficulty, q.Text, q.Options, correct, q.Explanation})
	}
	return r.pool.CopyFrom(ctx,
		pgx.Identifier{"questions"},
		[]string{"content", "question_type", "difficulty", "question_text", "options", "correct_answer", "explanation"},
		pgx.CopyFromRows(rows),
	)
}

func collectQuestions(rows pgx.Rows) ([]model.Question, error) {
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		var options []model.Option
		if err := rows.Scan(&q.ID, &q.Text, &q.Type, &options, &q.CorrectAnswer, &q.Explanation); err != nil {
			return nil, err
		}
		for i := range options {
			if options[i].ID == "" {
				options[i].ID = model.IndexLabel(i)
			}
		}
		q.Options = options
		questions = append(questions, q)
	}
	return questions, rows.Err()
}
