package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-session/internal/model"
)

// QuestionRepository handles question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByExam retrieves all questions for a given exam with their grading data, ordered by order_num.
func (r *QuestionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.KeyedQuestion, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, question_type, question_text, options, time_limit_seconds, points, correct_answer
		 FROM questions WHERE exam_id = $1
		 ORDER BY order_num, id`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.KeyedQuestion
	for rows.Next() {
		var q model.KeyedQuestion
		if err := rows.Scan(&q.ID, &q.Type, &q.Text, &q.Options, &q.TimeLimitSeconds, &q.Points, &q.CorrectAnswer); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}
