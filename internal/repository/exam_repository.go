package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-session/internal/model"
)

const examColumns = `id, title, scheduled_start, scheduled_end, duration_minutes,
	policy, randomize_questions, status, created_at, updated_at`

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

func scanExam(row pgx.Row, e *model.Exam) error {
	return row.Scan(&e.ID, &e.Title, &e.ScheduledStart, &e.ScheduledEnd, &e.DurationMinutes,
		&e.Policy, &e.RandomizeQuestions, &e.Status, &e.CreatedAt, &e.UpdatedAt)
}

// GetByID retrieves an exam by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	row := r.pool.QueryRow(ctx, `SELECT `+examColumns+` FROM exams WHERE id = $1`, id)
	if err := scanExam(row, e); err != nil {
		return nil, err
	}
	return e, nil
}

// ListPublished returns all exams that currently accept attempts.
// Used for cache prewarming on application startup.
func (r *ExamRepository) ListPublished(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams WHERE status IN ($1, $2)
		 ORDER BY created_at DESC`, model.ExamStatusPublished, model.ExamStatusInProgress)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := scanExam(rows, &e); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}
