package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-session/internal/model"
)

// ProgressRepository is the durable store of resumable snapshots. The hot copy lives
// in Redis; rows here are written in batches by the progress worker.
type ProgressRepository struct {
	pool *pgxpool.Pool
}

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(pool *pgxpool.Pool) *ProgressRepository {
	return &ProgressRepository{pool: pool}
}

// GetProgress returns the stored snapshot, or pgx.ErrNoRows.
func (r *ProgressRepository) GetProgress(ctx context.Context, examID uuid.UUID, studentID int) (*model.SessionSnapshot, error) {
	snap := &model.SessionSnapshot{}
	err := r.pool.QueryRow(ctx,
		`SELECT snapshot FROM exam_progress WHERE exam_id = $1 AND student_id = $2`,
		examID, studentID,
	).Scan(snap)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// DeleteProgress removes the stored snapshot, if any.
func (r *ProgressRepository) DeleteProgress(ctx context.Context, examID uuid.UUID, studentID int) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM exam_progress WHERE exam_id = $1 AND student_id = $2`,
		examID, studentID)
	return err
}
