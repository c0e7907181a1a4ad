package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
)

// AttemptRow is one attempt as seen by the proctor relay.
type AttemptRow struct {
	StudentID  int                 `json:"student_id"`
	Status     model.SessionStatus `json:"status"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
	FinalScore *float64            `json:"score,omitempty"`
}

// MonitorRepository provides data access for the proctor incident relay.
// It combines PostgreSQL (attempts, incidents) and Redis (live progress snapshots).
type MonitorRepository struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool, rdb *redis.Client) *MonitorRepository {
	return &MonitorRepository{pool: pool, rdb: rdb}
}

// ListAttempts returns every attempt of the given exam.
func (r *MonitorRepository) ListAttempts(ctx context.Context, examID uuid.UUID) ([]AttemptRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT student_id, status, started_at, finished_at, final_score
		 FROM exam_sessions WHERE exam_id = $1
		 ORDER BY started_at`,
		examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []AttemptRow
	for rows.Next() {
		var a AttemptRow
		if err := rows.Scan(&a.StudentID, &a.Status, &a.StartedAt, &a.FinishedAt, &a.FinalScore); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// GetIncidentCounts returns the number of incidents recorded for each student in the given exam.
func (r *MonitorRepository) GetIncidentCounts(ctx context.Context, examID uuid.UUID) (map[int]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT student_id, COUNT(*)
		 FROM exam_incidents
		 WHERE exam_id = $1
		 GROUP BY student_id`,
		examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int64)
	for rows.Next() {
		var sid int
		var count int64
		if err := rows.Scan(&sid, &count); err != nil {
			return nil, err
		}
		counts[sid] = count
	}

	return counts, rows.Err()
}

// GetAnsweredCounts reads the live progress snapshots of the given students in one
// pipeline and returns how many questions each has answered. Students without a
// snapshot are omitted.
func (r *MonitorRepository) GetAnsweredCounts(ctx context.Context, examID uuid.UUID, studentIDs []int) (map[int]int64, error) {
	result := make(map[int]int64, len(studentIDs))
	if len(studentIDs) == 0 {
		return result, nil
	}

	pipe := r.rdb.Pipeline()
	cmds := make([]*redis.StringCmd, len(studentIDs))
	for i, sid := range studentIDs {
		cmds[i] = pipe.Get(ctx, config.CacheKey.StudentProgressKey(examID.String(), sid))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	for i, cmd := range cmds {
		raw, err := cmd.Bytes()
		if err != nil {
			continue
		}
		var snap model.SessionSnapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			continue
		}
		result[studentIDs[i]] = int64(len(snap.Answers))
	}
	return result, nil
}
