package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
)

// ProgressWorker consumes persist_progress_queue and upserts the newest snapshot
// of every attempt into exam_progress.
type ProgressWorker struct {
	pool *pgxpool.Pool
	loop *batchLoop[model.ProgressMessage]
	log  zerolog.Logger
}

// NewProgressWorker creates a new ProgressWorker.
func NewProgressWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ProgressWorker {
	w := &ProgressWorker{
		pool: pool,
		log:  log.With().Str("component", "progress_worker").Logger(),
	}
	w.loop = newBatchLoop(rdb, config.WorkerKey.PersistProgressQueue, w.log, w.flushSafe)
	return w
}

// Start begins the worker loop. Call in a goroutine.
func (w *ProgressWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ProgressWorker started")
	w.loop.run(ctx)
}

// newestPerAttempt keeps only the latest snapshot of each (exam, student) pair.
// Snapshots arrive every second, so a batch usually holds many per attempt.
func newestPerAttempt(batch []*model.ProgressMessage) []*model.ProgressMessage {
	type attempt struct {
		exam    uuid.UUID
		student int
	}
	latest := make(map[attempt]int, len(batch))
	out := make([]*model.ProgressMessage, 0, len(batch))

	for _, p := range batch {
		k := attempt{p.ExamID, p.StudentID}
		if i, ok := latest[k]; ok {
			if !p.SavedAt.Before(out[i].SavedAt) {
				out[i] = p
			}
			continue
		}
		latest[k] = len(out)
		out = append(out, p)
	}
	return out
}

func (w *ProgressWorker) flushSafe(ctx context.Context, batch []*model.ProgressMessage) {
	batch = newestPerAttempt(batch)

	if err := w.bulkUpsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk progress upsert failed, attempting row-by-row recovery")

		requeue := make([]*model.ProgressMessage, 0)
		for _, p := range batch {
			if err := w.upsertSingle(ctx, p); err != nil {
				w.log.Error().Err(err).Int("student_id", p.StudentID).Msg("Upsert failed, requeueing")
				requeue = append(requeue, p)
			}
		}
		w.loop.requeue(ctx, requeue)
	}
}

// Rows of finished attempts are skipped so a late snapshot cannot resurrect progress.
const upsertProgressSQL = `
	INSERT INTO exam_progress (exam_id, student_id, snapshot, saved_at)
	SELECT u.exam_id, u.student_id, u.snapshot, u.saved_at
	FROM UNNEST(
		$1::uuid[],
		$2::int[],
		$3::jsonb[],
		$4::timestamptz[]
	) AS u (exam_id, student_id, snapshot, saved_at)
	JOIN exam_sessions s
	  ON s.exam_id = u.exam_id
	 AND s.student_id = u.student_id
	 AND s.status = 'IN_PROGRESS'
	ON CONFLICT (exam_id, student_id) DO UPDATE
	SET snapshot = EXCLUDED.snapshot,
	    saved_at = EXCLUDED.saved_at
	WHERE exam_progress.saved_at <= EXCLUDED.saved_at
`

func (w *ProgressWorker) bulkUpsert(ctx context.Context, batch []*model.ProgressMessage) error {
	n := len(batch)
	examIDs := make([]uuid.UUID, 0, n)
	students := make([]int, 0, n)
	snapshots := make([]string, 0, n)
	savedAts := make([]time.Time, 0, n)

	for _, p := range batch {
		raw, err := json.Marshal(p.Snapshot)
		if err != nil {
			return err
		}
		examIDs = append(examIDs, p.ExamID)
		students = append(students, p.StudentID)
		snapshots = append(snapshots, string(raw))
		savedAts = append(savedAts, p.SavedAt)
	}

	_, err := w.pool.Exec(ctx, upsertProgressSQL, examIDs, students, snapshots, savedAts)
	return err
}

func (w *ProgressWorker) upsertSingle(ctx context.Context, p *model.ProgressMessage) error {
	return w.bulkUpsert(ctx, []*model.ProgressMessage{p})
}
