package worker

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
)

// QuestionOrderWorker stores the shuffled question order of each attempt on its session row.
type QuestionOrderWorker struct {
	pool *pgxpool.Pool
	loop *batchLoop[model.QuestionOrderMessage]
	log  zerolog.Logger
}

func NewQuestionOrderWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *QuestionOrderWorker {
	w := &QuestionOrderWorker{
		pool: pool,
		log:  log.With().Str("component", "question_order_worker").Logger(),
	}
	w.loop = newBatchLoop(rdb, config.WorkerKey.PersistQuestionOrderQueue, w.log, w.flushSafe)
	return w
}

func (w *QuestionOrderWorker) Start(ctx context.Context) {
	w.log.Info().Msg("QuestionOrderWorker started")
	w.loop.run(ctx)
}

func (w *QuestionOrderWorker) flushSafe(ctx context.Context, batch []*model.QuestionOrderMessage) {
	if err := w.bulkUpdate(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("bulk question order update failed, using fallback")

		requeue := make([]*model.QuestionOrderMessage, 0)
		for _, p := range batch {
			if err := w.persistSingle(ctx, p); err != nil {
				w.log.Error().Err(err).Msg("persistSingle failed, requeueing")
				requeue = append(requeue, p)
			}
		}
		w.loop.requeue(ctx, requeue)
	}
}

func (w *QuestionOrderWorker) bulkUpdate(ctx context.Context, batch []*model.QuestionOrderMessage) error {
	n := len(batch)

	examIDs := make([]uuid.UUID, 0, n)
	students := make([]int, 0, n)
	orders := make([]string, 0, n)

	for _, p := range batch {
		ob, err := json.Marshal(p.Order)
		if err != nil {
			return err
		}
		examIDs = append(examIDs, p.ExamID)
		students = append(students, p.StudentID)
		orders = append(orders, string(ob))
	}

	query := `
		UPDATE exam_sessions AS s
		SET question_order = t.qo
		FROM (
			SELECT
				u.exam_id,
				u.student_id,
				u.qo
			FROM UNNEST(
				$1::uuid[],
				$2::int[],
				$3::jsonb[]
			) AS u (exam_id, student_id, qo)
		) AS t
		WHERE s.exam_id = t.exam_id
		  AND s.student_id = t.student_id
		  AND s.question_order IS NULL
	`

	_, err := w.pool.Exec(ctx, query, examIDs, students, orders)
	return err
}

func (w *QuestionOrderWorker) persistSingle(ctx context.Context, p *model.QuestionOrderMessage) error {
	ob, err := json.Marshal(p.Order)
	if err != nil {
		return err
	}

	_, err = w.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET question_order = $1::jsonb
		 WHERE exam_id = $2 AND student_id = $3 AND question_order IS NULL`,
		string(ob), p.ExamID, p.StudentID,
	)
	return err
}
