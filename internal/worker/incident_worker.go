package worker

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
)

// IncidentWorker consumes persist_incidents_queue and bulk-copies incidents into exam_incidents.
type IncidentWorker struct {
	pool *pgxpool.Pool
	loop *batchLoop[model.IncidentMessage]
	log  zerolog.Logger
}

// NewIncidentWorker creates a new IncidentWorker.
func NewIncidentWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *IncidentWorker {
	w := &IncidentWorker{
		pool: pool,
		log:  log.With().Str("component", "incident_worker").Logger(),
	}
	w.loop = newBatchLoop(rdb, config.WorkerKey.PersistIncidentsQueue, w.log, w.flushSafe)
	return w
}

// Start begins the worker loop. Call in a goroutine.
func (w *IncidentWorker) Start(ctx context.Context) {
	w.log.Info().Msg("IncidentWorker started")
	w.loop.run(ctx)
}

var incidentColumns = []string{"exam_id", "student_id", "activity_type", "description", "severity", "occurred_at"}

func incidentRow(p *model.IncidentMessage) []interface{} {
	return []interface{}{p.ExamID, p.StudentID, string(p.Type), p.Description, string(p.Severity), p.Timestamp}
}

// flushSafe attempts bulk insert, then fallback insert, then requeue
func (w *IncidentWorker) flushSafe(ctx context.Context, batch []*model.IncidentMessage) {
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func (w *IncidentWorker) bulkInsert(ctx context.Context, batch []*model.IncidentMessage) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, p := range batch {
		rows = append(rows, incidentRow(p))
	}

	_, err := w.pool.CopyFrom(
		ctx,
		pgx.Identifier{"exam_incidents"},
		incidentColumns,
		pgx.CopyFromRows(rows),
	)
	return err
}

func (w *IncidentWorker) fallbackInsert(ctx context.Context, batch []*model.IncidentMessage) {
	requeue := make([]*model.IncidentMessage, 0)

	for _, p := range batch {
		_, err := w.pool.Exec(ctx,
			`INSERT INTO exam_incidents (exam_id, student_id, activity_type, description, severity, occurred_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			incidentRow(p)...,
		)
		if err != nil {
			w.log.Error().Err(err).Int("student_id", p.StudentID).Msg("Insert failed, requeueing")
			requeue = append(requeue, p)
		}
	}

	w.loop.requeue(ctx, requeue)
}
