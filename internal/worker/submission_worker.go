package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
)

// SubmissionWorker consumes persist_submissions_queue. Each batch is written in one
// transaction: the answers, the completed session rows and the removal of the
// progress rows they supersede.
type SubmissionWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	loop *batchLoop[model.SubmissionMessage]
	log  zerolog.Logger
}

// NewSubmissionWorker creates a new SubmissionWorker.
func NewSubmissionWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *SubmissionWorker {
	w := &SubmissionWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "submission_worker").Logger(),
	}
	w.loop = newBatchLoop(rdb, config.WorkerKey.PersistSubmissionsQueue, w.log, w.flushSafe)
	return w
}

// Start begins the worker loop. Call in a goroutine.
func (w *SubmissionWorker) Start(ctx context.Context) {
	w.log.Info().Msg("SubmissionWorker started")
	w.loop.run(ctx)
}

func (w *SubmissionWorker) flushSafe(ctx context.Context, batch []*model.SubmissionMessage) {
	err := w.persist(ctx, batch)
	if err == nil {
		w.cleanup(ctx, batch)
		return
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk submission persist failed, attempting one by one")

	requeue := make([]*model.SubmissionMessage, 0)
	done := make([]*model.SubmissionMessage, 0, len(batch))
	for _, s := range batch {
		if err := w.persist(ctx, []*model.SubmissionMessage{s}); err != nil {
			w.log.Error().Err(err).
				Int("student_id", s.StudentID).
				Str("exam_id", s.Payload.ExamID.String()).
				Msg("Submission persist failed, requeueing")
			requeue = append(requeue, s)
			continue
		}
		done = append(done, s)
	}
	w.cleanup(ctx, done)
	w.loop.requeue(ctx, requeue)
}

func (w *SubmissionWorker) persist(ctx context.Context, batch []*model.SubmissionMessage) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := upsertAnswers(ctx, tx, batch); err != nil {
		return fmt.Errorf("upsert answers: %w", err)
	}
	if err := completeSessions(ctx, tx, batch); err != nil {
		return fmt.Errorf("complete sessions: %w", err)
	}
	if err := deleteProgress(ctx, tx, batch); err != nil {
		return fmt.Errorf("delete progress: %w", err)
	}

	return tx.Commit(ctx)
}

func upsertAnswers(ctx context.Context, tx pgx.Tx, batch []*model.SubmissionMessage) error {
	var (
		examIDs     []uuid.UUID
		students    []int
		questionIDs []uuid.UUID
		answers     []*string
		spent       []int
		locked      []bool
		review      []bool
	)

	for _, s := range batch {
		for _, a := range s.Payload.Answers {
			var value *string
			if a.Answer != nil && !a.Answer.IsEmpty() {
				v := a.Answer.String()
				value = &v
			}
			examIDs = append(examIDs, s.Payload.ExamID)
			students = append(students, s.StudentID)
			questionIDs = append(questionIDs, a.QuestionID)
			answers = append(answers, value)
			spent = append(spent, a.TimeSpent)
			locked = append(locked, a.IsLocked)
			review = append(review, a.MarkedForReview)
		}
	}

	if len(examIDs) == 0 {
		return nil
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO student_answers
			(exam_id, student_id, question_id, answer, time_spent_seconds, is_locked, marked_for_review)
		SELECT * FROM UNNEST(
			$1::uuid[],
			$2::int[],
			$3::uuid[],
			$4::text[],
			$5::int[],
			$6::bool[],
			$7::bool[]
		)
		ON CONFLICT (exam_id, student_id, question_id) DO UPDATE
		SET answer = EXCLUDED.answer,
		    time_spent_seconds = EXCLUDED.time_spent_seconds,
		    is_locked = EXCLUDED.is_locked,
		    marked_for_review = EXCLUDED.marked_for_review
	`, examIDs, students, questionIDs, answers, spent, locked, review)
	return err
}

func completeSessions(ctx context.Context, tx pgx.Tx, batch []*model.SubmissionMessage) error {
	n := len(batch)
	examIDs := make([]uuid.UUID, 0, n)
	students := make([]int, 0, n)
	scores := make([]float64, 0, n)
	finished := make([]time.Time, 0, n)
	triggers := make([]string, 0, n)
	incidents := make([]string, 0, n)

	for _, s := range batch {
		activities := s.Payload.SuspiciousActivities
		if activities == nil {
			activities = []model.SuspiciousActivity{}
		}
		raw, err := json.Marshal(activities)
		if err != nil {
			return err
		}
		examIDs = append(examIDs, s.Payload.ExamID)
		students = append(students, s.StudentID)
		scores = append(scores, s.Score)
		finished = append(finished, s.Payload.SubmittedAt)
		triggers = append(triggers, string(s.Payload.Trigger))
		incidents = append(incidents, string(raw))
	}

	_, err := tx.Exec(ctx, `
		UPDATE exam_sessions AS s
		SET status = 'COMPLETED',
		    final_score = t.score,
		    finished_at = t.finished_at,
		    submit_trigger = t.trigger,
		    incidents = t.incidents
		FROM UNNEST(
			$1::uuid[],
			$2::int[],
			$3::numeric[],
			$4::timestamptz[],
			$5::text[],
			$6::jsonb[]
		) AS t (exam_id, student_id, score, finished_at, trigger, incidents)
		WHERE s.exam_id = t.exam_id
		  AND s.student_id = t.student_id
	`, examIDs, students, scores, finished, triggers, incidents)
	return err
}

func deleteProgress(ctx context.Context, tx pgx.Tx, batch []*model.SubmissionMessage) error {
	examIDs := make([]uuid.UUID, 0, len(batch))
	students := make([]int, 0, len(batch))
	for _, s := range batch {
		examIDs = append(examIDs, s.Payload.ExamID)
		students = append(students, s.StudentID)
	}

	_, err := tx.Exec(ctx, `
		DELETE FROM exam_progress AS p
		USING UNNEST($1::uuid[], $2::int[]) AS t (exam_id, student_id)
		WHERE p.exam_id = t.exam_id
		  AND p.student_id = t.student_id
	`, examIDs, students)
	return err
}

// cleanup drops the per-attempt Redis state that only mattered while the attempt was live.
func (w *SubmissionWorker) cleanup(ctx context.Context, batch []*model.SubmissionMessage) {
	if len(batch) == 0 {
		return
	}
	pipe := w.rdb.Pipeline()
	for _, s := range batch {
		examID := s.Payload.ExamID.String()
		pipe.Del(ctx,
			config.CacheKey.StudentProgressKey(examID, s.StudentID),
			config.CacheKey.StudentShuffledQuestionKey(examID, s.StudentID),
		)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Warn().Err(err).Msg("Failed to clear attempt keys after submission")
	}
}
