package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
)

// Domain Errors
var (
	ErrExamNotAvailable   = errors.New("exam is not available")
	ErrAlreadySubmitted   = errors.New("exam already submitted")
	ErrNoProgress         = errors.New("no saved progress")
	ErrSubmissionMismatch = errors.New("submission does not belong to this exam")
	ErrNoAttempt          = errors.New("no attempt opened for this exam")
)

// submittedTTL bounds the idempotency key; the completed session row outlives it.
const submittedTTL = 7 * 24 * time.Hour

// submissionGrace keeps intake open after the scheduled end for automatic
// submissions fired by the attempt's own clock.
const submissionGrace = 5 * time.Minute

type examCatalog interface {
	GetExam(ctx context.Context, examID uuid.UUID) (*CachedExam, error)
	GetAnswerKey(ctx context.Context, examID uuid.UUID) (*AnswerKey, error)
	QuestionOrder(ctx context.Context, exam *CachedExam, session *model.ExamSession) ([]uuid.UUID, error)
}

type sessionStore interface {
	Open(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, error)
	GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, error)
}

type progressArchive interface {
	GetProgress(ctx context.Context, examID uuid.UUID, studentID int) (*model.SessionSnapshot, error)
	DeleteProgress(ctx context.Context, examID uuid.UUID, studentID int) error
}

// ExamSessionService is the backend side of an attempt: it serves the exam session,
// stores resumable progress and takes in the final submission.
type ExamSessionService struct {
	exams       examCatalog
	sessions    sessionStore
	archive     progressArchive
	rdb         *redis.Client
	progressTTL time.Duration
	now         func() time.Time
	log         zerolog.Logger
}

// NewExamSessionService creates a new ExamSessionService.
func NewExamSessionService(
	exams examCatalog,
	sessions sessionStore,
	archive progressArchive,
	rdb *redis.Client,
	cfg *config.Config,
	log zerolog.Logger,
) *ExamSessionService {
	return &ExamSessionService{
		exams:       exams,
		sessions:    sessions,
		archive:     archive,
		rdb:         rdb,
		progressTTL: cfg.Session.ProgressTTL,
		now:         time.Now,
		log:         log.With().Str("component", "exam_session_service").Logger(),
	}
}

// LoadExamSession opens (or reopens) the student's attempt and returns the exam
// definition in the student's question order, together with the wall-clock time
// left since the attempt was first opened.
func (s *ExamSessionService) LoadExamSession(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamSessionPayload, error) {
	exam, err := s.exams.GetExam(ctx, examID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !exam.Exam.Available(now) {
		return nil, ErrExamNotAvailable
	}

	submitted, err := s.rdb.Exists(ctx, config.CacheKey.StudentSubmittedKey(examID.String(), studentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("check submitted: %w", err)
	}
	if submitted > 0 {
		return nil, ErrAlreadySubmitted
	}

	session, err := s.sessions.Open(ctx, examID, studentID)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	if session.Status == model.SessionStatusCompleted {
		return nil, ErrAlreadySubmitted
	}

	order, err := s.exams.QuestionOrder(ctx, exam, session)
	if err != nil {
		return nil, fmt.Errorf("question order: %w", err)
	}

	def := exam.Definition
	def.QuestionOrder = order

	timeLeft := def.DurationSeconds - int(now.Sub(session.StartedAt).Seconds())
	if timeLeft < 0 {
		timeLeft = 0
	}
	if timeLeft > def.DurationSeconds {
		timeLeft = def.DurationSeconds
	}
	startedAt := session.StartedAt

	s.publish(ctx, examID, model.MonitorMessage{Type: model.MonitorStudentJoined, StudentID: studentID})

	return &model.ExamSessionPayload{
		ExamDefinition: def,
		TimeLeft:       &timeLeft,
		StartedAt:      &startedAt,
	}, nil
}

// GetProgress returns the resumable snapshot of the attempt. Redis is tried first;
// on a miss the durable copy is read and put back into Redis.
func (s *ExamSessionService) GetProgress(ctx context.Context, examID uuid.UUID, studentID int) (*model.SessionSnapshot, error) {
	key := config.CacheKey.StudentProgressKey(examID.String(), studentID)

	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var snap model.SessionSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("unmarshal progress: %w", err)
		}
		return &snap, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get progress: %w", err)
	}

	snap, err := s.archive.GetProgress(ctx, examID, studentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoProgress
		}
		return nil, fmt.Errorf("get archived progress: %w", err)
	}

	// Self-heal so the next reload is served from Redis.
	if raw, err := json.Marshal(snap); err == nil {
		_ = s.rdb.Set(ctx, key, raw, s.progressTTL).Err()
	}
	return snap, nil
}

// SaveProgress stores the snapshot in Redis and queues it for the durable table.
// Saves arriving after the submission was accepted are refused.
func (s *ExamSessionService) SaveProgress(ctx context.Context, examID uuid.UUID, studentID int, snap model.SessionSnapshot) error {
	submitted, err := s.rdb.Exists(ctx, config.CacheKey.StudentSubmittedKey(examID.String(), studentID)).Result()
	if err != nil {
		return fmt.Errorf("check submitted: %w", err)
	}
	if submitted > 0 {
		return ErrAlreadySubmitted
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	msg, err := json.Marshal(model.ProgressMessage{
		ExamID:    examID,
		StudentID: studentID,
		Snapshot:  snap,
		SavedAt:   s.now(),
	})
	if err != nil {
		return fmt.Errorf("marshal progress message: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.StudentProgressKey(examID.String(), studentID), raw, s.progressTTL)
	pipe.RPush(ctx, config.WorkerKey.PersistProgressQueue, msg)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

// ClearProgress drops the resumable snapshot from both stores.
func (s *ExamSessionService) ClearProgress(ctx context.Context, examID uuid.UUID, studentID int) error {
	if err := s.rdb.Del(ctx, config.CacheKey.StudentProgressKey(examID.String(), studentID)).Err(); err != nil {
		return fmt.Errorf("clear progress: %w", err)
	}
	if err := s.archive.DeleteProgress(ctx, examID, studentID); err != nil {
		return fmt.Errorf("clear archived progress: %w", err)
	}
	return nil
}

// Submit accepts the final payload of an attempt exactly once. A repeated
// submission succeeds without effect and tells the client to leave the exam.
func (s *ExamSessionService) Submit(ctx context.Context, studentID int, payload model.SubmissionPayload) (*model.SubmissionResult, error) {
	if payload.ExamID == uuid.Nil {
		return nil, ErrSubmissionMismatch
	}
	if err := s.checkAttempt(ctx, payload.ExamID, studentID); err != nil {
		return nil, err
	}
	examID := payload.ExamID.String()
	submittedKey := config.CacheKey.StudentSubmittedKey(examID, studentID)

	first, err := s.rdb.SetNX(ctx, submittedKey, payload.SubmittedAt.Unix(), submittedTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("mark submitted: %w", err)
	}
	if !first {
		s.log.Info().Str("exam_id", examID).Int("student_id", studentID).Msg("Duplicate submission ignored")
		return &model.SubmissionResult{Success: true, Redirect: true, Message: "Ujian sudah dikumpulkan sebelumnya."}, nil
	}

	score, err := s.queueSubmission(ctx, studentID, payload)
	if err != nil {
		// Release the key so the client's retry is not mistaken for a duplicate.
		_ = s.rdb.Del(ctx, submittedKey).Err()
		return nil, err
	}

	s.log.Info().
		Str("exam_id", examID).
		Int("student_id", studentID).
		Str("trigger", string(payload.Trigger)).
		Float64("score", score).
		Int("incidents", len(payload.SuspiciousActivities)).
		Msg("Submission accepted")

	return &model.SubmissionResult{Success: true, Message: "Jawaban berhasil dikumpulkan."}, nil
}

// checkAttempt refuses intake for an exam outside its window or one the student
// never opened. A completed row passes so a duplicate still gets its redirect.
func (s *ExamSessionService) checkAttempt(ctx context.Context, examID uuid.UUID, studentID int) error {
	exam, err := s.exams.GetExam(ctx, examID)
	if err != nil {
		return err
	}
	if !exam.Exam.AcceptsSubmission(s.now(), submissionGrace) {
		return ErrExamNotAvailable
	}
	if _, err := s.sessions.GetByExamAndStudent(ctx, examID, studentID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNoAttempt
		}
		return fmt.Errorf("get session: %w", err)
	}
	return nil
}

func (s *ExamSessionService) queueSubmission(ctx context.Context, studentID int, payload model.SubmissionPayload) (float64, error) {
	key, err := s.exams.GetAnswerKey(ctx, payload.ExamID)
	if err != nil {
		return 0, fmt.Errorf("get answer key: %w", err)
	}
	score := Grade(payload, key)

	msg, err := json.Marshal(model.SubmissionMessage{StudentID: studentID, Score: score, Payload: payload})
	if err != nil {
		return 0, fmt.Errorf("marshal submission: %w", err)
	}
	notice, _ := json.Marshal(model.MonitorMessage{
		Type:      model.MonitorStudentSubmitted,
		StudentID: studentID,
		Data:      map[string]interface{}{"score": score, "trigger": payload.Trigger},
	})

	examID := payload.ExamID.String()
	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, config.WorkerKey.PersistSubmissionsQueue, msg)
	pipe.Del(ctx, config.CacheKey.StudentProgressKey(examID, studentID))
	pipe.Publish(ctx, config.CacheKey.ExamMonitorChannel(examID), notice)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("queue submission: %w", err)
	}
	return score, nil
}

func (s *ExamSessionService) publish(ctx context.Context, examID uuid.UUID, msg model.MonitorMessage) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := s.rdb.Publish(ctx, config.CacheKey.ExamMonitorChannel(examID.String()), raw).Err(); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to publish monitor event")
	}
}
