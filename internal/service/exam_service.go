package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
)

// Domain Errors
var (
	ErrExamNotFound = errors.New("exam not found")
	ErrNoQuestions  = errors.New("exam has no questions")
)

type examReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	ListPublished(ctx context.Context) ([]model.Exam, error)
}

type questionReader interface {
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.KeyedQuestion, error)
}

// CachedExam is the exam entry kept in Redis: the row for availability checks
// plus the student-facing definition.
type CachedExam struct {
	Exam       model.Exam           `json:"exam"`
	Definition model.ExamDefinition `json:"definition"`
}

// AnswerKey is the grading data of an exam, keyed by question id.
type AnswerKey struct {
	Correct map[string]string
	Points  map[string]int
}

// ExamService handles exam read access and Redis caching.
type ExamService struct {
	examRepo     examReader
	questionRepo questionReader
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(
	examRepo examReader,
	questionRepo questionReader,
	rdb *redis.Client,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		examRepo:     examRepo,
		questionRepo: questionRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "exam_service").Logger(),
	}
}

// WarmExamCache caches the exam definition (without correct answers) and its
// answer key in one pipeline.
func (s *ExamService) WarmExamCache(ctx context.Context, exam *model.Exam) (*CachedExam, error) {
	questions, err := s.questionRepo.ListByExam(ctx, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	entry := &CachedExam{
		Exam: *exam,
		Definition: model.ExamDefinition{
			ID:              exam.ID,
			Title:           exam.Title,
			DurationSeconds: exam.DurationMinutes * 60,
			Policy:          exam.Policy,
			Questions:       make([]model.Question, len(questions)),
			QuestionOrder:   make([]uuid.UUID, len(questions)),
		},
	}

	answerKey := make(map[string]interface{}, len(questions))
	points := make(map[string]interface{}, len(questions))
	for i, q := range questions {
		entry.Definition.Questions[i] = q.Question
		entry.Definition.QuestionOrder[i] = q.ID
		points[q.ID.String()] = q.Points
		if q.CorrectAnswer != nil && q.Type.HasOptions() {
			answerKey[q.ID.String()] = *q.CorrectAnswer
		}
	}

	payloadJSON, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	id := exam.ID.String()
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.ExamPayloadKey(id), payloadJSON, 0)
	pipe.Del(ctx, config.CacheKey.ExamAnswerKey(id), config.CacheKey.ExamPointsKey(id))
	if len(answerKey) > 0 {
		pipe.HSet(ctx, config.CacheKey.ExamAnswerKey(id), answerKey)
	}
	pipe.HSet(ctx, config.CacheKey.ExamPointsKey(id), points)

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("exam_id", id).
		Int("questions", len(questions)).
		Msg("Cache warmed")
	return entry, nil
}

// PrewarmAllCaches loads every published exam into Redis.
func (s *ExamService) PrewarmAllCaches(ctx context.Context) error {
	exams, err := s.examRepo.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published exams: %w", err)
	}

	if len(exams) == 0 {
		s.log.Info().Msg("No published exams to prewarm")
		return nil
	}

	s.log.Info().Int("count", len(exams)).Msg("Prewarming published exams...")

	warmed := 0
	for i := range exams {
		if _, err := s.WarmExamCache(ctx, &exams[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("exam_id", exams[i].ID.String()).
				Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(exams)).
		Msg("Prewarming complete")
	return nil
}

// GetExam returns the cached exam, loading and caching it from PostgreSQL on a miss.
func (s *ExamService) GetExam(ctx context.Context, examID uuid.UUID) (*CachedExam, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.ExamPayloadKey(examID.String())).Bytes()
	if err == nil {
		var entry CachedExam
		if err := json.Unmarshal(data, &entry); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		return &entry, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get payload: %w", err)
	}

	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return s.WarmExamCache(ctx, exam)
}

// GetAnswerKey returns the cached grading data, warming the cache when it is missing.
func (s *ExamService) GetAnswerKey(ctx context.Context, examID uuid.UUID) (*AnswerKey, error) {
	id := examID.String()

	points, err := s.rdb.HGetAll(ctx, config.CacheKey.ExamPointsKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get points: %w", err)
	}
	if len(points) == 0 {
		if err := s.rdb.Del(ctx, config.CacheKey.ExamPayloadKey(id)).Err(); err != nil {
			return nil, fmt.Errorf("drop stale payload: %w", err)
		}
		if _, err := s.GetExam(ctx, examID); err != nil {
			return nil, err
		}
		if points, err = s.rdb.HGetAll(ctx, config.CacheKey.ExamPointsKey(id)).Result(); err != nil {
			return nil, fmt.Errorf("get points: %w", err)
		}
	}

	correct, err := s.rdb.HGetAll(ctx, config.CacheKey.ExamAnswerKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get answer key: %w", err)
	}

	key := &AnswerKey{Correct: correct, Points: make(map[string]int, len(points))}
	for qid, raw := range points {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid points for %s: %w", qid, err)
		}
		key.Points[qid] = n
	}
	return key, nil
}

// QuestionOrder returns the order the student sees the questions in. For
// randomized exams the order is shuffled once per attempt, cached, and queued
// for persistence on the session row.
func (s *ExamService) QuestionOrder(ctx context.Context, exam *CachedExam, session *model.ExamSession) ([]uuid.UUID, error) {
	base := exam.Definition.OrderedIDs()
	if !exam.Exam.RandomizeQuestions {
		return base, nil
	}
	if len(session.QuestionOrder) == len(base) {
		return session.QuestionOrder, nil
	}

	key := config.CacheKey.StudentShuffledQuestionKey(session.ExamID.String(), session.StudentID)

	order := make([]uuid.UUID, len(base))
	copy(order, base)
	rand.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	raw, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}

	// Concurrent loads of the same attempt must agree on one order.
	stored, err := s.rdb.SetNX(ctx, key, raw, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("store order: %w", err)
	}
	if !stored {
		cached, err := s.rdb.Get(ctx, key).Bytes()
		if err != nil {
			return nil, fmt.Errorf("get order: %w", err)
		}
		var existing []uuid.UUID
		if err := json.Unmarshal(cached, &existing); err != nil {
			return nil, fmt.Errorf("unmarshal order: %w", err)
		}
		return existing, nil
	}

	msg, _ := json.Marshal(model.QuestionOrderMessage{
		ExamID:    session.ExamID,
		StudentID: session.StudentID,
		Order:     order,
	})
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistQuestionOrderQueue, msg).Err(); err != nil {
		s.log.Warn().Err(err).Str("exam_id", session.ExamID.String()).Int("student_id", session.StudentID).
			Msg("Failed to queue question order")
	}
	return order, nil
}
