package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/examsession"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

// ========================================
// Fakes
// ========================================

type fakeCatalog struct {
	exam   *CachedExam
	key    *AnswerKey
	keyErr error
}

func (f *fakeCatalog) GetExam(_ context.Context, _ uuid.UUID) (*CachedExam, error) {
	if f.exam == nil {
		return nil, ErrExamNotFound
	}
	return f.exam, nil
}

func (f *fakeCatalog) GetAnswerKey(_ context.Context, _ uuid.UUID) (*AnswerKey, error) {
	return f.key, f.keyErr
}

func (f *fakeCatalog) QuestionOrder(_ context.Context, exam *CachedExam, _ *model.ExamSession) ([]uuid.UUID, error) {
	return exam.Definition.OrderedIDs(), nil
}

type fakeSessions struct {
	session *model.ExamSession
}

func (f *fakeSessions) Open(_ context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, error) {
	if f.session == nil {
		f.session = &model.ExamSession{
			ID:        uuid.New(),
			ExamID:    examID,
			StudentID: studentID,
			StartedAt: t0,
			Status:    model.SessionStatusInProgress,
		}
	}
	return f.session, nil
}

func (f *fakeSessions) GetByExamAndStudent(_ context.Context, _ uuid.UUID, _ int) (*model.ExamSession, error) {
	if f.session == nil {
		return nil, pgx.ErrNoRows
	}
	return f.session, nil
}

type fakeArchive struct {
	snap    *model.SessionSnapshot
	deleted int
}

func (f *fakeArchive) GetProgress(_ context.Context, _ uuid.UUID, _ int) (*model.SessionSnapshot, error) {
	if f.snap == nil {
		return nil, pgx.ErrNoRows
	}
	return f.snap, nil
}

func (f *fakeArchive) DeleteProgress(_ context.Context, _ uuid.UUID, _ int) error {
	f.deleted++
	f.snap = nil
	return nil
}

type sessionFixture struct {
	svc      *ExamSessionService
	mr       *miniredis.Miniredis
	catalog  *fakeCatalog
	sessions *fakeSessions
	archive  *fakeArchive
	examID   uuid.UUID
	q1, q2   uuid.UUID
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	examID, q1, q2 := uuid.New(), uuid.New(), uuid.New()
	catalog := &fakeCatalog{
		exam: &CachedExam{
			Exam: model.Exam{ID: examID, Title: "Fisika", DurationMinutes: 10, Status: model.ExamStatusPublished},
			Definition: model.ExamDefinition{
				ID:              examID,
				Title:           "Fisika",
				DurationSeconds: 600,
				Questions: []model.Question{
					{ID: q1, Type: model.QuestionTypeMultipleChoice, Text: "1", Options: []string{"A", "B"}, Points: 1},
					{ID: q2, Type: model.QuestionTypeEssay, Text: "2", Points: 1},
				},
				QuestionOrder: []uuid.UUID{q1, q2},
			},
		},
		key: &AnswerKey{Correct: map[string]string{q1.String(): "A"}, Points: map[string]int{q1.String(): 1, q2.String(): 1}},
	}

	cfg := config.Load()
	f := &sessionFixture{
		mr:      mr,
		catalog: catalog,
		sessions: &fakeSessions{session: &model.ExamSession{
			ID:        uuid.New(),
			ExamID:    examID,
			StudentID: 7,
			StartedAt: t0,
			Status:    model.SessionStatusInProgress,
		}},
		archive:  &fakeArchive{},
		examID:   examID,
		q1:       q1,
		q2:       q2,
	}
	f.svc = NewExamSessionService(catalog, f.sessions, f.archive, rdb, cfg, zerolog.Nop())
	f.svc.now = func() time.Time { return t0.Add(90 * time.Second) }
	return f
}

func (f *sessionFixture) payload() model.SubmissionPayload {
	a := model.TextAnswer("A")
	return model.SubmissionPayload{
		ExamID: f.examID,
		Answers: []model.SubmittedAnswer{
			{QuestionID: f.q1, Answer: &a, TimeSpent: 12},
			{QuestionID: f.q2, TimeSpent: 3},
		},
		TotalQuestions:       2,
		AnsweredQuestions:    1,
		SuspiciousActivities: []model.SuspiciousActivity{},
		StartedAt:            t0,
		SubmittedAt:          t0.Add(5 * time.Minute),
		Trigger:              model.TriggerManual,
	}
}

// ========================================
// LoadExamSession
// ========================================

func TestLoadExamSession_ComputesTimeLeftFromFirstEntry(t *testing.T) {
	f := newSessionFixture(t)

	p, err := f.svc.LoadExamSession(context.Background(), f.examID, 7)
	require.NoError(t, err)

	require.NotNil(t, p.TimeLeft)
	assert.Equal(t, 510, *p.TimeLeft)
	assert.Equal(t, []uuid.UUID{f.q1, f.q2}, p.QuestionOrder)
	require.NotNil(t, p.StartedAt)
	assert.True(t, p.StartedAt.Equal(t0))
	assert.Nil(t, p.Answers)
}

func TestLoadExamSession_TimeLeftNeverNegative(t *testing.T) {
	f := newSessionFixture(t)
	f.svc.now = func() time.Time { return t0.Add(2 * time.Hour) }

	p, err := f.svc.LoadExamSession(context.Background(), f.examID, 7)
	require.NoError(t, err)
	assert.Equal(t, 0, *p.TimeLeft)
}

func TestLoadExamSession_Unavailable(t *testing.T) {
	f := newSessionFixture(t)
	f.catalog.exam.Exam.Status = model.ExamStatusDraft

	_, err := f.svc.LoadExamSession(context.Background(), f.examID, 7)
	assert.ErrorIs(t, err, ErrExamNotAvailable)
}

func TestLoadExamSession_UnknownExam(t *testing.T) {
	f := newSessionFixture(t)
	f.catalog.exam = nil

	_, err := f.svc.LoadExamSession(context.Background(), f.examID, 7)
	assert.ErrorIs(t, err, ErrExamNotFound)
}

func TestLoadExamSession_AlreadySubmitted(t *testing.T) {
	f := newSessionFixture(t)
	require.NoError(t, f.mr.Set(config.CacheKey.StudentSubmittedKey(f.examID.String(), 7), "1"))

	_, err := f.svc.LoadExamSession(context.Background(), f.examID, 7)
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
}

func TestLoadExamSession_CompletedRow(t *testing.T) {
	f := newSessionFixture(t)
	f.sessions.session = &model.ExamSession{ExamID: f.examID, StudentID: 7, StartedAt: t0, Status: model.SessionStatusCompleted}

	_, err := f.svc.LoadExamSession(context.Background(), f.examID, 7)
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
}

// ========================================
// Progress
// ========================================

func TestProgress_SaveThenGet(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	snap := model.SessionSnapshot{
		Answers:              map[uuid.UUID]model.AnswerValue{f.q1: model.TextAnswer("B")},
		TimeLeft:             30,
		CurrentQuestionIndex: 1,
		StartedAt:            t0,
	}

	require.NoError(t, f.svc.SaveProgress(ctx, f.examID, 7, snap))

	got, err := f.svc.GetProgress(ctx, f.examID, 7)
	require.NoError(t, err)
	assert.Equal(t, 30, got.TimeLeft)
	assert.Equal(t, 1, got.CurrentQuestionIndex)
	assert.Equal(t, model.TextAnswer("B"), got.Answers[f.q1])

	queued, err := f.mr.List(config.WorkerKey.PersistProgressQueue)
	require.NoError(t, err)
	require.Len(t, queued, 1)

	var msg model.ProgressMessage
	require.NoError(t, json.Unmarshal([]byte(queued[0]), &msg))
	assert.Equal(t, f.examID, msg.ExamID)
	assert.Equal(t, 7, msg.StudentID)
	assert.Equal(t, 30, msg.Snapshot.TimeLeft)
}

func TestProgress_FallsBackToArchiveAndHeals(t *testing.T) {
	f := newSessionFixture(t)
	f.archive.snap = &model.SessionSnapshot{TimeLeft: 42, StartedAt: t0, Answers: map[uuid.UUID]model.AnswerValue{}}

	got, err := f.svc.GetProgress(context.Background(), f.examID, 7)
	require.NoError(t, err)
	assert.Equal(t, 42, got.TimeLeft)
	assert.True(t, f.mr.Exists(config.CacheKey.StudentProgressKey(f.examID.String(), 7)))
}

func TestProgress_NothingSaved(t *testing.T) {
	f := newSessionFixture(t)

	_, err := f.svc.GetProgress(context.Background(), f.examID, 7)
	assert.ErrorIs(t, err, ErrNoProgress)

	_, err = f.svc.BackendFor(7).LoadProgress(context.Background(), f.examID)
	assert.ErrorIs(t, err, examsession.ErrNoSnapshot)
}

func TestProgress_ClearDropsBothCopies(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.SaveProgress(ctx, f.examID, 7, model.SessionSnapshot{StartedAt: t0}))

	require.NoError(t, f.svc.ClearProgress(ctx, f.examID, 7))

	assert.False(t, f.mr.Exists(config.CacheKey.StudentProgressKey(f.examID.String(), 7)))
	assert.Equal(t, 1, f.archive.deleted)
}

func TestProgress_RefusedAfterSubmission(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	_, err := f.svc.Submit(ctx, 7, f.payload())
	require.NoError(t, err)

	err = f.svc.SaveProgress(ctx, f.examID, 7, model.SessionSnapshot{StartedAt: t0})
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
}

// ========================================
// Submit
// ========================================

func TestSubmit_AcceptsOnceAndQueuesGradedPayload(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.SaveProgress(ctx, f.examID, 7, model.SessionSnapshot{StartedAt: t0}))

	res, err := f.svc.Submit(ctx, 7, f.payload())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.Redirect)
	assert.False(t, f.mr.Exists(config.CacheKey.StudentProgressKey(f.examID.String(), 7)))

	queued, err := f.mr.List(config.WorkerKey.PersistSubmissionsQueue)
	require.NoError(t, err)
	require.Len(t, queued, 1)

	var msg model.SubmissionMessage
	require.NoError(t, json.Unmarshal([]byte(queued[0]), &msg))
	assert.Equal(t, 7, msg.StudentID)
	assert.Equal(t, 100.0, msg.Score)
	assert.Equal(t, 2, msg.Payload.TotalQuestions)

	again, err := f.svc.Submit(ctx, 7, f.payload())
	require.NoError(t, err)
	assert.True(t, again.Success)
	assert.True(t, again.Redirect)

	queued, _ = f.mr.List(config.WorkerKey.PersistSubmissionsQueue)
	assert.Len(t, queued, 1, "a duplicate submission is not queued again")
}

func TestSubmit_FailureReleasesIdempotencyKey(t *testing.T) {
	f := newSessionFixture(t)
	f.catalog.keyErr = errors.New("redis down")

	_, err := f.svc.Submit(context.Background(), 7, f.payload())
	require.Error(t, err)
	assert.False(t, f.mr.Exists(config.CacheKey.StudentSubmittedKey(f.examID.String(), 7)))

	f.catalog.keyErr = nil
	res, err := f.svc.Submit(context.Background(), 7, f.payload())
	require.NoError(t, err)
	assert.False(t, res.Redirect)
}

func TestSubmit_RejectsMissingExam(t *testing.T) {
	f := newSessionFixture(t)
	p := f.payload()
	p.ExamID = uuid.Nil

	_, err := f.svc.Submit(context.Background(), 7, p)
	assert.ErrorIs(t, err, ErrSubmissionMismatch)
}

func TestSubmit_RequiresOpenedAttempt(t *testing.T) {
	f := newSessionFixture(t)
	f.sessions.session = nil

	_, err := f.svc.Submit(context.Background(), 7, f.payload())
	assert.ErrorIs(t, err, ErrNoAttempt)
	assert.False(t, f.mr.Exists(config.CacheKey.StudentSubmittedKey(f.examID.String(), 7)))
}

func TestSubmit_OutsideExamWindow(t *testing.T) {
	f := newSessionFixture(t)
	end := t0.Add(time.Minute)
	f.catalog.exam.Exam.ScheduledEnd = &end

	// now is t0+90s: inside the grace period after the scheduled end.
	res, err := f.svc.Submit(context.Background(), 7, f.payload())
	require.NoError(t, err)
	assert.True(t, res.Success)

	f2 := newSessionFixture(t)
	f2.catalog.exam.Exam.ScheduledEnd = &end
	f2.svc.now = func() time.Time { return end.Add(submissionGrace + time.Second) }
	_, err = f2.svc.Submit(context.Background(), 7, f2.payload())
	assert.ErrorIs(t, err, ErrExamNotAvailable)
	assert.False(t, f2.mr.Exists(config.CacheKey.StudentSubmittedKey(f2.examID.String(), 7)))

	f3 := newSessionFixture(t)
	f3.catalog.exam.Exam.Status = model.ExamStatusDraft
	_, err = f3.svc.Submit(context.Background(), 7, f3.payload())
	assert.ErrorIs(t, err, ErrExamNotAvailable)
}
