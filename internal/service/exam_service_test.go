package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExamRepo struct {
	exams map[uuid.UUID]*model.Exam
	reads int
}

func (f *fakeExamRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	f.reads++
	e, ok := f.exams[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return e, nil
}

func (f *fakeExamRepo) ListPublished(_ context.Context) ([]model.Exam, error) {
	var out []model.Exam
	for _, e := range f.exams {
		out = append(out, *e)
	}
	return out, nil
}

type fakeQuestionRepo struct {
	questions map[uuid.UUID][]model.KeyedQuestion
}

func (f *fakeQuestionRepo) ListByExam(_ context.Context, examID uuid.UUID) ([]model.KeyedQuestion, error) {
	return f.questions[examID], nil
}

func strp(s string) *string { return &s }

func newExamFixture(t *testing.T, randomize bool) (*ExamService, *miniredis.Miniredis, *fakeExamRepo, *model.Exam, []model.KeyedQuestion) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	exam := &model.Exam{
		ID:                 uuid.New(),
		Title:              "Kimia",
		DurationMinutes:    30,
		Status:             model.ExamStatusPublished,
		RandomizeQuestions: randomize,
		Policy:             model.Policy{AllowNavigation: true},
	}
	qs := []model.KeyedQuestion{
		{Question: model.Question{ID: uuid.New(), Type: model.QuestionTypeMultipleChoice, Options: []string{"A", "B"}, Points: 2}, CorrectAnswer: strp("B")},
		{Question: model.Question{ID: uuid.New(), Type: model.QuestionTypeMultipleCorrect, Options: []string{"A", "B", "C"}, Points: 3}, CorrectAnswer: strp("A,C")},
		{Question: model.Question{ID: uuid.New(), Type: model.QuestionTypeEssay, Points: 5}},
		{Question: model.Question{ID: uuid.New(), Type: model.QuestionTypeTrueFalse, Points: 1}, CorrectAnswer: strp("true")},
	}

	exams := &fakeExamRepo{exams: map[uuid.UUID]*model.Exam{exam.ID: exam}}
	questions := &fakeQuestionRepo{questions: map[uuid.UUID][]model.KeyedQuestion{exam.ID: qs}}
	return NewExamService(exams, questions, rdb, zerolog.Nop()), mr, exams, exam, qs
}

func TestGetExam_WarmsOnMissThenServesFromCache(t *testing.T) {
	svc, mr, repo, exam, qs := newExamFixture(t, false)
	ctx := context.Background()

	entry, err := svc.GetExam(ctx, exam.ID)
	require.NoError(t, err)
	assert.Equal(t, 1800, entry.Definition.DurationSeconds)
	assert.Len(t, entry.Definition.Questions, len(qs))
	assert.Equal(t, qs[0].ID, entry.Definition.QuestionOrder[0])
	assert.True(t, mr.Exists(config.CacheKey.ExamPayloadKey(exam.ID.String())))

	_, err = svc.GetExam(ctx, exam.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.reads)
}

func TestGetExam_CachedPayloadHasNoAnswers(t *testing.T) {
	svc, mr, _, exam, _ := newExamFixture(t, false)
	_, err := svc.GetExam(context.Background(), exam.ID)
	require.NoError(t, err)

	raw, err := mr.Get(config.CacheKey.ExamPayloadKey(exam.ID.String()))
	require.NoError(t, err)
	assert.NotContains(t, raw, "A,C")
}

func TestGetExam_Unknown(t *testing.T) {
	svc, _, _, _, _ := newExamFixture(t, false)
	_, err := svc.GetExam(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrExamNotFound)
}

func TestGetAnswerKey_OnlyChoiceQuestionsAreKeyed(t *testing.T) {
	svc, _, _, exam, qs := newExamFixture(t, false)

	key, err := svc.GetAnswerKey(context.Background(), exam.ID)
	require.NoError(t, err)

	assert.Len(t, key.Correct, 3)
	assert.Equal(t, "A,C", key.Correct[qs[1].ID.String()])
	assert.NotContains(t, key.Correct, qs[2].ID.String())
	assert.Equal(t, 5, key.Points[qs[2].ID.String()])
}

func TestQuestionOrder_NotRandomized(t *testing.T) {
	svc, _, _, exam, qs := newExamFixture(t, false)
	ctx := context.Background()
	entry, err := svc.GetExam(ctx, exam.ID)
	require.NoError(t, err)

	order, err := svc.QuestionOrder(ctx, entry, &model.ExamSession{ExamID: exam.ID, StudentID: 3})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{qs[0].ID, qs[1].ID, qs[2].ID, qs[3].ID}, order)
}

func TestQuestionOrder_RandomizedIsStablePerAttempt(t *testing.T) {
	svc, mr, _, exam, qs := newExamFixture(t, true)
	ctx := context.Background()
	entry, err := svc.GetExam(ctx, exam.ID)
	require.NoError(t, err)
	session := &model.ExamSession{ExamID: exam.ID, StudentID: 3}

	first, err := svc.QuestionOrder(ctx, entry, session)
	require.NoError(t, err)
	second, err := svc.QuestionOrder(ctx, entry, session)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.ElementsMatch(t, []uuid.UUID{qs[0].ID, qs[1].ID, qs[2].ID, qs[3].ID}, first)

	queued, err := mr.List(config.WorkerKey.PersistQuestionOrderQueue)
	require.NoError(t, err)
	require.Len(t, queued, 1, "the order is persisted once")

	var msg model.QuestionOrderMessage
	require.NoError(t, json.Unmarshal([]byte(queued[0]), &msg))
	assert.Equal(t, first, msg.Order)
}

func TestQuestionOrder_PersistedOrderWins(t *testing.T) {
	svc, _, _, exam, qs := newExamFixture(t, true)
	ctx := context.Background()
	entry, err := svc.GetExam(ctx, exam.ID)
	require.NoError(t, err)

	persisted := []uuid.UUID{qs[3].ID, qs[2].ID, qs[1].ID, qs[0].ID}
	order, err := svc.QuestionOrder(ctx, entry, &model.ExamSession{ExamID: exam.ID, StudentID: 3, QuestionOrder: persisted})
	require.NoError(t, err)
	assert.Equal(t, persisted, order)
}

func TestGrade(t *testing.T) {
	_, _, _, _, qs := newExamFixture(t, false)
	key := &AnswerKey{
		Correct: map[string]string{
			qs[0].ID.String(): "B",
			qs[1].ID.String(): "A, C",
			qs[3].ID.String(): "true",
		},
		Points: map[string]int{qs[0].ID.String(): 2, qs[1].ID.String(): 3, qs[2].ID.String(): 5, qs[3].ID.String(): 1},
	}
	b := model.TextAnswer("B")
	set := model.ChoiceSet("C", "A")
	wrong := model.TextAnswer("false")
	essay := model.TextAnswer("panjang")

	payload := model.SubmissionPayload{Answers: []model.SubmittedAnswer{
		{QuestionID: qs[0].ID, Answer: &b},
		{QuestionID: qs[1].ID, Answer: &set},
		{QuestionID: qs[2].ID, Answer: &essay},
		{QuestionID: qs[3].ID, Answer: &wrong},
	}}
	assert.Equal(t, 83.33, Grade(payload, key))

	assert.Equal(t, 0.0, Grade(model.SubmissionPayload{}, key), "unanswered questions earn nothing")
	assert.Equal(t, 0.0, Grade(payload, &AnswerKey{}), "no gradable questions")
}
