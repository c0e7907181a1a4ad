package examsession

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestPersistence_Pacing(t *testing.T) {
	p := NewPersistence(3)
	assert.False(t, p.Due())
	assert.False(t, p.Due())
	assert.True(t, p.Due())
	assert.True(t, p.InFlight())

	// Still in flight: skipped until the save completes.
	for i := 0; i < 5; i++ {
		assert.False(t, p.Due())
	}
	p.Done()
	assert.True(t, p.Due())
	p.Done()
	assert.False(t, p.Due())
}

func TestPersistence_NonPositiveIntervalMeansEveryTick(t *testing.T) {
	p := NewPersistence(0)
	assert.True(t, p.Due())
	p.Done()
	assert.True(t, p.Due())
}

func TestResolveResume(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	q1, q2 := choiceQuestion(), choiceQuestion()
	payload := func() *model.ExamSessionPayload { return examPayload(60, model.Policy{}, q1, q2) }

	t.Run("fresh", func(t *testing.T) {
		r := resolveResume(payload(), nil, now)
		assert.False(t, r.restored)
		assert.Equal(t, 60, r.timeLeft)
		assert.Equal(t, 0, r.index)
		assert.Equal(t, now, r.startedAt)
		assert.Empty(t, r.answers)
	})

	t.Run("payload fields", func(t *testing.T) {
		p := payload()
		p.TimeLeft = intp(45)
		p.CurrentQuestionIndex = intp(1)
		p.Answers = map[uuid.UUID]model.AnswerValue{q2.ID: model.TextAnswer("B")}
		r := resolveResume(p, nil, now)
		assert.True(t, r.restored)
		assert.Equal(t, 45, r.timeLeft)
		assert.Equal(t, 1, r.index)
		assert.Equal(t, model.TextAnswer("B"), r.answers[q2.ID])
	})

	t.Run("snapshot wins", func(t *testing.T) {
		p := payload()
		p.TimeLeft = intp(45)
		p.Answers = map[uuid.UUID]model.AnswerValue{q2.ID: model.TextAnswer("B")}
		started := now.Add(-time.Minute)
		snap := &model.SessionSnapshot{
			Answers:   map[uuid.UUID]model.AnswerValue{q1.ID: model.TextAnswer("A")},
			TimeLeft:  30,
			StartedAt: started,
		}
		r := resolveResume(p, snap, now)
		assert.Equal(t, 30, r.timeLeft)
		assert.Equal(t, started, r.startedAt)
		assert.Len(t, r.answers, 1)
		assert.Equal(t, model.TextAnswer("A"), r.answers[q1.ID])
	})

	t.Run("wall clock caps snapshot time", func(t *testing.T) {
		p := payload()
		p.TimeLeft = intp(10)
		snap := &model.SessionSnapshot{TimeLeft: 50, StartedAt: now}
		r := resolveResume(p, snap, now)
		assert.Equal(t, 10, r.timeLeft)

		p.TimeLeft = intp(55)
		r = resolveResume(p, snap, now)
		assert.Equal(t, 50, r.timeLeft)
	})

	t.Run("clamped", func(t *testing.T) {
		snap := &model.SessionSnapshot{
			Answers: map[uuid.UUID]model.AnswerValue{
				uuid.New(): model.TextAnswer("ghost"),
				q1.ID:      model.TextAnswer(" "),
			},
			TimeLeft:             500,
			CurrentQuestionIndex: 9,
		}
		r := resolveResume(payload(), snap, now)
		assert.Equal(t, 60, r.timeLeft)
		assert.Equal(t, 1, r.index)
		assert.Empty(t, r.answers)
		assert.Equal(t, now, r.startedAt)

		snap.TimeLeft = -3
		snap.CurrentQuestionIndex = -1
		r = resolveResume(payload(), snap, now)
		assert.Equal(t, 0, r.timeLeft)
		assert.Equal(t, 0, r.index)
	})
}
