package examsession

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPayload(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	order := []uuid.UUID{c, a, b}
	answers := map[uuid.UUID]model.AnswerValue{
		a: model.TextAnswer("x"),
		b: model.ChoiceSet(),
	}
	runtime := map[uuid.UUID]*model.QuestionRuntimeState{
		a: {TimeSpent: 12 * time.Second},
		b: {TimeSpent: 3600 * time.Millisecond, Locked: true},
		c: {MarkedForReview: true},
	}
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	p := BuildPayload(uuid.Nil, order, answers, runtime, nil, start, start.Add(time.Minute), model.TriggerManual)

	require.Len(t, p.Answers, 3)
	assert.Equal(t, c, p.Answers[0].QuestionID)
	assert.True(t, p.Answers[0].MarkedForReview)
	assert.Nil(t, p.Answers[0].Answer)
	assert.Equal(t, 12, p.Answers[1].TimeSpent)
	assert.Equal(t, "x", p.Answers[1].Answer.Text)
	assert.True(t, p.Answers[2].IsLocked)
	assert.Equal(t, 4, p.Answers[2].TimeSpent)
	assert.Nil(t, p.Answers[2].Answer, "empty choice sets count as unanswered")
	assert.Equal(t, 3, p.TotalQuestions)
	assert.Equal(t, 1, p.AnsweredQuestions)
	assert.NotNil(t, p.SuspiciousActivities)
}

func TestPhaseTransitions(t *testing.T) {
	assert.True(t, PhaseLoading.CanTransition(PhasePermissionsPending))
	assert.True(t, PhaseLoading.CanTransition(PhaseInProgress))
	assert.True(t, PhaseSubmitting.CanTransition(PhaseInProgress))
	assert.True(t, PhasePermissionsPending.CanTransition(PhaseAborted))
	assert.False(t, PhaseLoading.CanTransition(PhaseSubmitting))
	assert.False(t, PhaseInProgress.CanTransition(PhaseEnded))
	assert.False(t, PhaseEnded.CanTransition(PhaseAborted))
	assert.False(t, PhaseAborted.CanTransition(PhaseInProgress))
	assert.True(t, PhaseEnded.Terminal())
}
