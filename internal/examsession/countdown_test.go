package examsession

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountdown_FiresOnce(t *testing.T) {
	c := NewCountdown(3)
	assert.False(t, c.Tick(), "stopped countdown must not advance")
	assert.Equal(t, 3, c.Remaining())

	c.Start()
	assert.False(t, c.Tick())
	assert.False(t, c.Tick())
	assert.True(t, c.Tick())
	assert.True(t, c.Expired())
	assert.False(t, c.Running())

	c.Start()
	for i := 0; i < 5; i++ {
		assert.False(t, c.Tick())
	}
	assert.Equal(t, 0, c.Remaining())
}

func TestCountdown_ZeroLengthFiresOnFirstTick(t *testing.T) {
	c := NewCountdown(-5)
	assert.Equal(t, 0, c.Remaining())
	c.Start()
	assert.True(t, c.Tick())
	assert.False(t, c.Tick())
}

func TestCountdown_StopPauses(t *testing.T) {
	c := NewCountdown(10)
	c.Start()
	c.Tick()
	c.Stop()
	c.Tick()
	c.Tick()
	assert.Equal(t, 9, c.Remaining())
	c.Start()
	c.Tick()
	assert.Equal(t, 8, c.Remaining())
}

func TestQuestionTimer_GenerationGuardsStaleExpiry(t *testing.T) {
	qa := model.Question{ID: uuid.New(), TimeLimitSeconds: intp(1)}
	qb := model.Question{ID: uuid.New()}
	qt := NewQuestionTimer(true, 4)

	qt.Start(qa, false)
	e, ok := qt.Tick()
	require.True(t, ok)
	assert.True(t, qt.Current(e, qa.ID))

	qt.Start(qb, false)
	assert.False(t, qt.Current(e, qa.ID), "expiry of a previous countdown is stale")
	left, ok := qt.Remaining()
	require.True(t, ok)
	assert.Equal(t, 4, left)

	qt.Start(qa, false)
	assert.False(t, qt.Current(e, qa.ID), "restarting the same question bumps the generation")
}

func TestQuestionTimer_DisabledAndLocked(t *testing.T) {
	q := model.Question{ID: uuid.New()}

	off := NewQuestionTimer(false, 60)
	off.Start(q, false)
	_, ok := off.Remaining()
	assert.False(t, ok)

	on := NewQuestionTimer(true, 60)
	on.Start(q, true)
	_, ok = on.Remaining()
	assert.False(t, ok)
	_, fired := on.Tick()
	assert.False(t, fired)
}

func TestQuestionTimer_PauseResume(t *testing.T) {
	qt := NewQuestionTimer(true, 3)
	qt.Start(model.Question{ID: uuid.New()}, false)
	qt.Tick()
	qt.Pause()
	qt.Tick()
	left, _ := qt.Remaining()
	assert.Equal(t, 2, left)

	qt.Resume()
	qt.Tick()
	_, fired := qt.Tick()
	assert.True(t, fired)
}
