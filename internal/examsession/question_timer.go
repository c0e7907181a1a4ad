package examsession

import (
	"github.com/google/uuid"
	"github.com/stemsi/exstem-session/internal/model"
)

// Expiry identifies the question countdown that reached zero.
type Expiry struct {
	QuestionID uuid.UUID
	Generation uint64
}

// QuestionTimer runs the per-question countdown of timed exams.
// Every Start bumps the generation, so an expiry can be matched against the
// question that is current when it is handled.
type QuestionTimer struct {
	enabled      bool
	defaultLimit int
	countdown    *Countdown
	questionID   uuid.UUID
	generation   uint64
}

// NewQuestionTimer creates a timer. When enabled is false every Start is a no-op.
func NewQuestionTimer(enabled bool, defaultLimit int) *QuestionTimer {
	return &QuestionTimer{enabled: enabled, defaultLimit: defaultLimit}
}

// Enabled reports whether per-question timing is on.
func (t *QuestionTimer) Enabled() bool {
	return t.enabled
}

// Start tears down the running countdown and starts a new one for q.
// Locked questions never get a countdown.
func (t *QuestionTimer) Start(q model.Question, locked bool) {
	t.Stop()
	if !t.enabled || locked {
		return
	}
	limit := t.defaultLimit
	if q.TimeLimitSeconds != nil && *q.TimeLimitSeconds > 0 {
		limit = *q.TimeLimitSeconds
	}
	t.generation++
	t.questionID = q.ID
	t.countdown = NewCountdown(limit)
	t.countdown.Start()
}

// Stop discards the running countdown, if any.
func (t *QuestionTimer) Stop() {
	if t.countdown != nil {
		t.countdown.Stop()
		t.countdown = nil
	}
	t.questionID = uuid.Nil
}

// Pause freezes the running countdown without discarding it.
func (t *QuestionTimer) Pause() {
	if t.countdown != nil {
		t.countdown.Stop()
	}
}

// Resume continues a paused countdown.
func (t *QuestionTimer) Resume() {
	if t.countdown != nil {
		t.countdown.Start()
	}
}

// Tick advances the running countdown and reports its expiry.
func (t *QuestionTimer) Tick() (Expiry, bool) {
	if t.countdown == nil || !t.countdown.Tick() {
		return Expiry{}, false
	}
	e := Expiry{QuestionID: t.questionID, Generation: t.generation}
	t.countdown = nil
	return e, true
}

// Current reports whether e came from the latest countdown and that countdown
// belongs to questionID.
func (t *QuestionTimer) Current(e Expiry, questionID uuid.UUID) bool {
	return e.Generation == t.generation && e.QuestionID == questionID
}

// Remaining returns the seconds left on the running countdown.
func (t *QuestionTimer) Remaining() (int, bool) {
	if t.countdown == nil {
		return 0, false
	}
	return t.countdown.Remaining(), true
}
