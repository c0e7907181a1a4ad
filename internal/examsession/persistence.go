package examsession

import (
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-session/internal/model"
)

// Persistence paces progress snapshots. Only one save is in flight at a time;
// a tick that finds the previous save pending is skipped and retried next tick.
type Persistence struct {
	every    int
	counter  int
	inFlight bool
}

// NewPersistence creates a pacer that fires every n ticks.
func NewPersistence(every int) *Persistence {
	if every < 1 {
		every = 1
	}
	return &Persistence{every: every}
}

// Due advances one tick and reports whether a snapshot should be sent now.
// A true result marks a save in flight until Done is called.
func (p *Persistence) Due() bool {
	if p.counter < p.every {
		p.counter++
	}
	if p.counter < p.every || p.inFlight {
		return false
	}
	p.counter = 0
	p.inFlight = true
	return true
}

// Done records the completion of the in-flight save.
func (p *Persistence) Done() {
	p.inFlight = false
}

// InFlight reports whether a save is pending.
func (p *Persistence) InFlight() bool {
	return p.inFlight
}

// resumeState is where an attempt continues after loading.
type resumeState struct {
	answers   map[uuid.UUID]model.AnswerValue
	timeLeft  int
	index     int
	startedAt time.Time
	locked    []uuid.UUID
	restored  bool
}

// resolveResume merges the exam session payload with an optional progress snapshot.
// The snapshot wins over fields embedded in the payload, which win over fresh defaults,
// except that time left never exceeds the wall-clock value the payload carries.
func resolveResume(p *model.ExamSessionPayload, snap *model.SessionSnapshot, now time.Time) resumeState {
	r := resumeState{
		answers:   make(map[uuid.UUID]model.AnswerValue),
		timeLeft:  p.DurationSeconds,
		startedAt: now,
	}

	var answers map[uuid.UUID]model.AnswerValue
	if p.Answers != nil {
		answers = p.Answers
		r.restored = true
	}
	if p.TimeLeft != nil {
		r.timeLeft = *p.TimeLeft
		r.restored = true
	}
	if p.CurrentQuestionIndex != nil {
		r.index = *p.CurrentQuestionIndex
	}
	if p.StartedAt != nil {
		r.startedAt = *p.StartedAt
	}

	if snap != nil {
		answers = snap.Answers
		r.timeLeft = snap.TimeLeft
		if p.TimeLeft != nil && *p.TimeLeft < r.timeLeft {
			r.timeLeft = *p.TimeLeft
		}
		r.index = snap.CurrentQuestionIndex
		if !snap.StartedAt.IsZero() {
			r.startedAt = snap.StartedAt
		}
		for _, id := range snap.LockedQuestions {
			if _, ok := p.Question(id); ok {
				r.locked = append(r.locked, id)
			}
		}
		r.restored = true
	}

	for id, v := range answers {
		if _, ok := p.Question(id); ok && !v.IsEmpty() {
			r.answers[id] = v
		}
	}

	if r.timeLeft < 0 {
		r.timeLeft = 0
	}
	if r.timeLeft > p.DurationSeconds {
		r.timeLeft = p.DurationSeconds
	}
	last := len(p.OrderedIDs()) - 1
	if r.index < 0 {
		r.index = 0
	}
	if r.index > last {
		r.index = last
	}
	return r
}
