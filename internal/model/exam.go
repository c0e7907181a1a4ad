package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusDraft      ExamStatus = "DRAFT"
	ExamStatusPublished  ExamStatus = "PUBLISHED"
	ExamStatusInProgress ExamStatus = "IN_PROGRESS"
	ExamStatusCompleted  ExamStatus = "COMPLETED"
	ExamStatusArchived   ExamStatus = "ARCHIVED"
)

// Exam is the exams row as authored by the (external) exam management service.
type Exam struct {
	ID                 uuid.UUID  `json:"id"`
	Title              string     `json:"title"`
	ScheduledStart     *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd       *time.Time `json:"scheduled_end,omitempty"`
	DurationMinutes    int        `json:"duration_minutes"`
	Policy             Policy     `json:"policy"`
	RandomizeQuestions bool       `json:"randomize_questions"`
	Status             ExamStatus `json:"status"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Available reports whether the exam accepts attempts at the given instant.
func (e *Exam) Available(now time.Time) bool {
	if e.Status != ExamStatusPublished && e.Status != ExamStatusInProgress {
		return false
	}
	if e.ScheduledStart != nil && now.Before(*e.ScheduledStart) {
		return false
	}
	if e.ScheduledEnd != nil && now.After(*e.ScheduledEnd) {
		return false
	}
	return true
}

// AcceptsSubmission is Available with the scheduled end extended by grace.
func (e *Exam) AcceptsSubmission(now time.Time, grace time.Duration) bool {
	if e.ScheduledEnd != nil && now.After(*e.ScheduledEnd) && !now.After(e.ScheduledEnd.Add(grace)) {
		now = *e.ScheduledEnd
	}
	return e.Available(now)
}

// Policy holds the per-exam proctoring flags. It is stored as JSONB in exams.policy.
type Policy struct {
	RequireFullscreen         bool `json:"requireFullscreen"`
	PreventTabSwitch          bool `json:"preventTabSwitch"`
	PreventCopyPaste          bool `json:"preventCopyPaste"`
	TimePerQuestion           bool `json:"timePerQuestion"`
	AutoTerminateOnSuspicious bool `json:"autoTerminateOnSuspicious"`
	AllowNavigation           bool `json:"allowNavigation"`
	RequireWebcam             bool `json:"requireWebcam"`
	DetectHeadMovement        bool `json:"detectHeadMovement"`
}

// ExamDefinition is the immutable exam a single attempt runs against.
type ExamDefinition struct {
	ID              uuid.UUID   `json:"id"`
	Title           string      `json:"title"`
	DurationSeconds int         `json:"duration"`
	Questions       []Question  `json:"questions"`
	QuestionOrder   []uuid.UUID `json:"questionOrder"`
	Policy          Policy      `json:"policy"`
}

// Question returns the question with the given id.
func (d *ExamDefinition) Question(id uuid.UUID) (Question, bool) {
	for _, q := range d.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// OrderedIDs returns QuestionOrder, or the declaration order of Questions when no order was given.
func (d *ExamDefinition) OrderedIDs() []uuid.UUID {
	if len(d.QuestionOrder) > 0 {
		return d.QuestionOrder
	}
	ids := make([]uuid.UUID, len(d.Questions))
	for i, q := range d.Questions {
		ids[i] = q.ID
	}
	return ids
}
