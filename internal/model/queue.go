package model

import (
	"time"

	"github.com/google/uuid"
)

// Messages pushed onto the Redis work queues and drained by the workers.

// ProgressMessage carries one saved snapshot to the durable progress table.
type ProgressMessage struct {
	ExamID    uuid.UUID       `json:"exam_id"`
	StudentID int             `json:"student_id"`
	Snapshot  SessionSnapshot `json:"snapshot"`
	SavedAt   time.Time       `json:"saved_at"`
}

// IncidentMessage carries one proctor event to the incidents table.
type IncidentMessage = ProctorEvent

// SubmissionMessage carries an accepted, graded submission.
type SubmissionMessage struct {
	StudentID int               `json:"student_id"`
	Score     float64           `json:"score"`
	Payload   SubmissionPayload `json:"payload"`
}

// QuestionOrderMessage records the shuffled order assigned to an attempt.
type QuestionOrderMessage struct {
	ExamID    uuid.UUID   `json:"exam_id"`
	StudentID int         `json:"student_id"`
	Order     []uuid.UUID `json:"order"`
}
