package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates exam session states.
type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
)

// ExamSession represents a student's exam attempt row.
type ExamSession struct {
	ID         uuid.UUID     `json:"id"`
	ExamID     uuid.UUID     `json:"exam_id"`
	StudentID  int           `json:"student_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Status     SessionStatus `json:"status"`
	FinalScore *float64      `json:"final_score,omitempty"`
	// QuestionOrder is the per-student shuffled order, nil when the exam is not randomized.
	QuestionOrder []uuid.UUID `json:"question_order,omitempty"`
}

// ExamSessionPayload is the "GET exam session" response: the exam definition plus
// any resumable state the backend already holds for the attempt.
type ExamSessionPayload struct {
	ExamDefinition
	Answers              map[uuid.UUID]AnswerValue `json:"answers,omitempty"`
	TimeLeft             *int                      `json:"timeLeft,omitempty"`
	CurrentQuestionIndex *int                      `json:"currentQuestionIndex,omitempty"`
	StartedAt            *time.Time                `json:"startedAt,omitempty"`
}

// SessionSnapshot is the minimal resumable state of an attempt.
type SessionSnapshot struct {
	Answers              map[uuid.UUID]AnswerValue `json:"answers" binding:"required"`
	TimeLeft             int                       `json:"timeLeft" binding:"min=0"`
	CurrentQuestionIndex int                       `json:"currentQuestionIndex" binding:"min=0"`
	StartedAt            time.Time                 `json:"startedAt" binding:"required"`
	// LockedQuestions keeps timed-out questions locked across a reload.
	LockedQuestions []uuid.UUID `json:"lockedQuestions,omitempty"`
}
