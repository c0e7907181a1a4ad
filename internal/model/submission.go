package model

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionTrigger records what started a submission.
type SubmissionTrigger string

const (
	TriggerManual          SubmissionTrigger = "manual"
	TriggerTimeout         SubmissionTrigger = "timeout"
	TriggerQuestionTimeout SubmissionTrigger = "question-timeout"
	TriggerPolicy          SubmissionTrigger = "policy"
)

// Automatic reports whether the submission was started by the system rather than the student.
func (t SubmissionTrigger) Automatic() bool {
	return t != TriggerManual
}

// SubmittedAnswer is one element of SubmissionPayload.Answers, in question order.
type SubmittedAnswer struct {
	QuestionID      uuid.UUID    `json:"questionId"`
	Answer          *AnswerValue `json:"answer,omitempty"`
	TimeSpent       int          `json:"timeSpent"`
	IsLocked        bool         `json:"isLocked"`
	MarkedForReview bool         `json:"markedForReview"`
}

// SubmissionPayload is the write-once final payload of an attempt.
type SubmissionPayload struct {
	ExamID               uuid.UUID            `json:"examId" binding:"required"`
	Answers              []SubmittedAnswer    `json:"answers" binding:"required"`
	TotalQuestions       int                  `json:"totalQuestions" binding:"min=0"`
	AnsweredQuestions    int                  `json:"answeredQuestions" binding:"min=0"`
	SuspiciousActivities []SuspiciousActivity `json:"suspiciousActivities"`
	StartedAt            time.Time            `json:"startedAt"`
	SubmittedAt          time.Time            `json:"submittedAt" binding:"required"`
	Trigger              SubmissionTrigger    `json:"trigger"`
}

// SubmissionResult is the backend's response to a submission.
type SubmissionResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	Redirect bool   `json:"redirect,omitempty"`
}
