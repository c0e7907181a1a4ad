package model

import (
	"github.com/google/uuid"
)

// QuestionType enumerates the supported question kinds.
type QuestionType string

const (
	QuestionTypeMultipleChoice  QuestionType = "multiple-choice"
	QuestionTypeMultipleCorrect QuestionType = "multiple-correct"
	QuestionTypeTrueFalse       QuestionType = "true-false"
	QuestionTypeShortAnswer     QuestionType = "short-answer"
	QuestionTypeEssay           QuestionType = "essay"
)

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTypeMultipleChoice, QuestionTypeMultipleCorrect, QuestionTypeTrueFalse,
		QuestionTypeShortAnswer, QuestionTypeEssay:
		return true
	}
	return false
}

// HasOptions reports whether answers are chosen from Options.
func (t QuestionType) HasOptions() bool {
	return t == QuestionTypeMultipleChoice || t == QuestionTypeMultipleCorrect || t == QuestionTypeTrueFalse
}

// Question represents a single exam question as sent to students (no correct answer).
type Question struct {
	ID               uuid.UUID    `json:"id"`
	Type             QuestionType `json:"type"`
	Text             string       `json:"text"`
	Options          []string     `json:"options,omitempty"`
	TimeLimitSeconds *int         `json:"timeLimit,omitempty"`
	Points           int          `json:"points"`
}

// ChoiceOptions returns the options an answer must be drawn from.
// True/false questions without explicit options accept "true" and "false".
func (q Question) ChoiceOptions() []string {
	if q.Type == QuestionTypeTrueFalse && len(q.Options) == 0 {
		return []string{"true", "false"}
	}
	return q.Options
}

// KeyedQuestion is a Question together with its grading data. It never leaves the server.
type KeyedQuestion struct {
	Question
	// CorrectAnswer is an option for single-choice types, a comma-separated sorted
	// option list for multiple-correct, and nil for free-text questions.
	CorrectAnswer *string `json:"-"`
}
