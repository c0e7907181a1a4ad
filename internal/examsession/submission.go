package examsession

import (
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-session/internal/model"
)

// Summary is shown at the submit confirmation gate.
type Summary struct {
	Total           int `json:"total"`
	Answered        int `json:"answered"`
	Unanswered      int `json:"unanswered"`
	MarkedForReview int `json:"markedForReview"`
}

// BuildPayload assembles the final submission. Answers follow order; time
// spent must already include the question on screen.
func BuildPayload(
	examID uuid.UUID,
	order []uuid.UUID,
	answers map[uuid.UUID]model.AnswerValue,
	runtime map[uuid.UUID]*model.QuestionRuntimeState,
	incidents []model.SuspiciousActivity,
	startedAt, submittedAt time.Time,
	trigger model.SubmissionTrigger,
) model.SubmissionPayload {
	p := model.SubmissionPayload{
		ExamID:               examID,
		Answers:              make([]model.SubmittedAnswer, 0, len(order)),
		TotalQuestions:       len(order),
		SuspiciousActivities: incidents,
		StartedAt:            startedAt,
		SubmittedAt:          submittedAt,
		Trigger:              trigger,
	}
	if p.SuspiciousActivities == nil {
		p.SuspiciousActivities = []model.SuspiciousActivity{}
	}

	for _, id := range order {
		sa := model.SubmittedAnswer{QuestionID: id}
		if st, ok := runtime[id]; ok {
			sa.TimeSpent = st.TimeSpentSeconds()
			sa.IsLocked = st.Locked
			sa.MarkedForReview = st.MarkedForReview
		}
		if v, ok := answers[id]; ok && !v.IsEmpty() {
			v := v
			sa.Answer = &v
			p.AnsweredQuestions++
		}
		p.Answers = append(p.Answers, sa)
	}
	return p
}

func summarize(order []uuid.UUID, answers map[uuid.UUID]model.AnswerValue, runtime map[uuid.UUID]*model.QuestionRuntimeState) Summary {
	s := Summary{Total: len(order)}
	for _, id := range order {
		if v, ok := answers[id]; ok && !v.IsEmpty() {
			s.Answered++
		}
		if st, ok := runtime[id]; ok && st.MarkedForReview {
			s.MarkedForReview++
		}
	}
	s.Unanswered = s.Total - s.Answered
	return s
}
