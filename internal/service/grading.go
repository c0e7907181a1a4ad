package service

import (
	"math"
	"strings"

	"github.com/stemsi/exstem-session/internal/model"
)

// Grade scores the choice questions of a submission against the answer key and
// returns the percentage of gradable points earned, rounded to two decimals.
// Free-text questions have no key and are left for manual grading.
func Grade(payload model.SubmissionPayload, key *AnswerKey) float64 {
	given := make(map[string]*model.AnswerValue, len(payload.Answers))
	for _, a := range payload.Answers {
		given[a.QuestionID.String()] = a.Answer
	}

	var earned, total int
	for qid, correct := range key.Correct {
		pts, ok := key.Points[qid]
		if !ok {
			pts = 1
		}
		total += pts

		ans := given[qid]
		if ans != nil && matches(*ans, correct) {
			earned += pts
		}
	}

	if total == 0 {
		return 0
	}
	return math.Round(float64(earned)/float64(total)*10000) / 100
}

func matches(ans model.AnswerValue, correct string) bool {
	if ans.Multi {
		parts := strings.Split(correct, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return ans.Equal(model.ChoiceSet(parts...))
	}
	return ans.Text == correct
}
