package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"
)

// AnswerValue is either a single string or a set of strings (multiple-correct questions).
type AnswerValue struct {
	Text    string
	Choices []string
	Multi   bool
}

// TextAnswer builds a single-valued answer.
func TextAnswer(s string) AnswerValue {
	return AnswerValue{Text: s}
}

// ChoiceSet builds a set-valued answer. Duplicates are dropped and the set is kept sorted.
func ChoiceSet(choices ...string) AnswerValue {
	seen := make(map[string]struct{}, len(choices))
	set := make([]string, 0, len(choices))
	for _, c := range choices {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		set = append(set, c)
	}
	sort.Strings(set)
	return AnswerValue{Choices: set, Multi: true}
}

// IsEmpty reports whether the value carries no answer at all.
func (v AnswerValue) IsEmpty() bool {
	if v.Multi {
		return len(v.Choices) == 0
	}
	return strings.TrimSpace(v.Text) == ""
}

// Equal compares two answers by value.
func (v AnswerValue) Equal(o AnswerValue) bool {
	if v.Multi != o.Multi {
		return false
	}
	if !v.Multi {
		return v.Text == o.Text
	}
	if len(v.Choices) != len(o.Choices) {
		return false
	}
	for i := range v.Choices {
		if v.Choices[i] != o.Choices[i] {
			return false
		}
	}
	return true
}

// String flattens the answer, joining set members with commas.
func (v AnswerValue) String() string {
	if v.Multi {
		return strings.Join(v.Choices, ",")
	}
	return v.Text
}

// MarshalJSON encodes a string or a sorted string array.
func (v AnswerValue) MarshalJSON() ([]byte, error) {
	if v.Multi {
		if v.Choices == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.Choices)
	}
	return json.Marshal(v.Text)
}

// UnmarshalJSON accepts a string or an array of strings.
func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errors.New("empty answer value")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = TextAnswer(s)
		return nil
	case '[':
		var set []string
		if err := json.Unmarshal(data, &set); err != nil {
			return err
		}
		*v = ChoiceSet(set...)
		return nil
	}
	return errors.New("answer value must be a string or an array of strings")
}

// QuestionRuntimeState is the mutable per-question state of one attempt.
type QuestionRuntimeState struct {
	Locked          bool          `json:"locked"`
	TimeSpent       time.Duration `json:"-"`
	MarkedForReview bool          `json:"markedForReview"`
	StartedAt       *time.Time    `json:"startedAt"` // nil while the question is not on screen
}

// TimeSpentSeconds is the accumulated time on the question, rounded to the
// nearest second.
func (s QuestionRuntimeState) TimeSpentSeconds() int {
	return int(s.TimeSpent.Round(time.Second) / time.Second)
}
