package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// QuestionID identifies a question. Backends send it either as a JSON
// string or as a number, so it decodes from both.
type QuestionID string

// UnmarshalJSON accepts `"7"` and `7` alike.
func (id *QuestionID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = QuestionID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("question id must be a string or number: %w", err)
	}
	*id = QuestionID(n.String())
	return nil
}

// String returns the id as a plain string.
func (id QuestionID) String() string { return string(id) }

// QuestionType tags the answer shape of a question.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeTrueFalse      QuestionType = "true_false"
	QuestionTypeShortAnswer    QuestionType = "short_answer"
)

// Valid reports whether t is a known type. The empty type is valid and
// means "infer from the question shape".
func (t QuestionType) Valid() bool {
	switch t {
	case "", QuestionTypeMultipleChoice, QuestionTypeTrueFalse, QuestionTypeShortAnswer:
		return true
	}
	return false
}

// Option is a single selectable answer.
type Option struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect *bool  `json:"isCorrect,omitempty"`
}

// Question represents a single exam question as delivered for an attempt.
// CorrectOption and CorrectAnswer are only populated after submission.
type Question struct {
	ID            QuestionID   `json:"id"`
	Text          string       `json:"question"`
	Type          QuestionType `json:"type,omitempty"`
	Options       []Option     `json:"options,omitempty"`
	Answers       []string     `json:"answers,omitempty"`
	Explanation   string       `json:"explanation,omitempty"`
	CorrectOption string       `json:"correctOption,omitempty"`
	CorrectAnswer string       `json:"correctAnswer,omitempty"`
}

// Validate checks the structural invariants of a question.
func (q *Question) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("question has no id")
	}
	if len(q.Options) == 0 && len(q.Answers) == 0 && q.Type != QuestionTypeTrueFalse && q.Type != QuestionTypeShortAnswer {
		return fmt.Errorf("question %s has neither options nor answers", q.ID)
	}
	if !q.Type.Valid() {
		return fmt.Errorf("question %s has unknown type %q", q.ID, q.Type)
	}
	flagged := 0
	for _, o := range q.Options {
		if o.IsCorrect != nil && *o.IsCorrect {
			flagged++
		}
	}
	if flagged > 1 {
		return fmt.Errorf("question %s has %d options flagged correct", q.ID, flagged)
	}
	return nil
}

// ForStudent strips every correctness hint so the question can be sent to
// a student mid-attempt.
func (q Question) ForStudent() Question {
	out := q
	out.CorrectOption = ""
	out.CorrectAnswer = ""
	out.Explanation = ""
	if len(q.Options) > 0 {
		out.Options = make([]Option, len(q.Options))
		for i, o := range q.Options {
			out.Options[i] = Option{ID: o.ID, Text: o.Text}
		}
	}
	return out
}

// IndexLabel renders a zero-based option index as the id used for
// options stored without an explicit id ("0" -> "A").
func IndexLabel(i int) string {
	if i >= 0 && i < 26 {
		return string(rune('A' + i))
	}
	return strconv.Itoa(i)
}
