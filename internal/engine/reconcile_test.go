package engine

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stretchr/testify/assert"
)

func yes() *bool { return boolPtr(true) }
func no() *bool  { return boolPtr(false) }

var capitals = model.Question{
	ID:   "1",
	Text: "Ibu kota Prancis?",
	Options: []model.Option{
		{ID: "A", Text: "Rome"},
		{ID: "B", Text: "Paris", IsCorrect: yes()},
		{ID: "C", Text: "Madrid"},
	},
}

func TestReconcile(t *testing.T) {
	legacy := model.Question{ID: "7", Answers: []string{"Easy", "Hard"}}

	tests := []struct {
		name      string
		question  model.Question
		details   []model.DetailedResult
		submitted string
		answered  bool
		want      Verdict
	}{
		{
			name:      "flagged option, id form",
			question:  capitals,
			submitted: "B",
			answered:  true,
			want:      Verdict{CorrectAnswer: "Paris", IsCorrect: true},
		},
		{
			name:      "flagged option, text form ignores case and spacing",
			question:  capitals,
			submitted: "  paris ",
			answered:  true,
			want:      Verdict{CorrectAnswer: "Paris", IsCorrect: true},
		},
		{
			name:      "flagged option, wrong pick",
			question:  capitals,
			submitted: "A",
			answered:  true,
			want:      Verdict{CorrectAnswer: "Paris"},
		},
		{
			name:      "legacy shape with backend correct answer",
			question:  legacy,
			details:   []model.DetailedResult{{QuestionID: "7", CorrectAnswer: "Hard"}},
			submitted: "Hard",
			answered:  true,
			want:      Verdict{CorrectAnswer: "Hard", IsCorrect: true},
		},
		{
			name:      "detailed id answer displayed as option text",
			question:  model.Question{ID: "2", Options: []model.Option{{ID: "A", Text: "Satu"}, {ID: "B", Text: "Dua"}}},
			details:   []model.DetailedResult{{QuestionID: "2", CorrectAnswer: "B"}},
			submitted: "Dua",
			answered:  true,
			want:      Verdict{CorrectAnswer: "Dua", IsCorrect: true},
		},
		{
			name:      "backend verdict overrides local match",
			question:  capitals,
			details:   []model.DetailedResult{{QuestionID: "1", CorrectAnswer: "B", IsCorrect: no()}},
			submitted: "B",
			answered:  true,
			want:      Verdict{CorrectAnswer: "Paris"},
		},
		{
			name:      "question answer key",
			question:  model.Question{ID: "3", Options: []model.Option{{ID: "A", Text: "x"}, {ID: "B", Text: "y"}}, CorrectOption: "A"},
			submitted: "x",
			answered:  true,
			want:      Verdict{CorrectAnswer: "x", IsCorrect: true},
		},
		{
			name:      "true false with synthesized options",
			question:  model.Question{ID: "4", Type: model.QuestionTypeTrueFalse, CorrectAnswer: "true"},
			submitted: "TRUE",
			answered:  true,
			want:      Verdict{CorrectAnswer: "True", IsCorrect: true},
		},
		{
			name:      "short answer",
			question:  model.Question{ID: "5", Type: model.QuestionTypeShortAnswer, CorrectAnswer: "Jakarta"},
			submitted: " jakarta",
			answered:  true,
			want:      Verdict{CorrectAnswer: "Jakarta", IsCorrect: true},
		},
		{
			name:      "skipped is never correct",
			question:  capitals,
			details:   []model.DetailedResult{{QuestionID: "1", CorrectAnswer: "B", IsCorrect: yes()}},
			submitted: "",
			answered:  false,
			want:      Verdict{CorrectAnswer: "Paris", IsSkipped: true},
		},
		{
			name:      "nothing resolvable degrades",
			question:  legacy,
			submitted: "Hard",
			answered:  true,
			want:      Verdict{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReconciler(tt.details, zerolog.Nop())
			assert.Equal(t, tt.want, r.Reconcile(tt.question, tt.submitted, tt.answered))
		})
	}
}

func TestReconcile_PrimaryIDBeatsAlternate(t *testing.T) {
	q := model.Question{ID: "9", Answers: []string{"a", "b"}}
	details := []model.DetailedResult{
		{QuestionID: "100", ExaminationQuestionID: "9", CorrectAnswer: "a"},
		{QuestionID: "9", CorrectAnswer: "b"},
	}
	r := NewReconciler(details, zerolog.Nop())

	assert.Equal(t, Verdict{CorrectAnswer: "b", IsCorrect: true}, r.Reconcile(q, "b", true))
}

func TestReconcile_AlternateIDUsedWhenPrimaryMissing(t *testing.T) {
	q := model.Question{ID: "9", Answers: []string{"a", "b"}}
	r := NewReconciler([]model.DetailedResult{{QuestionID: "100", ExaminationQuestionID: "9", CorrectAnswer: "a"}}, zerolog.Nop())

	assert.Equal(t, Verdict{CorrectAnswer: "a", IsCorrect: true}, r.Reconcile(q, "a", true))
}

func TestReconciler_Build(t *testing.T) {
	questions := []model.Question{
		capitals,
		{ID: "7", Answers: []string{"Easy", "Hard"}, CorrectAnswer: "Easy"},
		{ID: "8", Type: model.QuestionTypeShortAnswer, CorrectAnswer: "42"},
	}
	answers := map[string]string{"1": "B", "7": "Hard"}

	rows, tally := NewReconciler(nil, zerolog.Nop()).Build(questions, answers)

	assert.Equal(t, Tally{Correct: 1, Incorrect: 1, Skipped: 1}, tally)
	if assert.Len(t, rows, 3) {
		assert.Equal(t, model.QuestionID("1"), rows[0].QuestionID)
		assert.Equal(t, "Paris", rows[0].SubmittedAnswer)
		assert.Equal(t, yes(), rows[0].IsCorrect)

		assert.Equal(t, "Hard", rows[1].SubmittedAnswer)
		assert.Equal(t, "Easy", rows[1].CorrectAnswer)
		assert.Equal(t, no(), rows[1].IsCorrect)

		assert.True(t, rows[2].IsSkipped)
		assert.Nil(t, rows[2].IsCorrect)
		assert.Equal(t, "42", rows[2].CorrectAnswer)
	}
}
