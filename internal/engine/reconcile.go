package engine

import (
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/model"
)

// Verdict is the canonical outcome of one question.
type Verdict struct {
	CorrectAnswer string
	IsCorrect     bool
	IsSkipped     bool
}

// Tally aggregates verdicts over an attempt.
type Tally struct {
	Correct   int
	Incorrect int
	Skipped   int
}

// Reconciler decides, after submission, whether each answer was correct.
// Backends report correctness in several shapes; the reconciler tries them
// in a fixed order and degrades to an empty answer instead of failing.
type Reconciler struct {
	log         zerolog.Logger
	byPrimary   map[model.QuestionID]model.DetailedResult
	byAlternate map[model.QuestionID]model.DetailedResult
}

// NewReconciler indexes the backend's detailed results. The first entry
// per id wins.
func NewReconciler(details []model.DetailedResult, log zerolog.Logger) *Reconciler {
	r := &Reconciler{
		log:         log.With().Str("component", "reconciler").Logger(),
		byPrimary:   make(map[model.QuestionID]model.DetailedResult, len(details)),
		byAlternate: make(map[model.QuestionID]model.DetailedResult, len(details)),
	}
	for _, d := range details {
		if d.QuestionID != "" {
			if _, ok := r.byPrimary[d.QuestionID]; !ok {
				r.byPrimary[d.QuestionID] = d
			}
		}
		if d.ExaminationQuestionID != "" {
			if _, ok := r.byAlternate[d.ExaminationQuestionID]; !ok {
				r.byAlternate[d.ExaminationQuestionID] = d
			}
		}
	}
	return r
}

// Reconcile classifies one answer. answered must reflect the answer store:
// a skipped question is never correct, whatever the backend says.
func (r *Reconciler) Reconcile(q model.Question, submitted string, answered bool) Verdict {
	correct, isCorrect, ok := r.resolve(q, submitted)
	if !ok {
		r.log.Warn().
			Str("question_id", q.ID.String()).
			Msg("No correct answer resolvable, showing degraded result")
	}
	if !answered {
		return Verdict{CorrectAnswer: correct, IsSkipped: true}
	}
	return Verdict{CorrectAnswer: correct, IsCorrect: isCorrect}
}

// Build reconciles every question and returns the review rows in question
// order together with the aggregated counts.
func (r *Reconciler) Build(questions []model.Question, answers map[string]string) ([]model.DetailedResult, Tally) {
	rows := make([]model.DetailedResult, 0, len(questions))
	var tally Tally

	for _, q := range questions {
		submitted, answered := answers[q.ID.String()]
		v := r.Reconcile(q, submitted, answered)

		row := model.DetailedResult{
			QuestionID:      q.ID,
			SubmittedAnswer: variantOf(q).display(submitted),
			CorrectAnswer:   v.CorrectAnswer,
			IsSkipped:       v.IsSkipped,
			Explanation:     q.Explanation,
		}
		if d, ok := r.entry(q.ID); ok {
			row.ExaminationQuestionID = d.ExaminationQuestionID
			if row.Explanation == "" {
				row.Explanation = d.Explanation
			}
		}

		switch {
		case v.IsSkipped:
			tally.Skipped++
		case v.IsCorrect:
			tally.Correct++
			row.IsCorrect = boolPtr(true)
		default:
			tally.Incorrect++
			row.IsCorrect = boolPtr(false)
		}
		rows = append(rows, row)
	}
	return rows, tally
}

// resolve walks the resolution order: detailed entry, flagged option,
// then the question's own answer key.
func (r *Reconciler) resolve(q model.Question, submitted string) (string, bool, bool) {
	v := variantOf(q)

	if d, ok := r.entry(q.ID); ok && (d.CorrectAnswer != "" || d.IsCorrect != nil) {
		isCorrect := v.matches(submitted, d.CorrectAnswer)
		if d.IsCorrect != nil {
			isCorrect = *d.IsCorrect
		}
		return v.display(d.CorrectAnswer), isCorrect, true
	}

	for _, o := range v.choices() {
		if o.IsCorrect != nil && *o.IsCorrect {
			return o.Text, v.matches(submitted, o.ID), true
		}
	}

	var correct string
	isCorrect := false
	for _, key := range []string{q.CorrectOption, q.CorrectAnswer} {
		if key == "" {
			continue
		}
		if correct == "" {
			correct = v.display(key)
		}
		if v.matches(submitted, key) {
			isCorrect = true
		}
	}
	if correct != "" {
		return correct, isCorrect, true
	}

	return "", false, false
}

// entry finds the detailed result for id. A primary-id match always beats
// an alternate-id match.
func (r *Reconciler) entry(id model.QuestionID) (model.DetailedResult, bool) {
	if d, ok := r.byPrimary[id]; ok {
		return d, true
	}
	d, ok := r.byAlternate[id]
	return d, ok
}

func boolPtr(b bool) *bool { return &b }
