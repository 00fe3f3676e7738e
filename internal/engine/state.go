package engine

import "github.com/stemsi/exstem-engine/internal/model"

// Status is the lifecycle position of a session.
type Status string

const (
	StatusSetup      Status = "setup"
	StatusInProgress Status = "in_progress"
	StatusReviewing  Status = "reviewing"
	StatusSubmitting Status = "submitting"
	StatusCompleted  Status = "completed"
	StatusAborted    Status = "aborted"
)

// Live reports whether the attempt is running. Reviewing is an overlay on
// an in-progress attempt: the clock keeps running and the guard stays armed.
func (s Status) Live() bool {
	return s == StatusInProgress || s == StatusReviewing
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAborted
}

// State is the read-only view published to the presentation layer. Closed
// marks a machine whose owner went away: the attempt keeps its status so
// it can be resumed, but the guard and the countdown are gone.
type State struct {
	Version          uint64            `json:"version"`
	Status           Status            `json:"status"`
	AttemptID        string            `json:"attempt_id,omitempty"`
	Config           model.ExamConfig  `json:"config"`
	Questions        []model.Question  `json:"questions,omitempty"`
	Cursor           int               `json:"cursor"`
	DurationSeconds  int               `json:"duration_seconds"`
	RemainingSeconds int               `json:"remaining_seconds"`
	TimeExpired      bool              `json:"time_expired"`
	Answers          map[string]string `json:"answers,omitempty"`
	Flags            []string          `json:"flags,omitempty"`
	Answered         int               `json:"answered"`
	Unanswered       int               `json:"unanswered"`
	GuardArmed       bool              `json:"guard_armed"`
	Closed           bool              `json:"closed"`
	Result           *model.Result     `json:"result,omitempty"`
	Notice           string            `json:"notice,omitempty"`
}

// Current returns the question under the cursor.
func (s State) Current() (model.Question, bool) {
	if s.Cursor < 0 || s.Cursor >= len(s.Questions) {
		return model.Question{}, false
	}
	return s.Questions[s.Cursor], true
}
