package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates persisted attempt states.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusCompleted  AttemptStatus = "COMPLETED"
	AttemptStatusAbandoned  AttemptStatus = "ABANDONED"
)

// Attempt is what the backend hands out when an attempt starts.
// ElapsedSeconds is non-zero for a resumed attempt: the time already spent
// out of DurationSeconds.
type Attempt struct {
	ID              string     `json:"id"`
	Questions       []Question `json:"questions"`
	DurationSeconds int        `json:"duration_seconds"`
	ElapsedSeconds  int        `json:"elapsed_seconds,omitempty"`
}

// AttemptRecord is the persisted row of one attempt.
type AttemptRecord struct {
	ID               uuid.UUID     `json:"id"`
	StudentID        int           `json:"student_id"`
	Content          string        `json:"content"`
	QuestionType     QuestionType  `json:"question_type,omitempty"`
	Difficulty       string        `json:"difficulty,omitempty"`
	DurationSeconds  int           `json:"duration_seconds"`
	QuestionIDs      []string      `json:"question_ids"`
	Status           AttemptStatus `json:"status"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       *time.Time    `json:"finished_at,omitempty"`
	Score            *float64      `json:"score,omitempty"`
	TimeSpentSeconds *int          `json:"time_spent_seconds,omitempty"`
}

// Snapshot is the autosaved progress of an attempt.
type Snapshot struct {
	AttemptID        string            `json:"attempt_id"`
	Answers          map[string]string `json:"answers"`
	Flags            []string          `json:"flags"`
	Cursor           int               `json:"cursor"`
	RemainingSeconds int               `json:"remaining_seconds"`
	SavedAt          time.Time         `json:"saved_at"`
}

// SnapshotJob is queued for the autosave worker. A job without a payload
// deletes the persisted snapshot.
type SnapshotJob struct {
	AttemptID string          `json:"attempt_id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ResultJob is queued for the result worker once an attempt is graded.
type ResultJob struct {
	AttemptID        string            `json:"attempt_id"`
	StudentID        int               `json:"student_id"`
	Score            float64           `json:"score"`
	CorrectAnswers   int               `json:"correct_answers"`
	TimeSpentSeconds int               `json:"time_spent_seconds"`
	Answers          map[string]string `json:"answers"`
	FinishedAt       time.Time         `json:"finished_at"`
}
