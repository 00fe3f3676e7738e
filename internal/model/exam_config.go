package model

// Difficulty levels accepted in an ExamConfig.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// ExamConfig describes the attempt a student asks for. It is copied by
// value into the session and never mutated after start.
type ExamConfig struct {
	Type             QuestionType `json:"type" binding:"omitempty,oneof=multiple_choice true_false short_answer"`
	Content          string       `json:"content" binding:"required,min=1,max=100"`
	TimeLimitSeconds int          `json:"time_limit_seconds" binding:"required,min=1,max=28800"`
	QuestionCount    int          `json:"question_count" binding:"required,min=1,max=200"`
	Difficulty       string       `json:"difficulty" binding:"omitempty,oneof=easy medium hard"`
}
