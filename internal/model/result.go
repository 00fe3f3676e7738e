package model

// DetailedResult is the per-question outcome of an attempt. Backends may
// key it by QuestionID or by the alternate ExaminationQuestionID.
type DetailedResult struct {
	QuestionID            QuestionID `json:"questionId,omitempty"`
	ExaminationQuestionID QuestionID `json:"examinationQuestionId,omitempty"`
	SubmittedAnswer       string     `json:"submittedAnswer"`
	CorrectAnswer         string     `json:"correctAnswer"`
	IsCorrect             *bool      `json:"isCorrect,omitempty"`
	IsSkipped             bool       `json:"isSkipped"`
	Explanation           string     `json:"explanation,omitempty"`
}

// Result is the scored outcome of a submitted attempt. Score is always on
// the 0-100 scale; RawScore/MaxScore keep what the backend reported.
type Result struct {
	Score            float64          `json:"score"`
	RawScore         float64          `json:"raw_score"`
	MaxScore         float64          `json:"max_score"`
	TotalQuestions   int              `json:"total_questions"`
	CorrectAnswers   int              `json:"correct_answers"`
	IncorrectAnswers int              `json:"incorrect_answers"`
	SkippedAnswers   int              `json:"skipped_answers"`
	TimeSpentSeconds int              `json:"time_spent_seconds"`
	Details          []DetailedResult `json:"details,omitempty"`
}
