package engine

import (
	"math"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/model"
)

// buildResult merges the backend's score with the reconciled rows. Counts
// always come from the reconciled rows; the backend's own counts are only
// compared and logged when they disagree.
func buildResult(reported *model.Result, rows []model.DetailedResult, tally Tally, total, elapsed int, log zerolog.Logger) *model.Result {
	res := &model.Result{
		TotalQuestions:   total,
		CorrectAnswers:   tally.Correct,
		IncorrectAnswers: tally.Incorrect,
		SkippedAnswers:   tally.Skipped,
		TimeSpentSeconds: elapsed,
		Details:          rows,
	}

	if reported == nil {
		res.Score = NormalizeScore(0, 0, 0, tally.Correct, total)
		return res
	}

	res.RawScore = reported.RawScore
	res.MaxScore = reported.MaxScore
	res.Score = NormalizeScore(reported.RawScore, reported.MaxScore, reported.Score, tally.Correct, total)
	if reported.TimeSpentSeconds > 0 {
		res.TimeSpentSeconds = reported.TimeSpentSeconds
	}

	if reported.TotalQuestions > 0 &&
		(reported.TotalQuestions != total || reported.CorrectAnswers != tally.Correct) {
		log.Warn().
			Int("backend_total", reported.TotalQuestions).
			Int("backend_correct", reported.CorrectAnswers).
			Int("total", total).
			Int("correct", tally.Correct).
			Msg("Reconciled counts differ from backend totals")
	}
	return res
}

// NormalizeScore returns a score on the 0-100 scale. A positive max means
// raw is on the backend's own scale. Without a max, a positive percent is
// taken as already normalized. Otherwise the score is derived from the
// correct count.
func NormalizeScore(raw, max, percent float64, correct, total int) float64 {
	var score float64
	switch {
	case max > 0:
		score = raw / max * 100
	case percent > 0:
		score = percent
	case total > 0:
		score = float64(correct) / float64(total) * 100
	}
	return math.Round(math.Max(0, math.Min(100, score))*100) / 100
}
