package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/middleware"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/response"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// AttemptReader is the read side of the attempt service.
type AttemptReader interface {
	History(ctx context.Context, studentID, limit int) ([]model.AttemptRecord, error)
	Result(ctx context.Context, studentID int, attemptID string) (*model.Result, error)
}

// AttemptHandler serves a student's past attempts over REST.
type AttemptHandler struct {
	attempts AttemptReader
	log      zerolog.Logger
}

func NewAttemptHandler(attempts AttemptReader, log zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		attempts: attempts,
		log:      log.With().Str("component", "attempt_handler").Logger(),
	}
}

// History godoc
// GET /api/v1/student/attempts?limit=20
func (h *AttemptHandler) History(c *gin.Context) {
	student, ok := middleware.StudentFrom(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
				map[string]string{"limit": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	attempts, err := h.attempts.History(c.Request.Context(), student.ID, limit)
	if err != nil {
		log := middleware.Logger(c, h.log)
		log.Error().Err(err).Int("student_id", student.ID).Msg("List attempts failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if attempts == nil {
		attempts = []model.AttemptRecord{}
	}
	response.Success(c, http.StatusOK, attempts)
}

// Result godoc
// GET /api/v1/student/attempts/:attempt_id/result
func (h *AttemptHandler) Result(c *gin.Context) {
	student, ok := middleware.StudentFrom(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID := c.Param("attempt_id")
	if _, err := uuid.Parse(attemptID); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	res, err := h.attempts.Result(c.Request.Context(), student.ID, attemptID)
	if err != nil {
		if response.FailErr(c, err) >= http.StatusInternalServerError {
			log := middleware.Logger(c, h.log)
			log.Error().Err(err).Str("attempt_id", attemptID).Msg("Get result failed")
		}
		return
	}
	response.Success(c, http.StatusOK, res)
}
