package response

import (
	"errors"
	"net/http"

	"github.com/stemsi/exstem-engine/internal/engine"
	"github.com/stemsi/exstem-engine/internal/service"
)

// Resolve maps engine and service errors to an HTTP status and code. The
// attempt stream reuses the code for its error events.
func Resolve(err error) (int, ErrCode) {
	var subErr *engine.SubmissionError
	switch {
	case engine.IsConfigError(err):
		return http.StatusBadRequest, ErrInvalidExamConfig
	case errors.Is(err, engine.ErrInvalidTransition):
		return http.StatusConflict, ErrInvalidTransition
	case errors.Is(err, engine.ErrUnknownQuestion):
		return http.StatusBadRequest, ErrUnknownQuestion
	case errors.Is(err, engine.ErrIndexOutOfRange):
		return http.StatusBadRequest, ErrIndexOutOfRange
	case errors.Is(err, engine.ErrTimeExpired):
		return http.StatusConflict, ErrTimeExpired
	case errors.Is(err, engine.ErrClosed):
		return http.StatusGone, ErrSessionClosed
	case errors.As(err, &subErr):
		return http.StatusBadGateway, ErrSubmissionFailed
	case errors.Is(err, service.ErrNoQuestions):
		return http.StatusNotFound, ErrNoQuestions
	case errors.Is(err, service.ErrAttemptNotFound):
		return http.StatusNotFound, ErrNotFound
	case errors.Is(err, service.ErrNotAttemptOwner):
		return http.StatusForbidden, ErrNotAttemptOwner
	case errors.Is(err, service.ErrResultNotReady):
		return http.StatusConflict, ErrResultNotReady
	default:
		return http.StatusInternalServerError, ErrInternal
	}
}
