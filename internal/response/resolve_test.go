package response

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stemsi/exstem-engine/internal/engine"
	"github.com/stemsi/exstem-engine/internal/service"
	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
		wantCode   ErrCode
	}{
		{&engine.ConfigError{Field: "question_count", Reason: "must be positive"}, http.StatusBadRequest, ErrInvalidExamConfig},
		{engine.ErrInvalidTransition, http.StatusConflict, ErrInvalidTransition},
		{engine.ErrUnknownQuestion, http.StatusBadRequest, ErrUnknownQuestion},
		{engine.ErrIndexOutOfRange, http.StatusBadRequest, ErrIndexOutOfRange},
		{engine.ErrTimeExpired, http.StatusConflict, ErrTimeExpired},
		{engine.ErrClosed, http.StatusGone, ErrSessionClosed},
		{&engine.SubmissionError{AttemptID: "a", Err: errors.New("boom")}, http.StatusBadGateway, ErrSubmissionFailed},
		{fmt.Errorf("start attempt: %w", service.ErrNoQuestions), http.StatusNotFound, ErrNoQuestions},
		{service.ErrAttemptNotFound, http.StatusNotFound, ErrNotFound},
		{service.ErrNotAttemptOwner, http.StatusForbidden, ErrNotAttemptOwner},
		{service.ErrResultNotReady, http.StatusConflict, ErrResultNotReady},
		{errors.New("database on fire"), http.StatusInternalServerError, ErrInternal},
	}
	for _, tc := range cases {
		t.Run(string(tc.wantCode), func(t *testing.T) {
			status, code := Resolve(tc.err)
			assert.Equal(t, tc.wantStatus, status)
			assert.Equal(t, tc.wantCode, code)
		})
	}
}
