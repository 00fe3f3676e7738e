package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-engine/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, path, target string, h gin.HandlerFunc) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(ContextKeyRequestID, "req-1") })
	r.GET(path, h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))

	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestFail_CarriesRequestAndAttempt(t *testing.T) {
	w, body := serve(t, "/attempts/:attempt_id/result", "/attempts/att-9/result", func(c *gin.Context) {
		Fail(c, http.StatusConflict, ErrTimeExpired)
	})

	require.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, ErrTimeExpired, body.Error.Code)
	assert.Equal(t, GetMessage(ErrTimeExpired), body.Error.Message)
	assert.Equal(t, "req-1", body.Metadata.RequestID)
	assert.Equal(t, "att-9", body.Metadata.AttemptID)
}

func TestSuccess_WithoutAttemptRoute(t *testing.T) {
	w, body := serve(t, "/attempts", "/attempts", func(c *gin.Context) {
		Success(c, http.StatusOK, []string{})
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, body.Error)
	assert.Empty(t, body.Metadata.AttemptID)
	assert.NotEmpty(t, body.Metadata.Timestamp)
}

func TestFailErr_ResolvesEngineErrors(t *testing.T) {
	var status int
	w, body := serve(t, "/x", "/x", func(c *gin.Context) {
		status = FailErr(c, &engine.SubmissionError{AttemptID: "a", Err: errors.New("502")})
	})

	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, ErrSubmissionFailed, body.Error.Code)
}

func TestGetMessage_UnknownCode(t *testing.T) {
	assert.Equal(t, "Terjadi kesalahan yang tidak terduga.", GetMessage("NOPE"))
}
