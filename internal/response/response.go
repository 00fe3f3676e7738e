package response

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ContextKeyRequestID is where the request middleware stores the request id.
const ContextKeyRequestID = "request_id"

// Response is the envelope every REST endpoint answers with.
type Response struct {
	Data     interface{} `json:"data"`
	Error    *ErrorBody  `json:"error,omitempty"`
	Metadata Metadata    `json:"metadata"`
}

// ErrorBody carries a stable code, its student-facing message and, for
// validation failures, the offending fields.
type ErrorBody struct {
	Code    ErrCode           `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Metadata ties a response to its request and, on attempt routes, to the
// attempt it concerns.
type Metadata struct {
	RequestID string `json:"request_id"`
	AttemptID string `json:"attempt_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Success writes data with statusCode.
func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, Response{Data: data, Metadata: metadata(c)})
}

// Fail writes an error envelope for code.
func Fail(c *gin.Context, statusCode int, code ErrCode) {
	c.JSON(statusCode, failure(c, code, nil))
}

// FailWithFields writes an error envelope with field-level details.
func FailWithFields(c *gin.Context, statusCode int, code ErrCode, fields map[string]string) {
	c.JSON(statusCode, failure(c, code, fields))
}

// AbortFail stops the middleware chain with an error envelope.
func AbortFail(c *gin.Context, statusCode int, code ErrCode) {
	c.AbortWithStatusJSON(statusCode, failure(c, code, nil))
}

// FailErr writes the envelope err resolves to and returns the status used.
func FailErr(c *gin.Context, err error) int {
	status, code := Resolve(err)
	Fail(c, status, code)
	return status
}

func failure(c *gin.Context, code ErrCode, fields map[string]string) Response {
	return Response{
		Error:    &ErrorBody{Code: code, Message: GetMessage(code), Fields: fields},
		Metadata: metadata(c),
	}
}

func metadata(c *gin.Context) Metadata {
	id := c.GetString(ContextKeyRequestID)
	if id == "" {
		id = uuid.NewString()
	}
	return Metadata{
		RequestID: id,
		AttemptID: c.Param("attempt_id"),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
