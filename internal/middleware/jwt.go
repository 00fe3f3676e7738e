package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/service"
)

const contextKeyStudent = "student"

// Student is the authenticated caller of a student route.
type Student struct {
	ID      int
	ClassID int
	TokenID string
}

// RequireStudent authenticates the REST and SSE routes. The bearer header
// wins; EventSource clients, which cannot set headers, pass ?token=.
func RequireStudent(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authenticate(c, auth, bearerToken(c.GetHeader("Authorization")), c.Query("token"))
	}
}

// RequireStudentStream authenticates the attempt stream upgrade from ?token=.
func RequireStudentStream(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authenticate(c, auth, c.Query("token"))
	}
}

// SetStudent binds s to the request.
func SetStudent(c *gin.Context, s Student) {
	c.Set(contextKeyStudent, s)
}

// StudentFrom returns the student bound by RequireStudent or
// RequireStudentStream.
func StudentFrom(c *gin.Context) (Student, bool) {
	val, exists := c.Get(contextKeyStudent)
	if !exists {
		return Student{}, false
	}
	s, ok := val.(Student)
	return s, ok
}

func authenticate(c *gin.Context, auth *service.AuthService, candidates ...string) {
	var token string
	for _, t := range candidates {
		if t != "" {
			token = t
			break
		}
	}
	if token == "" {
		response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	claims, err := auth.ValidateToken(token)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		// The attempt survives on the server; the client re-logs in and resumes.
		response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenExpired)
		return
	case err != nil:
		response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
		return
	case claims.TokenType != service.TokenTypeStudent:
		response.AbortFail(c, http.StatusForbidden, response.ErrStudentAccessOnly)
		return
	case claims.UserID <= 0:
		response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
		return
	}

	SetStudent(c, Student{ID: claims.UserID, ClassID: claims.ClassID, TokenID: claims.ID})
	c.Next()
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
