package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AttemptMetaKey returns the hash holding an attempt's owner and timing.
func (r *CacheKeyStruct) AttemptMetaKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:meta", attemptID)
}

// AttemptQuestionsKey returns the cache key for an attempt's full questions,
// correct answers included.
func (r *CacheKeyStruct) AttemptQuestionsKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:questions", attemptID)
}

// AttemptSnapshotKey returns the cache key for an attempt's autosave snapshot.
func (r *CacheKeyStruct) AttemptSnapshotKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:snapshot", attemptID)
}

// AttemptResultKey returns the cache key for an attempt's graded result.
func (r *CacheKeyStruct) AttemptResultKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:result", attemptID)
}

// StudentActiveAttemptKey returns the cache key for a student's running attempt.
func (r *CacheKeyStruct) StudentActiveAttemptKey(studentID int) string {
	return fmt.Sprintf("student:%d:active_attempt", studentID)
}

var CacheKey = NewCacheKeyStruct()
