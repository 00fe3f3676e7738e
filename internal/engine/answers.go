package engine

import (
	"sort"
	"sync"

	"github.com/stemsi/exstem-engine/internal/model"
)

// AnswerStore maps question ids to the submitted value. A question is
// answered iff it has an entry; setting an empty value removes it.
type AnswerStore struct {
	mu      sync.RWMutex
	answers map[string]string
}

// NewAnswerStore returns an empty store.
func NewAnswerStore() *AnswerStore {
	return &AnswerStore{answers: make(map[string]string)}
}

// SetAnswer overwrites any previous answer for questionID.
func (s *AnswerStore) SetAnswer(questionID, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == "" {
		delete(s.answers, questionID)
		return
	}
	s.answers[questionID] = value
}

// Answer returns the stored value and whether one exists.
func (s *AnswerStore) Answer(questionID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.answers[questionID]
	return v, ok
}

// Clear removes the answer for questionID.
func (s *AnswerStore) Clear(questionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.answers, questionID)
}

// ClearAll removes every answer.
func (s *AnswerStore) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = make(map[string]string)
}

// AnsweredCount returns the number of answered questions.
func (s *AnswerStore) AnsweredCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.answers)
}

// Unanswered returns, in the given order, every question without an answer.
func (s *AnswerStore) Unanswered(questions []model.Question) []model.Question {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Question, 0, len(questions))
	for _, q := range questions {
		if _, ok := s.answers[q.ID.String()]; !ok {
			out = append(out, q)
		}
	}
	return out
}

// Snapshot returns a copy of all answers.
func (s *AnswerStore) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

// FlagSet holds the questions a student marked for review. Flags never
// affect scoring.
type FlagSet struct {
	mu    sync.RWMutex
	flags map[string]struct{}
}

// NewFlagSet returns an empty flag set.
func NewFlagSet() *FlagSet {
	return &FlagSet{flags: make(map[string]struct{})}
}

// Toggle flips the flag on questionID and returns the new state.
func (f *FlagSet) Toggle(questionID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.flags[questionID]; ok {
		delete(f.flags, questionID)
		return false
	}
	f.flags[questionID] = struct{}{}
	return true
}

// IsFlagged reports whether questionID is flagged.
func (f *FlagSet) IsFlagged(questionID string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.flags[questionID]
	return ok
}

// List returns the flagged ids in sorted order.
func (f *FlagSet) List() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]string, 0, len(f.flags))
	for id := range f.flags {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ClearAll removes every flag.
func (f *FlagSet) ClearAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags = make(map[string]struct{})
}
