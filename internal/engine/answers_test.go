package engine

import (
	"testing"

	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestAnswerStore(t *testing.T) {
	s := NewAnswerStore()
	s.SetAnswer("1", "A")
	s.SetAnswer("2", "B")
	s.SetAnswer("1", "C")

	v, ok := s.Answer("1")
	assert.True(t, ok)
	assert.Equal(t, "C", v)
	assert.Equal(t, 2, s.AnsweredCount())

	s.SetAnswer("2", "")
	_, ok = s.Answer("2")
	assert.False(t, ok, "empty value clears the entry")

	snap := s.Snapshot()
	snap["1"] = "mutated"
	v, _ = s.Answer("1")
	assert.Equal(t, "C", v, "snapshot is a copy")

	s.Clear("1")
	assert.Zero(t, s.AnsweredCount())

	s.SetAnswer("3", "x")
	s.ClearAll()
	assert.Empty(t, s.Snapshot())
}

func TestAnswerStore_UnansweredKeepsQuestionOrder(t *testing.T) {
	qs := []model.Question{{ID: "c"}, {ID: "a"}, {ID: "b"}}
	s := NewAnswerStore()
	s.SetAnswer("a", "1")

	got := s.Unanswered(qs)
	assert.Equal(t, []model.QuestionID{"c", "b"}, []model.QuestionID{got[0].ID, got[1].ID})
}

func TestFlagSet(t *testing.T) {
	f := NewFlagSet()
	assert.True(t, f.Toggle("2"))
	assert.True(t, f.Toggle("1"))
	assert.True(t, f.IsFlagged("2"))
	assert.Equal(t, []string{"1", "2"}, f.List())

	assert.False(t, f.Toggle("2"))
	assert.False(t, f.IsFlagged("2"))

	f.ClearAll()
	assert.Empty(t, f.List())
}
