package engine

import (
	"strings"

	"github.com/stemsi/exstem-engine/internal/model"
)

// variant is the answer shape of a question. Every shape can list its
// choices, render a raw answer for review, and decide whether a submitted
// value equals the correct one.
type variant interface {
	choices() []model.Option
	display(raw string) string
	matches(submitted, correct string) bool
}

// variantOf picks the shape from the type tag, falling back to the
// question's structure when the tag is missing.
func variantOf(q model.Question) variant {
	switch q.Type {
	case model.QuestionTypeTrueFalse:
		return trueFalse{choice{options: choiceOptions(q, trueFalseOptions)}}
	case model.QuestionTypeShortAnswer:
		return shortAnswer{}
	default:
		return choice{options: choiceOptions(q, nil)}
	}
}

var trueFalseOptions = []model.Option{
	{ID: "true", Text: "True"},
	{ID: "false", Text: "False"},
}

// choiceOptions returns the question's options, converting the legacy flat
// answer list into options whose id is their text.
func choiceOptions(q model.Question, fallback []model.Option) []model.Option {
	if len(q.Options) > 0 {
		return q.Options
	}
	if len(q.Answers) > 0 {
		opts := make([]model.Option, len(q.Answers))
		for i, a := range q.Answers {
			opts[i] = model.Option{ID: a, Text: a}
		}
		return opts
	}
	return fallback
}

// choice covers multiple-choice questions, modern and legacy.
type choice struct {
	options []model.Option
}

func (c choice) choices() []model.Option { return c.options }

// lookup resolves a raw value in id-form first, then in text-form.
func (c choice) lookup(raw string) (model.Option, bool) {
	if raw == "" {
		return model.Option{}, false
	}
	for _, o := range c.options {
		if o.ID == raw {
			return o, true
		}
	}
	for _, o := range c.options {
		if sameText(o.Text, raw) {
			return o, true
		}
	}
	return model.Option{}, false
}

func (c choice) display(raw string) string {
	if o, ok := c.lookup(raw); ok {
		return o.Text
	}
	return raw
}

func (c choice) matches(submitted, correct string) bool {
	if submitted == "" || correct == "" {
		return false
	}
	so, sok := c.lookup(submitted)
	co, cok := c.lookup(correct)
	switch {
	case sok && cok:
		return so.ID == co.ID
	case sok:
		return so.ID == correct || sameText(so.Text, correct)
	case cok:
		return co.ID == submitted || sameText(co.Text, submitted)
	default:
		return sameText(submitted, correct)
	}
}

// trueFalse is a two-option choice with case-insensitive labels.
type trueFalse struct {
	choice
}

// shortAnswer compares free text, ignoring case and surrounding space.
type shortAnswer struct{}

func (shortAnswer) choices() []model.Option { return nil }

func (shortAnswer) display(raw string) string { return strings.TrimSpace(raw) }

func (shortAnswer) matches(submitted, correct string) bool {
	if strings.TrimSpace(submitted) == "" || strings.TrimSpace(correct) == "" {
		return false
	}
	return sameText(submitted, correct)
}

func sameText(a, b string) bool {
	return strings.EqualFold(normalizeSpace(a), normalizeSpace(b))
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
