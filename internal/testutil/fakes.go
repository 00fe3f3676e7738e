package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/stemsi/exstem-engine/internal/model"
)

// SubmitCall records one SubmitAttempt invocation.
type SubmitCall struct {
	AttemptID        string
	Answers          map[string]string
	TimeSpentSeconds int
}

// FakeBackend is an in-memory exam backend.
type FakeBackend struct {
	mu sync.Mutex

	Attempt    *model.Attempt
	StartErr   error
	Result     *model.Result
	SubmitErrs []error
	Details    []model.DetailedResult
	DetailsErr error

	// Gate, when set, holds every SubmitAttempt until it is closed.
	Gate chan struct{}

	starts  int
	submits []SubmitCall
}

func (b *FakeBackend) StartAttempt(_ context.Context, _ model.ExamConfig) (*model.Attempt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.starts++
	if b.StartErr != nil {
		return nil, b.StartErr
	}
	if b.Attempt == nil {
		return nil, errors.New("no attempt configured")
	}
	a := *b.Attempt
	a.Questions = append([]model.Question(nil), b.Attempt.Questions...)
	return &a, nil
}

func (b *FakeBackend) SubmitAttempt(ctx context.Context, attemptID string, answers map[string]string, timeSpentSeconds int) (*model.Result, error) {
	b.mu.Lock()
	gate := b.Gate
	copied := make(map[string]string, len(answers))
	for k, v := range answers {
		copied[k] = v
	}
	b.submits = append(b.submits, SubmitCall{AttemptID: attemptID, Answers: copied, TimeSpentSeconds: timeSpentSeconds})
	var err error
	if len(b.SubmitErrs) > 0 {
		err = b.SubmitErrs[0]
		b.SubmitErrs = b.SubmitErrs[1:]
	}
	result := b.Result
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if result == nil {
		return &model.Result{}, nil
	}
	r := *result
	return &r, nil
}

func (b *FakeBackend) FetchDetailedResults(_ context.Context, _ string) ([]model.DetailedResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.DetailsErr != nil {
		return nil, b.DetailsErr
	}
	return append([]model.DetailedResult(nil), b.Details...), nil
}

// Submits returns every recorded SubmitAttempt call.
func (b *FakeBackend) Submits() []SubmitCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]SubmitCall(nil), b.submits...)
}

// Starts returns how many attempts were requested.
func (b *FakeBackend) Starts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.starts
}

// FakeSink is an in-memory persistence sink.
type FakeSink struct {
	mu sync.Mutex

	SaveErr error
	LoadErr error

	stored    map[string]*model.Snapshot
	saves     []model.Snapshot
	discarded []string
}

// NewFakeSink returns an empty sink.
func NewFakeSink() *FakeSink {
	return &FakeSink{stored: make(map[string]*model.Snapshot)}
}

func (s *FakeSink) Save(_ context.Context, attemptID string, snapshot *model.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	cp := *snapshot
	s.stored[attemptID] = &cp
	s.saves = append(s.saves, cp)
	return nil
}

func (s *FakeSink) Load(_ context.Context, attemptID string) (*model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	snap, ok := s.stored[attemptID]
	if !ok {
		return nil, nil
	}
	cp := *snap
	return &cp, nil
}

func (s *FakeSink) Discard(_ context.Context, attemptID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stored, attemptID)
	s.discarded = append(s.discarded, attemptID)
	return nil
}

// Put seeds a stored snapshot.
func (s *FakeSink) Put(snapshot *model.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *snapshot
	s.stored[snapshot.AttemptID] = &cp
}

// Saves returns every persisted snapshot in order.
func (s *FakeSink) Saves() []model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Snapshot(nil), s.saves...)
}

// Discarded returns the attempt ids passed to Discard.
func (s *FakeSink) Discarded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.discarded...)
}

// FakePlatform stands in for the hosting shell's navigation hooks.
type FakePlatform struct {
	mu sync.Mutex

	// Reply is what Confirm answers.
	Reply bool

	seq     int
	unload  map[int]func() string
	route   map[int]func(string) bool
	prompts []string
}

// NewFakePlatform returns a platform whose Confirm answers reply.
func NewFakePlatform(reply bool) *FakePlatform {
	return &FakePlatform{
		Reply:  reply,
		unload: make(map[int]func() string),
		route:  make(map[int]func(string) bool),
	}
}

func (p *FakePlatform) OnBeforeUnload(fn func() string) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	id := p.seq
	p.unload[id] = fn
	return func() {
		p.mu.Lock()
		delete(p.unload, id)
		p.mu.Unlock()
	}
}

func (p *FakePlatform) OnRouteChange(fn func(to string) bool) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	id := p.seq
	p.route[id] = fn
	return func() {
		p.mu.Lock()
		delete(p.route, id)
		p.mu.Unlock()
	}
}

func (p *FakePlatform) Confirm(message string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, message)
	return p.Reply
}

// SetReply changes what Confirm answers.
func (p *FakePlatform) SetReply(reply bool) {
	p.mu.Lock()
	p.Reply = reply
	p.mu.Unlock()
}

// Unload simulates closing the window. It returns the first warning
// produced by a registered handler.
func (p *FakePlatform) Unload() (string, bool) {
	for _, fn := range p.handlers() {
		if msg := fn(); msg != "" {
			return msg, true
		}
	}
	return "", false
}

// Navigate simulates an in-app route change and reports whether every
// registered handler let it through.
func (p *FakePlatform) Navigate(to string) bool {
	p.mu.Lock()
	route := make([]func(string) bool, 0, len(p.route))
	for _, fn := range p.route {
		route = append(route, fn)
	}
	p.mu.Unlock()

	for _, fn := range route {
		if !fn(to) {
			return false
		}
	}
	return true
}

// Registered returns the number of live unload and route handlers.
func (p *FakePlatform) Registered() (unload, route int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.unload), len(p.route)
}

// Prompts returns every message passed to Confirm.
func (p *FakePlatform) Prompts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.prompts...)
}

func (p *FakePlatform) handlers() []func() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]func() string, 0, len(p.unload))
	for _, fn := range p.unload {
		out = append(out, fn)
	}
	return out
}
