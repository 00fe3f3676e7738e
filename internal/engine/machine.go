package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/model"
)

const (
	DefaultExitMessage = "Keluar dari ujian? Semua jawaban pada percobaan ini akan dibuang."
	unansweredPrompt   = "Masih ada %d soal yang belum dijawab. Tetap kumpulkan?"
)

// Option configures a Machine.
type Option func(*Machine)

// WithScheduler replaces the wall-clock scheduler.
func WithScheduler(s Scheduler) Option { return func(m *Machine) { m.sched = s } }

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Machine) { m.log = l.With().Str("component", "session_machine").Logger() }
}

// WithTickInterval sets the countdown cadence.
func WithTickInterval(d time.Duration) Option { return func(m *Machine) { m.tickInterval = d } }

// WithAutosaveDelay sets the autosave debounce window.
func WithAutosaveDelay(d time.Duration) Option { return func(m *Machine) { m.autosaveDelay = d } }

// WithGuardMessage sets the leave-confirmation prompt.
func WithGuardMessage(msg string) Option { return func(m *Machine) { m.guardMessage = msg } }

// WithExitMessage sets the prompt shown by RequestExit.
func WithExitMessage(msg string) Option { return func(m *Machine) { m.exitMessage = msg } }

// WithObserver registers a callback receiving every state change.
func WithObserver(fn func(State)) Option {
	return func(m *Machine) { m.observers = append(m.observers, fn) }
}

// WithTickObserver registers a callback receiving the remaining seconds on
// every countdown tick.
func WithTickObserver(fn func(remaining int)) Option {
	return func(m *Machine) { m.tickObservers = append(m.tickObservers, fn) }
}

// Machine drives one exam attempt from setup to a terminal state. It is
// the only writer of the attempt's state; the presentation layer mutates
// progress exclusively through its methods.
type Machine struct {
	backend  ExamBackend
	sink     PersistenceSink
	platform PlatformNavigation
	sched    Scheduler
	log      zerolog.Logger

	tickInterval  time.Duration
	autosaveDelay time.Duration
	guardMessage  string
	exitMessage   string
	observers     []func(State)
	tickObservers []func(int)

	inflight sync.WaitGroup

	mu        sync.Mutex
	ctx       context.Context
	status    Status
	starting  bool
	closed    bool
	version   uint64
	attemptID string
	config    model.ExamConfig
	questions []model.Question
	index     map[string]int
	cursor    int
	duration  int
	offset    int
	timer     *Timer
	answers   *AnswerStore
	flags     *FlagSet
	guard     *NavigationGuard
	autosave  *AutoSaveScheduler
	result    *model.Result
	notice    string
}

// NewMachine creates a machine in the setup state. sink and platform may
// be nil: autosave is then skipped and confirmations always proceed.
func NewMachine(backend ExamBackend, sink PersistenceSink, platform PlatformNavigation, opts ...Option) *Machine {
	m := &Machine{
		backend:       backend,
		sink:          sink,
		platform:      platform,
		sched:         RealScheduler{},
		log:           zerolog.Nop(),
		tickInterval:  DefaultTickInterval,
		autosaveDelay: DefaultAutosaveDelay,
		guardMessage:  DefaultGuardMessage,
		exitMessage:   DefaultExitMessage,
		ctx:           context.Background(),
		status:        StatusSetup,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ─── Setup ──────────────────────────────────────────────────────────

// Start requests an attempt from the backend and enters InProgress. A
// *ConfigError means no session was created.
func (m *Machine) Start(ctx context.Context, cfg model.ExamConfig) error {
	if err := validateConfig(cfg); err != nil {
		return err
	}

	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return ErrClosed
	case m.status != StatusSetup || m.starting:
		m.mu.Unlock()
		return ErrInvalidTransition
	}
	m.starting = true
	m.mu.Unlock()

	attempt, err := m.backend.StartAttempt(ctx, cfg)
	if err != nil {
		m.endStarting()
		return fmt.Errorf("start attempt: %w", err)
	}

	duration := cfg.TimeLimitSeconds
	if attempt != nil && attempt.DurationSeconds > 0 {
		duration = attempt.DurationSeconds
	}
	if err := validateAttempt(attempt, duration); err != nil {
		m.endStarting()
		return err
	}

	var restored *model.Snapshot
	if m.sink != nil {
		restored, err = m.sink.Load(ctx, attempt.ID)
		if err != nil {
			m.log.Warn().Err(err).Str("attempt_id", attempt.ID).Msg("Autosave restore failed, starting blank")
			restored = nil
		}
	}

	m.mu.Lock()
	m.starting = false
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}

	m.ctx = context.WithoutCancel(ctx)
	m.attemptID = attempt.ID
	m.config = cfg
	m.questions = append([]model.Question(nil), attempt.Questions...)
	m.index = make(map[string]int, len(m.questions))
	for i, q := range m.questions {
		m.index[q.ID.String()] = i
	}
	m.cursor = 0
	m.duration = duration
	m.offset = attempt.ElapsedSeconds
	m.result = nil
	m.notice = ""

	m.answers = NewAnswerStore()
	m.flags = NewFlagSet()
	m.timer = NewTimer(m.sched, m.tickInterval)
	m.guard = NewNavigationGuard(m.platform, m.log, m.leave)
	m.autosave = NewAutoSaveScheduler(m.sched, m.log)
	if restored != nil {
		m.restoreLocked(restored)
	}

	m.status = StatusInProgress
	m.guard.Arm(m.guardMessage)
	m.timer.Start(duration-m.offset, m.onTick, m.onExpire)
	state := m.nextStateLocked()
	m.mu.Unlock()

	m.log.Info().
		Str("attempt_id", attempt.ID).
		Int("questions", len(attempt.Questions)).
		Int("duration_seconds", duration).
		Int("elapsed_seconds", attempt.ElapsedSeconds).
		Bool("restored", restored != nil).
		Msg("Attempt started")

	m.publish(state)
	return nil
}

func (m *Machine) endStarting() {
	m.mu.Lock()
	m.starting = false
	m.mu.Unlock()
}

// restoreLocked applies an autosaved snapshot. Entries for questions that
// are not part of this attempt are dropped.
func (m *Machine) restoreLocked(s *model.Snapshot) {
	for id, v := range s.Answers {
		if _, ok := m.index[id]; ok {
			m.answers.SetAnswer(id, v)
		}
	}
	for _, id := range s.Flags {
		if _, ok := m.index[id]; ok && !m.flags.IsFlagged(id) {
			m.flags.Toggle(id)
		}
	}
	if s.Cursor >= 0 && s.Cursor < len(m.questions) {
		m.cursor = s.Cursor
	}
}

// ─── In-progress actions ────────────────────────────────────────────

// SubmitAnswer records value for questionID. An empty value clears it.
func (m *Machine) SubmitAnswer(questionID, value string) error {
	return m.mutate(func() error {
		if m.status != StatusInProgress {
			return ErrInvalidTransition
		}
		if _, ok := m.index[questionID]; !ok {
			return ErrUnknownQuestion
		}
		if m.timer.Expired() {
			return ErrTimeExpired
		}
		m.answers.SetAnswer(questionID, value)
		m.scheduleAutosaveLocked()
		return nil
	})
}

// ToggleFlag flips the review flag on questionID and returns its new state.
func (m *Machine) ToggleFlag(questionID string) (bool, error) {
	var flagged bool
	err := m.mutate(func() error {
		if m.status != StatusInProgress {
			return ErrInvalidTransition
		}
		if _, ok := m.index[questionID]; !ok {
			return ErrUnknownQuestion
		}
		flagged = m.flags.Toggle(questionID)
		m.scheduleAutosaveLocked()
		return nil
	})
	return flagged, err
}

// Navigate moves the cursor to index.
func (m *Machine) Navigate(index int) error {
	return m.mutate(func() error {
		if m.status != StatusInProgress {
			return ErrInvalidTransition
		}
		if index < 0 || index >= len(m.questions) {
			return ErrIndexOutOfRange
		}
		m.cursor = index
		m.scheduleAutosaveLocked()
		return nil
	})
}

// NextUnanswered returns the index of the first unanswered question after
// the cursor, wrapping around. ok is false when everything is answered.
func (m *Machine) NextUnanswered() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.questions)
	if n == 0 || m.answers == nil {
		return 0, false
	}
	for step := 1; step <= n; step++ {
		i := (m.cursor + step) % n
		if _, ok := m.answers.Answer(m.questions[i].ID.String()); !ok {
			return i, true
		}
	}
	return 0, false
}

// OpenReview switches to the review overview.
func (m *Machine) OpenReview() error {
	return m.mutate(func() error {
		if m.status != StatusInProgress {
			return ErrInvalidTransition
		}
		m.status = StatusReviewing
		return nil
	})
}

// CloseReview returns from the review overview.
func (m *Machine) CloseReview() error {
	return m.mutate(func() error {
		if m.status != StatusReviewing {
			return ErrInvalidTransition
		}
		m.status = StatusInProgress
		return nil
	})
}

// ─── Submission ─────────────────────────────────────────────────────

// RequestSubmit submits the attempt. With unanswered questions the user is
// asked first; declining leaves the attempt untouched. A request while a
// submission is in flight is a no-op. started reports whether a backend
// call was issued.
func (m *Machine) RequestSubmit() (started bool, err error) {
	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return false, ErrClosed
	case m.status == StatusSubmitting:
		m.mu.Unlock()
		return false, nil
	case !m.status.Live():
		m.mu.Unlock()
		return false, ErrInvalidTransition
	}
	unanswered := len(m.answers.Unanswered(m.questions))
	m.mu.Unlock()

	if unanswered > 0 && !m.confirm(fmt.Sprintf(unansweredPrompt, unanswered)) {
		return false, nil
	}
	return m.submit(false), nil
}

// onExpire forces submission without asking anyone.
func (m *Machine) onExpire() {
	m.log.Info().Msg("Time limit reached, forcing submission")
	m.submit(true)
}

func (m *Machine) onTick(remaining int) {
	m.mu.Lock()
	live := m.status.Live()
	m.mu.Unlock()

	if !live {
		return
	}
	for _, fn := range m.tickObservers {
		fn(remaining)
	}
}

// submit moves a live attempt to Submitting and hands the answers to the
// backend on a separate goroutine.
func (m *Machine) submit(forced bool) bool {
	m.mu.Lock()
	if m.closed || !m.status.Live() {
		m.mu.Unlock()
		return false
	}

	m.status = StatusSubmitting
	m.notice = ""
	m.timer.Pause()
	m.guard.Disarm()

	ctx := m.ctx
	attemptID := m.attemptID
	answers := m.answers.Snapshot()
	elapsed := m.offset + m.timer.Elapsed()
	autosave := m.autosave
	state := m.nextStateLocked()
	m.inflight.Add(1)
	m.mu.Unlock()

	m.publish(state)
	autosave.FlushNow()

	m.log.Info().
		Str("attempt_id", attemptID).
		Int("answered", len(answers)).
		Int("elapsed_seconds", elapsed).
		Bool("forced", forced).
		Msg("Submitting attempt")

	go m.deliver(ctx, attemptID, answers, elapsed)
	return true
}

func (m *Machine) deliver(ctx context.Context, attemptID string, answers map[string]string, elapsed int) {
	defer m.inflight.Done()

	reported, err := m.backend.SubmitAttempt(ctx, attemptID, answers, elapsed)
	if err != nil {
		m.submitFailed(attemptID, err)
		return
	}

	details, err := m.backend.FetchDetailedResults(ctx, attemptID)
	if err != nil {
		details = nil
		if reported != nil {
			details = reported.Details
		}
		m.log.Warn().Err(err).
			Str("attempt_id", attemptID).
			Int("submitted_details", len(details)).
			Msg("Detailed results unavailable, reconciling from submit response")
	}

	m.complete(attemptID, answers, elapsed, reported, details)
}

func (m *Machine) complete(attemptID string, answers map[string]string, elapsed int, reported *model.Result, details []model.DetailedResult) {
	m.mu.Lock()
	if m.status != StatusSubmitting || m.attemptID != attemptID {
		m.mu.Unlock()
		return
	}

	rows, tally := NewReconciler(details, m.log).Build(m.questions, answers)
	m.result = buildResult(reported, rows, tally, len(m.questions), elapsed, m.log)

	m.timer.Stop()
	m.guard.Disarm()
	m.autosave.Cancel()
	m.status = StatusCompleted

	ctx, sink := m.ctx, m.sink
	state := m.nextStateLocked()
	m.mu.Unlock()

	if sink != nil {
		if err := sink.Discard(ctx, attemptID); err != nil {
			m.log.Warn().Err(err).Str("attempt_id", attemptID).Msg("Discard autosave failed")
		}
	}

	m.log.Info().
		Str("attempt_id", attemptID).
		Float64("score", state.Result.Score).
		Int("correct", tally.Correct).
		Int("skipped", tally.Skipped).
		Msg("Attempt completed")

	m.publish(state)
}

func (m *Machine) submitFailed(attemptID string, err error) {
	subErr := &SubmissionError{AttemptID: attemptID, Err: err}

	m.mu.Lock()
	if m.status != StatusSubmitting || m.attemptID != attemptID {
		m.mu.Unlock()
		return
	}
	m.status = StatusInProgress
	m.notice = subErr.Error()
	if !m.closed {
		m.guard.Arm(m.guardMessage)
		m.timer.Resume()
	}
	state := m.nextStateLocked()
	m.mu.Unlock()

	m.log.Error().Err(err).Str("attempt_id", attemptID).Msg("Submission failed, attempt back in progress")
	m.publish(state)
}

// Wait blocks until any in-flight submission has settled.
func (m *Machine) Wait() {
	m.inflight.Wait()
}

// ─── Exit ───────────────────────────────────────────────────────────

// RequestExit asks the user whether to abandon the attempt. Staying is a
// no-op; leaving abandons it. left reports which happened.
func (m *Machine) RequestExit() (left bool, err error) {
	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return false, ErrClosed
	case !m.status.Live():
		m.mu.Unlock()
		return false, ErrInvalidTransition
	}
	m.mu.Unlock()

	if !m.confirm(m.exitMessage) {
		return false, nil
	}
	if err := m.ConfirmExit(); err != nil {
		return false, err
	}
	return true, nil
}

// ConfirmExit abandons the attempt: the timer is cancelled, the guard
// disarmed and pending autosave dropped, in that order, before the state
// is discarded. Nothing is submitted.
func (m *Machine) ConfirmExit() error {
	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return ErrClosed
	case !m.status.Live():
		m.mu.Unlock()
		return ErrInvalidTransition
	}

	m.timer.Stop()
	m.guard.Disarm()
	m.autosave.Cancel()

	attemptID := m.attemptID
	m.answers.ClearAll()
	m.flags.ClearAll()
	m.questions = nil
	m.index = nil
	m.cursor = 0
	m.result = nil
	m.notice = ""
	m.status = StatusAborted

	ctx, sink := m.ctx, m.sink
	state := m.nextStateLocked()
	m.mu.Unlock()

	if sink != nil {
		if err := sink.Discard(ctx, attemptID); err != nil {
			m.log.Warn().Err(err).Str("attempt_id", attemptID).Msg("Discard autosave failed")
		}
	}

	m.log.Info().Str("attempt_id", attemptID).Msg("Attempt abandoned")
	m.publish(state)
	return nil
}

// leave runs after the user confirmed an intercepted route change.
func (m *Machine) leave() {
	if err := m.ConfirmExit(); err != nil {
		m.log.Debug().Err(err).Msg("Leave after route change ignored")
	}
}

// ─── Lifecycle ──────────────────────────────────────────────────────

// State returns a copy of the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

// Close tears the machine down when its owner goes away. Pending autosave
// is flushed so a later Start of the same attempt can resume it; an
// in-flight submission still settles. A running attempt publishes one last
// state marked Closed.
func (m *Machine) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	if m.timer != nil {
		m.timer.Stop()
	}
	if m.guard != nil {
		m.guard.Disarm()
	}
	running := m.status != StatusSetup && !m.status.Terminal()
	var state State
	if running {
		state = m.nextStateLocked()
	}
	autosave := m.autosave
	m.mu.Unlock()

	if autosave != nil {
		autosave.FlushNow()
	}
	if running {
		m.publish(state)
	}
}

// ─── Internals ──────────────────────────────────────────────────────

// mutate runs fn under the lock and publishes the new state on success.
func (m *Machine) mutate(fn func() error) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if err := fn(); err != nil {
		m.mu.Unlock()
		return err
	}
	state := m.nextStateLocked()
	m.mu.Unlock()

	m.publish(state)
	return nil
}

func (m *Machine) scheduleAutosaveLocked() {
	if m.sink == nil {
		return
	}
	snapshot := &model.Snapshot{
		AttemptID:        m.attemptID,
		Answers:          m.answers.Snapshot(),
		Flags:            m.flags.List(),
		Cursor:           m.cursor,
		RemainingSeconds: m.timer.Remaining(),
		SavedAt:          time.Now().UTC(),
	}
	ctx, sink := m.ctx, m.sink
	m.autosave.Schedule(snapshot, func(s *model.Snapshot) error {
		return sink.Save(ctx, s.AttemptID, s)
	}, m.autosaveDelay)
}

func (m *Machine) confirm(message string) bool {
	if m.platform == nil {
		return true
	}
	return m.platform.Confirm(message)
}

// nextStateLocked captures the state for publishing under a new version.
func (m *Machine) nextStateLocked() State {
	m.version++
	return m.stateLocked()
}

func (m *Machine) stateLocked() State {
	st := State{
		Version:         m.version,
		Status:          m.status,
		AttemptID:       m.attemptID,
		Config:          m.config,
		Questions:       append([]model.Question(nil), m.questions...),
		Cursor:          m.cursor,
		DurationSeconds: m.duration,
		Result:          m.result,
		Notice:          m.notice,
	}
	if m.timer != nil {
		st.RemainingSeconds = m.timer.Remaining()
		st.TimeExpired = m.timer.Expired()
	}
	if m.answers != nil {
		st.Answers = m.answers.Snapshot()
		st.Answered = len(st.Answers)
		st.Unanswered = len(m.answers.Unanswered(m.questions))
	}
	if m.flags != nil {
		st.Flags = m.flags.List()
	}
	if m.guard != nil {
		st.GuardArmed = m.guard.Armed()
	}
	st.Closed = m.closed
	return st
}

func (m *Machine) publish(state State) {
	for _, fn := range m.observers {
		fn(state)
	}
}

func validateConfig(cfg model.ExamConfig) error {
	switch {
	case cfg.QuestionCount <= 0:
		return &ConfigError{Field: "question_count", Reason: "must be positive"}
	case cfg.TimeLimitSeconds <= 0:
		return &ConfigError{Field: "time_limit_seconds", Reason: "must be positive"}
	case !cfg.Type.Valid():
		return &ConfigError{Field: "type", Reason: "is not a known question type"}
	}
	return nil
}

func validateAttempt(a *model.Attempt, duration int) error {
	if a == nil || a.ID == "" {
		return &ConfigError{Field: "attempt", Reason: "has no id"}
	}
	if len(a.Questions) == 0 {
		return &ConfigError{Field: "questions", Reason: "must not be empty"}
	}
	if duration <= 0 {
		return &ConfigError{Field: "duration_seconds", Reason: "must be positive"}
	}
	if a.ElapsedSeconds < 0 || a.ElapsedSeconds >= duration {
		return &ConfigError{Field: "elapsed_seconds", Reason: "must be within the duration"}
	}

	seen := make(map[model.QuestionID]struct{}, len(a.Questions))
	for i := range a.Questions {
		q := &a.Questions[i]
		if err := q.Validate(); err != nil {
			return &ConfigError{Field: "questions", Reason: err.Error()}
		}
		if _, dup := seen[q.ID]; dup {
			return &ConfigError{Field: "questions", Reason: fmt.Sprintf("contain duplicate id %s", q.ID)}
		}
		seen[q.ID] = struct{}{}
	}
	return nil
}
